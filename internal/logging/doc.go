// Package logging provides structured logging for medrag.
//
// Logger wraps Zap with context-aware methods. Every call picks up trace
// correlation from the active OpenTelemetry span and the request and run
// IDs stored on the context:
//
//	ctx = logging.WithRunID(ctx, runID)
//	logger.Info(ctx, "chunks indexed", zap.Int("chunks", n))
//
// Console output goes to stderr so the answer on stdout stays clean for
// piping. Field names that commonly carry credentials or patient
// identifiers (api_key, email, patient, ...) are redacted in the encoder.
// Error and above are never sampled.
//
// Use TestLogger in tests:
//
//	tl := logging.NewTestLogger()
//	tl.AssertLogged(t, zapcore.InfoLevel, "chunks indexed")
//	tl.AssertNoSecrets(t)
package logging
