// Package pipeline sequences the retrieval-augmented answer flow:
// load, chunk, embed, index, retrieve and generate.
//
// Each call to Clinical or Literature is one run. A run builds its own
// index from scratch and closes it before returning; nothing is shared or
// cached between runs, so a single Pipeline may serve concurrent callers as
// long as its embedder, generator and index provider are goroutine-safe.
//
// Every stage is traced with an OpenTelemetry span and, when a publisher is
// configured, announced as a run event.
package pipeline
