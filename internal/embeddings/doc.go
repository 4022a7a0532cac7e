// Package embeddings turns text into fixed-length vectors.
//
// Providers are selected at runtime by name: googleai (Gemini via
// langchaingo), openai, ollama, bedrock (Titan), tei (text-embeddings-
// inference over HTTP), fastembed (local ONNX, cgo builds only) and hashing,
// an offline lexical embedder used for tests and air-gapped runs.
//
// Every provider returns one vector per input in input order. Provider
// failures are classified into the apierr sentinels and never retried.
package embeddings
