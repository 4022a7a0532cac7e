// Package vectorstore holds the write-once, per-run index of chunk vectors.
//
// An Index is built once from a run's chunks and their embeddings, queried
// with a query vector, and closed when the run ends. Nothing persists across
// runs. Similarity is cosine; hits are ordered by descending score with ties
// broken by ascending chunk index, so retrieval is deterministic.
//
// Two backends are available:
//
//   - chromem (default): an in-memory chromem-go collection per run.
//   - qdrant: an ephemeral Qdrant collection named medrag_run_<uuid>, created
//     on Build, searched exactly (no HNSW) and deleted on Close.
//
// Provider selection via config:
//
//	vectorstore:
//	  provider: chromem  # "chromem" (default) or "qdrant"
package vectorstore
