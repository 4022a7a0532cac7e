package embeddings

// fastEmbedModelDimension returns dimensions for the local models, and is
// available in every build so dimension detection does not need cgo.
func fastEmbedModelDimension(model string) (int, bool) {
	switch model {
	case "BAAI/bge-small-en-v1.5", "BAAI/bge-small-en", "sentence-transformers/all-MiniLM-L6-v2":
		return 384, true
	case "BAAI/bge-base-en-v1.5", "BAAI/bge-base-en":
		return 768, true
	}
	return 0, false
}
