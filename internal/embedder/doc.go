// Package embedder turns profile text into fixed-length vectors.
//
// Every provider implements the Embedder interface. The default provider is
// the deterministic hash embedder (model "local-hash-v1", 128 dimensions),
// which needs no network and produces identical vectors on every run. The HTTP
// provider talks to OpenAI-compatible /v1/embeddings endpoints (OpenAI, Jina).
//
// # Basic Usage
//
//	emb, err := embedder.New(embedder.Config{Provider: embedder.ProviderLocal})
//	if err != nil {
//	    return err
//	}
//	defer emb.Close()
//
//	result, err := emb.GenerateEmbedding(ctx, embedder.EmbeddingRequest{
//	    Text: "calculus, derivatives",
//	})
//	fmt.Println(len(result.Vector)) // 128
//
// # Contract
//
// Non-empty text yields a unit-length vector. Text with no tokens yields the
// all-zero vector of the provider's dimension, and providers never call out
// to the network for it.
//
// # Caching
//
// Providers share an LRU Cache keyed by model and content hash. Cached
// vectors are copied on read so callers may mutate what they receive.
package embedder
