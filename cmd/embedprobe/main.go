// Command embedprobe embeds two texts with the configured provider and
// prints their cosine similarity. It is a quick check that a provider is
// reachable and that its vectors are comparable with the cached ones.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/dshills/tutormatch/internal/config"
	"github.com/dshills/tutormatch/internal/embedder"
	"github.com/dshills/tutormatch/internal/storage"
)

func main() {
	timeout := flag.Duration("timeout", 30*time.Second, "request timeout")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: embedprobe [flags] <text-a> <text-b>\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 2 {
		flag.Usage()
		os.Exit(2)
	}

	log.SetOutput(os.Stderr)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	emb, err := embedder.New(embedder.Config{
		Provider: cfg.Embedding.Provider,
		APIKey:   cfg.Embedding.APIKey,
		Model:    cfg.Embedding.Model,
		BaseURL:  cfg.Embedding.BaseURL,
	})
	if err != nil {
		log.Fatalf("Failed to create embedder: %v", err)
	}
	defer emb.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	resp, err := emb.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{Texts: flag.Args()})
	if err != nil {
		log.Fatalf("Embedding failed: %v", err)
	}
	a, b := resp.Embeddings[0], resp.Embeddings[1]

	fmt.Printf("Provider: %s\n", emb.Provider())
	fmt.Printf("Model: %s\n", emb.Model())
	fmt.Printf("Dimension: %d\n", a.Dimension)
	fmt.Printf("Cosine: %.6f\n", storage.CosineSimilarity(a.Vector, b.Vector))
}
