package embedder

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

func TestComputeHash(t *testing.T) {
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", ComputeHash(""))
	assert.Equal(t, "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9", ComputeHash("hello world"))
	assert.NotEqual(t, CacheKey("a", "x"), CacheKey("b", "x"))
}

func TestHashEmbed(t *testing.T) {
	t.Run("unit length", func(t *testing.T) {
		v := HashEmbed("calculus derivatives", HashDimension)
		require.Len(t, v, HashDimension)
		assert.InDelta(t, 1.0, floats.Norm(v, 2), 1e-9)
	})

	t.Run("deterministic", func(t *testing.T) {
		assert.Equal(t, HashEmbed("linear algebra", HashDimension), HashEmbed("linear algebra", HashDimension))
	})

	t.Run("case and whitespace insensitive", func(t *testing.T) {
		assert.Equal(t, HashEmbed("calculus derivatives", HashDimension), HashEmbed("  Calculus\t DERIVATIVES \n", HashDimension))
	})

	t.Run("empty text is zero vector", func(t *testing.T) {
		for _, text := range []string{"", "   ", "\n\t"} {
			v := HashEmbed(text, HashDimension)
			require.Len(t, v, HashDimension)
			assert.True(t, IsZero(v), "text %q", text)
		}
	})

	t.Run("all components non-negative", func(t *testing.T) {
		for _, x := range HashEmbed("organic chemistry", HashDimension) {
			assert.GreaterOrEqual(t, x, 0.0)
		}
	})

	t.Run("single token follows digest", func(t *testing.T) {
		v := HashEmbed("x", 64)
		// Positions i and i+32 read the same digest byte
		for i := 0; i < 32; i++ {
			assert.Equal(t, v[i], v[i+32])
		}
	})
}

func TestNormalize(t *testing.T) {
	out := Normalize([]float64{3, 4})
	assert.InDelta(t, 0.6, out[0], 1e-12)
	assert.InDelta(t, 0.8, out[1], 1e-12)

	zero := []float64{0, 0}
	assert.Equal(t, zero, Normalize(zero))
}

func TestHashProvider(t *testing.T) {
	ctx := context.Background()
	cache := NewCache(10)
	p := NewHashProvider(cache)
	defer p.Close()

	assert.Equal(t, ProviderLocal, p.Provider())
	assert.Equal(t, HashModel, p.Model())
	assert.Equal(t, HashDimension, p.Dimension())

	emb, err := p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "tutoring in physics"})
	require.NoError(t, err)
	assert.Equal(t, HashDimension, emb.Dimension)
	assert.Equal(t, HashModel, emb.Model)
	assert.Equal(t, 1, cache.Size())

	// Mutating a returned vector must not reach the cache
	emb.Vector[0] = 42
	again, err := p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "tutoring in physics"})
	require.NoError(t, err)
	assert.NotEqual(t, 42.0, again.Vector[0])

	empty, err := p.GenerateEmbedding(ctx, EmbeddingRequest{Text: ""})
	require.NoError(t, err)
	assert.True(t, IsZero(empty.Vector))

	batch, err := p.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{"a", "", "b"}})
	require.NoError(t, err)
	require.Len(t, batch.Embeddings, 3)
	assert.True(t, IsZero(batch.Embeddings[1].Vector))

	_, err = p.GenerateBatch(ctx, BatchEmbeddingRequest{})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = p.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: make([]string, MaxBatchSize+1)})
	assert.ErrorIs(t, err, ErrBatchTooLarge)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = p.GenerateEmbedding(cancelled, EmbeddingRequest{Text: "x"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCache(t *testing.T) {
	cache := NewCache(2)
	mk := func(v float64) *Embedding { return &Embedding{Vector: []float64{v}, Dimension: 1} }

	cache.Set("a", mk(1))
	cache.Set("b", mk(2))
	cache.Set("c", mk(3))
	assert.Equal(t, 2, cache.Size())

	_, ok := cache.Get("a")
	assert.False(t, ok, "oldest entry evicted")

	got, ok := cache.Get("c")
	require.True(t, ok)
	assert.Equal(t, []float64{3}, got.Vector)

	cache.Clear()
	assert.Equal(t, 0, cache.Size())

	assert.Equal(t, 0, NewCache(0).Size())
}

func TestHashProviderConcurrent(t *testing.T) {
	p := NewHashProvider(NewCache(100))
	ctx := context.Background()
	want := HashEmbed("shared text", HashDimension)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			emb, err := p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "shared text"})
			assert.NoError(t, err)
			assert.Equal(t, want, emb.Vector)
			_, err = p.GenerateEmbedding(ctx, EmbeddingRequest{Text: fmt.Sprintf("text %d", i)})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
}

func BenchmarkHashEmbed(b *testing.B) {
	texts := []string{
		"calculus",
		"calculus, derivatives, integrals",
		"third year math major who has been a TA for intro calculus and linear algebra for two semesters",
	}
	for _, text := range texts {
		b.Run(fmt.Sprintf("len=%d", len(text)), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				v := HashEmbed(text, HashDimension)
				if math.IsNaN(v[0]) {
					b.Fatal("nan")
				}
			}
		})
	}
}
