package matching

import (
	"context"
	"fmt"

	"github.com/dshills/tutormatch/internal/embedder"
	"github.com/dshills/tutormatch/internal/storage"
	"github.com/dshills/tutormatch/pkg/types"
)

// slotVectors holds the field vectors of one profile
type slotVectors map[types.Field][]float64

// vectorSource reads cached slot vectors and embeds whatever is missing
type vectorSource struct {
	store    storage.Storage
	embedder embedder.Embedder
}

// cached loads the slot cache for role and model. A nil ids slice loads
// every user of the role.
func (v *vectorSource) cached(ctx context.Context, role types.Role, model string, ids []int64) (map[int64]slotVectors, error) {
	rows, err := v.store.ListEmbeddings(ctx, role, model, ids)
	if err != nil {
		return nil, fmt.Errorf("load %s embeddings: %w", role, err)
	}
	out := make(map[int64]slotVectors)
	for _, row := range rows {
		if out[row.UserID] == nil {
			out[row.UserID] = make(slotVectors, len(types.AllFields))
		}
		out[row.UserID][row.Field] = row.Vector
	}
	return out, nil
}

// complete returns vecs with every missing field embedded from texts
func (v *vectorSource) complete(ctx context.Context, vecs slotVectors, texts map[types.Field]string) (slotVectors, error) {
	out := make(slotVectors, len(types.AllFields))
	for _, f := range types.AllFields {
		if vec, ok := vecs[f]; ok {
			out[f] = vec
			continue
		}
		emb, err := v.embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: texts[f]})
		if err != nil {
			return nil, fmt.Errorf("embed %s: %w", f, err)
		}
		out[f] = emb.Vector
	}
	return out, nil
}

// fieldSimilarity is the weighted mean of per-field cosine similarities
func fieldSimilarity(student, tutor slotVectors, w types.FieldWeights) float64 {
	var total float64
	for _, f := range types.AllFields {
		total += w.Of(f) * storage.CosineSimilarity(student[f], tutor[f])
	}
	return total / w.Divisor()
}
