package adapter

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/m-mizutani/goerr/v2"
)

type cachedEmbedder struct {
	inner Embedder
	cache *expirable.LRU[string, []float32]
}

// NewCachedEmbedder memoizes embeddings by input text. Repeated retrieval queries within ttl
// are served without calling the embedding service.
func NewCachedEmbedder(emb Embedder, size int, ttl time.Duration) Embedder {
	if size <= 0 {
		return emb
	}
	return &cachedEmbedder{
		inner: emb,
		cache: expirable.NewLRU[string, []float32](size, nil, ttl),
	}
}

func (c *cachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))

	var missIdx []int
	var missTexts []string
	for i, text := range texts {
		if v, ok := c.cache.Get(text); ok {
			vectors[i] = v
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}

	if len(missTexts) == 0 {
		return vectors, nil
	}

	fetched, err := c.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(fetched) != len(missTexts) {
		return nil, goerr.New("embedding count mismatch",
			goerr.V("expected", len(missTexts)),
			goerr.V("actual", len(fetched)),
		)
	}

	for j, i := range missIdx {
		vectors[i] = fetched[j]
		if len(fetched[j]) > 0 {
			c.cache.Add(missTexts[j], fetched[j])
		}
	}
	return vectors, nil
}
