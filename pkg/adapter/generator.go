package adapter

import (
	"context"
	"strings"

	"github.com/m-mizutani/mnemo/pkg/model"
)

// Generator is a text-generation inference service
type Generator interface {
	// Generate runs the prompt with the given decoding parameters and returns the generated texts,
	// one per requested sequence
	Generate(ctx context.Context, prompt string, params model.DecodingParams) ([]string, error)
}

// Embedder is a text-embedding inference service
type Embedder interface {
	// Embed returns one fixed-dimension vector per input text, in input order
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// GenerateOne runs the prompt and returns the first generated text. A blank text is
// ErrEmptyGeneration.
func GenerateOne(ctx context.Context, gen Generator, prompt string, params model.DecodingParams) (string, error) {
	texts, err := gen.Generate(ctx, prompt, params)
	if err != nil {
		return "", err
	}
	if len(texts) == 0 || strings.TrimSpace(texts[0]) == "" {
		return "", model.ErrEmptyGeneration
	}
	return texts[0], nil
}

// EmbedOne returns the embedding of a single text
func EmbedOne(ctx context.Context, emb Embedder, text string) ([]float32, error) {
	vectors, err := emb.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, model.ErrEmptyEmbedding
	}
	return vectors[0], nil
}
