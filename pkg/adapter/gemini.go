package adapter

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/mnemo/pkg/model"
	"google.golang.org/genai"
)

// Gemini serves both generation and embedding through Vertex AI
type Gemini struct {
	client          *genai.Client
	generativeModel string
	embeddingModel  string
	dimensions      int32
}

type GeminiOption func(*Gemini)

func WithGenerativeModel(model string) GeminiOption {
	return func(g *Gemini) {
		g.generativeModel = model
	}
}

func WithEmbeddingModel(model string) GeminiOption {
	return func(g *Gemini) {
		g.embeddingModel = model
	}
}

// WithEmbeddingDimensions truncates embeddings to the given size. Zero keeps the model default.
func WithEmbeddingDimensions(dimensions int) GeminiOption {
	return func(g *Gemini) {
		g.dimensions = int32(dimensions)
	}
}

func NewGemini(ctx context.Context, projectID, location string, opts ...GeminiOption) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  projectID,
		Location: location,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create genai client")
	}

	g := &Gemini{
		client:          client,
		generativeModel: "gemini-2.5-flash",
		embeddingModel:  "gemini-embedding-001",
		dimensions:      768,
	}

	for _, opt := range opts {
		opt(g)
	}

	return g, nil
}

// geminiConfig maps decoding parameters to the genai request config.
// top_k = 0 disables top-k sampling and do_sample = false means greedy decoding.
func geminiConfig(params model.DecodingParams) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(params.MaxLength),
		CandidateCount:  int32(params.NumReturnSequences),
		Temperature:     genai.Ptr(float32(params.Temperature)),
		TopP:            genai.Ptr(float32(params.TopP)),
	}
	if params.TopK > 0 {
		config.TopK = genai.Ptr(float32(params.TopK))
	}
	if !params.DoSample {
		config.Temperature = genai.Ptr(float32(0))
	}
	return config
}

func (g *Gemini) Generate(ctx context.Context, prompt string, params model.DecodingParams) ([]string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.generativeModel, genai.Text(prompt), geminiConfig(params))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to generate content", goerr.V("model", g.generativeModel))
	}

	texts := make([]string, 0, len(resp.Candidates))
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}

		var text strings.Builder
		for _, part := range candidate.Content.Parts {
			if part.Thought {
				continue
			}
			text.WriteString(part.Text)
		}
		texts = append(texts, text.String())
	}

	return texts, nil
}

func (g *Gemini) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	config := &genai.EmbedContentConfig{}
	if g.dimensions > 0 {
		config.OutputDimensionality = genai.Ptr(g.dimensions)
	}

	resp, err := g.client.Models.EmbedContent(ctx, g.embeddingModel, contents, config)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed content", goerr.V("model", g.embeddingModel))
	}

	vectors := make([][]float32, 0, len(resp.Embeddings))
	for _, embedding := range resp.Embeddings {
		vectors = append(vectors, embedding.Values)
	}
	return vectors, nil
}
