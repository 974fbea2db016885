package adapter

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/mnemo/pkg/model"
	"github.com/sashabaranov/go-openai"
)

// OpenAI serves generation through the completions API of any OpenAI compatible endpoint
type OpenAI struct {
	client          *openai.Client
	generativeModel string
	embeddingModel  string
	dimensions      int
}

type OpenAIOption func(*OpenAI)

func WithOpenAIGenerativeModel(model string) OpenAIOption {
	return func(o *OpenAI) {
		o.generativeModel = model
	}
}

func WithOpenAIEmbeddingModel(model string) OpenAIOption {
	return func(o *OpenAI) {
		o.embeddingModel = model
	}
}

func WithOpenAIEmbeddingDimensions(dimensions int) OpenAIOption {
	return func(o *OpenAI) {
		o.dimensions = dimensions
	}
}

func NewOpenAI(apiKey, baseURL string, opts ...OpenAIOption) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	o := &OpenAI{
		client:          openai.NewClientWithConfig(cfg),
		generativeModel: openai.GPT3Dot5TurboInstruct,
		embeddingModel:  string(openai.SmallEmbedding3),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *OpenAI) Generate(ctx context.Context, prompt string, params model.DecodingParams) ([]string, error) {
	req := openai.CompletionRequest{
		Model:       o.generativeModel,
		Prompt:      prompt,
		MaxTokens:   params.MaxLength,
		Temperature: float32(params.Temperature),
		TopP:        float32(params.TopP),
		N:           params.NumReturnSequences,
	}
	if !params.DoSample {
		req.Temperature = 0
	}

	resp, err := o.client.CreateCompletion(ctx, req)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create completion", goerr.V("model", o.generativeModel))
	}

	texts := make([]string, len(resp.Choices))
	for _, choice := range resp.Choices {
		if choice.Index >= 0 && choice.Index < len(texts) {
			texts[choice.Index] = choice.Text
		}
	}
	return texts, nil
}

func (o *OpenAI) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input:      texts,
		Model:      openai.EmbeddingModel(o.embeddingModel),
		Dimensions: o.dimensions,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create embeddings", goerr.V("model", o.embeddingModel))
	}

	vectors := make([][]float32, len(resp.Data))
	for _, data := range resp.Data {
		if data.Index >= 0 && data.Index < len(vectors) {
			vectors[data.Index] = data.Embedding
		}
	}
	return vectors, nil
}
