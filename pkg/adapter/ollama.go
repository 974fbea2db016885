package adapter

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/mnemo/pkg/model"
	"github.com/ollama/ollama/api"
)

// Ollama serves generation and embedding from a local or remote Ollama server
type Ollama struct {
	client          *api.Client
	generativeModel string
	embeddingModel  string
}

type OllamaOption func(*Ollama)

func WithOllamaGenerativeModel(model string) OllamaOption {
	return func(o *Ollama) {
		o.generativeModel = model
	}
}

func WithOllamaEmbeddingModel(model string) OllamaOption {
	return func(o *Ollama) {
		o.embeddingModel = model
	}
}

func NewOllama(host string, opts ...OllamaOption) (*Ollama, error) {
	if host == "" {
		host = "http://localhost:11434"
	}
	uri, err := url.Parse(host)
	if err != nil {
		return nil, goerr.Wrap(err, "invalid ollama host", goerr.V("host", host))
	}

	o := &Ollama{
		client:          api.NewClient(uri, http.DefaultClient),
		generativeModel: "llama3.2",
		embeddingModel:  "nomic-embed-text",
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

func ollamaOptions(params model.DecodingParams) map[string]any {
	options := map[string]any{
		"num_predict": params.MaxLength,
		"temperature": params.Temperature,
		"top_p":       params.TopP,
	}
	if params.TopK > 0 {
		options["top_k"] = params.TopK
	}
	if !params.DoSample {
		options["temperature"] = 0
	}
	return options
}

// Generate issues one request per requested sequence because Ollama returns a single completion
func (o *Ollama) Generate(ctx context.Context, prompt string, params model.DecodingParams) ([]string, error) {
	n := max(params.NumReturnSequences, 1)
	stream := false

	texts := make([]string, 0, n)
	for range n {
		var text strings.Builder
		req := &api.GenerateRequest{
			Model:   o.generativeModel,
			Prompt:  prompt,
			Stream:  &stream,
			Options: ollamaOptions(params),
		}
		err := o.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
			text.WriteString(resp.Response)
			return nil
		})
		if err != nil {
			return nil, goerr.Wrap(err, "failed to generate with ollama", goerr.V("model", o.generativeModel))
		}
		texts = append(texts, text.String())
	}

	return texts, nil
}

func (o *Ollama) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := o.client.Embed(ctx, &api.EmbedRequest{
		Model: o.embeddingModel,
		Input: texts,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed with ollama", goerr.V("model", o.embeddingModel))
	}
	return resp.Embeddings, nil
}
