package model

import "github.com/m-mizutani/goerr/v2"

// DecodingParams are the sampling settings sent with a generation request
type DecodingParams struct {
	MaxLength          int     `yaml:"max_length"`
	Temperature        float64 `yaml:"temperature"`
	TopP               float64 `yaml:"top_p"`
	TopK               int     `yaml:"top_k"`
	DoSample           bool    `yaml:"do_sample"`
	NumReturnSequences int     `yaml:"num_return_sequences"`
}

// Validate checks if the parameters are acceptable for the generation backends
func (p DecodingParams) Validate() error {
	if p.MaxLength <= 0 {
		return goerr.New("max_length must be positive", goerr.V("max_length", p.MaxLength))
	}
	if p.Temperature < 0 {
		return goerr.New("temperature must not be negative", goerr.V("temperature", p.Temperature))
	}
	if p.TopP < 0 || p.TopP > 1 {
		return goerr.New("top_p must be in [0, 1]", goerr.V("top_p", p.TopP))
	}
	if p.TopK < 0 {
		return goerr.New("top_k must not be negative", goerr.V("top_k", p.TopK))
	}
	if p.NumReturnSequences <= 0 {
		return goerr.New("num_return_sequences must be positive", goerr.V("num_return_sequences", p.NumReturnSequences))
	}
	return nil
}

// ChatDecoding is used for short-term dialogue responses
func ChatDecoding() DecodingParams {
	return DecodingParams{
		MaxLength:          256,
		Temperature:        0.1,
		TopP:               0.7,
		TopK:               0,
		DoSample:           true,
		NumReturnSequences: 1,
	}
}

// PassageDecoding is used to answer a question from a verified passage
func PassageDecoding() DecodingParams {
	return ChatDecoding()
}

// SummaryDecoding is used to summarize a finished session
func SummaryDecoding() DecodingParams {
	p := ChatDecoding()
	p.MaxLength = 512
	return p
}
