package chat

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/mnemo/pkg/adapter"
	"github.com/m-mizutani/mnemo/pkg/model"
	"github.com/m-mizutani/mnemo/pkg/prompt"
	"github.com/m-mizutani/mnemo/pkg/utils/logging"
)

// Respond generates the assistant reply to query given the rendered history window
func Respond(ctx context.Context, gen adapter.Generator, query, window string) (string, error) {
	return respond(ctx, gen, model.ChatDecoding(), query, window)
}

func respond(ctx context.Context, gen adapter.Generator, params model.DecodingParams, query, window string) (string, error) {
	p := prompt.Dialogue(window, query)
	logging.From(ctx).Debug("dialogue prompt", "prompt", p)

	reply, err := adapter.GenerateOne(ctx, gen, p, params)
	if err != nil {
		return "", goerr.Wrap(err, "failed to generate dialogue response")
	}
	return strings.TrimSpace(reply), nil
}
