package cli

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/mnemo/pkg/service/mcp"
	"github.com/urfave/cli/v3"
)

func mcpCommand() *cli.Command {
	var cfg config

	flags := globalFlags(&cfg)
	flags = append(flags, llmFlags(&cfg)...)
	flags = append(flags, retrievalFlags(&cfg)...)

	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve the assistant as MCP tools over stdio",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			// stdout carries the protocol
			ctx = cfg.setupLogger(ctx, c.Root().ErrWriter)
			defer cfg.close(ctx)

			svc, err := cfg.newServices(ctx)
			if err != nil {
				return err
			}
			defer svc.close()

			server, err := mcp.NewServer(svc.chat, svc.sessions, Version)
			if err != nil {
				return err
			}
			if err := server.Run(ctx); err != nil {
				return goerr.Wrap(err, "mcp server stopped")
			}
			return nil
		},
	}
}
