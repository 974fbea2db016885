package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/mnemo/pkg/model"
	"github.com/m-mizutani/mnemo/pkg/usecase/chat"
	"github.com/urfave/cli/v3"
)

func askCommand() *cli.Command {
	var (
		cfg       config
		sessionID string
		end       bool
	)

	flags := []cli.Flag{
		sessionIDFlag(&sessionID, false),
		&cli.BoolFlag{
			Name:        "end",
			Usage:       "End the session after the reply",
			Sources:     cli.EnvVars("MNEMO_ASK_END"),
			Destination: &end,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)
	flags = append(flags, retrievalFlags(&cfg)...)

	return &cli.Command{
		Name:      "ask",
		Usage:     "Answer one query. A new session is started unless --session-id is given",
		ArgsUsage: "<query>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
			if query == "" {
				return goerr.New("query is required")
			}

			ctx = cfg.setupLogger(ctx, c.Root().ErrWriter)
			defer cfg.close(ctx)

			svc, err := cfg.newServices(ctx)
			if err != nil {
				return err
			}
			defer svc.close()

			sc := chat.SessionContext{SessionID: model.SessionID(sessionID)}
			reply, err := svc.chat.Ask(ctx, &sc, query)
			if err != nil {
				return goerr.Wrap(err, "failed to answer", goerr.V("session_id", sc.SessionID))
			}

			fmt.Fprintf(c.Root().ErrWriter, "session: %s\n", sc.SessionID)
			fmt.Fprintf(c.Root().Writer, "%s\n", reply.Text)

			if end {
				if _, err := svc.chat.NewSession(ctx, &sc); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
