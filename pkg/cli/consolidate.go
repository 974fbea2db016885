package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/mnemo/pkg/model"
	"github.com/urfave/cli/v3"
)

func consolidateCommand() *cli.Command {
	var (
		cfg       config
		sessionID string
	)

	flags := []cli.Flag{sessionIDFlag(&sessionID, true)}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)
	flags = append(flags, retrievalFlags(&cfg)...)

	return &cli.Command{
		Name:  "consolidate",
		Usage: "Summarize an ended session into long term memory",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogger(ctx, c.Root().ErrWriter)
			defer cfg.close(ctx)

			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}

			s, err := repo.GetSession(ctx, model.SessionID(sessionID))
			if err != nil {
				return goerr.Wrap(err, "failed to get session", goerr.V("session_id", sessionID))
			}
			if !s.Ended() {
				return goerr.New("session has not ended", goerr.V("session_id", sessionID))
			}

			uc, err := cfg.newConsolidation(ctx, repo)
			if err != nil {
				return err
			}

			result, err := uc.Consolidate(ctx, s.ID, *s.EndTime)
			if err != nil {
				return goerr.Wrap(err, "failed to consolidate session", goerr.V("session_id", sessionID))
			}

			switch {
			case result.Skipped:
				fmt.Fprintf(c.Root().Writer, "%s\tskipped (no turns)\n", s.ID)
			case !result.Upsert.OK():
				return goerr.New("memory record was not stored",
					goerr.V("session_id", sessionID),
					goerr.V("status", result.Upsert.StatusCode),
					goerr.V("error", result.Upsert.Err))
			default:
				fmt.Fprintf(c.Root().Writer, "%s\t%s\n", s.ID, result.Record.SummaryText)
			}
			return nil
		},
	}
}
