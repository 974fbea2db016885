package cli

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/mnemo/pkg/repository"
	"github.com/m-mizutani/mnemo/pkg/service/trigger"
	"github.com/m-mizutani/mnemo/pkg/usecase/consolidate"
	"github.com/m-mizutani/mnemo/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func watchCommand() *cli.Command {
	var (
		cfg     config
		workers int64
	)

	flags := []cli.Flag{
		&cli.IntFlag{
			Name:        "workers",
			Usage:       "Number of sessions consolidated in parallel",
			Value:       2,
			Sources:     cli.EnvVars("MNEMO_WATCH_WORKERS"),
			Destination: &workers,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)
	flags = append(flags, retrievalFlags(&cfg)...)

	return &cli.Command{
		Name:  "watch",
		Usage: "Consolidate sessions as they end by following the Firestore change feed",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			if cfg.backend != backendFirestore {
				return goerr.New("watch requires the firestore backend", goerr.V("backend", cfg.backend))
			}

			ctx = cfg.setupLogger(ctx, c.Root().ErrWriter)
			defer cfg.close(ctx)

			client, err := cfg.newFirestoreClient(ctx)
			if err != nil {
				return err
			}
			repo := repository.NewFirestore(client)

			uc, err := cfg.newConsolidation(ctx, repo)
			if err != nil {
				return err
			}

			dispatcher := consolidate.NewDispatcher(context.WithoutCancel(ctx), uc, int(workers), int(workers)*4)
			defer dispatcher.Close()

			logging.From(ctx).Info("watching sessions", "project", cfg.project, "database", cfg.database)
			if err := trigger.New(repo.SessionsCollection(), dispatcher).Run(ctx); err != nil {
				return goerr.Wrap(err, "session watcher stopped")
			}
			return nil
		},
	}
}
