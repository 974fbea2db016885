package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/mnemo/pkg/model"
	"github.com/m-mizutani/mnemo/pkg/usecase/session"
	"github.com/urfave/cli/v3"
)

func exportCommand() *cli.Command {
	var (
		cfg       config
		sessionID string
		bucket    string
		prefix    string
	)

	flags := []cli.Flag{
		sessionIDFlag(&sessionID, true),
		&cli.StringFlag{
			Name:        "bucket",
			Usage:       "Cloud Storage bucket to upload the transcript to. Printed to stdout when empty",
			Sources:     cli.EnvVars("MNEMO_EXPORT_BUCKET"),
			Destination: &bucket,
		},
		&cli.StringFlag{
			Name:        "prefix",
			Usage:       "Object name prefix in the bucket",
			Value:       "transcripts/",
			Sources:     cli.EnvVars("MNEMO_EXPORT_PREFIX"),
			Destination: &prefix,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "export",
		Usage: "Export the transcript of a session",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogger(ctx, c.Root().ErrWriter)
			defer cfg.close(ctx)

			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}
			id := model.SessionID(sessionID)

			if bucket == "" {
				if err := session.New(repo).Export(ctx, id, c.Root().Writer); err != nil {
					return err
				}
				fmt.Fprintln(c.Root().Writer)
				return nil
			}

			storage, err := cfg.newStorage(ctx, bucket, prefix)
			if err != nil {
				return err
			}

			key, err := session.New(repo, session.WithStorage(storage)).Upload(ctx, id)
			if err != nil {
				return goerr.Wrap(err, "failed to upload transcript", goerr.V("bucket", bucket))
			}
			fmt.Fprintf(c.Root().Writer, "gs://%s/%s%s\n", bucket, prefix, key)
			return nil
		},
	}
}
