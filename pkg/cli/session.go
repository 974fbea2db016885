package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/mnemo/pkg/model"
	"github.com/m-mizutani/mnemo/pkg/usecase/session"
	"github.com/urfave/cli/v3"
)

func sessionCommand() *cli.Command {
	return &cli.Command{
		Name:  "session",
		Usage: "Manage conversation sessions",
		Commands: []*cli.Command{
			sessionStartCommand(),
			sessionEndCommand(),
			sessionListCommand(),
			sessionShowCommand(),
		},
	}
}

func sessionStartCommand() *cli.Command {
	var cfg config

	return &cli.Command{
		Name:  "start",
		Usage: "Start a new session and print its ID",
		Flags: globalFlags(&cfg),
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogger(ctx, c.Root().ErrWriter)
			defer cfg.close(ctx)

			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}

			s, err := session.New(repo).Start(ctx)
			if err != nil {
				return err
			}

			fmt.Fprintf(c.Root().Writer, "%s\n", s.ID)
			return nil
		},
	}
}

func sessionEndCommand() *cli.Command {
	var (
		cfg       config
		sessionID string
	)

	flags := []cli.Flag{sessionIDFlag(&sessionID, true)}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)
	flags = append(flags, retrievalFlags(&cfg)...)

	return &cli.Command{
		Name:  "end",
		Usage: "End a session. The local backend consolidates it before exiting",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogger(ctx, c.Root().ErrWriter)
			defer cfg.close(ctx)

			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}

			// fail before building the consolidation pipeline
			if _, err := repo.GetSession(ctx, model.SessionID(sessionID)); err != nil {
				return goerr.Wrap(err, "failed to get session", goerr.V("session_id", sessionID))
			}

			sessions, dispatcher, err := cfg.newSessions(ctx, repo)
			if err != nil {
				return err
			}
			if dispatcher != nil {
				defer dispatcher.Close()
			}

			s, err := sessions.End(ctx, model.SessionID(sessionID))
			if err != nil {
				return err
			}

			fmt.Fprintf(c.Root().Writer, "%s\tturns=%d\tduration=%s\n", s.ID, s.NumTurns, s.Duration)
			return nil
		},
	}
}

func sessionListCommand() *cli.Command {
	var (
		cfg    config
		offset int64
		limit  int64
	)

	flags := []cli.Flag{
		&cli.IntFlag{
			Name:        "offset",
			Usage:       "Offset for pagination",
			Value:       0,
			Sources:     cli.EnvVars("MNEMO_LIST_OFFSET"),
			Destination: &offset,
		},
		&cli.IntFlag{
			Name:        "limit",
			Usage:       "Maximum number of sessions to list",
			Value:       20,
			Sources:     cli.EnvVars("MNEMO_LIST_LIMIT"),
			Destination: &limit,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "list",
		Usage: "List sessions, newest first",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogger(ctx, c.Root().ErrWriter)
			defer cfg.close(ctx)

			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}

			sessions, err := session.New(repo).List(ctx, int(offset), int(limit))
			if err != nil {
				return goerr.Wrap(err, "failed to list sessions")
			}

			for _, s := range sessions {
				fmt.Fprintf(c.Root().Writer, "%s\t%s\t%s\tturns=%d\n",
					s.ID, s.StartTime.Format(time.DateTime), s.State(), s.NumTurns)
			}
			return nil
		},
	}
}

type sessionView struct {
	*model.Session
	Turns []*model.Turn `json:"turns"`
}

func sessionShowCommand() *cli.Command {
	var (
		cfg       config
		sessionID string
	)

	flags := []cli.Flag{sessionIDFlag(&sessionID, true)}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "show",
		Usage: "Show a session and its turns as JSON",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogger(ctx, c.Root().ErrWriter)
			defer cfg.close(ctx)

			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}
			uc := session.New(repo)

			s, err := uc.Get(ctx, model.SessionID(sessionID))
			if err != nil {
				return goerr.Wrap(err, "failed to get session", goerr.V("session_id", sessionID))
			}
			turns, err := uc.Turns(ctx, s.ID)
			if err != nil {
				return goerr.Wrap(err, "failed to get turns", goerr.V("session_id", sessionID))
			}

			data, err := json.MarshalIndent(sessionView{Session: s, Turns: turns}, "", "  ")
			if err != nil {
				return goerr.Wrap(err, "failed to marshal session")
			}
			fmt.Fprintf(c.Root().Writer, "%s\n", data)
			return nil
		},
	}
}
