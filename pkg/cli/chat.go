package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/chzyer/readline"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/mnemo/pkg/usecase/chat"
	"github.com/m-mizutani/mnemo/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

const (
	replNewSession = "/new"
	replExit       = "/exit"
)

func chatCommand() *cli.Command {
	var (
		cfg         config
		historyFile string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "history-file",
			Usage:       "File to keep input history of the prompt",
			Sources:     cli.EnvVars("MNEMO_HISTORY_FILE"),
			Destination: &historyFile,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)
	flags = append(flags, retrievalFlags(&cfg)...)

	return &cli.Command{
		Name:  "chat",
		Usage: "Talk with the assistant interactively",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogger(ctx, c.Root().ErrWriter)
			defer cfg.close(ctx)

			svc, err := cfg.newServices(ctx)
			if err != nil {
				return err
			}
			defer svc.close()

			rl, err := readline.NewEx(&readline.Config{
				Prompt:          "> ",
				HistoryFile:     historyFile,
				InterruptPrompt: "^C",
				EOFPrompt:       replExit,
			})
			if err != nil {
				return goerr.Wrap(err, "failed to initialize prompt")
			}
			defer rl.Close()

			w := rl.Stdout()
			fmt.Fprintf(w, "Chat session started. Type %s for a new session, %s to quit.\n", replNewSession, replExit)
			fmt.Fprintf(w, "Prefix a query with /past to search past conversations or /verified to ask verified sources.\n")

			var sc chat.SessionContext
			defer func() {
				// the session is ended even when the loop stopped with an error
				if _, err := svc.chat.NewSession(context.WithoutCancel(ctx), &sc); err != nil {
					logging.From(ctx).Error("failed to end session", "session_id", sc.SessionID, "error", err)
				}
			}()

			for ctx.Err() == nil {
				line, err := rl.Readline()
				if errors.Is(err, readline.ErrInterrupt) {
					if line == "" {
						return nil
					}
					continue
				}
				if errors.Is(err, io.EOF) {
					return nil
				}
				if err != nil {
					return goerr.Wrap(err, "failed to read input")
				}

				query := strings.TrimSpace(line)
				switch query {
				case "":
					continue
				case replExit:
					return nil
				case replNewSession:
					ended, err := svc.chat.NewSession(ctx, &sc)
					if err != nil {
						return goerr.Wrap(err, "failed to start new session")
					}
					if ended != nil {
						fmt.Fprintf(w, "Session %s ended (%d turns)\n", ended.ID, ended.NumTurns)
					}
					continue
				}

				reply, err := ask(ctx, svc.chat, &sc, query, w)
				if ctx.Err() != nil {
					return nil
				}
				if err != nil {
					// a failed query leaves the session usable
					logging.From(ctx).Error("failed to answer", "error", err)
					fmt.Fprintf(w, "Error: %s\n", err.Error())
					continue
				}
				fmt.Fprintf(w, "%s\n", reply.Text)
			}
			return nil
		},
	}
}

// ask runs one query while showing a spinner
func ask(ctx context.Context, uc *chat.UseCase, sc *chat.SessionContext, query string, w io.Writer) (*chat.Reply, error) {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(w))
	s.Suffix = " thinking..."
	s.Start()
	defer s.Stop()

	return uc.Ask(ctx, sc, query)
}
