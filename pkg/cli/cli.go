package cli

import (
	"context"

	"github.com/urfave/cli/v3"
)

// Version is reported by the MCP server and --version
var Version = "dev"

type Error struct {
	Code    int
	Message string
}

func Run(ctx context.Context, argv []string) *Error {
	cmd := &cli.Command{
		Name:    "mnemo",
		Usage:   "Conversational assistant with short and long term memory",
		Version: Version,
		Commands: []*cli.Command{
			chatCommand(),
			askCommand(),
			sessionCommand(),
			consolidateCommand(),
			watchCommand(),
			exportCommand(),
			mcpCommand(),
		},
	}

	if err := cmd.Run(ctx, argv); err != nil {
		return &Error{
			Code:    1,
			Message: err.Error(),
		}
	}

	return nil
}

func sessionIDFlag(dst *string, required bool) cli.Flag {
	return &cli.StringFlag{
		Name:        "session-id",
		Aliases:     []string{"id"},
		Usage:       "Session ID",
		Sources:     cli.EnvVars("MNEMO_SESSION_ID"),
		Destination: dst,
		Required:    required,
	}
}
