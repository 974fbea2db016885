package chat

import (
	"strings"

	"github.com/m-mizutani/mnemo/pkg/model"
)

// BuildWindow renders the last maxTurns turns as "Me:" / "AI:" lines, oldest first.
// turns must be in chronological order.
func BuildWindow(turns []*model.Turn, maxTurns int) string {
	if maxTurns <= 0 || len(turns) == 0 {
		return ""
	}
	if len(turns) > maxTurns {
		turns = turns[len(turns)-maxTurns:]
	}

	lines := make([]string, 0, len(turns)*2)
	for _, turn := range turns {
		lines = append(lines, "Me: "+turn.UserText, "AI: "+turn.BotText)
	}
	return strings.Join(lines, "\n")
}
