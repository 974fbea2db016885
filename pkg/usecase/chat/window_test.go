package chat_test

import (
	"strings"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/mnemo/pkg/model"
	"github.com/m-mizutani/mnemo/pkg/usecase/chat"
)

func makeTurns(n int) []*model.Turn {
	turns := make([]*model.Turn, n)
	for i := range n {
		turns[i] = &model.Turn{
			SessionID: "s1",
			Timestamp: time.UnixMilli(int64(1000 + i)),
			UserText:  "u" + string(rune('a'+i)),
			BotText:   "b" + string(rune('a'+i)),
		}
	}
	return turns
}

func TestBuildWindow(t *testing.T) {
	t.Run("chronological lines", func(t *testing.T) {
		gt.Equal(t, chat.BuildWindow(makeTurns(2), 10), "Me: ua\nAI: ba\nMe: ub\nAI: bb")
	})

	t.Run("keeps only the most recent turns", func(t *testing.T) {
		gt.Equal(t, chat.BuildWindow(makeTurns(5), 2), "Me: ud\nAI: bd\nMe: ue\nAI: be")
	})

	t.Run("never more than two lines per turn", func(t *testing.T) {
		turns := makeTurns(20)
		for n := 1; n <= 25; n++ {
			lines := strings.Split(chat.BuildWindow(turns, n), "\n")
			gt.True(t, len(lines) <= 2*n)
		}
	})

	t.Run("idempotent", func(t *testing.T) {
		turns := makeTurns(7)
		gt.Equal(t, chat.BuildWindow(turns, 3), chat.BuildWindow(turns, 3))
	})

	t.Run("empty", func(t *testing.T) {
		gt.Equal(t, chat.BuildWindow(nil, 10), "")
		gt.Equal(t, chat.BuildWindow(makeTurns(3), 0), "")
		gt.Equal(t, chat.BuildWindow(makeTurns(3), -1), "")
	})
}
