package session

import (
	"bytes"
	"context"
	"io"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/mnemo/pkg/model"
)

// FormatTranscript renders turns as alternating "Human:" and "AI:" lines
func FormatTranscript(turns []*model.Turn) string {
	var b bytes.Buffer
	for i, turn := range turns {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("Human: " + turn.UserText + "\n")
		b.WriteString("AI: " + turn.BotText)
	}
	return b.String()
}

// Export writes the transcript of a session to w
func (u *UseCase) Export(ctx context.Context, id model.SessionID, w io.Writer) error {
	turns, err := u.Turns(ctx, id)
	if err != nil {
		return err
	}

	if _, err := io.WriteString(w, FormatTranscript(turns)); err != nil {
		return goerr.Wrap(err, "failed to write transcript", goerr.V("session_id", id))
	}
	return nil
}

// Upload stores the transcript of a session as <session_id>.txt and returns the key
func (u *UseCase) Upload(ctx context.Context, id model.SessionID) (string, error) {
	if u.storage == nil {
		return "", goerr.New("transcript storage is not configured")
	}

	turns, err := u.Turns(ctx, id)
	if err != nil {
		return "", err
	}

	key := id.String() + ".txt"
	body := bytes.NewBufferString(FormatTranscript(turns))
	if err := u.storage.Put(ctx, key, "text/plain; charset=utf-8", body); err != nil {
		return "", goerr.Wrap(err, "failed to upload transcript", goerr.V("session_id", id))
	}
	return key, nil
}
