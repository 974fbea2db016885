package prompt_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/mnemo/pkg/prompt"
)

func TestDefaultSummaryRender(t *testing.T) {
	tmpl := prompt.DefaultSummary()
	gt.Equal(t, tmpl.Version, 1)
	gt.A(t, tmpl.Exemplars).Length(3)

	rendered := tmpl.Render("hi hello bye goodbye ")

	gt.True(t, strings.HasPrefix(rendered, "Conversation==hi there! I'm doing well, thank you. what is the meaning of eminent domain? "))
	gt.S(t, rendered).Contains("with just compensation. \nSummary==We discussed about the meaning of eminent domain")
	gt.S(t, rendered).Contains("financial or legal matters. \n\nConversation==hi hello bye goodbye \nSummary==\n\n\nSummarize the above")
	gt.True(t, strings.HasSuffix(rendered, "Summarize the above Conversation as a short paragraph in 3 to 4 sentences."))
	gt.Equal(t, strings.Count(rendered, "Conversation=="), 4)
}

func TestLoadSummary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summary.yaml")
	gt.NoError(t, os.WriteFile(path, []byte(`
version: 2
exemplars:
  - conversation: "a b "
    summary: "about a. "
instruction: "Summarize briefly."
`), 0600))

	tmpl, err := prompt.LoadSummary(path)
	gt.NoError(t, err)
	gt.Equal(t, tmpl.Version, 2)
	gt.Equal(t, tmpl.Render("x y "), "Conversation==a b \nSummary==about a. \n\nConversation==x y \nSummary==\n\n\nSummarize briefly.")
}

func TestParseSummaryInvalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "broken yaml", data: "version: [1"},
		{name: "no version", data: "instruction: x"},
		{name: "no instruction", data: "version: 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := prompt.ParseSummary([]byte(tt.data))
			gt.Error(t, err)
		})
	}
}

func TestLoadSummaryMissingFile(t *testing.T) {
	_, err := prompt.LoadSummary(filepath.Join(t.TempDir(), "missing.yaml"))
	gt.Error(t, err)
}

func TestPassage(t *testing.T) {
	gt.Equal(t,
		prompt.Passage("Bribery is an offence.", "what is bribery"),
		"Passage==Bribery is an offence.\n\nQuestion==what is bribery\n\nAnswer==\n\nGiven a passage and a question, generate a clean answer in 2 to 3 short complete sentences. ",
	)
}

func TestDialogue(t *testing.T) {
	gt.Equal(t, prompt.Dialogue("", "hi there"), "Me: hi there\nAI:")
	gt.Equal(t, prompt.Dialogue("Me: hi\nAI: hello", "how are you"), "Me: hi\nAI: hello\nMe: how are you\nAI:")
}
