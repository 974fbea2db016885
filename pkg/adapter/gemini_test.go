package adapter_test

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/mnemo/pkg/adapter"
	"github.com/m-mizutani/mnemo/pkg/model"
)

func newGeminiForTest(t *testing.T) *adapter.Gemini {
	t.Helper()
	projectID := os.Getenv("TEST_GEMINI_PROJECT")
	if projectID == "" {
		t.Skip("TEST_GEMINI_PROJECT is not set")
	}

	client, err := adapter.NewGemini(context.Background(), projectID, "us-central1")
	gt.NoError(t, err)
	return client
}

func TestGeminiGenerate(t *testing.T) {
	client := newGeminiForTest(t)

	texts, err := client.Generate(context.Background(), "Me: What is the capital of France?\nAI:", model.ChatDecoding())
	gt.NoError(t, err)
	gt.A(t, texts).Length(1)
	gt.True(t, strings.TrimSpace(texts[0]) != "")

	t.Log("response:", texts[0])
}

func TestGeminiEmbed(t *testing.T) {
	client := newGeminiForTest(t)

	vectors, err := client.Embed(context.Background(), []string{"eminent domain", "due diligence"})
	gt.NoError(t, err)
	gt.A(t, vectors).Length(2)
	gt.A(t, vectors[0]).Length(768)
	gt.A(t, vectors[1]).Length(768)
}
