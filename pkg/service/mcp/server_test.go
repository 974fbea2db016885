package mcp_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/mnemo/pkg/model"
	"github.com/m-mizutani/mnemo/pkg/repository"
	"github.com/m-mizutani/mnemo/pkg/service/mcp"
	"github.com/m-mizutani/mnemo/pkg/usecase/chat"
	"github.com/m-mizutani/mnemo/pkg/usecase/retrieval"
	"github.com/m-mizutani/mnemo/pkg/usecase/session"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

type echoGenerator struct{}

func (echoGenerator) Generate(ctx context.Context, prompt string, params model.DecodingParams) ([]string, error) {
	return []string{"echo"}, nil
}

type constEmbedder struct{}

func (constEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{1, 0}
	}
	return vectors, nil
}

type emptyIndex struct{}

func (emptyIndex) Search(ctx context.Context, index string, vector []float32, k int) ([]*model.Hit, error) {
	return nil, nil
}

func (emptyIndex) Upsert(ctx context.Context, index, id string, doc map[string]any) *model.UpsertResult {
	return &model.UpsertResult{Index: index, ID: id, StatusCode: 200}
}

func connect(t *testing.T) (*mcpsdk.ClientSession, *session.UseCase) {
	t.Helper()
	ctx := context.Background()

	repo, err := repository.NewSQLite(ctx, filepath.Join(t.TempDir(), "mcp.db"))
	gt.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	sessions := session.New(repo)
	retriever := retrieval.New(constEmbedder{}, emptyIndex{}, echoGenerator{})
	server, err := mcp.NewServer(chat.New(sessions, retriever, echoGenerator{}), sessions, "test")
	gt.NoError(t, err)

	serverTransport, clientTransport := mcpsdk.NewInMemoryTransports()
	_, err = server.Connect(ctx, serverTransport)
	gt.NoError(t, err)

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	gt.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })

	return cs, sessions
}

func callText(t *testing.T, cs *mcpsdk.ClientSession, name string, args map[string]any) *mcpsdk.CallToolResult {
	t.Helper()
	result, err := cs.CallTool(context.Background(), &mcpsdk.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	gt.NoError(t, err)
	gt.A(t, result.Content).Longer(0)
	return result
}

func TestServerTools(t *testing.T) {
	cs, _ := connect(t)

	tools, err := cs.ListTools(context.Background(), nil)
	gt.NoError(t, err)

	names := map[string]bool{}
	for _, tool := range tools.Tools {
		names[tool.Name] = true
	}
	gt.True(t, names["ask"])
	gt.True(t, names["start_session"])
	gt.True(t, names["end_session"])
}

func TestServerConversation(t *testing.T) {
	cs, sessions := connect(t)
	ctx := context.Background()

	result := callText(t, cs, "ask", map[string]any{"query": "hi there"})
	gt.False(t, result.IsError)
	text, ok := result.Content[0].(*mcpsdk.TextContent)
	gt.True(t, ok)
	gt.Equal(t, text.Text, "echo")

	raw, err := json.Marshal(result.StructuredContent)
	gt.NoError(t, err)
	var out mcp.AskResult
	gt.NoError(t, json.Unmarshal(raw, &out))
	gt.Equal(t, out.Intent, model.IntentShortTermChat.String())
	gt.True(t, out.SessionID != "")

	callText(t, cs, "ask", map[string]any{"session_id": out.SessionID, "query": "/past anything"})

	ended := callText(t, cs, "end_session", map[string]any{"session_id": out.SessionID})
	gt.False(t, ended.IsError)

	stored, err := sessions.Get(ctx, model.SessionID(out.SessionID))
	gt.NoError(t, err)
	gt.True(t, stored.Ended())
	gt.Equal(t, stored.NumTurns, 2)
}

func TestServerStartSession(t *testing.T) {
	cs, sessions := connect(t)

	result := callText(t, cs, "start_session", map[string]any{})
	text, ok := result.Content[0].(*mcpsdk.TextContent)
	gt.True(t, ok)

	stored, err := sessions.Get(context.Background(), model.SessionID(text.Text))
	gt.NoError(t, err)
	gt.Equal(t, stored.State(), model.SessionStateCreated)
}

func TestServerEndUnknownSession(t *testing.T) {
	cs, _ := connect(t)

	result := callText(t, cs, "end_session", map[string]any{"session_id": "missing"})
	gt.True(t, result.IsError)
}
