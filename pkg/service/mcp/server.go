package mcp

import (
	"context"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/mnemo/pkg/model"
	"github.com/m-mizutani/mnemo/pkg/usecase/chat"
	"github.com/m-mizutani/mnemo/pkg/usecase/session"
	"github.com/m-mizutani/mnemo/pkg/utils/logging"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// AskParams is the input of the ask tool
type AskParams struct {
	SessionID string `json:"session_id,omitempty" jsonschema:"Session to continue. A new session is started when omitted."`
	Query     string `json:"query" jsonschema:"User utterance. Prefix with /past to search past conversations or /verified to answer from verified sources."`
}

// AskResult is the structured output of the ask tool
type AskResult struct {
	SessionID string `json:"session_id" jsonschema:"Session the exchange was recorded in"`
	Intent    string `json:"intent" jsonschema:"How the query was answered"`
	Reply     string `json:"reply" jsonschema:"Assistant reply"`
}

// SessionParams identifies a session
type SessionParams struct {
	SessionID string `json:"session_id" jsonschema:"ID of the session"`
}

// StartParams is the input of the start_session tool
type StartParams struct{}

// Server exposes the assistant as MCP tools
type Server struct {
	chat     *chat.UseCase
	sessions *session.UseCase
	server   *mcp.Server
}

// NewServer creates an MCP server with the ask, start_session and end_session tools
func NewServer(chatUC *chat.UseCase, sessions *session.UseCase, version string) (*Server, error) {
	s := &Server{
		chat:     chatUC,
		sessions: sessions,
		server: mcp.NewServer(&mcp.Implementation{
			Name:    "mnemo",
			Version: version,
		}, nil),
	}

	askSchema, err := jsonschema.For[AskParams](nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to build schema", goerr.V("tool", "ask"))
	}
	sessionSchema, err := jsonschema.For[SessionParams](nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to build schema", goerr.V("tool", "end_session"))
	}
	startSchema, err := jsonschema.For[StartParams](nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to build schema", goerr.V("tool", "start_session"))
	}

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "ask",
		Description: "Ask the assistant. It remembers the current session and can recall past sessions and verified passages.",
		InputSchema: askSchema,
	}, s.ask)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "start_session",
		Description: "Start a new conversation session and return its ID",
		InputSchema: startSchema,
	}, s.startSession)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "end_session",
		Description: "End a conversation session so that it is consolidated into long term memory",
		InputSchema: sessionSchema,
	}, s.endSession)

	return s, nil
}

// Run serves MCP over stdio until ctx is canceled or the client disconnects
func (s *Server) Run(ctx context.Context) error {
	if err := s.server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return goerr.Wrap(err, "mcp server stopped")
	}
	return nil
}

// Connect serves MCP on the given transport. It is mainly used with in-memory transports.
func (s *Server) Connect(ctx context.Context, transport mcp.Transport) (*mcp.ServerSession, error) {
	ss, err := s.server.Connect(ctx, transport, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to connect mcp server")
	}
	return ss, nil
}

func textResult(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf(format, args...)},
		},
	}
}

func (s *Server) ask(ctx context.Context, req *mcp.CallToolRequest, params *AskParams) (*mcp.CallToolResult, AskResult, error) {
	if params.Query == "" {
		return nil, AskResult{}, goerr.New("query is required")
	}

	sc := &chat.SessionContext{SessionID: model.SessionID(params.SessionID)}
	reply, err := s.chat.Ask(ctx, sc, params.Query)
	if err != nil {
		logging.From(ctx).Error("ask failed", "session_id", sc.SessionID, "error", err)
		return nil, AskResult{}, err
	}

	return textResult("%s", reply.Text), AskResult{
		SessionID: sc.SessionID.String(),
		Intent:    reply.Intent.String(),
		Reply:     reply.Text,
	}, nil
}

func (s *Server) startSession(ctx context.Context, req *mcp.CallToolRequest, params *StartParams) (*mcp.CallToolResult, any, error) {
	started, err := s.sessions.Start(ctx)
	if err != nil {
		return nil, nil, err
	}
	return textResult("%s", started.ID), nil, nil
}

func (s *Server) endSession(ctx context.Context, req *mcp.CallToolRequest, params *SessionParams) (*mcp.CallToolResult, any, error) {
	if params.SessionID == "" {
		return nil, nil, goerr.New("session_id is required")
	}

	ended, err := s.sessions.End(ctx, model.SessionID(params.SessionID))
	if err != nil {
		return nil, nil, err
	}
	return textResult("session %s ended after %d turns (%s)", ended.ID, ended.NumTurns, ended.Duration), nil, nil
}
