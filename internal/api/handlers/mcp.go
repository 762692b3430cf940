package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/matiasleandrokruk/scalechat/internal/domain/chat"
)

const (
	mcpToolChat   = "chat"
	mcpToolStatus = "status"
)

type mcpChatInput struct {
	Message        string `json:"message" jsonschema:"the user message to answer"`
	ConversationID string `json:"conversation_id,omitempty" jsonschema:"conversation to continue; a new one is started when empty"`
}

type mcpChatOutput struct {
	Response       string `json:"response"`
	ConversationID string `json:"conversation_id"`
	OK             bool   `json:"ok"`
	Degraded       bool   `json:"degraded"`
	LatencyMs      int64  `json:"latency_ms"`
}

type mcpStatusInput struct{}

type mcpStatusOutput struct {
	State          string               `json:"state"`
	Provider       string               `json:"provider"`
	Model          string               `json:"model"`
	ModelLoaded    bool                 `json:"model_loaded"`
	DegradedReason string               `json:"degraded_reason,omitempty"`
	Metrics        chat.MetricsSnapshot `json:"metrics"`
}

// NewMCPServer exposes the orchestrator as MCP tools: "chat" runs one turn
// and "status" reports the provider state and counters.
func NewMCPServer(chatSvc ChatService, version string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "scalechat", Version: version}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        mcpToolChat,
		Description: "Send a message to the chatbot and get its reply.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in mcpChatInput) (*mcp.CallToolResult, mcpChatOutput, error) {
		if strings.TrimSpace(in.Message) == "" {
			return nil, mcpChatOutput{}, errEmptyMessage
		}
		if in.ConversationID == "" {
			in.ConversationID = uuid.NewString()
		}
		res := chatSvc.Process(context.WithoutCancel(ctx), in.ConversationID, in.Message)
		out := mcpChatOutput{
			Response:       res.Text,
			ConversationID: in.ConversationID,
			OK:             res.OK,
			Degraded:       res.Degraded,
			LatencyMs:      res.Latency.Milliseconds(),
		}
		if !res.OK {
			var genErr *chat.GenerationError
			if errors.As(res.Err, &genErr) {
				return &mcp.CallToolResult{
					IsError: true,
					Content: []mcp.Content{&mcp.TextContent{Text: res.Text}},
				}, out, nil
			}
		}
		return nil, out, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        mcpToolStatus,
		Description: "Report the LLM provider state and service counters.",
	}, func(context.Context, *mcp.CallToolRequest, mcpStatusInput) (*mcp.CallToolResult, mcpStatusOutput, error) {
		st := chatSvc.Status()
		return nil, mcpStatusOutput{
			State:          st.State.String(),
			Provider:       string(st.ProviderKind),
			Model:          st.ModelName,
			ModelLoaded:    st.ModelLoaded,
			DegradedReason: st.DegradedReason,
			Metrics:        chatSvc.Metrics(),
		}, nil
	})

	return server
}

// NewMCPHandler serves server over streamable HTTP.
func NewMCPHandler(server *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return server }, nil)
}
