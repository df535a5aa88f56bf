// Package mcpserver exposes conversations as MCP tools, so an MCP-capable
// client can drive the same engine the HTTP API does.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/comigor/mapchat-go/internal/engine"
	"github.com/comigor/mapchat-go/internal/logger"
	"github.com/comigor/mapchat-go/internal/session"
)

const (
	ToolStart      = "start_conversation"
	ToolSend       = "send_message"
	ToolReset      = "reset_conversation"
	ToolSelect     = "select_location"
	ToolGet        = "get_conversation"
	ToolTranscript = "get_transcript"
)

// Tools implements the tool handlers on top of a session manager.
type Tools struct {
	sessions *session.Manager
}

// NewTools returns tool handlers backed by sessions.
func NewTools(sessions *session.Manager) *Tools {
	return &Tools{sessions: sessions}
}

// New builds an MCP server with every conversation tool registered.
func New(sessions *session.Manager, version string) *server.MCPServer {
	s := server.NewMCPServer("mapchat", version, server.WithToolCapabilities(false))
	NewTools(sessions).Register(s)
	return s
}

// Register adds the tools to s.
func (t *Tools) Register(s *server.MCPServer) {
	conversationID := mcp.WithString("conversation_id",
		mcp.Required(),
		mcp.Description("Id returned by start_conversation"),
	)

	s.AddTool(mcp.NewTool(ToolStart,
		mcp.WithDescription("Start a new map conversation and return its state."),
	), t.Start)

	s.AddTool(mcp.NewTool(ToolSend,
		mcp.WithDescription("Send a place or address. Waits for the geocoding lookup and returns the updated conversation."),
		conversationID,
		mcp.WithString("text", mcp.Required(), mcp.Description("Free-form place or address")),
	), t.Send)

	s.AddTool(mcp.NewTool(ToolReset,
		mcp.WithDescription("Clear the conversation back to its welcome message and default map view."),
		conversationID,
	), t.Reset)

	s.AddTool(mcp.NewTool(ToolSelect,
		mcp.WithDescription("Focus the map on the location carried by a message."),
		conversationID,
		mcp.WithNumber("message_id", mcp.Required(), mcp.Description("Id of a system message that has a location")),
	), t.Select)

	s.AddTool(mcp.NewTool(ToolGet,
		mcp.WithDescription("Return the current conversation state: messages, active location, viewport."),
		conversationID,
	), t.Get)

	s.AddTool(mcp.NewTool(ToolTranscript,
		mcp.WithDescription("Return every archived message of the conversation, across resets."),
		conversationID,
	), t.Transcript)
}

// Start creates a conversation and returns its first snapshot.
func (t *Tools) Start(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(t.sessions.Create().Snapshot())
}

// Send submits text to a conversation and waits for the lookup to settle.
func (t *Tools) Send(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	e, res := t.engine(req)
	if res != nil {
		return res, nil
	}
	text, _ := req.GetArguments()["text"].(string)

	done, accepted := e.Submit(ctx, text)
	if accepted {
		select {
		case <-done:
		case <-ctx.Done():
			logger.L.Warn("send_message returned before lookup settled", "conversation_id", e.ID(), "error", ctx.Err())
		}
	}
	return jsonResult(map[string]any{
		"accepted":     accepted,
		"conversation": e.Snapshot(),
	})
}

// Reset restores a conversation to its welcome state.
func (t *Tools) Reset(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	e, res := t.engine(req)
	if res != nil {
		return res, nil
	}
	e.Reset(ctx)
	return jsonResult(e.Snapshot())
}

// Select moves the map to the location attached to a message.
func (t *Tools) Select(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	e, res := t.engine(req)
	if res != nil {
		return res, nil
	}
	id, err := intArg(req.GetArguments(), "message_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	selected := e.SelectLocation(ctx, id)
	return jsonResult(map[string]any{
		"selected":     selected,
		"conversation": e.Snapshot(),
	})
}

// Get returns the current snapshot of a conversation.
func (t *Tools) Get(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	e, res := t.engine(req)
	if res != nil {
		return res, nil
	}
	return jsonResult(e.Snapshot())
}

// Transcript returns the archived messages of a conversation across resets.
func (t *Tools) Transcript(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, _ := req.GetArguments()["conversation_id"].(string)
	entries, err := t.sessions.Transcript(id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(entries)
}

// engine resolves the conversation_id argument. A non-nil result is an error to hand back to the client.
func (t *Tools) engine(req mcp.CallToolRequest) (*engine.Engine, *mcp.CallToolResult) {
	id, _ := req.GetArguments()["conversation_id"].(string)
	if id == "" {
		return nil, mcp.NewToolResultError("conversation_id is required")
	}
	e, err := t.sessions.Get(id)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, mcp.NewToolResultError(fmt.Sprintf("%s: %s", err, id))
		}
		return nil, mcp.NewToolResultError(err.Error())
	}
	return e, nil
}

func intArg(args map[string]any, key string) (int64, error) {
	switch v := args[key].(type) {
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("%s must be an integer", key)
		}
		return int64(v), nil
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case json.Number:
		return v.Int64()
	case nil:
		return 0, fmt.Errorf("%s is required", key)
	default:
		return 0, fmt.Errorf("%s must be a number, got %T", key, v)
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	return mcp.NewToolResultText(string(b)), nil
}
