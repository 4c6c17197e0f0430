// Package slack is an MCP server reading channels and their history from a
// Slack workspace.
//
// Slack API failures are reported to the caller as tool output of the form
// [{"error": "..."}] rather than as tool errors, so that a model can read
// and react to them.
package slack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/slack-go/slack"
)

// DefaultHistoryLimit is the number of messages get_channel_history returns
// when no limit is given.
const DefaultHistoryLimit = 20

// Channel is one entry of get_channels.
type Channel struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Purpose string `json:"purpose"`
}

// Message is one entry of get_channel_history.
type Message struct {
	Type      string `json:"type,omitempty"`
	User      string `json:"user,omitempty"`
	Text      string `json:"text"`
	Timestamp string `json:"ts,omitempty"`
	ThreadTS  string `json:"thread_ts,omitempty"`
}

// Tools implements the Slack tools over an API client.
type Tools struct {
	api    *slack.Client
	logger *slog.Logger
}

// New returns Tools over api. A nil api reports every call as uninitialized.
func New(api *slack.Client, logger *slog.Logger) *Tools {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tools{api: api, logger: logger}
}

// Connect creates a client for token and checks it with auth.test.
func Connect(ctx context.Context, token string, logger *slog.Logger, opts ...slack.Option) (*Tools, error) {
	api := slack.New(token, opts...)
	res, err := api.AuthTestContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("slack: authenticate: %w", err)
	}
	t := New(api, logger)
	t.logger.InfoContext(ctx, "authenticated with slack", "user", res.User, "team", res.Team)
	return t, nil
}

func (t *Tools) ChannelsDefinition() mcp.Tool {
	return mcp.NewTool("get_channels",
		mcp.WithDescription("Lists all public and private channels the bot has access to."),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

func (t *Tools) HistoryDefinition() mcp.Tool {
	return mcp.NewTool("get_channel_history",
		mcp.WithDescription("Fetches the most recent messages from a specific Slack channel ID."),
		mcp.WithString("channel_id",
			mcp.Required(),
			mcp.Description("The ID of the channel (e.g., 'C024BE91L')."),
		),
		mcp.WithNumber("limit",
			mcp.Description(fmt.Sprintf("The maximum number of messages to return (default is %d).", DefaultHistoryLimit)),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

// Channels lists the public channels visible to the bot.
func (t *Tools) Channels(ctx context.Context) ([]Channel, error) {
	if t.api == nil {
		return nil, errNotInitialized
	}
	out := []Channel{}
	var cursor string
	for {
		chans, next, err := t.api.GetConversationsContext(ctx, &slack.GetConversationsParameters{
			Types:  []string{"public_channel"},
			Cursor: cursor,
			Limit:  200,
		})
		if err != nil {
			return nil, err
		}
		for _, c := range chans {
			out = append(out, Channel{ID: c.ID, Name: c.Name, Purpose: c.Purpose.Value})
		}
		if next == "" {
			return out, nil
		}
		cursor = next
	}
}

// History returns up to limit recent messages of channelID.
func (t *Tools) History(ctx context.Context, channelID string, limit int) ([]Message, error) {
	if t.api == nil {
		return nil, errNotInitialized
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	res, err := t.api.GetConversationHistoryContext(ctx, &slack.GetConversationHistoryParameters{
		ChannelID: channelID,
		Limit:     limit,
	})
	if err != nil {
		return nil, err
	}
	out := make([]Message, 0, len(res.Messages))
	for _, m := range res.Messages {
		out = append(out, Message{
			Type:      m.Type,
			User:      m.User,
			Text:      m.Text,
			Timestamp: m.Timestamp,
			ThreadTS:  m.ThreadTimestamp,
		})
	}
	return out, nil
}

var errNotInitialized = errors.New("Slack client not initialized")

func (t *Tools) HandleChannels(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	chans, err := t.Channels(ctx)
	if err != nil {
		return t.apiError(ctx, "get_channels", err), nil
	}
	return jsonResult(chans)
}

func (t *Tools) HandleHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	channelID, err := req.RequireString("channel_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	msgs, err := t.History(ctx, channelID, req.GetInt("limit", DefaultHistoryLimit))
	if err != nil {
		return t.apiError(ctx, "get_channel_history", err), nil
	}
	return jsonResult(msgs)
}

func (t *Tools) apiError(ctx context.Context, tool string, err error) *mcp.CallToolResult {
	t.logger.WarnContext(ctx, "slack call failed", "tool", tool, "error", err)
	msg := fmt.Sprintf("Slack API Error: %v", err)
	if errors.Is(err, errNotInitialized) {
		msg = err.Error()
	}
	b, _ := json.Marshal([]map[string]string{{"error": msg}})
	return mcp.NewToolResultText(string(b))
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(b)), nil
}

// NewServer returns an MCP server exposing t.
func NewServer(t *Tools, version string) *server.MCPServer {
	s := server.NewMCPServer("Slack", version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)
	s.AddTool(t.ChannelsDefinition(), t.HandleChannels)
	s.AddTool(t.HistoryDefinition(), t.HandleHistory)
	return s
}
