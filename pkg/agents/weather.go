package agents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/haivivi/agentkit/pkg/genx/agent"
	"github.com/haivivi/agentkit/pkg/planexec"
	"github.com/haivivi/agentkit/pkg/roles"
)

// Weather is a tool-calling assistant over the weather MCP tool.
type Weather struct {
	Model  roles.Model
	MCP    MCPDialer
	Logger *slog.Logger
}

func (w *Weather) Execute(ctx context.Context, query string, sink planexec.EventSink) (string, error) {
	if w.MCP == nil {
		return "", errors.New("weather: no mcp server configured")
	}
	logger := loggerOr(w.Logger)
	n := notifier{sink: sink, logger: logger}

	sess, err := w.MCP(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("weather: %w", err)
	}
	defer sess.Close()
	tools, err := sess.Tools(ctx)
	if err != nil {
		return "", fmt.Errorf("weather: %w", err)
	}
	assistant := &agent.ToolAgent{
		Generator: w.Model.Generator,
		Model:     w.Model.Name,
		Prompt:    weatherPrompt,
		Tools:     tools,
		Logger:    logger,
	}
	res, err := assistant.Run(ctx, query, n.toolObserver(ctx))
	if err != nil {
		return "", fmt.Errorf("weather: %w", err)
	}
	return res.Text, nil
}
