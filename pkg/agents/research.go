package agents

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/haivivi/agentkit/pkg/genx"
	"github.com/haivivi/agentkit/pkg/genx/agent"
	"github.com/haivivi/agentkit/pkg/planexec"
	"github.com/haivivi/agentkit/pkg/roles"
	"github.com/haivivi/agentkit/pkg/toolkit"
)

// Research answers questions with the plan and execute loop over web search
// and, optionally, the tools of an MCP server.
type Research struct {
	Model roles.Model

	// Planner overrides Model for planning when its Generator is set.
	Planner roles.Model

	// Search adds the web_search tool when set.
	Search *toolkit.WebSearch

	// MCP adds the tools of an MCP server when set.
	MCP MCPDialer

	// Token, when set, authorizes the MCP session. Failures are logged and
	// the session is opened without it.
	Token func(ctx context.Context) (string, error)

	MaxSteps int
	Logger   *slog.Logger
}

func (r *Research) Execute(ctx context.Context, query string, sink planexec.EventSink) (string, error) {
	logger := loggerOr(r.Logger)
	reg := &toolkit.Registry{}
	if r.Search != nil {
		if err := reg.Add(r.Search.Tool()); err != nil {
			return "", err
		}
	}
	infos := roles.ToolInfos(reg.Tools())

	if r.MCP != nil {
		sess, err := r.MCP(ctx, r.headers(ctx, logger))
		if err != nil {
			return "", fmt.Errorf("research: %w", err)
		}
		defer sess.Close()
		tools, err := sess.Tools(ctx)
		if err != nil {
			return "", fmt.Errorf("research: %w", err)
		}
		if err := reg.Add(tools...); err != nil {
			return "", fmt.Errorf("research: %w", err)
		}
		// The planner only learns about the MCP tools.
		infos = roles.ToolInfos(tools)
		logger.InfoContext(ctx, "registered mcp tools", "tools", len(tools))
	} else {
		logger.InfoContext(ctx, "no mcp tools to register")
	}

	loop := newPlanLoop(r.Model, r.Planner, reg.Tools(), infos, sink, r.MaxSteps, logger)
	return loop.Run(ctx, query)
}

func (r *Research) headers(ctx context.Context, logger *slog.Logger) map[string]string {
	if r.Token == nil {
		return nil
	}
	tok, err := r.Token(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "unable to retrieve token", "error", err)
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + tok}
}

// newPlanLoop wires the LLM roles around tools. A planner without a
// generator falls back to m.
func newPlanLoop(m, planner roles.Model, tools []*genx.FuncTool, infos []roles.ToolInfo, sink planexec.EventSink, maxSteps int, logger *slog.Logger) *planexec.Loop {
	if planner.Generator == nil {
		planner = m
	}
	if planner.Logger == nil {
		planner.Logger = logger
	}
	if m.Logger == nil {
		m.Logger = logger
	}
	return &planexec.Loop{
		Planner: &roles.Planner{Model: planner, Tools: infos},
		Worker: &roles.Worker{
			Agent: &agent.ToolAgent{
				Generator: m.Generator,
				Model:     m.Name,
				Prompt:    roles.WorkerPrompt(),
				Tools:     tools,
				Logger:    logger,
			},
			Sink:   sink,
			Logger: logger,
		},
		Critic:     &roles.Critic{Model: m},
		Judge:      &roles.Judge{Model: m},
		Reflector:  &roles.Reflector{Model: m},
		Summarizer: &roles.Summarizer{Model: m},
		Sink:       sink,
		MaxSteps:   maxSteps,
		Logger:     logger,
	}
}
