// Package agents implements the agents served over A2A.
//
// Research answers through the plan and execute loop. Slack, GitIssue and
// Weather run fixed pipelines of model calls and tool agents. All of them
// report progress to a planexec.EventSink and return the final answer.
package agents

import (
	"context"
	_ "embed"
	"log/slog"
	"maps"
	"strings"

	"github.com/haivivi/agentkit/pkg/a2a"
	"github.com/haivivi/agentkit/pkg/auth"
	"github.com/haivivi/agentkit/pkg/genx/agent"
	"github.com/haivivi/agentkit/pkg/planexec"
	"github.com/haivivi/agentkit/pkg/toolkit"
)

var (
	//go:embed prompts/slack_assistant.md
	slackAssistantPrompt string

	//go:embed prompts/slack_intent.md
	slackIntentPrompt string

	//go:embed prompts/slack_requirements.md
	slackRequirementsPrompt string

	//go:embed prompts/slack_channel_filter.md
	slackChannelFilterPrompt string

	//go:embed prompts/slack_report.md
	slackReportPrompt string

	//go:embed prompts/gitissue_prereq.md
	gitIssuePrereqPrompt string

	//go:embed prompts/gitissue_analyst.md
	gitIssueAnalystPrompt string

	//go:embed prompts/weather.md
	weatherPrompt string
)

// Agent answers one query.
type Agent interface {
	Execute(ctx context.Context, query string, sink planexec.EventSink) (string, error)
}

// Executor serves agent over A2A. The query is the text of the incoming
// message.
func Executor(agent Agent, logger *slog.Logger) a2a.Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return a2a.ExecutorFunc(func(ctx context.Context, msg *a2a.Message, sink planexec.EventSink) (string, error) {
		return agent.Execute(ctx, ExtractQuery(msg, logger), sink)
	})
}

// ExtractQuery joins the text parts of msg. Other parts are skipped with a
// warning.
func ExtractQuery(msg *a2a.Message, logger *slog.Logger) string {
	if msg == nil {
		return ""
	}
	var sb strings.Builder
	for _, p := range msg.Parts {
		if p.Kind != a2a.PartKindText {
			if logger != nil {
				logger.Warn("ignoring message part", "kind", p.Kind)
			}
			continue
		}
		sb.WriteString(p.Text)
	}
	return sb.String()
}

// MCPDialer opens MCP sessions to the server at opts.URL. Per call headers
// are merged over opts.Headers.
type MCPDialer func(ctx context.Context, headers map[string]string) (*toolkit.MCPSession, error)

// DialMCP returns an MCPDialer for opts.
func DialMCP(opts toolkit.MCPOptions) MCPDialer {
	return func(ctx context.Context, headers map[string]string) (*toolkit.MCPSession, error) {
		o := opts
		o.Headers = maps.Clone(opts.Headers)
		if o.Headers == nil {
			o.Headers = make(map[string]string, len(headers))
		}
		maps.Copy(o.Headers, headers)
		return toolkit.DialMCP(ctx, o)
	}
}

// TokenExchanger trades the caller's token for one accepted by the tools.
type TokenExchanger interface {
	Exchange(ctx context.Context, subject string) (string, error)
}

// forwardedAuth returns the Authorization header that carries the caller's
// token to a tool server, exchanged when ex is set. It is empty when the
// request carried no token.
func forwardedAuth(ctx context.Context, ex TokenExchanger) (map[string]string, error) {
	tok, ok := auth.TokenFromContext(ctx)
	if !ok {
		return nil, nil
	}
	if ex != nil {
		exchanged, err := ex.Exchange(ctx, tok)
		if err != nil {
			return nil, err
		}
		tok = exchanged
	}
	return map[string]string{"Authorization": "Bearer " + tok}, nil
}

// notifier sends progress messages to a sink, logging each one.
type notifier struct {
	sink   planexec.EventSink
	logger *slog.Logger
}

func (n notifier) notify(ctx context.Context, msg string) {
	n.logger.InfoContext(ctx, msg)
	if n.sink == nil {
		n.logger.WarnContext(ctx, "no event handler registered")
		return
	}
	if err := n.sink.Notify(ctx, msg); err != nil {
		n.logger.WarnContext(ctx, "progress event dropped", "error", err)
	}
}

// toolObserver reports the start of every tool call.
func (n notifier) toolObserver(ctx context.Context) agent.Observer {
	return func(evt agent.ToolEvent) {
		if evt.Type == agent.EventToolStart {
			n.notify(ctx, "Calling tool "+evt.Tool)
		}
	}
}

// toolOutputs concatenates the results of the successful tool calls of res.
func toolOutputs(res *agent.Result) string {
	var sb strings.Builder
	for _, s := range res.Steps {
		if !s.Failed {
			sb.WriteString(s.Result)
		}
	}
	return sb.String()
}

func loggerOr(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.Default()
}
