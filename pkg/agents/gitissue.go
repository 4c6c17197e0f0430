package agents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/haivivi/agentkit/pkg/genx"
	"github.com/haivivi/agentkit/pkg/genx/agent"
	"github.com/haivivi/agentkit/pkg/planexec"
	"github.com/haivivi/agentkit/pkg/roles"
)

// RepositoryJudgement says whether a request names both owner and
// repository.
type RepositoryJudgement struct {
	IsOwnerAndRepoIdentified bool   `json:"is_owner_and_repo_identified" jsonschema:"whether the query indicates both an owner or organization name and the repository name"`
	Explanation              string `json:"explanation" jsonschema:"a detailed explanation of the judgement"`
}

var judgementTool = genx.MustNewFuncTool[RepositoryJudgement]("submit_judgement", "Submit the repository judgement.")

// GitIssue answers questions about GitHub issues with the GitHub MCP tools,
// once the request is specific enough to act on.
type GitIssue struct {
	Model roles.Model
	MCP   MCPDialer

	// Exchanger, when set, exchanges the caller's token before it is
	// forwarded to the tool server.
	Exchanger TokenExchanger

	Logger *slog.Logger
}

func (g *GitIssue) Execute(ctx context.Context, query string, sink planexec.EventSink) (string, error) {
	if g.MCP == nil {
		return "", errors.New("gitissue: no mcp server configured")
	}
	logger := loggerOr(g.Logger)
	n := notifier{sink: sink, logger: logger}

	n.notify(ctx, "🧐 Evaluating requirements...")
	mcb := &genx.ModelContextBuilder{}
	mcb.PromptText("prerequisites", gitIssuePrereqPrompt)
	mcb.UserText("user", query)
	var j RepositoryJudgement
	if _, err := g.Model.Invoke(ctx, mcb, judgementTool, &j); err != nil {
		return "", fmt.Errorf("gitissue: judge request: %w", err)
	}
	if !j.IsOwnerAndRepoIdentified {
		return j.Explanation, nil
	}

	n.notify(ctx, "🔎 Searching for issues...")
	headers, err := forwardedAuth(ctx, g.Exchanger)
	if err != nil {
		return "", fmt.Errorf("gitissue: %w", err)
	}
	sess, err := g.MCP(ctx, headers)
	if err != nil {
		return "", fmt.Errorf("gitissue: %w", err)
	}
	defer sess.Close()
	tools, err := sess.Tools(ctx)
	if err != nil {
		return "", fmt.Errorf("gitissue: %w", err)
	}
	analyst := &agent.ToolAgent{
		Generator: g.Model.Generator,
		Model:     g.Model.Name,
		Prompt:    gitIssueAnalystPrompt,
		Tools:     tools,
		Logger:    logger,
	}
	res, err := analyst.Run(ctx, query, n.toolObserver(ctx))
	if err != nil {
		return "", fmt.Errorf("gitissue: %w", err)
	}
	return res.Text, nil
}
