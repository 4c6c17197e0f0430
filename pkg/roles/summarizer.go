package roles

import (
	"context"
	"fmt"
	"strings"

	"github.com/haivivi/agentkit/pkg/genx"
	"github.com/haivivi/agentkit/pkg/planexec"
)

// Summarizer writes the final answer. When the model fails the gathered
// results are returned as they are.
type Summarizer struct {
	Model
}

func (s *Summarizer) Summarize(ctx context.Context, goal string, results []planexec.Output, failureReason string) (string, error) {
	mcb := &genx.ModelContextBuilder{}
	mcb.PromptText("summarizer", summarizerPrompt)
	if len(results) > 0 {
		if err := mcb.Prompt("context", "information_gathered", renderResults(results)); err != nil {
			return "", err
		}
	}
	if failureReason != "" {
		mcb.PromptText("failure", fmt.Sprintf(
			"The work stopped before the goal was reached: %s\nTell the user what was found and why the request could not be fully answered.",
			failureReason))
	}
	mcb.UserText("user", goal)

	if s.Generator == nil {
		return fallbackSummary(results, failureReason), nil
	}
	reply, err := s.Generator.Generate(ctx, s.Name, mcb.Build())
	if err != nil {
		if isContextErr(err) {
			return "", err
		}
		s.logger().WarnContext(ctx, "summarizer failed", "error", err)
		return fallbackSummary(results, failureReason), nil
	}
	if strings.TrimSpace(reply.Text) == "" {
		return fallbackSummary(results, failureReason), nil
	}
	return reply.Text, nil
}

func fallbackSummary(results []planexec.Output, failureReason string) string {
	var sb strings.Builder
	if len(results) == 0 {
		sb.WriteString("I'm sorry, I could not find an answer.")
	} else {
		sb.WriteString("Here is what I found:\n")
		for _, r := range results {
			sb.WriteString("\n")
			sb.WriteString(r.String())
			sb.WriteString("\n")
		}
	}
	if failureReason != "" {
		sb.WriteString("\n")
		sb.WriteString("The request could not be completed: ")
		sb.WriteString(failureReason)
	}
	return strings.TrimRight(sb.String(), "\n")
}
