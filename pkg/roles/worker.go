package roles

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/goccy/go-yaml"

	"github.com/haivivi/agentkit/pkg/genx"
	"github.com/haivivi/agentkit/pkg/genx/agent"
	"github.com/haivivi/agentkit/pkg/planexec"
)

// Worker executes one instruction with a tool agent. Tool calls are
// reported to Sink as they start.
type Worker struct {
	Agent  *agent.ToolAgent
	Sink   planexec.EventSink
	Logger *slog.Logger
}

func (w *Worker) logger() *slog.Logger {
	if w.Logger != nil {
		return w.Logger
	}
	return slog.Default()
}

func (w *Worker) Execute(ctx context.Context, instruction string, results []planexec.Output) (planexec.Output, error) {
	var extra []*genx.Prompt
	if len(results) > 0 {
		b, err := yaml.Marshal(map[string]any{"previous_results": renderResults(results)})
		if err != nil {
			return planexec.Output{}, err
		}
		extra = append(extra, &genx.Prompt{Name: "context", Text: string(b)})
	}

	res, err := w.Agent.Run(ctx, instruction, w.observe(ctx), extra...)
	var out planexec.Output
	if res != nil {
		out.Text = res.Text
		for _, s := range res.Steps {
			out.Observations = append(out.Observations, planexec.Observation{
				Tool:      s.Tool,
				Arguments: s.Arguments,
				Result:    s.Result,
			})
		}
	}
	return out, err
}

func (w *Worker) observe(ctx context.Context) agent.Observer {
	if w.Sink == nil {
		return nil
	}
	return func(evt agent.ToolEvent) {
		if evt.Type != agent.EventToolStart {
			return
		}
		msg := fmt.Sprintf("Calling tool %s", evt.Tool)
		if err := w.Sink.Notify(ctx, msg); err != nil {
			w.logger().WarnContext(ctx, "tool event dropped", "tool", evt.Tool, "error", err)
		}
	}
}
