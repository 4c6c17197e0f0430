package commands

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/haivivi/agentkit/pkg/a2a"
)

var (
	askToken  string
	askNoWait bool
)

// askStyles colors the stream printed by "agentkit ask".
type askStyles struct {
	Agent    lipgloss.Style
	Progress lipgloss.Style
	Answer   lipgloss.Style
	Failed   lipgloss.Style
}

func newAskStyles() askStyles {
	primary := lipgloss.Color("#00ff9f")
	dim := lipgloss.Color("#6e7681")
	return askStyles{
		Agent:    lipgloss.NewStyle().Bold(true).Foreground(primary),
		Progress: lipgloss.NewStyle().Foreground(dim),
		Answer:   lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(primary).Padding(0, 1),
		Failed:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ff5f5f")),
	}
}

var askCmd = &cobra.Command{
	Use:   "ask <agent-url> <text>",
	Short: "Send a message to an A2A agent and print its progress",
	Long: `Send a message to an A2A agent.

Progress updates are streamed as they arrive and the final answer is
printed in a box. Use --no-stream to wait for the finished task instead.

Examples:
  agentkit ask http://localhost:8000 "What is the weather in Paris?"
  agentkit ask --token "$TOKEN" http://localhost:8000 "Summarize #general"`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if askToken == "" {
			askToken = os.Getenv("A2A_TOKEN")
		}
		c := &a2a.Client{URL: args[0], Token: askToken}
		text := strings.Join(args[1:], " ")
		st := newAskStyles()
		out := cmd.OutOrStdout()

		card, err := c.Card(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintln(out, st.Agent.Render(card.Name))

		msg := a2a.NewUserTextMessage(text)
		if askNoWait {
			task, err := c.Send(cmd.Context(), msg)
			if err != nil {
				return err
			}
			return printFinal(out, st, task.Status)
		}
		return c.Stream(cmd.Context(), msg, func(e a2a.Event) error {
			return printEvent(out, st, e)
		})
	},
}

func init() {
	askCmd.Flags().StringVar(&askToken, "token", "", "bearer token (default $A2A_TOKEN)")
	askCmd.Flags().BoolVar(&askNoWait, "no-stream", false, "wait for the finished task instead of streaming")
	rootCmd.AddCommand(askCmd)
}

func printEvent(w io.Writer, st askStyles, e a2a.Event) error {
	su, ok := e.(*a2a.TaskStatusUpdateEvent)
	if !ok {
		return nil
	}
	if su.Final {
		return printFinal(w, st, su.Status)
	}
	if su.Status.Message != nil {
		fmt.Fprintln(w, st.Progress.Render("• "+su.Status.Message.Text()))
	}
	return nil
}

func printFinal(w io.Writer, st askStyles, status a2a.TaskStatus) error {
	var text string
	if status.Message != nil {
		text = status.Message.Text()
	}
	switch status.State {
	case a2a.TaskStateCompleted:
		fmt.Fprintln(w, st.Answer.Render(text))
		return nil
	case a2a.TaskStateFailed:
		fmt.Fprintln(w, st.Failed.Render(text))
		return fmt.Errorf("task failed")
	}
	fmt.Fprintln(w, st.Failed.Render(string(status.State)))
	return fmt.Errorf("task ended %s", status.State)
}
