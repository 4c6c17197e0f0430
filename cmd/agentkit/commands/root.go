package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/haivivi/agentkit/cmd/agentkit/internal/config"
)

var (
	// Global flags
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "agentkit",
	Short: "Run agentkit agents and MCP tool servers",
	Long: `agentkit - A2A agents and the MCP tool servers they use.

Agents:
  research   Web research through the plan and execute loop
  slack      Slack workspace research
  gitissue   GitHub issue questions
  weather    Weather questions

Tools:
  weather    Open-Meteo weather MCP server
  slack      Slack MCP server
  github     MCP broker in front of the GitHub MCP server

Settings come from the optional --config yaml file and are overridden by
environment variables (LLM_API_BASE, TASK_MODEL_ID, MCP_URL, JWKS_URI, ...).

Examples:
  # Serve the weather tool and an agent that uses it
  agentkit tool weather
  MCP_URL=http://localhost:8000/mcp agentkit serve weather

  # Ask the agent
  agentkit ask http://localhost:8000 "What is the weather in Paris?"`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "f", "", "settings file (yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// IsVerbose returns whether verbose mode is enabled.
func IsVerbose() bool {
	return verbose
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.LogLevel = "DEBUG"
	}
	return cfg, nil
}

// newLogger returns a text logger on stdout at the configured level.
func newLogger(cfg *config.Config) (*slog.Logger, error) {
	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger, nil
}
