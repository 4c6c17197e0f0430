package commands

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/haivivi/agentkit/cmd/agentkit/internal/build"
	"github.com/haivivi/agentkit/cmd/agentkit/internal/config"
	"github.com/haivivi/agentkit/pkg/auth"
	"github.com/haivivi/agentkit/pkg/tools"
	"github.com/haivivi/agentkit/pkg/tools/github"
	slacktool "github.com/haivivi/agentkit/pkg/tools/slack"
	"github.com/haivivi/agentkit/pkg/tools/weather"
)

const brokerPingInterval = 5 * time.Second

var toolCmd = &cobra.Command{
	Use:   "tool",
	Short: "Run an MCP tool server",
}

var toolWeatherCmd = &cobra.Command{
	Use:   "weather",
	Short: "Serve current weather from Open-Meteo",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTool(cmd.Context(), func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*server.MCPServer, string, func(), error) {
			s := weather.NewServer(&weather.Tool{Logger: logger}, build.Version)
			return s, cfg.Tool.Addr(), func() {}, nil
		})
	},
}

var toolSlackCmd = &cobra.Command{
	Use:   "slack",
	Short: "Serve Slack channels and history",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTool(cmd.Context(), func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*server.MCPServer, string, func(), error) {
			if cfg.SlackBotToken == "" {
				return nil, "", nil, errors.New("please configure the SLACK_BOT_TOKEN environment variable before running the server")
			}
			t, err := slacktool.Connect(ctx, cfg.SlackBotToken, logger)
			if err != nil {
				return nil, "", nil, err
			}
			return slacktool.NewServer(t, build.Version), cfg.Tool.Addr(), func() {}, nil
		})
	},
}

var toolGitHubCmd = &cobra.Command{
	Use:   "github",
	Short: "Broker the GitHub MCP server with per-caller credentials",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTool(cmd.Context(), func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*server.MCPServer, string, func(), error) {
			initHeader := cfg.Broker.InitAuthHeader
			if initHeader == "" && cfg.GitHubToken != "" {
				initHeader = "Bearer " + cfg.GitHubToken
			}
			opts := github.BrokerOptions{
				UpstreamURL:    cfg.Broker.UpstreamURL,
				InitAuthHeader: initHeader,
				Version:        build.Version,
				Logger:         logger,
			}
			if cfg.Broker.RequiredScope != "" {
				opts.Exchanger = github.ScopeExchanger{
					RequiredScope: cfg.Broker.RequiredScope,
					InScope:       cfg.Broker.InScopeHeader,
					OutOfScope:    cfg.Broker.OutOfScopeHeader,
				}
			} else {
				ex, err := newExchanger(cfg, logger)
				if err != nil {
					return nil, "", nil, err
				}
				if ex != nil {
					opts.Exchanger = ex
				}
			}
			b, err := github.NewBroker(ctx, opts)
			if err != nil {
				return nil, "", nil, err
			}
			logger.Info("discovered upstream tools", "tools", len(b.Tools()))
			go b.KeepAlive(ctx, brokerPingInterval)
			return b.MCPServer(), cfg.Broker.Addr(), func() { b.Close() }, nil
		})
	},
}

func init() {
	toolCmd.AddCommand(toolWeatherCmd, toolSlackCmd, toolGitHubCmd)
	rootCmd.AddCommand(toolCmd)
}

type toolFactory func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (s *server.MCPServer, addr string, cleanup func(), err error)

func runTool(ctx context.Context, factory toolFactory) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, addr, cleanup, err := factory(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	opts := tools.ServeOptions{Transport: cfg.Tool.Transport, Addr: addr, Logger: logger}
	if cfg.Auth.Enabled() {
		v, err := auth.NewValidator(ctx, auth.ValidatorOptions{
			JWKSURL:     cfg.Auth.JWKSURI,
			Issuer:      cfg.Auth.Issuer,
			Audience:    cfg.Auth.Audience,
			PublicPaths: []string{},
			Logger:      logger,
		})
		if err != nil {
			return err
		}
		opts.Middleware = v.Middleware
	}
	return tools.Serve(ctx, s, opts)
}
