package commands

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/haivivi/agentkit/cmd/agentkit/internal/build"
	"github.com/haivivi/agentkit/cmd/agentkit/internal/config"
	"github.com/haivivi/agentkit/pkg/a2a"
	"github.com/haivivi/agentkit/pkg/agents"
	"github.com/haivivi/agentkit/pkg/auth"
	"github.com/haivivi/agentkit/pkg/genx/generators"
	"github.com/haivivi/agentkit/pkg/genx/modelloader"
	"github.com/haivivi/agentkit/pkg/roles"
	"github.com/haivivi/agentkit/pkg/storage"
	"github.com/haivivi/agentkit/pkg/taskstore"
	"github.com/haivivi/agentkit/pkg/telemetry"
	"github.com/haivivi/agentkit/pkg/toolkit"
	"github.com/haivivi/agentkit/pkg/tools"
)

// Default MCP endpoints of the agents that need one.
const (
	defaultSlackMCP   = "http://slack-tool:8000/mcp"
	defaultGitHubMCP  = "http://github-tool:9090/mcp"
	defaultWeatherMCP = "http://localhost:8000/mcp"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve an agent over A2A",
}

func init() {
	for _, name := range []string{"research", "slack", "gitissue", "weather"} {
		serveCmd.AddCommand(&cobra.Command{
			Use:   name,
			Short: "Serve the " + name + " agent",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return serveAgent(cmd.Context(), name)
			},
		})
	}
	rootCmd.AddCommand(serveCmd)
}

func serveAgent(ctx context.Context, name string) error {
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

	shutdown, err := telemetry.Setup(ctx, telemetry.Options{
		Enabled:        cfg.Tracing,
		ServiceName:    "agentkit-" + name,
		ServiceVersion: build.Version,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer shutdown(context.WithoutCancel(ctx))

	model, err := newModel(cfg, logger)
	if err != nil {
		return err
	}
	agent, card, err := newAgent(name, cfg, model, logger)
	if err != nil {
		return err
	}

	store, err := newTaskStore(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()
	archive, err := newArchive(cfg)
	if err != nil {
		return err
	}

	opts := a2a.ServerOptions{Store: store, Archive: archive, Logger: logger}
	if cfg.Auth.Enabled() {
		v, err := auth.NewValidator(ctx, auth.ValidatorOptions{
			JWKSURL:  cfg.Auth.JWKSURI,
			Issuer:   cfg.Auth.Issuer,
			Audience: cfg.Auth.Audience,
			Logger:   logger,
		})
		if err != nil {
			return err
		}
		opts.Middleware = v.Middleware
		logger.Info("token validation enabled", "jwks", cfg.Auth.JWKSURI)
	}

	srv, err := a2a.NewServer(card, agents.Executor(agent, logger), opts)
	if err != nil {
		return err
	}
	defer srv.Close()

	logger.Info("serving agent", "agent", name, "url", card.URL, "version", build.Version)
	return tools.ListenAndServe(ctx, &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: srv.Handler(),
	}, logger)
}

// newModel registers the configured endpoint, plus any models file, and
// returns the role model bound to the endpoint.
func newModel(cfg *config.Config, logger *slog.Logger) (roles.Model, error) {
	mux := generators.NewMux()
	_, err := modelloader.RegisterEndpoint(mux, cfg.Model.ID, modelloader.Endpoint{
		BaseURL:      cfg.Model.APIBase,
		APIKey:       cfg.Model.APIKey,
		Model:        cfg.Model.ID,
		Temperature:  float32(cfg.Model.Temperature),
		ExtraHeaders: cfg.Model.ExtraHeaders,
		JSONOutput:   cfg.Model.JSONOutput,
	})
	if err != nil {
		return roles.Model{}, fmt.Errorf("model: %w", err)
	}
	if cfg.ModelsFile != "" {
		names, err := modelloader.LoadFile(mux, cfg.ModelsFile)
		if err != nil {
			return roles.Model{}, fmt.Errorf("models file: %w", err)
		}
		logger.Info("loaded models", "file", cfg.ModelsFile, "models", names)
	}
	return roles.Model{Generator: mux, Name: cfg.Model.ID, Logger: logger}, nil
}

func newAgent(name string, cfg *config.Config, model roles.Model, logger *slog.Logger) (agents.Agent, a2a.AgentCard, error) {
	url := cfg.AgentURL()
	dial := func(def string) agents.MCPDialer {
		u := cfg.MCP.URL
		if u == "" {
			u = def
		}
		if u == "" {
			return nil
		}
		return agents.DialMCP(toolkit.MCPOptions{URL: u, Transport: toolkit.Transport(cfg.MCP.Transport)})
	}

	switch name {
	case "research":
		r := &agents.Research{
			Model:    model,
			MCP:      dial(""),
			MaxSteps: cfg.MaxPlanSteps,
			Logger:   logger,
		}
		if cfg.TavilyAPIKey != "" {
			r.Search = &toolkit.WebSearch{APIKey: cfg.TavilyAPIKey}
		} else {
			logger.Warn("TAVILY_API_KEY is not set, web search is disabled")
		}
		if cfg.Keycloak.Enabled() {
			kc := cfg.Keycloak
			g := &auth.PasswordGrant{
				URL:          kc.URL,
				Realm:        kc.Realm,
				ClientID:     kc.ClientID,
				ClientSecret: kc.ClientSecret,
				Username:     kc.Username,
				Password:     kc.Password,
			}
			r.Token = g.Token
		}
		return r, agents.ResearchCard(url), nil
	case "slack":
		ex, err := newExchanger(cfg, logger)
		if err != nil {
			return nil, a2a.AgentCard{}, err
		}
		return &agents.Slack{Model: model, MCP: dial(defaultSlackMCP), Exchanger: ex, Logger: logger}, agents.SlackCard(url), nil
	case "gitissue":
		ex, err := newExchanger(cfg, logger)
		if err != nil {
			return nil, a2a.AgentCard{}, err
		}
		return &agents.GitIssue{Model: model, MCP: dial(defaultGitHubMCP), Exchanger: ex, Logger: logger}, agents.GitIssueCard(url), nil
	case "weather":
		return &agents.Weather{Model: model, MCP: dial(defaultWeatherMCP), Logger: logger}, agents.WeatherCard(url), nil
	}
	return nil, a2a.AgentCard{}, fmt.Errorf("unknown agent %q", name)
}

// newExchanger returns nil when token exchange is not configured. A missing
// client id is read from the SVID, a missing secret from the shared
// secret file.
func newExchanger(cfg *config.Config, logger *slog.Logger) (agents.TokenExchanger, error) {
	ex := cfg.Exchange
	if !ex.Enabled() {
		return nil, nil
	}
	if ex.ClientID == "" {
		path := ex.SVIDPath
		if path == "" {
			path = auth.DefaultSVIDPath
		}
		id, err := auth.ClientIDFromSVID(path)
		if err != nil {
			return nil, fmt.Errorf("token exchange client id: %w", err)
		}
		ex.ClientID = id
	}
	if ex.ClientSecret == "" {
		path := ex.SecretPath
		if path == "" {
			path = auth.DefaultSecretPath
		}
		secret, err := auth.ReadSecretFile(path)
		if err != nil {
			logger.Warn("client secret not loaded", "path", path, "error", err)
		}
		ex.ClientSecret = secret
	}
	logger.Info("token exchange enabled", "token_url", ex.TokenURL, "client_id", ex.ClientID)
	return &auth.Exchanger{
		TokenURL:     ex.TokenURL,
		ClientID:     ex.ClientID,
		ClientSecret: ex.ClientSecret,
		Audience:     ex.TargetAudience,
		Scopes:       auth.ParseScopes(ex.TargetScopes),
	}, nil
}

func newTaskStore(cfg *config.Config, logger *slog.Logger) (taskstore.Store, error) {
	switch cfg.TaskStore.Driver {
	case "badger":
		return taskstore.NewBadger(taskstore.BadgerOptions{Dir: cfg.TaskStore.Dir, Logger: logger})
	case "memory", "":
		return taskstore.NewMemory(), nil
	}
	return nil, fmt.Errorf("unknown task store driver %q", cfg.TaskStore.Driver)
}

// newArchive returns a nil store when archiving is disabled.
func newArchive(cfg *config.Config) (storage.Store, error) {
	switch cfg.Archive.Driver {
	case "":
		return nil, nil
	case "local":
		return storage.NewLocal(cfg.Archive.Dir)
	case "s3":
		s3cfg := cfg.Archive.S3
		return storage.NewS3(storage.NewS3Client(s3cfg), s3cfg.Bucket, s3cfg.Prefix), nil
	}
	return nil, fmt.Errorf("unknown archive driver %q", cfg.Archive.Driver)
}
