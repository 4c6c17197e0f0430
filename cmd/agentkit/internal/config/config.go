// Package config loads the settings of agentkit services.
//
// Settings come from an optional yaml file and are then overridden by
// environment variables, so a container can be configured with either:
//
//	log_level: INFO
//	model:
//	  id: granite3.3:8b
//	  api_base: http://localhost:11434/v1
//	max_plan_steps: 6
//	mcp:
//	  url: http://slack-tool:8000/mcp
//	task_store:
//	  driver: badger
//	  dir: /var/lib/agentkit/tasks
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/haivivi/agentkit/pkg/storage"
)

// Defaults.
const (
	DefaultModelID      = "granite3.3:8b"
	DefaultAPIBase      = "http://localhost:11434/v1"
	DefaultMaxPlanSteps = 6
	DefaultPort         = 8000
	DefaultToolPort     = 8000
	DefaultBrokerPort   = 9090
)

// LevelCritical sits above slog.LevelError.
const LevelCritical = slog.LevelError + 4

type Config struct {
	LogLevel string `yaml:"log_level"`

	Model Model `yaml:"model"`

	// ModelsFile is a modelloader file registering more generators.
	ModelsFile string `yaml:"models_file,omitempty"`

	MaxPlanSteps int `yaml:"max_plan_steps"`

	MCP MCP `yaml:"mcp"`

	// Port is the A2A listen port.
	Port int `yaml:"port"`

	// PublicURL is advertised in the agent card. Defaults to
	// http://localhost:<port>/.
	PublicURL string `yaml:"public_url,omitempty"`

	Auth     Auth     `yaml:"auth"`
	Exchange Exchange `yaml:"exchange"`
	Keycloak Keycloak `yaml:"keycloak"`

	TavilyAPIKey  string `yaml:"tavily_api_key,omitempty"`
	SlackBotToken string `yaml:"slack_bot_token,omitempty"`
	GitHubToken   string `yaml:"github_token,omitempty"`

	TaskStore TaskStore `yaml:"task_store"`
	Archive   Archive   `yaml:"archive"`

	Tool   Tool   `yaml:"tool"`
	Broker Broker `yaml:"broker"`

	Tracing bool `yaml:"tracing"`
}

type Model struct {
	ID           string            `yaml:"id"`
	APIBase      string            `yaml:"api_base"`
	APIKey       string            `yaml:"api_key,omitempty"`
	ExtraHeaders map[string]string `yaml:"extra_headers,omitempty"`
	Temperature  float64           `yaml:"temperature"`
	JSONOutput   bool              `yaml:"json_output,omitempty"`
}

type MCP struct {
	URL       string `yaml:"url,omitempty"`
	Transport string `yaml:"transport,omitempty"`
}

// AgentURL is the URL advertised in the agent card.
func (c *Config) AgentURL() string {
	if c.PublicURL != "" {
		return c.PublicURL
	}
	return fmt.Sprintf("http://localhost:%d/", c.Port)
}

// Auth enables bearer-token validation when JWKSURI is set.
type Auth struct {
	Issuer   string `yaml:"issuer,omitempty"`
	JWKSURI  string `yaml:"jwks_uri,omitempty"`
	Audience string `yaml:"audience,omitempty"`
}

func (a Auth) Enabled() bool { return a.JWKSURI != "" }

// Exchange enables token exchange for outgoing MCP calls when TokenURL is
// set.
type Exchange struct {
	TokenURL       string `yaml:"token_url,omitempty"`
	ClientID       string `yaml:"client_id,omitempty"`
	ClientSecret   string `yaml:"client_secret,omitempty"`
	TargetAudience string `yaml:"target_audience,omitempty"`
	TargetScopes   string `yaml:"target_scopes,omitempty"`

	// SVIDPath and SecretPath are read when ClientID or ClientSecret are
	// empty.
	SVIDPath   string `yaml:"svid_path,omitempty"`
	SecretPath string `yaml:"secret_path,omitempty"`
}

func (e Exchange) Enabled() bool { return e.TokenURL != "" }

// Keycloak authorizes the research agent's MCP session with a password
// grant when URL is set.
type Keycloak struct {
	URL          string `yaml:"url,omitempty"`
	Realm        string `yaml:"realm,omitempty"`
	ClientID     string `yaml:"client_id,omitempty"`
	ClientSecret string `yaml:"client_secret,omitempty"`
	Username     string `yaml:"username,omitempty"`
	Password     string `yaml:"password,omitempty"`
}

func (k Keycloak) Enabled() bool { return k.URL != "" }

type TaskStore struct {
	// Driver is "memory" or "badger".
	Driver string `yaml:"driver"`
	Dir    string `yaml:"dir,omitempty"`
}

type Archive struct {
	// Driver is "", "local" or "s3". Empty disables archiving.
	Driver string           `yaml:"driver,omitempty"`
	Dir    string           `yaml:"dir,omitempty"`
	S3     storage.S3Config `yaml:"s3,omitempty"`
}

// Tool configures the MCP tool servers.
type Tool struct {
	Transport string `yaml:"transport,omitempty"`
	Host      string `yaml:"host,omitempty"`
	Port      int    `yaml:"port,omitempty"`
}

func (t Tool) Addr() string {
	return fmt.Sprintf("%s:%d", t.Host, t.Port)
}

// Broker configures the GitHub MCP broker.
type Broker struct {
	UpstreamURL    string `yaml:"upstream_url,omitempty"`
	InitAuthHeader string `yaml:"init_auth_header,omitempty"`
	Host           string `yaml:"host,omitempty"`
	Port           int    `yaml:"port,omitempty"`

	// RequiredScope selects between the two upstream headers by the
	// caller's scopes when set.
	RequiredScope    string `yaml:"required_scope,omitempty"`
	InScopeHeader    string `yaml:"in_scope_header,omitempty"`
	OutOfScopeHeader string `yaml:"out_of_scope_header,omitempty"`
}

func (b Broker) Addr() string {
	return fmt.Sprintf("%s:%d", b.Host, b.Port)
}

// Default returns the settings used when nothing is configured.
func Default() *Config {
	return &Config{
		LogLevel:     "INFO",
		Model:        Model{ID: DefaultModelID, APIBase: DefaultAPIBase},
		MaxPlanSteps: DefaultMaxPlanSteps,
		Port:         DefaultPort,
		TaskStore:    TaskStore{Driver: "memory"},
		Tool:         Tool{Transport: "streamable-http", Host: "0.0.0.0", Port: DefaultToolPort},
		Broker:       Broker{Host: "0.0.0.0", Port: DefaultBrokerPort},
	}
}

// LookupFunc reads one environment variable.
type LookupFunc func(key string) (string, bool)

// Load reads path (when not empty) over the defaults, applies the process
// environment and validates the result.
func Load(path string) (*Config, error) {
	return LoadWith(path, os.LookupEnv)
}

func LoadWith(path string, lookup LookupFunc) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(lookup); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		v, ok := lookup(key)
		if !ok || v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s must be an integer, got %q", key, v))
			return
		}
		*dst = n
	}

	str("LOG_LEVEL", &c.LogLevel)
	str("TASK_MODEL_ID", &c.Model.ID)
	str("LLM_API_BASE", &c.Model.APIBase)
	str("LLM_API_KEY", &c.Model.APIKey)
	if v, ok := lookup("EXTRA_HEADERS"); ok && v != "" {
		var h map[string]string
		if err := json.Unmarshal([]byte(v), &h); err != nil {
			errs = append(errs, errors.New("EXTRA_HEADERS must be a valid JSON string"))
		} else {
			c.Model.ExtraHeaders = h
		}
	}
	if v, ok := lookup("MODEL_TEMPERATURE"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("MODEL_TEMPERATURE must be a number, got %q", v))
		} else {
			c.Model.Temperature = f
		}
	}
	num("MAX_PLAN_STEPS", &c.MaxPlanSteps)
	str("MCP_URL", &c.MCP.URL)
	str("MCP_TRANSPORT", &c.MCP.Transport)
	num("SERVICE_PORT", &c.Port)
	str("PUBLIC_URL", &c.PublicURL)

	str("ISSUER", &c.Auth.Issuer)
	str("JWKS_URI", &c.Auth.JWKSURI)
	str("AUDIENCE", &c.Auth.Audience)

	str("TOKEN_URL", &c.Exchange.TokenURL)
	str("CLIENT_ID", &c.Exchange.ClientID)
	str("CLIENT_SECRET", &c.Exchange.ClientSecret)
	str("TARGET_AUDIENCE", &c.Exchange.TargetAudience)
	str("TARGET_SCOPES", &c.Exchange.TargetScopes)

	str("KEYCLOAK_URL", &c.Keycloak.URL)
	str("CLIENT_NAME", &c.Keycloak.ClientID)
	str("CLIENT_SECRET", &c.Keycloak.ClientSecret)

	str("TAVILY_API_KEY", &c.TavilyAPIKey)
	str("SLACK_BOT_TOKEN", &c.SlackBotToken)
	str("GITHUB_TOKEN", &c.GitHubToken)

	str("MCP_TRANSPORT", &c.Tool.Transport)
	str("HOST", &c.Tool.Host)
	num("PORT", &c.Tool.Port)

	str("UPSTREAM_MCP", &c.Broker.UpstreamURL)
	str("INIT_AUTH_HEADER", &c.Broker.InitAuthHeader)
	str("LISTENER_HOST", &c.Broker.Host)
	num("LISTENER_PORT", &c.Broker.Port)
	str("REQUIRED_SCOPE", &c.Broker.RequiredScope)
	str("UPSTREAM_HEADER_TO_USE_IF_IN_AUDIENCE", &c.Broker.InScopeHeader)
	str("UPSTREAM_HEADER_TO_USE_IF_NOT_IN_AUDIENCE", &c.Broker.OutOfScopeHeader)

	if v, ok := lookup("TRACING"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("TRACING must be a boolean, got %q", v))
		} else {
			c.Tracing = b
		}
	}
	return errors.Join(errs...)
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var errs []error
	if c.MaxPlanSteps < 1 {
		errs = append(errs, fmt.Errorf("max_plan_steps must be at least 1, got %d", c.MaxPlanSteps))
	}
	if c.Model.Temperature < 0 {
		errs = append(errs, fmt.Errorf("model temperature must not be negative, got %v", c.Model.Temperature))
	}
	if c.Model.ID == "" {
		errs = append(errs, errors.New("model id is required"))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	switch c.TaskStore.Driver {
	case "memory", "":
	case "badger":
		if c.TaskStore.Dir == "" {
			errs = append(errs, errors.New("task_store.dir is required for the badger driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown task_store driver %q", c.TaskStore.Driver))
	}
	switch c.Archive.Driver {
	case "":
	case "local":
		if c.Archive.Dir == "" {
			errs = append(errs, errors.New("archive.dir is required for the local driver"))
		}
	case "s3":
		if c.Archive.S3.Bucket == "" {
			errs = append(errs, errors.New("archive.s3.bucket is required for the s3 driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown archive driver %q", c.Archive.Driver))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// ParseLevel maps the level names used by the deployment manifests to slog
// levels.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO", "":
		return slog.LevelInfo, nil
	case "WARNING", "WARN":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	case "CRITICAL":
		return LevelCritical, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}
