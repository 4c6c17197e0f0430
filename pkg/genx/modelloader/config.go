// Package modelloader registers generators described by model config files
// or by the LLM environment settings of an agent service.
package modelloader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/haivivi/agentkit/pkg/genx"
	"github.com/haivivi/agentkit/pkg/genx/generators"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"google.golang.org/genai"
)

// Verbose enables request body logging for debugging.
var Verbose bool

type verboseTransport struct {
	base http.RoundTripper
}

func (t *verboseTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Body != nil {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		req.Body = io.NopCloser(bytes.NewReader(body))
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, body, "", "  "); err == nil {
			body = pretty.Bytes()
		}
		slog.Debug("llm request", "url", req.URL.String(), "body", string(body))
	}
	return t.base.RoundTrip(req)
}

type ConfigFile struct {
	Schema string `json:"schema,omitzero" yaml:"schema,omitzero"` // "openai/chat/v1", "gemini/chat/v1"

	APIKey  string `json:"api_key,omitzero" yaml:"api_key,omitzero"` // May be an env reference like "$OPENAI_API_KEY"
	BaseURL string `json:"base_url,omitzero" yaml:"base_url,omitzero"`

	Headers map[string]string `json:"headers,omitzero" yaml:"headers,omitzero"`

	Models []Entry `json:"models,omitzero" yaml:"models,omitzero"`
}

type Entry struct {
	Name              string            `json:"name" yaml:"name"`
	Model             string            `json:"model" yaml:"model"`
	GenerateParams    *genx.ModelParams `json:"generate_params,omitzero" yaml:"generate_params,omitzero"`
	InvokeParams      *genx.ModelParams `json:"invoke_params,omitzero" yaml:"invoke_params,omitzero"`
	SupportJSONOutput bool              `json:"support_json_output,omitzero" yaml:"support_json_output,omitzero"`
	SupportToolCalls  bool              `json:"support_tool_calls,omitzero" yaml:"support_tool_calls,omitzero"`
	UseSystemRole     bool              `json:"use_system_role,omitzero" yaml:"use_system_role,omitzero"`
	ExtraFields       map[string]any    `json:"extra_fields,omitzero" yaml:"extra_fields,omitzero"`
}

// LoadFromDir loads model configs from dir recursively and registers
// generators into mux. Configs whose API key is empty after env expansion
// are skipped.
func LoadFromDir(mux *generators.Mux, dir string) ([]string, error) {
	var names []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".json" && ext != ".yaml" && ext != ".yml" {
			return nil
		}
		fileNames, err := LoadFile(mux, path)
		if err != nil {
			return err
		}
		names = append(names, fileNames...)
		return nil
	})
	return names, err
}

// LoadFile registers the generators of a single config file.
func LoadFile(mux *generators.Mux, path string) ([]string, error) {
	cfg, err := parseConfig(path)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	names, err := registerConfig(mux, *cfg)
	if err != nil {
		if strings.Contains(err.Error(), "is required") {
			slog.Debug("skipping model config", "path", path, "error", err)
			return nil, nil
		}
		return nil, fmt.Errorf("register %s: %w", path, err)
	}
	return names, nil
}

func parseConfig(path string) (*ConfigFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg ConfigFile
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported extension: %s", ext)
	}
	return &cfg, nil
}

func registerConfig(mux *generators.Mux, cfg ConfigFile) ([]string, error) {
	cfg.APIKey = expandEnv(cfg.APIKey)
	provider, _, _ := strings.Cut(cfg.Schema, "/")
	switch provider {
	case "openai":
		return registerOpenAI(mux, cfg)
	case "gemini":
		return registerGemini(mux, cfg)
	default:
		return nil, fmt.Errorf("unknown generator schema: %q", cfg.Schema)
	}
}

// expandEnv expands environment variables in a string.
// Only values starting with $ are treated as references.
func expandEnv(s string) string {
	if strings.HasPrefix(s, "$") {
		return os.ExpandEnv(s)
	}
	return s
}

func newOpenAIClient(apiKey, baseURL string, headers map[string]string) *openai.Client {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	for k, v := range headers {
		opts = append(opts, option.WithHeader(k, v))
	}
	if Verbose {
		opts = append(opts, option.WithHTTPClient(&http.Client{
			Transport: &verboseTransport{base: http.DefaultTransport},
		}))
	}
	client := openai.NewClient(opts...)
	return &client
}

func registerOpenAI(mux *generators.Mux, cfg ConfigFile) ([]string, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api_key is required for openai schema")
	}
	client := newOpenAIClient(cfg.APIKey, cfg.BaseURL, cfg.Headers)

	var names []string
	for _, m := range cfg.Models {
		if m.Name == "" || m.Model == "" {
			return nil, fmt.Errorf("model entry missing name or model")
		}
		if err := mux.Handle(m.Name, &genx.OpenAIGenerator{
			Client:            client,
			Model:             m.Model,
			GenerateParams:    m.GenerateParams,
			InvokeParams:      m.InvokeParams,
			SupportJSONOutput: m.SupportJSONOutput,
			SupportToolCalls:  m.SupportToolCalls,
			UseSystemRole:     m.UseSystemRole,
			ExtraFields:       m.ExtraFields,
		}); err != nil {
			return nil, fmt.Errorf("register generator %q: %w", m.Name, err)
		}
		names = append(names, m.Name)
	}
	return names, nil
}

func registerGemini(mux *generators.Mux, cfg ConfigFile) ([]string, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api_key is required for gemini schema")
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}

	var names []string
	for _, m := range cfg.Models {
		if m.Name == "" || m.Model == "" {
			return nil, fmt.Errorf("model entry missing name or model")
		}
		if err := mux.Handle(m.Name, &genx.GeminiGenerator{
			Client:         client,
			Model:          m.Model,
			GenerateParams: m.GenerateParams,
			InvokeParams:   m.InvokeParams,
		}); err != nil {
			return nil, fmt.Errorf("register generator %q: %w", m.Name, err)
		}
		names = append(names, m.Name)
	}
	return names, nil
}
