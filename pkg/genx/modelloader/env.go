package modelloader

import (
	"fmt"

	"github.com/haivivi/agentkit/pkg/genx"
	"github.com/haivivi/agentkit/pkg/genx/generators"
)

// placeholderAPIKey is sent to local OpenAI compatible servers that ignore
// authentication but still expect the header.
const placeholderAPIKey = "none"

// Endpoint is a single OpenAI compatible model served behind LLM_API_BASE.
type Endpoint struct {
	BaseURL      string
	APIKey       string
	Model        string
	Temperature  float32
	ExtraHeaders map[string]string

	// JSONOutput selects json_schema structured output instead of a forced
	// tool call for Invoke.
	JSONOutput bool
}

// RegisterEndpoint registers ep under name and returns the generator.
func RegisterEndpoint(mux *generators.Mux, name string, ep Endpoint) (*genx.OpenAIGenerator, error) {
	if ep.Model == "" {
		return nil, fmt.Errorf("modelloader: model is required")
	}
	key := expandEnv(ep.APIKey)
	if key == "" {
		key = placeholderAPIKey
	}
	params := &genx.ModelParams{Temperature: ep.Temperature}
	gen := &genx.OpenAIGenerator{
		Client:            newOpenAIClient(key, ep.BaseURL, ep.ExtraHeaders),
		Model:             ep.Model,
		GenerateParams:    params,
		InvokeParams:      params,
		SupportJSONOutput: ep.JSONOutput,
		SupportToolCalls:  true,
		UseSystemRole:     true,
	}
	if err := mux.Handle(name, gen); err != nil {
		return nil, err
	}
	return gen, nil
}
