package agent

import "errors"

var (
	// ErrNoGenerator indicates a ToolAgent was run without a generator.
	ErrNoGenerator = errors.New("agent: no generator")

	// ErrUnknownTool indicates the model requested a tool the agent does not have.
	ErrUnknownTool = errors.New("agent: unknown tool")
)
