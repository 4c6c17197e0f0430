package agents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/haivivi/agentkit/pkg/genx"
	"github.com/haivivi/agentkit/pkg/genx/agent"
	"github.com/haivivi/agentkit/pkg/planexec"
	"github.com/haivivi/agentkit/pkg/roles"
)

// Intents of a Slack request.
const (
	IntentListChannels  = "LIST_CHANNELS"
	IntentQueryChannels = "QUERY CHANNELS"
)

type intentArg struct {
	Intent string `json:"intent" jsonschema:"either LIST_CHANNELS or QUERY CHANNELS"`
}

type requirementArg struct {
	SpecificChannelNames       string `json:"specific_channel_names,omitempty" jsonschema:"specific channel names the user would like to fetch"`
	TypesOfChannels            string `json:"types_of_channels" jsonschema:"the types of channels the user would like information about"`
	TypesOfInformationToSearch string `json:"types_of_information_to_search,omitempty" jsonschema:"what to look for inside the channels, empty when only listing"`
}

// ChannelInfo is a channel selected for a request.
type ChannelInfo struct {
	Name        string `json:"name" yaml:"name" jsonschema:"the name of the slack channel"`
	ID          string `json:"id" yaml:"id" jsonschema:"the ID of the channel"`
	Description string `json:"description" yaml:"description" jsonschema:"a description of the channel"`
}

type channelListArg struct {
	Channels    []ChannelInfo `json:"channels"`
	Explanation string        `json:"explanation,omitempty" jsonschema:"why this list of channels was chosen"`
}

// ChannelOutput is what was retrieved from one channel.
type ChannelOutput struct {
	ChannelName string `yaml:"channel_name"`
	ChannelID   string `yaml:"channel_id"`
	Output      string `yaml:"output"`
}

var (
	intentTool      = genx.MustNewFuncTool[intentArg]("submit_intent", "Submit the intent of the user.")
	requirementTool = genx.MustNewFuncTool[requirementArg]("submit_requirements", "Submit the channel requirements of the user.")
	channelListTool = genx.MustNewFuncTool[channelListArg]("submit_channels", "Submit the relevant channels.")
)

// Slack researches a Slack workspace through the slack MCP tools: it
// classifies the request, lists and filters the channels, reads the
// relevant ones when needed and writes a report.
type Slack struct {
	Model roles.Model
	MCP   MCPDialer

	// Exchanger, when set, exchanges the caller's token for the tool server.
	Exchanger TokenExchanger

	Logger *slog.Logger
}

// slackRun is the state of one request.
type slackRun struct {
	*Slack
	notifier
	query    string
	agent    *agent.ToolAgent
	intent   string
	req      requirementArg
	channels string
	relevant channelListArg
}

func (s *Slack) Execute(ctx context.Context, query string, sink planexec.EventSink) (string, error) {
	if s.MCP == nil {
		return "", errors.New("slack: no mcp server configured")
	}
	if s.Model.Generator == nil {
		return "", errors.New("slack: no generator")
	}
	logger := loggerOr(s.Logger)
	headers, err := forwardedAuth(ctx, s.Exchanger)
	if err != nil {
		return "", fmt.Errorf("slack: %w", err)
	}
	sess, err := s.MCP(ctx, headers)
	if err != nil {
		return "", fmt.Errorf("slack: %w", err)
	}
	defer sess.Close()
	tools, err := sess.Tools(ctx)
	if err != nil {
		return "", fmt.Errorf("slack: %w", err)
	}

	r := &slackRun{
		Slack:    s,
		notifier: notifier{sink: sink, logger: logger},
		query:    query,
		agent: &agent.ToolAgent{
			Generator: s.Model.Generator,
			Model:     s.Model.Name,
			Prompt:    slackAssistantPrompt,
			Tools:     tools,
			Logger:    logger,
		},
	}
	return r.execute(ctx)
}

func (r *slackRun) execute(ctx context.Context) (string, error) {
	if err := r.classifyIntent(ctx); err != nil {
		return "", err
	}
	if err := r.listChannels(ctx); err != nil {
		return "", err
	}
	if err := r.identifyRequirements(ctx); err != nil {
		return "", err
	}
	if err := r.filterChannels(ctx); err != nil {
		return "", err
	}
	if r.intent == IntentListChannels {
		return r.report(ctx, r.relevant.Channels)
	}
	outputs, err := r.queryChannels(ctx)
	if err != nil {
		return "", err
	}
	return r.report(ctx, outputs)
}

func (r *slackRun) classifyIntent(ctx context.Context) error {
	mcb := &genx.ModelContextBuilder{}
	mcb.PromptText("intent", slackIntentPrompt)
	mcb.UserText("user", "Classify the intent of the user as either simply needing to list slack channel information or querying the content of slack channels themselves. User query: "+r.query)
	var arg intentArg
	if _, err := r.Model.Invoke(ctx, mcb, intentTool, &arg); err != nil {
		return fmt.Errorf("slack: classify intent: %w", err)
	}
	r.intent = normalizeIntent(arg.Intent)
	r.notify(ctx, "🧐 Identified user intent: "+r.intent)
	return nil
}

func normalizeIntent(s string) string {
	if strings.Contains(strings.ToUpper(s), "LIST") {
		return IntentListChannels
	}
	return IntentQueryChannels
}

func (r *slackRun) listChannels(ctx context.Context) error {
	r.notify(ctx, "🔎 Fetching all channels")
	res, err := r.agent.Run(ctx, "Retrieve all slack channels that are found on my slack server. Use the slack tool to find it.", r.toolObserver(ctx))
	if err != nil {
		return fmt.Errorf("slack: list channels: %w", err)
	}
	r.channels = toolOutputs(res)
	return nil
}

func (r *slackRun) identifyRequirements(ctx context.Context) error {
	mcb := &genx.ModelContextBuilder{}
	mcb.PromptText("requirements", slackRequirementsPrompt)
	mcb.UserText("user", r.query)
	if _, err := r.Model.Invoke(ctx, mcb, requirementTool, &r.req); err != nil {
		return fmt.Errorf("slack: identify requirements: %w", err)
	}
	r.notify(ctx, fmt.Sprintf("📇 Identified channel requirements. Channel names: %s, Channel types: %s",
		r.req.SpecificChannelNames, r.req.TypesOfChannels))
	return nil
}

func (r *slackRun) filterChannels(ctx context.Context) error {
	r.notify(ctx, "👀 Identifying relevant channels")
	var sb strings.Builder
	if r.req.SpecificChannelNames != "" {
		fmt.Fprintf(&sb, "User is looking for channels with specific names: %s", r.req.SpecificChannelNames)
		if r.req.TypesOfChannels != "" {
			fmt.Fprintf(&sb, "\nUser is also looking for channels of any name that meet the following criteria: %s", r.req.TypesOfChannels)
		}
	} else {
		fmt.Fprintf(&sb, "User is looking for channels of any name that meet the following criteria: %s", r.req.TypesOfChannels)
	}
	fmt.Fprintf(&sb, "\nThe list of slack channels is as follows: %s", r.channels)

	mcb := &genx.ModelContextBuilder{}
	mcb.PromptText("channel_filter", slackChannelFilterPrompt)
	mcb.UserText("user", sb.String())
	if _, err := r.Model.Invoke(ctx, mcb, channelListTool, &r.relevant); err != nil {
		return fmt.Errorf("slack: filter channels: %w", err)
	}
	names := make([]string, 0, len(r.relevant.Channels))
	for _, c := range r.relevant.Channels {
		names = append(names, c.Name)
	}
	r.notify(ctx, fmt.Sprintf("🎯 Relevant channels identified: [%s]. Reason: %s",
		strings.Join(names, ", "), r.relevant.Explanation))
	return nil
}

func (r *slackRun) queryChannels(ctx context.Context) ([]ChannelOutput, error) {
	outputs := make([]ChannelOutput, 0, len(r.relevant.Channels))
	for _, c := range r.relevant.Channels {
		r.notify(ctx, "📖 Querying channel "+c.Name)
		prompt := fmt.Sprintf("Retrieve the history from the slack channel with ID %q using the Slack tool available to you. "+
			"The data retrieved will be used to answer the following user query/instruction: %s", c.ID, r.query)
		res, err := r.agent.Run(ctx, prompt, r.toolObserver(ctx))
		if err != nil {
			return nil, fmt.Errorf("slack: query channel %s: %w", c.Name, err)
		}
		// Raw channel data is kept for the report; the agent's answer only
		// stands in when no tool produced output.
		data := toolOutputs(res)
		if data == "" {
			data = res.Text
		}
		outputs = append(outputs, ChannelOutput{ChannelName: c.Name, ChannelID: c.ID, Output: data})
	}
	return outputs, nil
}

func (r *slackRun) report(ctx context.Context, gathered any) (string, error) {
	r.notify(ctx, "📄 Generating a final report")
	info, err := yaml.Marshal(gathered)
	if err != nil {
		return "", err
	}
	mcb := &genx.ModelContextBuilder{}
	mcb.PromptText("report", slackReportPrompt)
	mcb.UserText("user", fmt.Sprintf("User query: %s\nInformation gathered:\n%s", r.query, info))
	reply, err := r.Model.Generator.Generate(ctx, r.Model.Name, mcb.Build())
	if err != nil {
		return "", fmt.Errorf("slack: report: %w", err)
	}
	return reply.Text, nil
}
