package genx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/genai"
)

var _ Generator = (*GeminiGenerator)(nil)

// GeminiGenerator implements Generator using Google Gemini API.
type GeminiGenerator struct {
	Client *genai.Client `json:"-"`

	InvokeParams   *ModelParams `json:"invoke_params,omitzero"`
	GenerateParams *ModelParams `json:"generate_params,omitzero"`

	// Model should not start with "models/"
	Model string `json:"model"`
}

func (g *GeminiGenerator) Invoke(ctx context.Context, _ string, mctx ModelContext, fn *FuncTool) (Usage, *FuncCall, error) {
	cfg, contents, err := g.convModelContext(mctx, g.InvokeParams, false)
	if err != nil {
		return Usage{}, nil, err
	}
	cfg.ResponseMIMEType = "application/json"
	cfg.ResponseSchema = geminiConvSchema(fn.Argument)
	resp, err := g.generate(ctx, contents, cfg)
	if err != nil {
		return Usage{}, nil, err
	}
	usage := geminiConvUsage(resp.UsageMetadata)
	text, _, err := geminiCandidate(resp, usage)
	if err != nil {
		return usage, nil, err
	}
	if text == "" {
		return usage, nil, ErrNoAnswer
	}
	return usage, fn.NewFuncCall(text), nil
}

func (g *GeminiGenerator) Generate(ctx context.Context, _ string, mctx ModelContext) (*Reply, error) {
	cfg, contents, err := g.convModelContext(mctx, g.GenerateParams, true)
	if err != nil {
		return nil, err
	}
	resp, err := g.generate(ctx, contents, cfg)
	if err != nil {
		return nil, err
	}
	usage := geminiConvUsage(resp.UsageMetadata)
	text, calls, err := geminiCandidate(resp, usage)
	if err != nil {
		return nil, err
	}
	reply := &Reply{Text: text, Usage: usage}
	for _, fc := range calls {
		b, _ := json.Marshal(fc.Args)
		id := fc.ID
		if id == "" {
			id = fc.Name
		}
		reply.ToolCalls = append(reply.ToolCalls, &ToolCall{
			ID:       id,
			FuncCall: bindFuncCall(mctx, fc.Name, string(b)),
		})
	}
	if reply.Text == "" && len(reply.ToolCalls) == 0 {
		return nil, ErrNoAnswer
	}
	return reply, nil
}

func (g *GeminiGenerator) generate(ctx context.Context, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	resp, err := g.Client.Models.GenerateContent(ctx, g.Model, contents, cfg)
	if err != nil {
		var e *apierror.APIError
		if errors.As(err, &e) {
			err = e.Unwrap()
		}
		return nil, err
	}
	return resp, nil
}

func geminiCandidate(resp *genai.GenerateContentResponse, usage Usage) (string, []*genai.FunctionCall, error) {
	if len(resp.Candidates) == 0 {
		return "", nil, fmt.Errorf("no candidates")
	}
	t := resp.Candidates[0]
	switch t.FinishReason {
	case genai.FinishReasonStop, genai.FinishReasonUnspecified, "":
	case genai.FinishReasonMaxTokens:
		return "", nil, Truncated(usage)
	case genai.FinishReasonSafety:
		var cats []string
		for _, sr := range t.SafetyRatings {
			if sr.Blocked {
				cats = append(cats, string(sr.Category))
			}
		}
		return "", nil, Blocked(usage, "blocked by "+strings.Join(cats, ", "))
	default:
		return "", nil, fmt.Errorf("unexpected finish reason: %s", t.FinishReason)
	}
	if t.Content == nil {
		return "", nil, nil
	}
	var (
		sb    strings.Builder
		calls []*genai.FunctionCall
	)
	for _, p := range t.Content.Parts {
		switch {
		case p.Text != "":
			sb.WriteString(p.Text)
		case p.FunctionCall != nil:
			calls = append(calls, p.FunctionCall)
		}
	}
	return sb.String(), calls, nil
}

func geminiConvMessage(last *genai.Content, msg *Message) (*genai.Content, error) {
	var (
		role  string
		parts []*genai.Part
	)
	switch t := msg.Payload.(type) {
	default:
		return nil, fmt.Errorf("unexpected message type: %T", t)
	case Text:
		switch msg.Role {
		default:
			return nil, fmt.Errorf("mismatched role and type: role=%s, type=%T", msg.Role, msg.Payload)
		case RoleUser:
			role = "user"
		case RoleModel:
			role = "model"
		}
		parts = append(parts, genai.NewPartFromText(string(t)))
	case *ToolCall:
		role = "model"
		var args map[string]any
		if err := json.Unmarshal([]byte(t.FuncCall.Arguments), &args); err != nil {
			args = map[string]any{"text": t.FuncCall.Arguments}
		}
		parts = append(parts, genai.NewPartFromFunctionCall(t.FuncCall.Name, args))
	case *ToolResult:
		role = "user"
		var result map[string]any
		if err := json.Unmarshal([]byte(t.Result), &result); err != nil {
			result = map[string]any{"text": t.Result}
		}
		parts = append(parts, genai.NewPartFromFunctionResponse(toolNameFromResult(last, t.ID), result))
	}
	if last == nil || last.Role != role {
		return &genai.Content{
			Role:  role,
			Parts: parts,
		}, nil
	}
	last.Parts = append(last.Parts, parts...)
	return nil, nil
}

// toolNameFromResult finds the function name of the call a result answers.
// Gemini matches responses by name rather than id.
func toolNameFromResult(last *genai.Content, id string) string {
	if last == nil {
		return id
	}
	for _, p := range last.Parts {
		if p.FunctionCall != nil && (p.FunctionCall.ID == id || p.FunctionCall.Name == id) {
			return p.FunctionCall.Name
		}
	}
	for i := len(last.Parts) - 1; i >= 0; i-- {
		if fc := last.Parts[i].FunctionCall; fc != nil {
			return fc.Name
		}
	}
	return id
}

func (g *GeminiGenerator) convModelContext(mctx ModelContext, mp *ModelParams, withTools bool) (*genai.GenerateContentConfig, []*genai.Content, error) {
	cfg := genai.GenerateContentConfig{}
	prompts := []*genai.Part{}
	for p := range mctx.Prompts() {
		prompts = append(prompts, genai.NewPartFromText(p.Text))
	}
	if len(prompts) > 0 {
		cfg.SystemInstruction = &genai.Content{Parts: prompts}
	}
	if p := mctx.Params(); p != nil {
		mp = p
	}
	if mp != nil {
		if mp.MaxTokens > 0 {
			cfg.MaxOutputTokens = int32(mp.MaxTokens)
		}
		if mp.Temperature > 0 {
			cfg.Temperature = genai.Ptr(mp.Temperature)
		}
		if mp.TopP > 0 {
			cfg.TopP = genai.Ptr(mp.TopP)
		}
	}

	if withTools {
		var decls []*genai.FunctionDeclaration
		for t := range mctx.Tools() {
			switch t := t.(type) {
			case *FuncTool:
				decls = append(decls, &genai.FunctionDeclaration{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  geminiConvSchema(t.Argument),
				})
			default:
				return nil, nil, fmt.Errorf("unexpected tool type: %T", t)
			}
		}
		if len(decls) > 0 {
			cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
		}
	}

	var (
		contents []*genai.Content
		last     *genai.Content
	)
	for msg := range mctx.Messages() {
		c, err := geminiConvMessage(last, msg)
		if err != nil {
			return nil, nil, err
		}
		if c != nil {
			contents = append(contents, c)
			last = c
		}
	}
	if len(contents) == 0 {
		return nil, nil, fmt.Errorf("no contents")
	}
	return &cfg, contents, nil
}

func geminiConvSchema(schema *jsonschema.Schema) *genai.Schema {
	if schema == nil {
		return nil
	}

	enums := make([]string, 0, len(schema.Enum))
	for _, v := range schema.Enum {
		enums = append(enums, fmt.Sprintf("%v", v))
	}

	gs := genai.Schema{
		Format:      schema.Format,
		Description: schema.Description,
		Enum:        enums,
		Items:       geminiConvSchema(schema.Items),
		Required:    schema.Required,
	}
	if n := len(schema.Properties); n > 0 {
		gs.Properties = make(map[string]*genai.Schema, n)
		for k, prop := range schema.Properties {
			gs.Properties[k] = geminiConvSchema(prop)
		}
	}
	typ := schema.Type
	for _, t := range schema.Types {
		if t == "null" {
			gs.Nullable = genai.Ptr(true)
		} else if typ == "" {
			typ = t
		}
	}
	switch typ {
	case "object":
		gs.Type = genai.TypeObject
	case "array":
		gs.Type = genai.TypeArray
	case "string":
		gs.Type = genai.TypeString
	case "number":
		gs.Type = genai.TypeNumber
	case "integer":
		gs.Type = genai.TypeInteger
	case "boolean":
		gs.Type = genai.TypeBoolean
	}
	return &gs
}

func geminiConvUsage(usage *genai.GenerateContentResponseUsageMetadata) Usage {
	if usage == nil {
		return Usage{}
	}
	return Usage{
		PromptTokenCount:        int64(usage.PromptTokenCount),
		CachedContentTokenCount: int64(usage.CachedContentTokenCount),
		GeneratedTokenCount:     int64(usage.CandidatesTokenCount),
	}
}
