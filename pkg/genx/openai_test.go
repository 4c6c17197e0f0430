package genx

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

func newTestOpenAI(t *testing.T, handler func(body map[string]any) string) *OpenAIGenerator {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		var body map[string]any
		if err := json.Unmarshal(b, &body); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, handler(body))
	}))
	t.Cleanup(srv.Close)
	client := openai.NewClient(
		option.WithAPIKey("test"),
		option.WithBaseURL(srv.URL+"/"),
		option.WithMaxRetries(0),
	)
	return &OpenAIGenerator{Client: &client, Model: "test-model", SupportJSONOutput: true, SupportToolCalls: true}
}

func completion(message string, finish string) string {
	return `{"id":"c1","object":"chat.completion","created":1,"model":"test-model",` +
		`"choices":[{"index":0,"finish_reason":"` + finish + `","message":` + message + `}],` +
		`"usage":{"prompt_tokens":5,"completion_tokens":2,"total_tokens":7}}`
}

func TestOpenAIGenerator_GenerateText(t *testing.T) {
	g := newTestOpenAI(t, func(body map[string]any) string {
		if body["model"] != "test-model" {
			t.Errorf("model = %v", body["model"])
		}
		return completion(`{"role":"assistant","content":"hello there"}`, "stop")
	})
	var mcb ModelContextBuilder
	mcb.PromptText("system", "be nice")
	mcb.UserText("", "hi")
	reply, err := g.Generate(context.Background(), "m", mcb.Build())
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if reply.Text != "hello there" {
		t.Errorf("Text = %q", reply.Text)
	}
	if reply.Usage.PromptTokenCount != 5 || reply.Usage.GeneratedTokenCount != 2 {
		t.Errorf("Usage = %+v", reply.Usage)
	}
}

func TestOpenAIGenerator_GenerateToolCalls(t *testing.T) {
	g := newTestOpenAI(t, func(body map[string]any) string {
		tools, _ := body["tools"].([]any)
		if len(tools) != 1 {
			t.Errorf("tools = %v", body["tools"])
		}
		return completion(`{"role":"assistant","content":"","tool_calls":[{"id":"call_1","type":"function","function":{"name":"test_tool","arguments":"{\"name\":\"x\"}"}}]}`, "tool_calls")
	})
	tool := MustNewFuncTool[TestArg]("test_tool", "A test tool")
	var mcb ModelContextBuilder
	mcb.UserText("", "use the tool")
	mcb.AddTool(tool)
	reply, err := g.Generate(context.Background(), "m", mcb.Build())
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if !reply.HasToolCalls() {
		t.Fatal("expected tool calls")
	}
	call := reply.ToolCalls[0]
	if call.ID != "call_1" || call.FuncCall.Name != "test_tool" {
		t.Errorf("call = %+v", call)
	}
	res, err := call.FuncCall.Invoke(context.Background())
	if err != nil {
		t.Fatalf("bound call should invoke: %v", err)
	}
	if res.(*TestArg).Name != "x" {
		t.Errorf("res = %+v", res)
	}
}

func TestOpenAIGenerator_Truncated(t *testing.T) {
	g := newTestOpenAI(t, func(map[string]any) string {
		return completion(`{"role":"assistant","content":"partial"}`, "length")
	})
	var mcb ModelContextBuilder
	mcb.UserText("", "hi")
	_, err := g.Generate(context.Background(), "m", mcb.Build())
	var st *State
	if !errors.As(err, &st) || st.Status() != StatusTruncated {
		t.Errorf("err = %v, want truncated state", err)
	}
}

func TestOpenAIGenerator_InvokeJSONOutput(t *testing.T) {
	g := newTestOpenAI(t, func(body map[string]any) string {
		rf, _ := body["response_format"].(map[string]any)
		if rf["type"] != "json_schema" {
			t.Errorf("response_format = %v", body["response_format"])
		}
		if _, ok := body["tools"]; ok {
			t.Error("tools must not be sent with json_schema output")
		}
		return completion(`{"role":"assistant","content":"{\"name\":\"judge\",\"value\":1}"}`, "stop")
	})
	var mcb ModelContextBuilder
	mcb.UserText("", "answer")
	mcb.AddTool(MustNewFuncTool[TestArg]("other", "other"))
	_, call, err := g.Invoke(context.Background(), "m", mcb.Build(), MustNewFuncTool[TestArg]("answer", "the answer"))
	if err != nil {
		t.Fatalf("Invoke error: %v", err)
	}
	var arg TestArg
	if err := call.Unmarshal(&arg); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if arg.Name != "judge" {
		t.Errorf("arg = %+v", arg)
	}
}

func TestOpenAIGenerator_InvokeToolCalls(t *testing.T) {
	g := newTestOpenAI(t, func(body map[string]any) string {
		return completion(`{"role":"assistant","content":"","tool_calls":[{"id":"c","type":"function","function":{"name":"answer","arguments":"{\"value\":3}"}}]}`, "tool_calls")
	})
	g.SupportJSONOutput = false
	var mcb ModelContextBuilder
	mcb.UserText("", "answer")
	_, call, err := g.Invoke(context.Background(), "m", mcb.Build(), MustNewFuncTool[TestArg]("answer", "the answer"))
	if err != nil {
		t.Fatalf("Invoke error: %v", err)
	}
	var arg TestArg
	if err := call.Unmarshal(&arg); err != nil {
		t.Fatal(err)
	}
	if arg.Value != 3 {
		t.Errorf("arg = %+v", arg)
	}
}

func TestFormatOpenAISchema(t *testing.T) {
	type Opt struct {
		Need  string `json:"need"`
		Maybe string `json:"maybe,omitempty"`
	}
	tool := MustNewFuncTool[Opt]("o", "o")
	s := FormatOpenAISchema(tool.Argument.CloneSchemas())
	if len(s.Required) != 2 {
		t.Errorf("Required = %v, want both fields", s.Required)
	}
	if s.AdditionalProperties == nil {
		t.Error("AdditionalProperties should be set")
	}
}
