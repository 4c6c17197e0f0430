package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/slack-go/slack"
)

func newSlackAPI(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/auth.test", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true,"user":"researcher","team":"acme"}`))
	})
	mux.HandleFunc("/conversations.list", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.Form.Get("cursor") == "" {
			w.Write([]byte(`{"ok":true,"channels":[{"id":"C1","name":"general","purpose":{"value":"company news"}}],"response_metadata":{"next_cursor":"page2"}}`))
			return
		}
		w.Write([]byte(`{"ok":true,"channels":[{"id":"C2","name":"random","purpose":{"value":""}}],"response_metadata":{"next_cursor":""}}`))
	})
	mux.HandleFunc("/conversations.history", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.Form.Get("channel") != "C1" {
			w.Write([]byte(`{"ok":false,"error":"channel_not_found"}`))
			return
		}
		if r.Form.Get("limit") != "5" {
			t.Errorf("limit = %q", r.Form.Get("limit"))
		}
		w.Write([]byte(`{"ok":true,"messages":[{"type":"message","user":"U1","text":"launch is friday","ts":"1700000000.000100"}]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestTools(t *testing.T) *Tools {
	srv := newSlackAPI(t)
	tools, err := Connect(context.Background(), "xoxb-test", nil, slack.OptionAPIURL(srv.URL+"/"))
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return tools
}

func callTool(t *testing.T, h func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]any) string {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	res, err := h(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	return res.Content[0].(mcp.TextContent).Text
}

func TestTools_Channels(t *testing.T) {
	tools := newTestTools(t)
	var chans []Channel
	if err := json.Unmarshal([]byte(callTool(t, tools.HandleChannels, nil)), &chans); err != nil {
		t.Fatal(err)
	}
	want := []Channel{
		{ID: "C1", Name: "general", Purpose: "company news"},
		{ID: "C2", Name: "random"},
	}
	if len(chans) != len(want) {
		t.Fatalf("channels = %+v", chans)
	}
	for i := range want {
		if chans[i] != want[i] {
			t.Errorf("channel %d = %+v, want %+v", i, chans[i], want[i])
		}
	}
}

func TestTools_History(t *testing.T) {
	tools := newTestTools(t)
	var msgs []Message
	out := callTool(t, tools.HandleHistory, map[string]any{"channel_id": "C1", "limit": 5.0})
	if err := json.Unmarshal([]byte(out), &msgs); err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].Text != "launch is friday" || msgs[0].User != "U1" {
		t.Errorf("messages = %+v", msgs)
	}
}

func TestTools_APIErrorIsData(t *testing.T) {
	tools := newTestTools(t)
	out := callTool(t, tools.HandleHistory, map[string]any{"channel_id": "C9"})
	var errs []map[string]string
	if err := json.Unmarshal([]byte(out), &errs); err != nil {
		t.Fatalf("output %q: %v", out, err)
	}
	if len(errs) != 1 || errs[0]["error"] != "Slack API Error: channel_not_found" {
		t.Errorf("errors = %v", errs)
	}
}

func TestTools_NotInitialized(t *testing.T) {
	tools := New(nil, nil)
	out := callTool(t, tools.HandleChannels, nil)
	if out != `[{"error":"Slack client not initialized"}]` {
		t.Errorf("output = %s", out)
	}
}
