package commands

import (
	"bytes"
	"context"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/haivivi/agentkit/cmd/agentkit/internal/config"
	"github.com/haivivi/agentkit/pkg/a2a"
	"github.com/haivivi/agentkit/pkg/planexec"
	"github.com/haivivi/agentkit/pkg/roles"
	"github.com/haivivi/agentkit/pkg/taskstore"
)

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	verbose = false
	configPath = ""
	askToken = ""
	askNoWait = false

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := runCmd(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "agentkit") {
		t.Fatalf("expected 'agentkit', got: %s", out)
	}
}

func TestVersionVerbose(t *testing.T) {
	out, err := runCmd(t, "-v", "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "platform:") {
		t.Fatalf("expected yaml, got: %s", out)
	}
}

func newAgentServer(t *testing.T, exec a2a.Executor) string {
	t.Helper()
	srv, err := a2a.NewServer(a2a.AgentCard{Name: "Test Agent"}, exec, a2a.ServerOptions{Store: taskstore.NewMemory()})
	if err != nil {
		t.Fatal(err)
	}
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		hs.Close()
		srv.Close()
	})
	return hs.URL
}

var sunny = a2a.ExecutorFunc(func(ctx context.Context, msg *a2a.Message, sink planexec.EventSink) (string, error) {
	if err := sink.Notify(ctx, "looking outside"); err != nil {
		return "", err
	}
	return "sunny in " + msg.Text(), nil
})

func TestAskStream(t *testing.T) {
	url := newAgentServer(t, sunny)
	out, err := runCmd(t, "ask", url, "Paris")
	if err != nil {
		t.Fatalf("ask: %v\n%s", err, out)
	}
	for _, want := range []string{"Test Agent", "looking outside", "sunny in Paris"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestAskNoStream(t *testing.T) {
	url := newAgentServer(t, sunny)
	out, err := runCmd(t, "ask", "--no-stream", url, "Rome")
	if err != nil {
		t.Fatalf("ask: %v\n%s", err, out)
	}
	if !strings.Contains(out, "sunny in Rome") {
		t.Errorf("output missing answer:\n%s", out)
	}
}

func TestNewAgent(t *testing.T) {
	cfg := config.Default()
	model := roles.Model{Name: "test"}
	logger := slog.Default()

	for name, card := range map[string]string{
		"research": "Web Research Agent",
		"slack":    "Slack Research Agent",
		"gitissue": "Github issue agent",
		"weather":  "Weather Assistant",
	} {
		agent, c, err := newAgent(name, cfg, model, logger)
		if err != nil {
			t.Fatalf("newAgent(%s): %v", name, err)
		}
		if agent == nil {
			t.Errorf("newAgent(%s) returned nil agent", name)
		}
		if c.Name != card {
			t.Errorf("newAgent(%s) card = %q, want %q", name, c.Name, card)
		}
		if c.URL != cfg.AgentURL() {
			t.Errorf("newAgent(%s) card url = %q", name, c.URL)
		}
	}
	if _, _, err := newAgent("nope", cfg, model, logger); err == nil {
		t.Error("expected error for unknown agent")
	}
}

func TestNewExchangerDisabled(t *testing.T) {
	ex, err := newExchanger(config.Default(), slog.Default())
	if err != nil {
		t.Fatal(err)
	}
	if ex != nil {
		t.Errorf("exchanger = %v, want nil", ex)
	}
}

func TestNewExchangerConfigured(t *testing.T) {
	cfg := config.Default()
	cfg.Exchange = config.Exchange{
		TokenURL:     "http://keycloak/token",
		ClientID:     "agent",
		ClientSecret: "s3cret",
		TargetScopes: "read write",
	}
	ex, err := newExchanger(cfg, slog.Default())
	if err != nil {
		t.Fatal(err)
	}
	if ex == nil {
		t.Fatal("expected an exchanger")
	}
}

func TestStores(t *testing.T) {
	cfg := config.Default()
	store, err := newTaskStore(cfg, slog.Default())
	if err != nil {
		t.Fatal(err)
	}
	store.Close()

	archive, err := newArchive(cfg)
	if err != nil || archive != nil {
		t.Errorf("disabled archive = %v, %v", archive, err)
	}

	cfg.Archive = config.Archive{Driver: "local", Dir: t.TempDir()}
	archive, err = newArchive(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := archive.Put(context.Background(), "a/b.json", []byte("{}")); err != nil {
		t.Error(err)
	}
}

func TestNewModel(t *testing.T) {
	m, err := newModel(config.Default(), slog.Default())
	if err != nil {
		t.Fatal(err)
	}
	if m.Name != config.DefaultModelID || m.Generator == nil {
		t.Errorf("model = %+v", m)
	}
}
