package di

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/mikey/inbox-sweeper/internal/factory"
	"github.com/mikey/inbox-sweeper/internal/pipeline"
	"github.com/mikey/inbox-sweeper/internal/protection"
	"github.com/mikey/inbox-sweeper/internal/session"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestBuildContainerResolvesRunner(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "inbox.jsonl")
	if err := os.WriteFile(input, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	cfgPath := writeConfig(t, fmt.Sprintf(`
llm:
  provider: openai
openai:
  api_key: sk-test
session:
  dir: %s
protection:
  domains: [example.org]
logging:
  format: console
`, filepath.Join(dir, "sessions")))

	container, err := BuildContainer(Options{ConfigFile: cfgPath, InputFile: input})
	if err != nil {
		t.Fatalf("BuildContainer: %v", err)
	}

	err = container.Invoke(func(r *pipeline.Runner, m *session.Manager, p *protection.Checker, sc factory.SenderCache) {
		defer sc.Stop()
		if r == nil || m == nil {
			t.Error("runner or session manager not built")
		}
		if ok, _ := p.IsProtected(context.Background(), "mail.example.org"); !ok {
			t.Error("configured domain not protected")
		}
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
}

func TestSessionCommandsNeedNoLLM(t *testing.T) {
	cfgPath := writeConfig(t, fmt.Sprintf("session:\n  dir: %s\n", filepath.Join(t.TempDir(), "sessions")))
	container, err := BuildContainer(Options{ConfigFile: cfgPath})
	if err != nil {
		t.Fatal(err)
	}
	if err := container.Invoke(func(m *session.Manager) {
		if status, err := m.Status(); err != nil || status != session.StatusNew {
			t.Errorf("Status = %v, %v", status, err)
		}
	}); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
}

func TestInvalidPipelineConfig(t *testing.T) {
	cfgPath := writeConfig(t, "pipeline:\n  classify_batch_size: 0\n")
	container, err := BuildContainer(Options{ConfigFile: cfgPath})
	if err != nil {
		t.Fatal(err)
	}
	if err := container.Invoke(func(*session.Manager) {}); err == nil {
		t.Error("expected invalid configuration error")
	}
}
