package session

import (
	"path/filepath"
	"testing"
)

func TestMemoryProvider(t *testing.T) {
	p := NewMemory()
	if p.Token() != "" {
		t.Fatalf("new provider has token %q", p.Token())
	}
	_ = p.SetToken("abc")
	if p.Token() != "abc" {
		t.Fatalf("token = %q, want abc", p.Token())
	}
	_ = p.Clear()
	if p.Token() != "" {
		t.Fatalf("token after clear = %q", p.Token())
	}
}

func TestFileProviderSurvivesReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "token")

	p, err := NewFile(path)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	if err := p.SetToken("jwt-token"); err != nil {
		t.Fatalf("SetToken: %v", err)
	}

	reloaded, err := NewFile(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Token() != "jwt-token" {
		t.Fatalf("reloaded token = %q", reloaded.Token())
	}

	if err := reloaded.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	again, err := NewFile(path)
	if err != nil {
		t.Fatalf("reload after clear: %v", err)
	}
	if again.Token() != "" {
		t.Fatalf("token after clear = %q", again.Token())
	}
	if err := again.Clear(); err != nil {
		t.Fatalf("clearing a missing file should be a no-op: %v", err)
	}
}
