package albumcataloger

import (
	"testing"
)

func TestNew(t *testing.T) {
	cat, err := New(Config{
		Backend:   "ollama",
		ServerURL: "http://localhost:11434",
		Model:     "llava:13b",
		OutputDir: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if cat == nil || cat.flow == nil {
		t.Fatal("New() returned an unwired cataloger")
	}
}

func TestNewOpenAIRequiresModel(t *testing.T) {
	if _, err := New(Config{Backend: "openai", APIKey: "sk-test"}); err == nil {
		t.Error("expected an error without a model name")
	}
}

func TestGetVersion(t *testing.T) {
	if GetVersion() != Version {
		t.Errorf("GetVersion() = %q", GetVersion())
	}
}
