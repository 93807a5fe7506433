package llm

import "testing"

func TestLookupModel(t *testing.T) {
	tests := []struct {
		id       string
		provider string
	}{
		{"claude-opus-4-6", "anthropic"},
		{"opus", "anthropic"},
		{"gpt-5.2", "openai"},
		{"gpt5", "openai"},
		{"claude-sonnet-4-5-20250514", "anthropic"}, // dated id, prefix match
	}
	for _, tt := range tests {
		info := LookupModel(tt.id)
		if info == nil {
			t.Errorf("LookupModel(%q) = nil", tt.id)
			continue
		}
		if info.Provider != tt.provider {
			t.Errorf("LookupModel(%q).Provider = %q, want %q", tt.id, info.Provider, tt.provider)
		}
	}

	if LookupModel("totally-unknown") != nil {
		t.Error("expected nil for unknown model")
	}
	if LookupModel("") != nil {
		t.Error("expected nil for empty model id")
	}
}

func TestContextWindowFor(t *testing.T) {
	if got := ContextWindowFor("claude-opus-4-6"); got != 200000 {
		t.Errorf("expected 200000, got %d", got)
	}
	if got := ContextWindowFor("unknown-model"); got != 128000 {
		t.Errorf("expected conservative default 128000, got %d", got)
	}
}

func TestLatestModel(t *testing.T) {
	info := LatestModel("openai")
	if info == nil || info.Provider != "openai" {
		t.Fatalf("unexpected LatestModel result: %+v", info)
	}
	if LatestModel("nonexistent") != nil {
		t.Error("expected nil for unregistered provider")
	}
}
