package llm

import "strings"

// ModelInfo describes a known model in the catalog.
type ModelInfo struct {
	ID            string   `json:"id"`
	Provider      string   `json:"provider"`
	DisplayName   string   `json:"display_name"`
	ContextWindow int      `json:"context_window"`
	SupportsTools bool     `json:"supports_tools"`
	Aliases       []string `json:"aliases,omitempty"`
}

// Models is the built-in model catalog.
var Models = []ModelInfo{
	{
		ID: "claude-opus-4-6", Provider: "anthropic", DisplayName: "Claude Opus 4.6",
		ContextWindow: 200000, SupportsTools: true,
		Aliases: []string{"opus", "claude-opus"},
	},
	{
		ID: "claude-sonnet-4-5", Provider: "anthropic", DisplayName: "Claude Sonnet 4.5",
		ContextWindow: 200000, SupportsTools: true,
		Aliases: []string{"sonnet", "claude-sonnet"},
	},
	{
		ID: "gpt-5.2", Provider: "openai", DisplayName: "GPT-5.2",
		ContextWindow: 1047576, SupportsTools: true,
		Aliases: []string{"gpt5"},
	},
	{
		ID: "gpt-5.2-mini", Provider: "openai", DisplayName: "GPT-5.2 Mini",
		ContextWindow: 1047576, SupportsTools: true,
		Aliases: []string{"gpt5-mini"},
	},
	{
		ID: "gemini-3-pro", Provider: "gemini", DisplayName: "Gemini 3 Pro",
		ContextWindow: 1048576, SupportsTools: true,
		Aliases: []string{"gemini"},
	},
}

// LookupModel resolves a model id or alias to its catalog entry, or nil if
// the model is unknown.
func LookupModel(id string) *ModelInfo {
	if id == "" {
		return nil
	}
	for i := range Models {
		if Models[i].ID == id {
			return &Models[i]
		}
		for _, alias := range Models[i].Aliases {
			if alias == id {
				return &Models[i]
			}
		}
	}
	// Prefix match covers dated model ids like claude-sonnet-4-5-20250514.
	for i := range Models {
		if strings.HasPrefix(id, Models[i].ID) {
			return &Models[i]
		}
	}
	return nil
}

// LatestModel returns the first catalog entry for a provider, or nil.
func LatestModel(provider string) *ModelInfo {
	for i := range Models {
		if Models[i].Provider == provider {
			return &Models[i]
		}
	}
	return nil
}

// ContextWindowFor returns the context window for a model, or a conservative
// default when the model is not in the catalog.
func ContextWindowFor(model string) int {
	if info := LookupModel(model); info != nil {
		return info.ContextWindow
	}
	return 128000
}
