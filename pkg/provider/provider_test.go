package provider

import (
	"strings"
	"testing"
)

func TestBuildPromptStrict(t *testing.T) {
	chunks := []ContextChunk{{Text: "Kayıt dondurma iki dönemdir.", Source: "yönetmelik.txt"}}
	prompt := BuildPrompt("Kayıt dondurma süresi nedir?", chunks, ModeStrict)

	if !strings.Contains(prompt, "Kaynak: yönetmelik.txt") {
		t.Error("context source missing from prompt")
	}
	if !strings.Contains(prompt, "Kayıt dondurma iki dönemdir.") {
		t.Error("context text missing from prompt")
	}
	if !strings.Contains(prompt, NoContextSentinel) {
		t.Error("strict prompt does not instruct the sentinel")
	}
}

func TestBuildPromptWebForbidsSentinel(t *testing.T) {
	prompt := BuildPrompt("soru", []ContextChunk{{Text: "web sonucu", Source: "web_search_fallback"}}, ModeWeb)
	if !strings.Contains(prompt, `"`+NoContextSentinel+`" DEME`) {
		t.Error("web prompt does not forbid the sentinel")
	}
}

func TestModeString(t *testing.T) {
	if ModeStrict.String() != "strict" || ModeWeb.String() != "web" {
		t.Errorf("mode strings = %q, %q", ModeStrict.String(), ModeWeb.String())
	}
}

func TestIntentPromptQuotesInput(t *testing.T) {
	prompt := IntentPrompt(`selam "hocam"`)
	if !strings.Contains(prompt, `\"hocam\"`) {
		t.Errorf("input not quoted safely:\n%s", prompt)
	}
}
