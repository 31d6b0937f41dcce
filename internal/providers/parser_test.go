package providers

import "testing"

func TestParseProviderList(t *testing.T) {
	refs := ParseProviderList("OpenRouter|groq:team, ollama:all-minilm")
	if len(refs) != 3 {
		t.Fatalf("expected 3 providers got %d", len(refs))
	}
	if refs[0].Name != "openrouter" || refs[0].KeyAlias != "" {
		t.Fatalf("unexpected parse result: %+v", refs[0])
	}
	if refs[1].Name != "groq" || refs[1].KeyAlias != "team" {
		t.Fatalf("unexpected parse result: %+v", refs[1])
	}
	if refs[2].KeyAlias != "all-minilm" {
		t.Fatalf("unexpected parse result: %+v", refs[2])
	}
}

func TestParseProviderListEmptyFallsBackToMock(t *testing.T) {
	refs := ParseProviderList("  |  ")
	if len(refs) != 1 || refs[0].Name != "mock" {
		t.Fatalf("expected mock fallback, got %+v", refs)
	}
}
