package util

import (
	"strings"
	"testing"
)

func TestDisplaySnippetFlattensAndClips(t *testing.T) {
	out := DisplaySnippet("Hello\x00   world \n\t again", 11)
	if out != "Hello world..." {
		t.Fatalf("unexpected snippet: %q", out)
	}
}

func TestSegmentPreviewPicksMatchingSentence(t *testing.T) {
	seg := "Invoice 1042 was issued to Acme. The total amount due is 310 EUR. Shipping notes follow."
	out := SegmentPreview(seg, "Extract the amount due for each invoice", 200)
	if !strings.Contains(out, "amount due") {
		t.Fatalf("expected amount sentence in preview, got %q", out)
	}
	if strings.Contains(out, "Shipping") {
		t.Fatalf("unrelated sentence leaked into preview: %q", out)
	}
}
