package util

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestUploadPathPrefixesUUID(t *testing.T) {
	p := UploadPath("uploads", "../../etc/report.PDF")
	if filepath.Dir(p) != "uploads" {
		t.Fatalf("upload escaped root: %s", p)
	}
	base := filepath.Base(p)
	if !strings.HasSuffix(base, "_report.PDF") || len(base) != 36+len("_report.PDF") {
		t.Fatalf("unexpected upload name: %s", base)
	}
	if Ext(p) != "pdf" {
		t.Fatalf("unexpected ext: %s", Ext(p))
	}
}

func TestWriteJSONLinesAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "rows.jsonl")
	if err := WriteJSONLinesAtomic(path, []map[string]int{{"a": 1}, {"a": 2}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(b) != "{\"a\":1}\n{\"a\":2}\n" {
		t.Fatalf("unexpected content: %q", b)
	}
	if sum, _ := FileSHA256(path); sum != SHA256Hex(b) {
		t.Fatalf("hash mismatch")
	}
}
