package util

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", path, err)
	}
	return nil
}

func SafeJoin(root, name string) string {
	return filepath.Join(root, filepath.Base(name))
}

// UploadPath returns a collision-free destination for an uploaded file: <root>/<uuid>_<base name>.
func UploadPath(root, name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	return filepath.Join(root, uuid.NewString()+"_"+base)
}

// Ext returns the lowercased extension of path without the dot.
func Ext(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}
