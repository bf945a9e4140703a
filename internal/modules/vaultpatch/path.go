package vaultpatch

import (
	"fmt"
	"path/filepath"
	"strings"

	apperr "github.com/yungbote/tutorgraph-backend/internal/pkg/errors"
)

// ResolveVaultPath maps a vault-relative path onto the filesystem and
// returns the absolute path plus its cleaned slash form. Absolute paths,
// NUL bytes and anything resolving outside vaultRoot are rejected.
func ResolveVaultPath(vaultRoot, filePath string) (abs string, rel string, err error) {
	unsafe := func(reason string) error {
		return apperr.Validation("unsafe_file_path",
			fmt.Sprintf("unsafe file path %q: %s", filePath, reason),
			map[string]any{"file_path": filePath})
	}
	if strings.TrimSpace(filePath) == "" {
		return "", "", unsafe("empty")
	}
	if strings.ContainsRune(filePath, 0) {
		return "", "", unsafe("contains NUL byte")
	}
	if filepath.IsAbs(filePath) || strings.HasPrefix(filePath, "/") || strings.HasPrefix(filePath, `\`) || filepath.VolumeName(filePath) != "" {
		return "", "", unsafe("absolute")
	}

	root, err := filepath.Abs(vaultRoot)
	if err != nil {
		return "", "", fmt.Errorf("resolve vault root: %w", err)
	}
	abs = filepath.Join(root, filepath.FromSlash(filePath))
	r, err := filepath.Rel(root, abs)
	if err != nil || r == "." || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", "", unsafe("outside vault")
	}
	return abs, filepath.ToSlash(r), nil
}
