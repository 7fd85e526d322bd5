package helpers

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const sanRegexStr = `[\/:*?"><|]`

var sanRegex = regexp.MustCompile(sanRegexStr)

// Sanitise cleans a filename by replacing invalid characters.
func Sanitise(filename string) string {
	san := sanRegex.ReplaceAllString(filename, "_")
	return strings.TrimSpace(san)
}

// TruncateRunes shortens s to at most limit runes.
func TruncateRunes(s string, limit int) string {
	runes := []rune(s)
	if limit > 0 && len(runes) > limit {
		return string(runes[:limit])
	}
	return s
}

// MakeDirs creates directories recursively.
func MakeDirs(path string) error {
	return os.MkdirAll(path, 0755)
}

// FileExists checks if a file (not directory) exists at the given path.
func FileExists(path string) (bool, error) {
	f, err := os.Stat(path)
	if err == nil {
		return !f.IsDir(), nil
	} else if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// ValidatePath checks that a path does not contain dangerous characters.
func ValidatePath(path string) error {
	if strings.ContainsAny(path, "\x00\n\r") {
		return fmt.Errorf("path contains invalid characters")
	}
	return nil
}

// StemPath returns path without its extension.
func StemPath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path))
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
