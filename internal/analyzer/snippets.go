package analyzer

import (
	"os"
	"path/filepath"
	"unicode/utf8"

	"plugline/internal/domain"
)

const truncatedMarker = "\n... (truncated)"

var contextFiles = []string{manifestFile, "tsconfig.json", ".env.example"}

// ContextSnippets returns entry points and well-known project files keyed by relative
// path, each cut to maxBytes. Unreadable files are left out.
func ContextSnippets(root string, info domain.CodebaseInfo, maxBytes int) map[string]string {
	out := map[string]string{}
	candidates := append(append([]string{}, info.EntryPoints...), contextFiles...)
	for _, rel := range candidates {
		if _, seen := out[rel]; seen {
			continue
		}
		data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil {
			continue
		}
		out[rel] = truncate(string(data), maxBytes)
	}
	return out
}

// truncate cuts s to at most maxBytes without splitting a rune.
func truncate(s string, maxBytes int) string {
	if maxBytes <= 0 || len(s) <= maxBytes {
		return s
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + truncatedMarker
}
