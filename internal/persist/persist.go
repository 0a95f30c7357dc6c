// Package persist writes an IntegrationPlan and its derived artifacts to disk.
package persist

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"plugline/internal/domain"
)

const (
	DependenciesFile = "integration-dependencies.json"
	EnvFile          = ".env.integrations.example"
	NotesFile        = "INTEGRATION_NOTES.md"
	SetupFile        = "INTEGRATION_SETUP.md"
)

// Artifacts lists the auxiliary filenames a plan may produce besides its changes.
var Artifacts = []string{DependenciesFile, EnvFile, NotesFile, SetupFile}

// Written reports the relative paths a Write call produced, in write order.
type Written struct {
	Changes   []string `json:"changes"`
	Artifacts []string `json:"artifacts"`
}

// Write stores every change under root and emits the artifacts whose source
// collection is non-empty. Existing files are overwritten.
func Write(plan domain.IntegrationPlan, root string) (Written, error) {
	var out Written
	for _, c := range plan.Changes {
		if err := writeRel(root, c.Path, []byte(c.Updated)); err != nil {
			return out, err
		}
		out.Changes = append(out.Changes, c.Path)
	}

	artifacts := []struct {
		name string
		skip bool
		body func() ([]byte, error)
	}{
		{DependenciesFile, len(plan.Dependencies) == 0, func() ([]byte, error) { return dependencyAddendum(plan.Dependencies) }},
		{EnvFile, len(plan.EnvPlaceholders) == 0, func() ([]byte, error) { return envTemplate(plan), nil }},
		{NotesFile, len(plan.Notes) == 0, func() ([]byte, error) { return bulletDoc("Integration Notes", plan.Notes), nil }},
		{SetupFile, len(plan.SetupInstructions) == 0, func() ([]byte, error) { return bulletDoc("Setup Instructions", plan.SetupInstructions), nil }},
	}
	for _, a := range artifacts {
		if a.skip {
			continue
		}
		data, err := a.body()
		if err != nil {
			return out, err
		}
		if err := writeRel(root, a.name, data); err != nil {
			return out, err
		}
		out.Artifacts = append(out.Artifacts, a.name)
	}
	return out, nil
}

func writeRel(root, rel string, data []byte) error {
	target, err := resolve(root, rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create parent for %s: %w", rel, err)
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", rel, err)
	}
	return nil
}

// resolve maps a slash-separated relative path under root, refusing anything
// that would land outside it.
func resolve(root, rel string) (string, error) {
	if rel == "" || path.IsAbs(rel) || filepath.IsAbs(rel) {
		return "", fmt.Errorf("invalid plan path %q: must be relative", rel)
	}
	clean := path.Clean(rel)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("invalid plan path %q: escapes output root", rel)
	}
	return filepath.Join(root, filepath.FromSlash(clean)), nil
}

// dependencyAddendum keeps plan order; encoding/json would sort map keys.
func dependencyAddendum(deps []string) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("{\n  \"dependencies\": {\n")
	for i, d := range deps {
		name, err := json.Marshal(d)
		if err != nil {
			return nil, fmt.Errorf("encode dependency %s: %w", d, err)
		}
		buf.WriteString("    ")
		buf.Write(name)
		buf.WriteString(": \"latest\"")
		if i < len(deps)-1 {
			buf.WriteByte(',')
		}
		buf.WriteByte('\n')
	}
	buf.WriteString("  }\n}\n")
	return buf.Bytes(), nil
}

func envTemplate(plan domain.IntegrationPlan) []byte {
	var buf bytes.Buffer
	for _, k := range plan.EnvKeys() {
		fmt.Fprintf(&buf, "%s=%s\n", k, plan.EnvPlaceholders[k])
	}
	return buf.Bytes()
}

func bulletDoc(title string, items []string) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# %s\n\n", title)
	for _, it := range items {
		fmt.Fprintf(&buf, "- %s\n", it)
	}
	return buf.Bytes()
}
