// Package generator turns a capability descriptor into integration source code.
//
// Output is opaque text to the rest of plugline: it becomes a file's contents
// and is never parsed or validated.
package generator

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"text/template"

	"plugline/internal/domain"
)

// Generator produces integration code for one capability.
type Generator interface {
	Generate(ctx context.Context, capability domain.CapabilityConfig, info domain.CodebaseInfo, snippets map[string]string) (string, error)
}

// Func adapts a function to Generator.
type Func func(ctx context.Context, capability domain.CapabilityConfig, info domain.CodebaseInfo, snippets map[string]string) (string, error)

func (f Func) Generate(ctx context.Context, capability domain.CapabilityConfig, info domain.CodebaseInfo, snippets map[string]string) (string, error) {
	return f(ctx, capability, info, snippets)
}

const systemPrompt = `You write production-ready integration modules for existing codebases.
Reply with a single source file and nothing else.`

var userPrompt = template.Must(template.New("prompt").Parse(`Write a {{.Lang}} module that integrates {{.Cap.Name}} ({{.Cap.Description}}).
{{- if .Info.Framework}}
The project uses the {{.Info.Framework}} framework.{{end}}
{{- if .Info.IsWebApp}}
The project is a browser-facing application.{{end}}
Read configuration only from these environment variables: {{.EnvKeys}}.
Use these packages: {{.Deps}}.
Export small, well-named functions and handle errors explicitly.
{{range .Snippets}}
--- {{.Path}} ---
{{.Text}}
{{end}}`))

type snippet struct {
	Path string
	Text string
}

// Prompt renders the user prompt sent to a model for one capability.
func Prompt(capability domain.CapabilityConfig, info domain.CodebaseInfo, snippets map[string]string) (string, error) {
	lang := "JavaScript"
	if info.HasStaticTyping {
		lang = "TypeScript"
	}
	keys := make([]string, 0, len(capability.EnvVars))
	for k := range capability.EnvVars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	paths := make([]string, 0, len(snippets))
	for p := range snippets {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	ordered := make([]snippet, 0, len(paths))
	for _, p := range paths {
		ordered = append(ordered, snippet{Path: p, Text: snippets[p]})
	}
	var buf bytes.Buffer
	err := userPrompt.Execute(&buf, map[string]any{
		"Lang":     lang,
		"Cap":      capability,
		"Info":     info,
		"EnvKeys":  strings.Join(keys, ", "),
		"Deps":     strings.Join(capability.Dependencies, ", "),
		"Snippets": ordered,
	})
	if err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return buf.String(), nil
}

// StripFences returns the body of the first fenced code block, or the trimmed text
// when there is none.
func StripFences(text string) string {
	trimmed := strings.TrimSpace(text)
	start := strings.Index(trimmed, "```")
	if start < 0 {
		return trimmed + "\n"
	}
	rest := trimmed[start+3:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[nl+1:]
	} else {
		return trimmed + "\n"
	}
	if end := strings.Index(rest, "```"); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimRight(rest, " \n") + "\n"
}
