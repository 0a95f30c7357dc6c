// Package planner assembles an IntegrationPlan from analyzer output and a list of
// requested capabilities.
package planner

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"plugline/internal/catalog"
	"plugline/internal/domain"
	"plugline/internal/generator"
	"plugline/internal/logging"
	"plugline/internal/persist"
)

// Dir is the subtree every generated module lands in.
const Dir = "integrations"

// DuplicatePathError reports two file changes targeting the same path.
type DuplicatePathError struct {
	Path string
}

func (e *DuplicatePathError) Error() string {
	return fmt.Sprintf("plan already contains a change for %s", e.Path)
}

type Builder struct {
	Catalog   *catalog.Catalog
	Generator generator.Generator
	Logger    *zap.Logger
}

func New(cat *catalog.Catalog, gen generator.Generator, logger *zap.Logger) Builder {
	return Builder{Catalog: cat, Generator: gen, Logger: logging.OrNop(logger)}
}

// Extension is the module extension for a codebase.
func Extension(info domain.CodebaseInfo) string {
	if info.HasStaticTyping {
		return "ts"
	}
	return "js"
}

// ModulePath is the generated file path for a capability.
func ModulePath(id catalog.Capability, info domain.CodebaseInfo) string {
	return fmt.Sprintf("%s/%s.%s", Dir, id, Extension(info))
}

// Build validates ids, generates one module per capability in request order and
// finalizes the plan. Any failure discards the partial plan.
func (b Builder) Build(ctx context.Context, info domain.CodebaseInfo, ids []string, snippets map[string]string) (domain.IntegrationPlan, error) {
	logger := logging.OrNop(b.Logger)
	caps, err := b.Catalog.Parse(ids)
	if err != nil {
		return domain.IntegrationPlan{}, err
	}
	caps = uniqueCapabilities(caps)

	acc := newAccumulator()
	for _, id := range caps {
		cfg := b.Catalog.Get(id)
		logger.Info("generating integration", zap.String("capability", string(id)))
		code, err := b.Generator.Generate(ctx, cfg, info, snippets)
		if err != nil {
			return domain.IntegrationPlan{}, fmt.Errorf("generate %s: %w", id, err)
		}
		err = acc.addChange(domain.FileChange{
			Path:        ModulePath(id, info),
			Updated:     code,
			Description: fmt.Sprintf("%s integration module", cfg.Name),
		})
		if err != nil {
			return domain.IntegrationPlan{}, err
		}
		acc.plan.Dependencies = append(acc.plan.Dependencies, cfg.Dependencies...)
		for k, v := range cfg.EnvVars {
			if strings.TrimSpace(v) == "" {
				continue
			}
			acc.plan.EnvPlaceholders[k] = v
		}
		acc.plan.SetupInstructions = append(acc.plan.SetupInstructions, cfg.SetupNotes...)
		if cfg.WebOnly && !info.IsWebApp {
			acc.plan.Notes = append(acc.plan.Notes,
				fmt.Sprintf("%s targets browser applications, but this codebase was not detected as one.", cfg.Name))
		}
		acc.plan.SelectedCapabilities = append(acc.plan.SelectedCapabilities, string(id))
	}

	ext := Extension(info)
	if err := acc.addChange(domain.FileChange{
		Path:        fmt.Sprintf("%s/demo.%s", Dir, ext),
		Updated:     demoSource(caps, ext),
		Description: "Usage demo for the selected integrations",
	}); err != nil {
		return domain.IntegrationPlan{}, err
	}
	if err := acc.addChange(domain.FileChange{
		Path:        fmt.Sprintf("%s/index.%s", Dir, ext),
		Updated:     indexSource(caps, ext),
		Description: "Barrel re-exporting every integration module",
	}); err != nil {
		return domain.IntegrationPlan{}, err
	}

	plan := acc.plan
	plan.Dependencies = dedupe(plan.Dependencies)
	plan.Notes = append(plan.Notes, closingNotes(b.Catalog, caps, info)...)
	logger.Info("plan built",
		zap.Int("changes", len(plan.Changes)),
		zap.Int("dependencies", len(plan.Dependencies)),
		zap.Int("env", len(plan.EnvPlaceholders)))
	return plan, nil
}

type accumulator struct {
	plan  domain.IntegrationPlan
	paths map[string]bool
}

func newAccumulator() *accumulator {
	return &accumulator{
		plan:  domain.IntegrationPlan{EnvPlaceholders: map[string]string{}},
		paths: map[string]bool{},
	}
}

func (a *accumulator) addChange(c domain.FileChange) error {
	if a.paths[c.Path] {
		return &DuplicatePathError{Path: c.Path}
	}
	a.paths[c.Path] = true
	a.plan.Changes = append(a.plan.Changes, c)
	return nil
}

func uniqueCapabilities(caps []catalog.Capability) []catalog.Capability {
	seen := make(map[catalog.Capability]bool, len(caps))
	out := caps[:0:0]
	for _, c := range caps {
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		if seen[it] {
			continue
		}
		seen[it] = true
		out = append(out, it)
	}
	return out
}

func closingNotes(cat *catalog.Catalog, caps []catalog.Capability, info domain.CodebaseInfo) []string {
	names := make([]string, 0, len(caps))
	for _, id := range caps {
		names = append(names, cat.Get(id).Name)
	}
	notes := []string{"Selected capabilities: " + strings.Join(names, ", ")}

	lang := info.Language
	if lang == "" {
		lang = "unknown"
	}
	typing := "dynamic typing"
	if info.HasStaticTyping {
		typing = "static typing"
	}
	notes = append(notes, fmt.Sprintf("Detected language: %s (%s)", lang, typing))
	if info.Framework != "" {
		notes = append(notes, "Detected framework: "+info.Framework)
	}
	if info.IsWebApp {
		notes = append(notes, "Detected a browser-facing application.")
	}
	notes = append(notes, fmt.Sprintf("Copy %s to .env and fill in real values before running.", persist.EnvFile))
	return notes
}

func importPath(id, ext string) string {
	if ext == "ts" {
		return "./" + id
	}
	return "./" + id + ".js"
}

func identifier(id catalog.Capability) string {
	return string(id) + "Integration"
}

func demoSource(caps []catalog.Capability, ext string) string {
	var b strings.Builder
	b.WriteString("// Usage demo for the generated integrations.\n")
	for _, id := range caps {
		fmt.Fprintf(&b, "import * as %s from '%s';\n", identifier(id), importPath(string(id), ext))
	}
	b.WriteString("\nexport function listIntegrations()")
	if ext == "ts" {
		b.WriteString(": Record<string, unknown>")
	}
	b.WriteString(" {\n  return {\n")
	for _, id := range caps {
		fmt.Fprintf(&b, "    %s: %s,\n", id, identifier(id))
	}
	b.WriteString("  };\n}\n\n")
	b.WriteString("if (process.argv[1] && process.argv[1].includes('demo')) {\n")
	b.WriteString("  console.log('Loaded integrations:', Object.keys(listIntegrations()).join(', '));\n}\n")
	return b.String()
}

func indexSource(caps []catalog.Capability, ext string) string {
	var b strings.Builder
	for _, id := range caps {
		fmt.Fprintf(&b, "export * as %s from '%s';\n", id, importPath(string(id), ext))
	}
	fmt.Fprintf(&b, "export * as demo from '%s';\n", importPath("demo", ext))
	return b.String()
}
