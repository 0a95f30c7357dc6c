package generator

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"plugline/internal/domain"
)

// Stub renders a deterministic client scaffold without calling a model.
type Stub struct{}

func (Stub) Generate(ctx context.Context, capability domain.CapabilityConfig, info domain.CodebaseInfo, _ map[string]string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	keys := make([]string, 0, len(capability.EnvVars))
	for k := range capability.EnvVars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "// %s integration: %s\n", capability.Name, capability.Description)
	for _, dep := range capability.Dependencies {
		fmt.Fprintf(&b, "// requires %s\n", dep)
	}
	b.WriteString("\n")
	if info.HasStaticTyping {
		b.WriteString("export interface Config {\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "  %s: string;\n", k)
		}
		b.WriteString("}\n\nexport function loadConfig(): Config {\n")
	} else {
		b.WriteString("export function loadConfig() {\n")
	}
	b.WriteString("  const config = {\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "    %s: process.env.%s ?? '',\n", k, k)
	}
	b.WriteString("  };\n")
	b.WriteString("  for (const [key, value] of Object.entries(config)) {\n")
	fmt.Fprintf(&b, "    if (!value) throw new Error(`%s: missing ${key}`);\n", capability.Name)
	b.WriteString("  }\n  return config;\n}\n")
	return b.String(), nil
}
