package workflow

import (
	"fmt"
	"io"
	"strings"

	"plugline/internal/domain"
)

// Display caps for the plan summary.
const (
	MaxSummaryFiles = 10
	MaxSummaryDeps  = 5
	MaxSummaryEnv   = 5
)

// WriteSummary prints a capped view of plan. The plan itself is not touched.
func WriteSummary(w io.Writer, plan domain.IntegrationPlan) {
	fmt.Fprintln(w, "Integration plan")
	if len(plan.SelectedCapabilities) > 0 {
		fmt.Fprintf(w, "  Capabilities: %s\n", strings.Join(plan.SelectedCapabilities, ", "))
	}

	fmt.Fprintf(w, "\nFiles (%d):\n", len(plan.Changes))
	for i, c := range plan.Changes {
		if i == MaxSummaryFiles {
			fmt.Fprintf(w, "  ...and %d more\n", len(plan.Changes)-MaxSummaryFiles)
			break
		}
		marker := "+"
		if !c.IsNew() {
			marker = "~"
		}
		fmt.Fprintf(w, "  %s %s\n", marker, c.Path)
	}

	writeCapped(w, "Dependencies", plan.Dependencies, MaxSummaryDeps)
	writeCapped(w, "Environment variables", plan.EnvKeys(), MaxSummaryEnv)
}

func writeCapped(w io.Writer, title string, items []string, limit int) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s (%d):\n", title, len(items))
	for i, it := range items {
		if i == limit {
			fmt.Fprintf(w, "  ...and %d more\n", len(items)-limit)
			return
		}
		fmt.Fprintf(w, "  - %s\n", it)
	}
}

// DetailBatchSize is how many file changes the detail review shows per page.
const DetailBatchSize = 3

func writeChange(w io.Writer, c domain.FileChange) {
	kind := "new file"
	if !c.IsNew() {
		kind = "modified"
	}
	fmt.Fprintf(w, "\n=== %s (%s) ===\n", c.Path, kind)
	if c.Description != "" {
		fmt.Fprintf(w, "%s\n\n", c.Description)
	}
	fmt.Fprint(w, c.Updated)
	if !strings.HasSuffix(c.Updated, "\n") {
		fmt.Fprintln(w)
	}
}
