package vcs

import (
	"fmt"
	"strings"
)

type PullRequest struct {
	Title  string `json:"title"`
	Body   string `json:"body"`
	Branch string `json:"branch"`
}

// PullRequestDescription renders a reviewer-facing description for an
// integration branch.
func PullRequestDescription(branch string, capabilities []string) PullRequest {
	title := "Add integrations"
	if len(capabilities) > 0 {
		title = "Add integrations: " + strings.Join(capabilities, ", ")
	}
	var b strings.Builder
	b.WriteString("## Summary\n\n")
	fmt.Fprintf(&b, "Adds generated integration modules on `%s`.\n\n", branch)
	if len(capabilities) > 0 {
		b.WriteString("## Capabilities\n\n")
		for _, c := range capabilities {
			fmt.Fprintf(&b, "- %s\n", c)
		}
		b.WriteString("\n")
	}
	b.WriteString("## Checklist\n\n")
	b.WriteString("- [ ] Install the dependencies listed in `integration-dependencies.json`\n")
	b.WriteString("- [ ] Fill in real values from `.env.integrations.example`\n")
	b.WriteString("- [ ] Review `INTEGRATION_NOTES.md`\n")
	return PullRequest{Title: title, Body: b.String(), Branch: branch}
}
