// Package catalog holds the closed set of capabilities plugline knows how to wire in.
package catalog

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"plugline/internal/domain"
)

// Capability is a lowercase capability identifier.
type Capability string

const (
	OpenAI    Capability = "openai"
	Anthropic Capability = "anthropic"
	Stripe    Capability = "stripe"
	Twilio    Capability = "twilio"
	SendGrid  Capability = "sendgrid"
	Resend    Capability = "resend"
	Supabase  Capability = "supabase"
	Clerk     Capability = "clerk"
)

// All lists every capability in display order.
var All = []Capability{OpenAI, Anthropic, Stripe, Twilio, SendGrid, Resend, Supabase, Clerk}

//go:embed catalog.yml
var builtin []byte

type Catalog struct {
	entries map[Capability]domain.CapabilityConfig
}

// UnknownCapabilityError names the requested identifiers that are not in the catalog.
type UnknownCapabilityError struct {
	Invalid   []string
	Supported []string
}

func (e *UnknownCapabilityError) Error() string {
	return fmt.Sprintf("unknown capabilities: %s (supported: %s)",
		strings.Join(e.Invalid, ", "), strings.Join(e.Supported, ", "))
}

// Load parses and validates the built-in catalog.
func Load() (*Catalog, error) {
	return FromYAML(builtin)
}

// FromYAML parses catalog data and checks it covers exactly the known capabilities.
func FromYAML(data []byte) (*Catalog, error) {
	raw := map[string]domain.CapabilityConfig{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid catalog yaml: %w", err)
	}
	c := &Catalog{entries: make(map[Capability]domain.CapabilityConfig, len(All))}
	for _, id := range All {
		cfg, ok := raw[string(id)]
		if !ok {
			return nil, fmt.Errorf("catalog missing capability %s", id)
		}
		if err := validateEntry(id, cfg); err != nil {
			return nil, err
		}
		c.entries[id] = cfg
		delete(raw, string(id))
	}
	if len(raw) > 0 {
		extra := make([]string, 0, len(raw))
		for k := range raw {
			extra = append(extra, k)
		}
		sort.Strings(extra)
		return nil, fmt.Errorf("catalog defines unsupported capabilities: %s", strings.Join(extra, ", "))
	}
	return c, nil
}

func validateEntry(id Capability, cfg domain.CapabilityConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("capability %s has empty name", id)
	}
	for _, dep := range cfg.Dependencies {
		if strings.TrimSpace(dep) == "" {
			return fmt.Errorf("capability %s has empty dependency", id)
		}
	}
	for k, v := range cfg.EnvVars {
		if strings.TrimSpace(k) == "" {
			return fmt.Errorf("capability %s has empty env var key", id)
		}
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("capability %s env var %s has empty placeholder", id, k)
		}
	}
	return nil
}

// Get returns the configuration for a capability. Parse guarantees presence.
func (c *Catalog) Get(id Capability) domain.CapabilityConfig {
	return c.entries[id]
}

// Supported returns every identifier as strings, in display order.
func (c *Catalog) Supported() []string {
	out := make([]string, 0, len(All))
	for _, id := range All {
		out = append(out, string(id))
	}
	return out
}

// Parse normalizes and validates requested identifiers. Any unknown identifier
// fails the whole request.
func (c *Catalog) Parse(ids []string) ([]Capability, error) {
	var (
		valid   []Capability
		invalid []string
	)
	for _, raw := range ids {
		id := Capability(strings.ToLower(strings.TrimSpace(raw)))
		if _, ok := c.entries[id]; !ok {
			invalid = append(invalid, raw)
			continue
		}
		valid = append(valid, id)
	}
	if len(invalid) > 0 {
		return nil, &UnknownCapabilityError{Invalid: invalid, Supported: c.Supported()}
	}
	if len(valid) == 0 {
		return nil, fmt.Errorf("at least one capability is required (supported: %s)", strings.Join(c.Supported(), ", "))
	}
	return valid, nil
}
