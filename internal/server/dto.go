package server

import (
	"encoding/json"
	"sort"

	"plugline/internal/catalog"
	"plugline/internal/domain"
)

type AnalyzeRequest struct {
	Source string `json:"source" minLength:"1" doc:"Clone URL or local path of the repository"`
}

type PlanRequest struct {
	Source       string   `json:"source" minLength:"1" doc:"Clone URL or local path of the repository"`
	Capabilities []string `json:"capabilities" minItems:"1" doc:"Capability identifiers, in generation order"`
}

type CapabilityResponse struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Dependencies []string `json:"dependencies"`
	EnvKeys      []string `json:"env_keys"`
	WebOnly      bool     `json:"web_only"`
}

type EventResponse struct {
	ID      int64          `json:"id"`
	TS      string         `json:"ts" format:"date-time"`
	Type    string         `json:"type"`
	RunID   string         `json:"run_id,omitempty"`
	ActorID string         `json:"actor_id"`
	Payload map[string]any `json:"payload"`
}

type paginatedRuns struct {
	Items      []domain.Run `json:"items"`
	NextCursor string       `json:"next_cursor,omitempty"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

func capabilityResponse(id catalog.Capability, cfg domain.CapabilityConfig) CapabilityResponse {
	keys := make([]string, 0, len(cfg.EnvVars))
	for k := range cfg.EnvVars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return CapabilityResponse{
		ID:           string(id),
		Name:         cfg.Name,
		Description:  cfg.Description,
		Dependencies: nonNilSlice(cfg.Dependencies),
		EnvKeys:      keys,
		WebOnly:      cfg.WebOnly,
	}
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:      e.ID,
		TS:      e.TS,
		Type:    e.Type,
		RunID:   e.RunID,
		ActorID: e.ActorID,
		Payload: decodeJSONMap(e.Payload),
	}
}

func decodeJSONMap(raw string) map[string]any {
	out := map[string]any{}
	if raw == "" {
		return out
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return map[string]any{"raw": raw}
	}
	return out
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
