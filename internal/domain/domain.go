package domain

import "sort"

// CodebaseInfo is the analyzer's classification of a working copy.
type CodebaseInfo struct {
	Language        string   `json:"language,omitempty"`
	Framework       string   `json:"framework,omitempty"`
	EntryPoints     []string `json:"entry_points"`
	IsWebApp        bool     `json:"is_web_app"`
	HasStaticTyping bool     `json:"has_static_typing"`
}

type CapabilityConfig struct {
	Name         string            `json:"name" yaml:"name"`
	Description  string            `json:"description" yaml:"description"`
	Dependencies []string          `json:"dependencies" yaml:"dependencies"`
	EnvVars      map[string]string `json:"env_vars" yaml:"env_vars"`
	SetupNotes   []string          `json:"setup_notes,omitempty" yaml:"setup_notes"`
	WebOnly      bool              `json:"web_only,omitempty" yaml:"web_only"`
}

// FileChange is one file the plan adds or modifies. A nil Original marks a new file.
type FileChange struct {
	Path        string  `json:"path"`
	Original    *string `json:"original,omitempty"`
	Updated     string  `json:"updated"`
	Description string  `json:"description"`
}

func (c FileChange) IsNew() bool { return c.Original == nil }

type IntegrationPlan struct {
	Changes              []FileChange      `json:"changes"`
	Dependencies         []string          `json:"dependencies"`
	EnvPlaceholders      map[string]string `json:"env_placeholders"`
	Notes                []string          `json:"notes"`
	SetupInstructions    []string          `json:"setup_instructions"`
	SelectedCapabilities []string          `json:"selected_capabilities"`
}

// EnvKeys returns the placeholder keys in lexicographic order.
func (p IntegrationPlan) EnvKeys() []string {
	keys := make([]string, 0, len(p.EnvPlaceholders))
	for k := range p.EnvPlaceholders {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Paths lists the change paths in plan order.
func (p IntegrationPlan) Paths() []string {
	paths := make([]string, 0, len(p.Changes))
	for _, c := range p.Changes {
		paths = append(paths, c.Path)
	}
	return paths
}

type GitCommitRecord struct {
	Message     string   `json:"message"`
	FilesStaged []string `json:"files_staged"`
	Branch      string   `json:"branch"`
	Hash        string   `json:"hash"`
}

type WorkflowState string

const (
	StateCloned           WorkflowState = "cloned"
	StateAnalyzed         WorkflowState = "analyzed"
	StatePlanned          WorkflowState = "planned"
	StateSummarized       WorkflowState = "summarized"
	StateAwaitingApproval WorkflowState = "awaiting_approval"
	StateApproved         WorkflowState = "approved"
	StateCancelled        WorkflowState = "cancelled"
	StateCommitted        WorkflowState = "committed"
	StatePublished        WorkflowState = "published"
	StatePublishFailed    WorkflowState = "publish_failed"
)

// Terminal reports whether a run may end in the state. committed is terminal
// unless a publish follows it.
func (s WorkflowState) Terminal() bool {
	switch s {
	case StateCancelled, StateCommitted, StatePublished, StatePublishFailed:
		return true
	}
	return false
}

type Run struct {
	ID           string        `json:"id"`
	Source       string        `json:"source"`
	Capabilities []string      `json:"capabilities"`
	State        WorkflowState `json:"state" enum:"cloned,analyzed,planned,summarized,awaiting_approval,approved,cancelled,committed,published,publish_failed"`
	Branch       string        `json:"branch,omitempty"`
	CommitHash   string        `json:"commit_hash,omitempty"`
	Error        string        `json:"error,omitempty"`
	CreatedAt    string        `json:"created_at" format:"date-time"`
	UpdatedAt    string        `json:"updated_at" format:"date-time"`
}

type Event struct {
	ID      int64  `json:"id"`
	TS      string `json:"ts" format:"date-time"`
	Type    string `json:"type"`
	RunID   string `json:"run_id,omitempty"`
	ActorID string `json:"actor_id"`
	Payload string `json:"payload_json"`
}
