package persist

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plugline/internal/domain"
)

func samplePlan() domain.IntegrationPlan {
	return domain.IntegrationPlan{
		Changes: []domain.FileChange{
			{Path: "integrations/openai.ts", Updated: "export const a = 1;\n"},
			{Path: "integrations/index.ts", Updated: "export * as openai from './openai';\n"},
		},
		Dependencies:    []string{"openai", "dotenv"},
		EnvPlaceholders: map[string]string{"OPENAI_MODEL": "gpt-4o-mini", "OPENAI_API_KEY": "sk"},
		Notes:           []string{"Selected capabilities: OpenAI"},
	}
}

func TestWriteRoundTrip(t *testing.T) {
	root := t.TempDir()
	plan := samplePlan()
	written, err := Write(plan, root)
	require.NoError(t, err)
	assert.Equal(t, plan.Paths(), written.Changes)
	for _, c := range plan.Changes {
		got, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(c.Path)))
		require.NoError(t, err)
		assert.Equal(t, c.Updated, string(got))
	}
}

func TestWriteArtifacts(t *testing.T) {
	root := t.TempDir()
	written, err := Write(samplePlan(), root)
	require.NoError(t, err)
	assert.Equal(t, []string{DependenciesFile, EnvFile, NotesFile}, written.Artifacts)

	_, err = os.Stat(filepath.Join(root, SetupFile))
	assert.True(t, os.IsNotExist(err))

	notes, err := os.ReadFile(filepath.Join(root, NotesFile))
	require.NoError(t, err)
	assert.Equal(t, "# Integration Notes\n\n- Selected capabilities: OpenAI\n", string(notes))

	env, err := os.ReadFile(filepath.Join(root, EnvFile))
	require.NoError(t, err)
	assert.Equal(t, "OPENAI_API_KEY=sk\nOPENAI_MODEL=gpt-4o-mini\n", string(env))

	raw, err := os.ReadFile(filepath.Join(root, DependenciesFile))
	require.NoError(t, err)
	var manifest struct {
		Dependencies map[string]string `json:"dependencies"`
	}
	require.NoError(t, json.Unmarshal(raw, &manifest))
	assert.Equal(t, map[string]string{"openai": "latest", "dotenv": "latest"}, manifest.Dependencies)
	assert.Less(t, strings.Index(string(raw), "openai"), strings.Index(string(raw), "dotenv"))
}

func TestWriteEmptyPlanProducesNothing(t *testing.T) {
	root := t.TempDir()
	written, err := Write(domain.IntegrationPlan{}, root)
	require.NoError(t, err)
	assert.Empty(t, written.Changes)
	assert.Empty(t, written.Artifacts)
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWriteOverwrites(t *testing.T) {
	root := t.TempDir()
	plan := samplePlan()
	_, err := Write(plan, root)
	require.NoError(t, err)
	plan.Changes[0].Updated = "export const a = 2;\n"
	_, err = Write(plan, root)
	require.NoError(t, err)
	got, err := os.ReadFile(filepath.Join(root, "integrations", "openai.ts"))
	require.NoError(t, err)
	assert.Equal(t, "export const a = 2;\n", string(got))
}

func TestWriteRejectsEscapingPaths(t *testing.T) {
	for _, p := range []string{"../evil.js", "/etc/passwd", "a/../../b", ""} {
		plan := domain.IntegrationPlan{Changes: []domain.FileChange{{Path: p, Updated: "x"}}}
		_, err := Write(plan, t.TempDir())
		assert.Error(t, err, p)
	}
}
