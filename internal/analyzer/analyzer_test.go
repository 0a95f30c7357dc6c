package analyzer

import (
	"os"
	"path/filepath"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return root
}

func TestAnalyzePrefersTypeScript(t *testing.T) {
	root := writeTree(t, map[string]string{
		"src/index.ts": "export {}",
		"a.js":         "",
		"b.js":         "",
		"c.py":         "",
		"package.json": `{"dependencies":{"express":"^4"},"devDependencies":{"typescript":"^5"}}`,
	})
	info, err := New(nil).Analyze(root)
	require.NoError(t, err)
	assert.Equal(t, TypeScript, info.Language)
	assert.True(t, info.HasStaticTyping)
	assert.Equal(t, []string{"src/index.ts"}, info.EntryPoints)
	assert.Equal(t, "express", info.Framework)
	assert.False(t, info.IsWebApp)
}

func TestAnalyzeJavaScriptWebApp(t *testing.T) {
	root := writeTree(t, map[string]string{
		"index.js":     "",
		"src/app.js":   "",
		"package.json": `{"dependencies":{"express":"1","react":"18"}}`,
	})
	info, err := New(nil).Analyze(root)
	require.NoError(t, err)
	assert.Equal(t, JavaScript, info.Language)
	assert.False(t, info.HasStaticTyping)
	// table order, not filesystem order
	assert.Equal(t, []string{"src/app.js", "index.js"}, info.EntryPoints)
	// react outranks express in the priority list
	assert.Equal(t, "react", info.Framework)
	assert.True(t, info.IsWebApp)
}

func TestAnalyzeMarkerPathMakesWebApp(t *testing.T) {
	root := writeTree(t, map[string]string{
		"main.py":           "",
		"public/index.html": "<html></html>",
	})
	info, err := New(nil).Analyze(root)
	require.NoError(t, err)
	assert.Equal(t, "python", info.Language)
	assert.True(t, info.IsWebApp)
	assert.Equal(t, []string{"main.py"}, info.EntryPoints)
}

func TestAnalyzeTieBreakIsLexicographic(t *testing.T) {
	root := writeTree(t, map[string]string{
		"a.rb": "", "b.rb": "",
		"a.go": "", "b.go": "",
	})
	info, err := New(nil).Analyze(root)
	require.NoError(t, err)
	assert.Equal(t, "go", info.Language)
}

func TestAnalyzeSkipsDependencyAndHiddenDirs(t *testing.T) {
	root := writeTree(t, map[string]string{
		"main.go":                "",
		"node_modules/x/a.js":    "",
		"node_modules/x/b.js":    "",
		".cache/c.js":            "",
		"generated/skip.py":      "",
		"generated/skip2.py":     "",
		"generated/skip3.py":     "",
		".gitignore":             "generated/\n",
		"vendor/github.com/a.rb": "",
		"vendor/github.com/b.rb": "",
		"vendor/github.com/c.rb": "",
	})
	info, err := New(nil).Analyze(root)
	require.NoError(t, err)
	assert.Equal(t, "go", info.Language)
	assert.False(t, info.HasStaticTyping)
}

func TestAnalyzeSkipsSymlinkCycles(t *testing.T) {
	root := writeTree(t, map[string]string{"src/main.rs": ""})
	if err := os.Symlink(root, filepath.Join(root, "src", "loop")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	info, err := New(nil).Analyze(root)
	require.NoError(t, err)
	assert.Equal(t, "rust", info.Language)
}

func TestAnalyzeMalformedManifestIsNoSignal(t *testing.T) {
	root := writeTree(t, map[string]string{
		"index.js":     "",
		"package.json": `{"dependencies": [`,
	})
	info, err := New(nil).Analyze(root)
	require.NoError(t, err)
	assert.Empty(t, info.Framework)
}

func TestAnalyzeEmptyTree(t *testing.T) {
	info, err := New(nil).Analyze(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, info.Language)
	assert.Empty(t, info.EntryPoints)
	assert.False(t, info.IsWebApp)
}

func TestAnalyzeMissingRoot(t *testing.T) {
	_, err := New(nil).Analyze(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestAnalyzeIsDeterministic(t *testing.T) {
	root := writeTree(t, map[string]string{
		"a.py": "", "b.rb": "", "c.go": "", "d.rs": "",
		"package.json": `{"dependencies":{"vue":"3","koa":"2"}}`,
	})
	first, err := New(nil).Analyze(root)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := New(nil).Analyze(root)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	assert.Equal(t, "vue", first.Framework)
}

func TestContextSnippetsTruncates(t *testing.T) {
	root := writeTree(t, map[string]string{
		"index.js":     "0123456789",
		"package.json": "{}",
	})
	info, err := New(nil).Analyze(root)
	require.NoError(t, err)
	snippets := ContextSnippets(root, info, 4)
	assert.Equal(t, "0123"+truncatedMarker, snippets["index.js"])
	assert.Equal(t, "{}", snippets["package.json"])
	_, ok := snippets["tsconfig.json"]
	assert.False(t, ok)
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	// "é" is two bytes; a cut at byte 2 would split it
	got := truncate("aé€b", 2)
	assert.Equal(t, "a"+truncatedMarker, got)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, "aé"+truncatedMarker, truncate("aé€b", 4))
	assert.Equal(t, "aé€"+truncatedMarker, truncate("aé€b", 6))
}
