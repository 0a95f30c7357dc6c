// Package analyzer classifies a working copy: dominant language, framework,
// entry points and whether it looks like a browser-facing application.
package analyzer

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
	"go.uber.org/zap"

	"plugline/internal/domain"
	"plugline/internal/logging"
)

const (
	TypeScript = "typescript"
	JavaScript = "javascript"
)

type language struct {
	name       string
	extensions []string
}

var languages = []language{
	{TypeScript, []string{".ts", ".tsx", ".mts", ".cts"}},
	{JavaScript, []string{".js", ".jsx", ".mjs", ".cjs"}},
	{"python", []string{".py"}},
	{"go", []string{".go"}},
	{"ruby", []string{".rb"}},
	{"java", []string{".java"}},
	{"kotlin", []string{".kt", ".kts"}},
	{"php", []string{".php"}},
	{"rust", []string{".rs"}},
	{"csharp", []string{".cs"}},
	{"swift", []string{".swift"}},
}

var extensionLanguage = func() map[string]string {
	m := map[string]string{}
	for _, l := range languages {
		for _, ext := range l.extensions {
			m[ext] = l.name
		}
	}
	return m
}()

var entryPointCandidates = map[string][]string{
	TypeScript: {"src/index.ts", "src/main.ts", "src/app.ts", "src/server.ts", "src/index.tsx", "src/main.tsx", "index.ts", "main.ts", "app.ts", "server.ts"},
	JavaScript: {"src/index.js", "src/main.js", "src/app.js", "src/server.js", "src/index.jsx", "index.js", "main.js", "app.js", "server.js"},
	"python":   {"main.py", "app.py", "manage.py", "wsgi.py", "src/main.py"},
	"go":       {"main.go", "cmd/main.go"},
	"ruby":     {"config.ru", "app.rb", "main.rb"},
	"java":     {"src/main/java/Main.java", "Main.java"},
	"php":      {"index.php", "public/index.php"},
	"rust":     {"src/main.rs", "src/lib.rs"},
}

// Checked in order; the first framework present in package.json wins.
var frameworkPriority = []string{
	"next", "nuxt", "@angular/core", "@sveltejs/kit", "svelte", "vue", "react",
	"@nestjs/core", "express", "fastify", "koa", "hono",
}

var webFrameworks = map[string]bool{
	"next": true, "nuxt": true, "@angular/core": true, "@sveltejs/kit": true,
	"svelte": true, "vue": true, "react": true,
}

var webMarkers = []string{
	"public/index.html", "index.html", "src/App.tsx", "src/App.jsx", "src/app", "pages",
	"app/page.tsx", "vite.config.ts", "vite.config.js", "next.config.js", "next.config.mjs",
}

var skippedDirs = map[string]bool{
	"node_modules": true, "bower_components": true, "vendor": true, "dist": true, "build": true,
	"out": true, "coverage": true, "target": true, "__pycache__": true, "venv": true, "env": true,
}

const manifestFile = "package.json"

type Analyzer struct {
	Logger *zap.Logger
}

func New(logger *zap.Logger) Analyzer {
	return Analyzer{Logger: logging.OrNop(logger)}
}

// Analyze classifies the tree rooted at root. Only an unreadable root is an error;
// everything else missing or malformed counts as no signal.
func (a Analyzer) Analyze(root string) (domain.CodebaseInfo, error) {
	logger := logging.OrNop(a.Logger)
	st, err := os.Stat(root)
	if err != nil {
		return domain.CodebaseInfo{}, fmt.Errorf("analyze %s: %w", root, err)
	}
	if !st.IsDir() {
		return domain.CodebaseInfo{}, fmt.Errorf("analyze %s: not a directory", root)
	}

	counts := a.countFiles(root, loadIgnore(root))
	lang, typed := dominantLanguage(counts)
	info := domain.CodebaseInfo{
		Language:        lang,
		HasStaticTyping: typed,
		EntryPoints:     entryPoints(root, lang),
	}
	info.Framework = detectFramework(root, logger)
	info.IsWebApp = isWebApp(root, info.Framework)
	logger.Debug("analyzed codebase",
		zap.String("root", root),
		zap.String("language", info.Language),
		zap.String("framework", info.Framework),
		zap.Bool("web_app", info.IsWebApp))
	return info, nil
}

// countFiles walks with an explicit stack and never follows symlinks.
func (a Analyzer) countFiles(root string, gi *ignore.GitIgnore) map[string]int {
	logger := logging.OrNop(a.Logger)
	counts := map[string]int{}
	stack := []string{""}
	for len(stack) > 0 {
		rel := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		entries, err := os.ReadDir(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil {
			logger.Debug("skip unreadable directory", zap.String("dir", rel), zap.Error(err))
			continue
		}
		for _, e := range entries {
			if e.Type()&fs.ModeSymlink != 0 {
				continue
			}
			name := e.Name()
			childRel := path.Join(rel, name)
			if e.IsDir() {
				if strings.HasPrefix(name, ".") || skippedDirs[name] {
					continue
				}
				if gi != nil && (gi.MatchesPath(childRel) || gi.MatchesPath(childRel+"/")) {
					continue
				}
				stack = append(stack, childRel)
				continue
			}
			if !e.Type().IsRegular() {
				continue
			}
			if gi != nil && gi.MatchesPath(childRel) {
				continue
			}
			if lang, ok := extensionLanguage[strings.ToLower(filepath.Ext(name))]; ok {
				counts[lang]++
			}
		}
	}
	return counts
}

// dominantLanguage prefers TypeScript, then JavaScript, then the highest count
// with ties broken lexicographically by language name.
func dominantLanguage(counts map[string]int) (string, bool) {
	if counts[TypeScript] > 0 {
		return TypeScript, true
	}
	if counts[JavaScript] > 0 {
		return JavaScript, false
	}
	names := make([]string, 0, len(counts))
	for name, n := range counts {
		if n > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	best := ""
	for _, name := range names {
		if best == "" || counts[name] > counts[best] {
			best = name
		}
	}
	return best, false
}

func entryPoints(root, lang string) []string {
	found := []string{}
	for _, candidate := range entryPointCandidates[lang] {
		st, err := os.Stat(filepath.Join(root, filepath.FromSlash(candidate)))
		if err == nil && st.Mode().IsRegular() {
			found = append(found, candidate)
		}
	}
	return found
}

type packageManifest struct {
	Dependencies    map[string]any `json:"dependencies"`
	DevDependencies map[string]any `json:"devDependencies"`
}

func detectFramework(root string, logger *zap.Logger) string {
	data, err := os.ReadFile(filepath.Join(root, manifestFile))
	if err != nil {
		return ""
	}
	var m packageManifest
	if err := json.Unmarshal(data, &m); err != nil {
		logger.Debug("ignore malformed manifest", zap.String("file", manifestFile), zap.Error(err))
		return ""
	}
	deps := map[string]bool{}
	for name := range m.Dependencies {
		deps[name] = true
	}
	for name := range m.DevDependencies {
		deps[name] = true
	}
	for _, fw := range frameworkPriority {
		if deps[fw] {
			return fw
		}
	}
	return ""
}

func isWebApp(root, framework string) bool {
	for _, marker := range webMarkers {
		if _, err := os.Stat(filepath.Join(root, filepath.FromSlash(marker))); err == nil {
			return true
		}
	}
	return webFrameworks[framework]
}

func loadIgnore(root string) *ignore.GitIgnore {
	f, err := os.Open(filepath.Join(root, ".gitignore"))
	if err != nil {
		return nil
	}
	defer f.Close()
	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if scanner.Err() != nil || len(lines) == 0 {
		return nil
	}
	return ignore.CompileIgnoreLines(lines...)
}
