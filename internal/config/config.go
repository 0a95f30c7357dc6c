package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config models plugline.yml.
type Config struct {
	Generator struct {
		Provider        string  `yaml:"provider"`
		Model           string  `yaml:"model"`
		Temperature     float64 `yaml:"temperature"`
		MaxSnippetBytes int     `yaml:"max_snippet_bytes"`
	} `yaml:"generator"`
	Git struct {
		Remote string `yaml:"remote"`
		Author string `yaml:"author"`
	} `yaml:"git"`
	Clone struct {
		Depth  int    `yaml:"depth"`
		Branch string `yaml:"branch"`
		TmpDir string `yaml:"tmp_dir"`
	} `yaml:"clone"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		File   string `yaml:"file"`
	} `yaml:"log"`
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// WebhookConfig describes one endpoint that receives run events.
type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	switch c.Generator.Provider {
	case "ollama":
		if strings.TrimSpace(c.Generator.Model) == "" {
			return fmt.Errorf("config.generator.model is required for provider ollama")
		}
	case "stub":
	default:
		return fmt.Errorf("config.generator.provider must be 'ollama' or 'stub', got %q", c.Generator.Provider)
	}
	if c.Generator.MaxSnippetBytes <= 0 {
		return fmt.Errorf("config.generator.max_snippet_bytes must be positive")
	}
	if c.Generator.Temperature < 0 || c.Generator.Temperature > 2 {
		return fmt.Errorf("config.generator.temperature must be within [0, 2]")
	}
	if strings.TrimSpace(c.Git.Remote) == "" {
		return fmt.Errorf("config.git.remote is required")
	}
	if a := strings.TrimSpace(c.Git.Author); a != "" && (!strings.Contains(a, "<") || !strings.HasSuffix(a, ">")) {
		return fmt.Errorf("config.git.author must look like 'Name <email>'")
	}
	if c.Clone.Depth < 0 {
		return fmt.Errorf("config.clone.depth must not be negative")
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("config.log.format must be 'console' or 'json'")
	}
	for i, hook := range c.Webhooks {
		u := strings.TrimSpace(hook.URL)
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			return fmt.Errorf("config.webhooks[%d].url must be an http(s) URL", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("config.webhooks[%d].timeout_seconds must not be negative", i)
		}
	}
	return nil
}

// Identity splits git.author into name and email. Both are empty when unset.
func (c *Config) Identity() (string, string) {
	a := strings.TrimSpace(c.Git.Author)
	open := strings.LastIndex(a, "<")
	if open < 0 || !strings.HasSuffix(a, ">") {
		return "", ""
	}
	return strings.TrimSpace(a[:open]), strings.TrimSpace(a[open+1 : len(a)-1])
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "plugline.yml")
}

// LoadOptional returns the default config if the workspace has no config file.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Omitted keys keep their defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `generator:
  provider: ollama
  model: qwen2.5-coder:7b
  temperature: 0.2
  max_snippet_bytes: 2000

git:
  remote: origin
  author: ""

clone:
  depth: 1
  branch: ""
  tmp_dir: ""

log:
  level: info
  format: console
  file: ""

server:
  addr: 127.0.0.1:8080
  base_path: /v0

# webhooks:
#   - url: https://hooks.example.com/plugline
#     events: [run.finished, run.failed]
#     secret: change-me
`
