package generator

import (
	"context"
	"errors"
	"strings"
	"testing"

	ollama "github.com/ollama/ollama/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plugline/internal/domain"
)

var openai = domain.CapabilityConfig{
	Name:         "OpenAI",
	Description:  "chat completions",
	Dependencies: []string{"openai", "dotenv"},
	EnvVars:      map[string]string{"OPENAI_MODEL": "gpt-4o-mini", "OPENAI_API_KEY": "sk-x"},
}

type fakeChat struct {
	req   *ollama.ChatRequest
	reply []string
	err   error
}

func (f *fakeChat) Chat(_ context.Context, req *ollama.ChatRequest, fn ollama.ChatResponseFunc) error {
	f.req = req
	if f.err != nil {
		return f.err
	}
	for _, part := range f.reply {
		if err := fn(ollama.ChatResponse{Message: ollama.Message{Content: part}}); err != nil {
			return err
		}
	}
	return nil
}

func TestPromptMentionsContext(t *testing.T) {
	info := domain.CodebaseInfo{Language: "typescript", Framework: "next", IsWebApp: true, HasStaticTyping: true}
	p, err := Prompt(openai, info, map[string]string{"src/index.ts": "export const x = 1"})
	require.NoError(t, err)
	assert.Contains(t, p, "TypeScript module that integrates OpenAI")
	assert.Contains(t, p, "next framework")
	assert.Contains(t, p, "OPENAI_API_KEY, OPENAI_MODEL")
	assert.Contains(t, p, "--- src/index.ts ---")
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, "const a = 1;\n", StripFences("Here you go:\n```ts\nconst a = 1;\n```\nEnjoy"))
	assert.Equal(t, "plain\n", StripFences("  plain  "))
}

func TestOllamaGenerate(t *testing.T) {
	fake := &fakeChat{reply: []string{"```js\n", "export const ok = true;\n", "```"}}
	g := &Ollama{client: fake, model: "m", temperature: 0.1}
	code, err := g.Generate(context.Background(), openai, domain.CodebaseInfo{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "export const ok = true;\n", code)
	require.NotNil(t, fake.req.Stream)
	assert.False(t, *fake.req.Stream)
	assert.Equal(t, "m", fake.req.Model)
	assert.Len(t, fake.req.Messages, 2)
}

func TestOllamaGenerateFailure(t *testing.T) {
	g := &Ollama{client: &fakeChat{err: errors.New("connection refused")}, model: "m"}
	_, err := g.Generate(context.Background(), openai, domain.CodebaseInfo{}, nil)
	assert.ErrorContains(t, err, "connection refused")

	g = &Ollama{client: &fakeChat{reply: []string{"  "}}, model: "m"}
	_, err = g.Generate(context.Background(), openai, domain.CodebaseInfo{}, nil)
	assert.ErrorContains(t, err, "no code")
}

func TestStubIsDeterministic(t *testing.T) {
	info := domain.CodebaseInfo{HasStaticTyping: true}
	a, err := Stub{}.Generate(context.Background(), openai, info, nil)
	require.NoError(t, err)
	b, err := Stub{}.Generate(context.Background(), openai, info, nil)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.True(t, strings.Index(a, "OPENAI_API_KEY") < strings.Index(a, "OPENAI_MODEL"))
	assert.Contains(t, a, "export interface Config")
}
