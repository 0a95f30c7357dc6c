package planner

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plugline/internal/catalog"
	"plugline/internal/domain"
	"plugline/internal/generator"
)

type recorder struct {
	calls []string
	fail  string
}

func (r *recorder) gen() generator.Generator {
	return generator.Func(func(_ context.Context, c domain.CapabilityConfig, _ domain.CodebaseInfo, _ map[string]string) (string, error) {
		r.calls = append(r.calls, c.Name)
		if c.Name == r.fail {
			return "", errors.New("model unavailable")
		}
		return "// " + c.Name + "\n", nil
	})
}

func newBuilder(t *testing.T, r *recorder) Builder {
	t.Helper()
	cat, err := catalog.Load()
	require.NoError(t, err)
	return New(cat, r.gen(), nil)
}

func TestBuildDedupesDependenciesInFirstOccurrenceOrder(t *testing.T) {
	r := &recorder{}
	plan, err := newBuilder(t, r).Build(context.Background(), domain.CodebaseInfo{}, []string{"stripe", "openai", "anthropic"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"stripe", "dotenv", "openai", "@anthropic-ai/sdk"}, plan.Dependencies)
	assert.Equal(t, []string{"Stripe", "OpenAI", "Anthropic"}, r.calls)
}

func TestBuildEnvUnionLaterWins(t *testing.T) {
	b := newBuilder(t, &recorder{})
	plan, err := b.Build(context.Background(), domain.CodebaseInfo{}, []string{"sendgrid", "resend"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"EMAIL_FROM", "RESEND_API_KEY", "SENDGRID_API_KEY"}, plan.EnvKeys())
	assert.Equal(t, "onboarding@resend.dev", plan.EnvPlaceholders["EMAIL_FROM"])

	plan, err = b.Build(context.Background(), domain.CodebaseInfo{}, []string{"resend", "sendgrid"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "noreply@example.com", plan.EnvPlaceholders["EMAIL_FROM"])
}

func TestBuildUnknownCapabilityFailsBeforeGeneration(t *testing.T) {
	r := &recorder{}
	_, err := newBuilder(t, r).Build(context.Background(), domain.CodebaseInfo{}, []string{"openai", "not-a-real-api"}, nil)
	var unknown *catalog.UnknownCapabilityError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, []string{"not-a-real-api"}, unknown.Invalid)
	assert.Contains(t, err.Error(), "not-a-real-api")
	for _, id := range catalog.All {
		assert.Contains(t, err.Error(), string(id))
	}
	assert.Empty(t, r.calls)
}

func TestBuildGeneratorFailureAborts(t *testing.T) {
	r := &recorder{fail: "Stripe"}
	plan, err := newBuilder(t, r).Build(context.Background(), domain.CodebaseInfo{}, []string{"openai", "stripe", "twilio"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "generate stripe")
	assert.Empty(t, plan.Changes)
	assert.Equal(t, []string{"OpenAI", "Stripe"}, r.calls)
}

func TestBuildPathsAndAuxiliaryModules(t *testing.T) {
	info := domain.CodebaseInfo{Language: "typescript", HasStaticTyping: true, Framework: "next", IsWebApp: true}
	plan, err := newBuilder(t, &recorder{}).Build(context.Background(), info, []string{"openai", "clerk"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"integrations/openai.ts",
		"integrations/clerk.ts",
		"integrations/demo.ts",
		"integrations/index.ts",
	}, plan.Paths())
	for _, c := range plan.Changes {
		assert.True(t, c.IsNew())
	}
	index := plan.Changes[3].Updated
	assert.Contains(t, index, "export * as openai from './openai';")
	assert.Contains(t, index, "export * as demo from './demo';")
	assert.Equal(t, []string{"openai", "clerk"}, plan.SelectedCapabilities)
	assert.Contains(t, plan.Notes, "Detected framework: next")
	assert.Contains(t, plan.Notes, "Detected a browser-facing application.")
	assert.Len(t, plan.SetupInstructions, 2)
}

func TestBuildJavaScriptAndWebOnlyWarning(t *testing.T) {
	plan, err := newBuilder(t, &recorder{}).Build(context.Background(), domain.CodebaseInfo{Language: "javascript"}, []string{"clerk"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "integrations/clerk.js", plan.Changes[0].Path)
	assert.Contains(t, plan.Changes[2].Updated, "from './clerk.js'")
	warned := false
	for _, n := range plan.Notes {
		if strings.Contains(n, "Clerk targets browser applications") {
			warned = true
		}
	}
	assert.True(t, warned)
	assert.Contains(t, plan.Notes, "Detected language: javascript (dynamic typing)")
	assert.Equal(t, "Copy .env.integrations.example to .env and fill in real values before running.", plan.Notes[len(plan.Notes)-1])
}

func TestBuildCollapsesRepeatedCapabilities(t *testing.T) {
	r := &recorder{}
	plan, err := newBuilder(t, r).Build(context.Background(), domain.CodebaseInfo{}, []string{"openai", "OpenAI ", "openai"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"OpenAI"}, r.calls)
	assert.Len(t, plan.Changes, 3)
}

func TestAccumulatorRejectsDuplicatePath(t *testing.T) {
	acc := newAccumulator()
	require.NoError(t, acc.addChange(domain.FileChange{Path: "integrations/a.ts"}))
	err := acc.addChange(domain.FileChange{Path: "integrations/a.ts"})
	var dup *DuplicatePathError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "integrations/a.ts", dup.Path)
}
