package catalog_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plugline/internal/catalog"
)

func TestBuiltinCatalogCoversEveryCapability(t *testing.T) {
	c, err := catalog.Load()
	require.NoError(t, err)
	for _, id := range catalog.All {
		cfg := c.Get(id)
		assert.NotEmpty(t, cfg.Name, "capability %s", id)
		for k, v := range cfg.EnvVars {
			assert.NotEmpty(t, v, "capability %s key %s", id, k)
		}
	}
}

func TestParseRejectsUnknown(t *testing.T) {
	c, err := catalog.Load()
	require.NoError(t, err)

	_, err = c.Parse([]string{"openai", "not-a-real-api"})
	var unknown *catalog.UnknownCapabilityError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, []string{"not-a-real-api"}, unknown.Invalid)
	assert.Equal(t, c.Supported(), unknown.Supported)
	assert.Contains(t, err.Error(), "not-a-real-api")
	assert.Contains(t, err.Error(), "stripe")
}

func TestParseNormalizesCase(t *testing.T) {
	c, err := catalog.Load()
	require.NoError(t, err)
	ids, err := c.Parse([]string{" OpenAI", "stripe"})
	require.NoError(t, err)
	assert.Equal(t, []catalog.Capability{catalog.OpenAI, catalog.Stripe}, ids)
}

func TestParseRequiresOne(t *testing.T) {
	c, err := catalog.Load()
	require.NoError(t, err)
	_, err = c.Parse(nil)
	assert.Error(t, err)
}

func TestFromYAMLRejectsIncompleteCatalog(t *testing.T) {
	_, err := catalog.FromYAML([]byte("openai:\n  name: OpenAI\n"))
	assert.ErrorContains(t, err, "catalog missing capability")
}

func TestFromYAMLRejectsEmptyPlaceholder(t *testing.T) {
	data := []byte(`
openai: {name: OpenAI, env_vars: {OPENAI_API_KEY: ""}}
anthropic: {name: Anthropic}
stripe: {name: Stripe}
twilio: {name: Twilio}
sendgrid: {name: SendGrid}
resend: {name: Resend}
supabase: {name: Supabase}
clerk: {name: Clerk}
`)
	_, err := catalog.FromYAML(data)
	assert.ErrorContains(t, err, "empty placeholder")
}

func TestFromYAMLRejectsExtraEntries(t *testing.T) {
	data := []byte(`
openai: {name: OpenAI}
anthropic: {name: Anthropic}
stripe: {name: Stripe}
twilio: {name: Twilio}
sendgrid: {name: SendGrid}
resend: {name: Resend}
supabase: {name: Supabase}
clerk: {name: Clerk}
paypal: {name: PayPal}
`)
	_, err := catalog.FromYAML(data)
	assert.ErrorContains(t, err, "paypal")
}
