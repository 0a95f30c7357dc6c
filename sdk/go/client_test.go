package pluglinesdk

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plugline/internal/app"
	"plugline/internal/config"
	"plugline/internal/domain"
	"plugline/internal/engine"
	"plugline/internal/server"
)

func newAPI(t *testing.T, secret string) (*httptest.Server, engine.Engine) {
	t.Helper()
	cfg := config.Default()
	cfg.Generator.Provider = "stub"
	appCtx, err := app.New(t.TempDir(), cfg, nil)
	require.NoError(t, err)
	conn, err := appCtx.OpenStore(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	e := engine.New(conn, appCtx)
	handler, err := server.New(server.Config{Engine: e, Auth: server.AuthConfig{JWTSecret: secret}})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, e
}

func TestCapabilities(t *testing.T) {
	srv, _ := newAPI(t, "")
	caps, err := New(srv.URL).Capabilities(context.Background())
	require.NoError(t, err)
	require.Len(t, caps, 8)
	assert.Equal(t, "openai", caps[0].ID)
	assert.NotEmpty(t, caps[0].EnvKeys)
}

func TestRunsAndErrors(t *testing.T) {
	srv, e := newAPI(t, "")
	ctx := context.Background()
	require.NoError(t, e.Repo.InsertRun(ctx, domain.Run{
		ID:           "r1",
		Source:       "/tmp/src",
		Capabilities: []string{"stripe"},
		State:        domain.StateCancelled,
		CreatedAt:    "2024-01-01T00:00:00Z",
		UpdatedAt:    "2024-01-01T00:00:00Z",
	}))
	c := New(srv.URL)

	page, err := c.RunsPage(ctx, string(domain.StateCancelled), 10, "")
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "r1", page.Items[0].ID)
	assert.Empty(t, page.NextCursor)

	run, err := c.Run(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"stripe"}, run.Capabilities)

	_, err = c.Run(ctx, "missing")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "not_found", apiErr.Code)

	_, err = c.Plan(ctx, "/tmp/src", "paypal")
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "unknown_capability", apiErr.Code)
	assert.Equal(t, []any{"paypal"}, apiErr.Details["invalid"])
}

func TestBearerToken(t *testing.T) {
	srv, _ := newAPI(t, "sdk-secret")
	c := New(srv.URL)
	_, err := c.Capabilities(context.Background())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)

	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "ci"}).SignedString([]byte("sdk-secret"))
	require.NoError(t, err)
	c.BearerToken = tok
	_, err = c.Capabilities(context.Background())
	require.NoError(t, err)
}

func TestWithQuerySkipsEmpty(t *testing.T) {
	assert.Equal(t, "runs", withQuery("runs", map[string]string{"state": "", "cursor": ""}))
	assert.Equal(t, "runs?cursor=a%7Cb&limit=5", withQuery("runs", map[string]string{"limit": "5", "cursor": "a|b"}))
}
