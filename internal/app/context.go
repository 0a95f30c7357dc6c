// Package app wires the long-lived collaborators a plugline process needs. A
// Context is built once at startup and passed down explicitly.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"go.uber.org/zap"

	"plugline/internal/analyzer"
	"plugline/internal/catalog"
	"plugline/internal/config"
	"plugline/internal/db"
	"plugline/internal/generator"
	"plugline/internal/logging"
	"plugline/internal/migrate"
	"plugline/internal/planner"
)

// JWTSecretEnv names the variable holding the API signing secret.
const JWTSecretEnv = "PLUGLINE_JWT_SECRET"

type Context struct {
	Workspace string
	Config    *config.Config
	Catalog   *catalog.Catalog
	Generator generator.Generator
	Logger    *zap.Logger
	JWTSecret string
}

// New validates the catalog and builds the configured generator.
func New(workspace string, cfg *config.Config, logger *zap.Logger) (*Context, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	logger = logging.OrNop(logger)
	cat, err := catalog.Load()
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	gen, err := NewGenerator(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &Context{
		Workspace: workspace,
		Config:    cfg,
		Catalog:   cat,
		Generator: gen,
		Logger:    logger,
		JWTSecret: os.Getenv(JWTSecretEnv),
	}, nil
}

// NewGenerator picks the generator named by generator.provider.
func NewGenerator(cfg *config.Config, logger *zap.Logger) (generator.Generator, error) {
	switch cfg.Generator.Provider {
	case "stub":
		return generator.Stub{}, nil
	case "ollama":
		return generator.NewOllama(cfg.Generator.Model, cfg.Generator.Temperature, logger.Named("ollama"))
	default:
		return nil, fmt.Errorf("unknown generator provider %q", cfg.Generator.Provider)
	}
}

func (c *Context) Analyzer() analyzer.Analyzer {
	return analyzer.New(c.Logger.Named("analyzer"))
}

func (c *Context) Builder() planner.Builder {
	return planner.New(c.Catalog, c.Generator, c.Logger.Named("planner"))
}

// OpenStore opens and migrates the run store under the workspace.
func (c *Context) OpenStore(ctx context.Context) (*sql.DB, error) {
	conn, err := db.Open(db.Config{Workspace: c.Workspace})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := migrate.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	return conn, nil
}
