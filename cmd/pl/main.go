package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"plugline/internal/app"
	"plugline/internal/catalog"
	"plugline/internal/config"
	"plugline/internal/db"
	"plugline/internal/domain"
	"plugline/internal/engine"
	"plugline/internal/logging"
	"plugline/internal/persist"
	"plugline/internal/prompt"
	"plugline/internal/server"
	"plugline/internal/workflow"
)

var rootCmd = &cobra.Command{
	Use:   "pl",
	Short: "plugline CLI",
	Long: `plugline adds third-party API integrations to a git repository.
- Capabilities: the closed set of services plugline can wire in (openai, stripe, ...).
- Plan: generated modules under integrations/ plus dependency, env and notes artifacts.
- Apply: clone, analyze, plan, review, commit on an integration branch and optionally push.
- Runs: every apply is recorded in .plugline/plugline.db; view with 'pl runs' and 'pl log tail'.`,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("PLUGLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory holding .plugline state")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("config", "", "config file (default <workspace>/plugline.yml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor recorded on run events")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(analyzeCmd())
	rootCmd.AddCommand(planCmd())
	rootCmd.AddCommand(applyCmd())
	rootCmd.AddCommand(capabilitiesCmd())
	rootCmd.AddCommand(runsCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
}

func analyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze <source>",
		Short: "Classify a repository without changing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				info, err := e.Analyze(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(info)
				}
				printInfo(info)
				return nil
			})
		},
	}
	return cmd
}

func planCmd() *cobra.Command {
	var caps []string
	var out string
	cmd := &cobra.Command{
		Use:   "plan <source>",
		Short: "Preview the integration plan for a repository",
		Long:  "Builds the plan in a throwaway clone and prints a summary. Nothing is committed. Use --out to write the plan files to a directory.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				preview, err := e.Preview(ctx, args[0], caps)
				if err != nil {
					return err
				}
				var written persist.Written
				if out != "" {
					if written, err = persist.Write(preview.Plan, out); err != nil {
						return err
					}
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"info": preview.Info, "plan": preview.Plan, "written": written})
				}
				printInfo(preview.Info)
				fmt.Println()
				workflow.WriteSummary(os.Stdout, preview.Plan)
				if out != "" {
					fmt.Printf("\nWrote %d files to %s\n", len(written.Changes), out)
					for _, a := range written.Artifacts {
						fmt.Printf("  %s\n", a)
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().StringArrayVarP(&caps, "capability", "c", nil, "capability to integrate (repeatable, in order)")
	cmd.Flags().StringVar(&out, "out", "", "directory to write the plan into")
	_ = cmd.MarkFlagRequired("capability")
	return cmd
}

func applyCmd() *cobra.Command {
	var caps []string
	var opts workflow.Options
	var keep bool
	cmd := &cobra.Command{
		Use:   "apply <source>",
		Short: "Plan, review and commit integrations",
		Long:  "Runs the full pipeline: clone, analyze, plan, summarize, ask for approval, commit on an integration branch and optionally push it.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.Run(ctx, engine.RunOptions{
					Source:       args[0],
					Capabilities: caps,
					ActorID:      viper.GetString("actor-id"),
					Retain:       keep,
					Workflow:     opts,
					Prompter:     prompt.New(os.Stdin, os.Stdout),
					Out:          os.Stdout,
				})
				if res.Retained && res.WorkDir != "" {
					fmt.Fprintf(os.Stderr, "Working copy kept at %s\n", res.WorkDir)
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				printRunOutcome(res)
				return nil
			})
		},
	}
	cmd.Flags().StringArrayVarP(&caps, "capability", "c", nil, "capability to integrate (repeatable, in order)")
	cmd.Flags().StringVar(&opts.Branch, "branch", "", "branch to commit on (default integration-<timestamp>)")
	cmd.Flags().StringVar(&opts.Message, "message", "", "commit message (default lists the capabilities)")
	cmd.Flags().BoolVar(&opts.Publish, "publish", false, "push the branch after committing")
	cmd.Flags().StringVar(&opts.Remote, "remote", "", "remote to push to (default from config)")
	cmd.Flags().BoolVar(&opts.Force, "force-push", false, "push with --force-with-lease")
	cmd.Flags().BoolVar(&keep, "keep", false, "keep the working copy after the run")
	cmd.Flags().BoolVarP(&opts.AutoApprove, "yes", "y", false, "approve without prompting")
	_ = cmd.MarkFlagRequired("capability")
	return cmd
}

func capabilitiesCmd() *cobra.Command {
	caps := &cobra.Command{Use: "capabilities", Short: "Supported capabilities"}
	caps.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List supported capabilities",
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := catalog.Load()
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				items := map[string]domain.CapabilityConfig{}
				for _, id := range catalog.All {
					items[string(id)] = cat.Get(id)
				}
				return printJSON(items)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"ID", "Name", "Dependencies", "Env", "Web only"})
			for _, id := range catalog.All {
				c := cat.Get(id)
				keys := domain.IntegrationPlan{EnvPlaceholders: c.EnvVars}.EnvKeys()
				tw.AppendRow(table.Row{id, c.Name, strings.Join(c.Dependencies, ", "), strings.Join(keys, ", "), c.WebOnly})
			}
			tw.Render()
			return nil
		},
	})
	return caps
}

func runsCmd() *cobra.Command {
	runs := &cobra.Command{
		Use:   "runs",
		Short: "Recorded runs",
		Long:  "Every apply records a run with its final state, branch and commit.",
	}
	runs.AddCommand(runsListCmd())
	runs.AddCommand(runsShowCmd())
	return runs
}

func runsListCmd() *cobra.Command {
	var state string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListRuns(ctx, limit, state, "", "")
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "State", "Capabilities", "Branch", "Commit", "Created"})
				for _, r := range items {
					tw.AppendRow(table.Row{r.ID, r.State, strings.Join(r.Capabilities, ","), r.Branch, shortHash(r.CommitHash), r.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&state, "state", "", "state filter")
	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs")
	return cmd
}

func runsShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a run and its events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				run, err := e.Repo.GetRun(ctx, args[0])
				if err != nil {
					return err
				}
				evts, err := e.Repo.EventsAfter(ctx, 0, 0, run.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"run": run, "events": evts})
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "Every run start, state change and outcome is recorded as an event.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var runID, evtType string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.LatestEvents(ctx, n, 0, runID, evtType)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "TS", "Type", "Run", "Actor", "Payload"})
				for _, evt := range events {
					tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, evt.RunID, evt.ActorID, evt.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&runID, "run", "", "run id filter")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect config",
		Long:  "Config lives in plugline.yml: generator provider, git remote and author, clone options, logging, server and webhooks.",
	}
	cfg.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a default plugline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig()
			if err != nil {
				return err
			}
			return printJSONOrTable(c)
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate config",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := loadConfig()
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	})
	return cfg
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				cfg := e.App.Config
				logger := e.App.Logger.Named("server")
				if !cmd.Flags().Changed("addr") && cfg.Server.Addr != "" {
					addr = cfg.Server.Addr
				}
				if !cmd.Flags().Changed("base-path") && cfg.Server.BasePath != "" {
					basePath = cfg.Server.BasePath
				}
				authCfg := server.AuthConfig{JWTSecret: e.App.JWTSecret, Logger: logger.Named("auth")}
				if !authCfg.Enabled() {
					logger.Warn("bearer auth disabled; set " + app.JWTSecretEnv + " to require tokens")
				}
				handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg, Logger: logger})
				if err != nil {
					return err
				}
				if len(cfg.Webhooks) > 0 {
					go server.NewWebhookDispatcher(e, cfg.Webhooks, logger.Named("webhooks")).Run(ctx, server.DefaultWebhookInterval)
				}
				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				logger.Info("listening", zap.String("addr", addr), zap.String("base_path", basePath))
				fmt.Printf("Serving plugline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

func loadConfig() (*config.Config, error) {
	if path := viper.GetString("config"); path != "" {
		return config.FromFile(path)
	}
	return config.LoadOptional(viper.GetString("workspace"))
}

func newLogger(workspace string, cfg *config.Config) (*zap.Logger, error) {
	level := cfg.Log.Level
	if override := viper.GetString("log-level"); override != "" {
		level = override
	}
	file := cfg.Log.File
	if file == "" {
		file = db.LogPath(workspace)
	}
	return logging.New(logging.Config{Level: level, Format: cfg.Log.Format, File: file})
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(workspace, cfg)
	if err != nil {
		return err
	}
	defer logging.Sync(logger)
	appCtx, err := app.New(workspace, cfg, logger)
	if err != nil {
		return err
	}
	conn, err := appCtx.OpenStore(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(ctx, engine.New(conn, appCtx))
}

func printInfo(info domain.CodebaseInfo) {
	typing := "dynamic"
	if info.HasStaticTyping {
		typing = "static"
	}
	lang := info.Language
	if lang == "" {
		lang = "unknown"
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendRows([]table.Row{
		{"Language", lang},
		{"Typing", typing},
		{"Framework", info.Framework},
		{"Web app", info.IsWebApp},
		{"Entry points", strings.Join(info.EntryPoints, ", ")},
	})
	tw.Render()
}

func printRunOutcome(res engine.RunResult) {
	fmt.Printf("\nRun %s: %s\n", res.Run.ID, res.Run.State)
	if pr := res.Workflow.PullRequest; pr != nil {
		fmt.Printf("\nPull request\n  Title: %s\n  Branch: %s\n\n%s\n", pr.Title, pr.Branch, pr.Body)
	}
}

func shortHash(h string) string {
	if len(h) > 7 {
		return h[:7]
	}
	return h
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
