// ABOUTME: CLI entrypoint for the combine workflow runner with run, validate, and serve modes.
// ABOUTME: Wires together the engine, durable stores, LLM client, HTTP server, and signal handling.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tommoseley/TheCombine-sub006/engine"
	"github.com/tommoseley/TheCombine-sub006/llm"
	"github.com/tommoseley/TheCombine-sub006/project"
	"github.com/tommoseley/TheCombine-sub006/server"
	"github.com/tommoseley/TheCombine-sub006/store"
)

var version = "dev"

// config holds all CLI configuration parsed from flags and positional arguments.
type config struct {
	serveMode    bool
	validateOnly bool
	promptDir    string
	schemaDir    string
	concurrency  int
	autoAnswer   string
	verbose      bool
	showVersion  bool
	manifestFile string
}

func main() {
	cfg := parseFlags()

	if cfg.showVersion {
		fmt.Printf("combine %s\n", version)
		os.Exit(0)
	}

	os.Exit(run(cfg))
}

// parseFlags parses command-line flags and returns a populated config.
func parseFlags() config {
	var cfg config

	fs := flag.NewFlagSet("combine", flag.ContinueOnError)
	fs.BoolVar(&cfg.serveMode, "serve", false, "Start HTTP server mode")
	fs.BoolVar(&cfg.validateOnly, "validate", false, "Validate the project's graphs without executing")
	fs.StringVar(&cfg.promptDir, "prompts", "prompts", "Directory holding prompt templates")
	fs.StringVar(&cfg.schemaDir, "schemas", "schemas", "Directory holding document contracts")
	fs.IntVar(&cfg.concurrency, "concurrency", engine.DefaultConcurrency, "Maximum concurrently running executions")
	fs.StringVar(&cfg.autoAnswer, "auto-answer", "", "Answer every interrupt with this payload (unattended runs)")
	fs.BoolVar(&cfg.verbose, "verbose", false, "Print engine events")
	fs.BoolVar(&cfg.showVersion, "version", false, "Print version and exit")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: combine [flags] <project.yaml>\n\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}

	if fs.NArg() > 0 {
		cfg.manifestFile = fs.Arg(0)
	}
	return cfg
}

// run dispatches to the appropriate mode. Returns an exit code.
func run(cfg config) int {
	if cfg.manifestFile == "" {
		fmt.Fprintln(os.Stderr, "error: no project manifest given")
		return 2
	}

	manifest, err := project.LoadManifest(cfg.manifestFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	if cfg.validateOnly {
		return validateProject(manifest)
	}

	srvCfg, err := server.ConfigFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	if srvCfg.APIKey == "" {
		fmt.Fprintln(os.Stderr, "error: COMBINE_API_KEY is not set")
		return 1
	}

	if cfg.serveMode {
		return serveProject(cfg, srvCfg, manifest)
	}
	return runProject(cfg, srvCfg, manifest)
}

// validateProject loads every graph and prints diagnostics.
func validateProject(manifest *project.Manifest) int {
	_, err := manifest.LoadGraphs()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid: %v\n", err)
		return 1
	}
	fmt.Println("ok: all graphs valid")
	return 0
}

// buildConfig assembles the engine config from CLI flags, environment, and
// the chosen durable store.
func buildConfig(ctx context.Context, cfg config, srvCfg *server.Config, manifest *project.Manifest) (engine.Config, func(), error) {
	graphs, err := manifest.LoadGraphs()
	if err != nil {
		return engine.Config{}, nil, err
	}

	var (
		states     engine.StateStore
		interrupts engine.InterruptStore
		audit      engine.AuditLog
		docs       engine.DocumentStore
		cleanup    func()
	)
	if srvCfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, srvCfg.DatabaseURL)
		if err != nil {
			return engine.Config{}, nil, fmt.Errorf("connect postgres: %w", err)
		}
		pg := store.NewPGStore(pool)
		if err := pg.CreateSchema(ctx); err != nil {
			pool.Close()
			return engine.Config{}, nil, fmt.Errorf("create schema: %w", err)
		}
		states, interrupts, audit, docs = pg, pg, pg, pg
		cleanup = pool.Close
	} else {
		if err := os.MkdirAll(srvCfg.Home, 0o755); err != nil {
			return engine.Config{}, nil, fmt.Errorf("create data dir: %w", err)
		}
		sq, err := store.OpenSqlite(filepath.Join(srvCfg.Home, "combine.db"))
		if err != nil {
			return engine.Config{}, nil, err
		}
		states, interrupts, audit, docs = sq, sq, sq, sq
		cleanup = func() { _ = sq.Close() }
	}

	completer := llm.NewRetryingCompleter(
		llm.NewOpenAIClient(srvCfg.APIKey, srvCfg.Model, srvCfg.BaseURL),
		llm.DefaultRetryPolicy(),
	)

	ec := engine.Config{
		Graphs:     graphs,
		States:     states,
		Interrupts: engine.NewInterruptRegistry(interrupts, states),
		Recorder:   engine.NewRecorder(audit),
		Executors:  engine.DefaultExecutorRegistry(),
		Docs:       docs,
		Prompts:    project.NewDirAssembler(cfg.promptDir),
		Completer:  completer,
		Checker:    project.NewDirChecker(cfg.schemaDir),
	}
	if cfg.verbose {
		ec.Events = func(e engine.Event) {
			fmt.Fprintf(os.Stderr, "[%s] %s %s %s\n",
				time.Now().Format("15:04:05"), e.Type, e.ExecutionID, e.NodeID)
		}
	}
	return ec, cleanup, nil
}

// runProject drives the project to completion from the CLI.
func runProject(cfg config, srvCfg *server.Config, manifest *project.Manifest) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ec, cleanup, err := buildConfig(ctx, cfg, srvCfg, manifest)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	defer cleanup()

	var opts []engine.OrchestratorOption
	opts = append(opts, engine.WithConcurrency(cfg.concurrency))
	if cfg.autoAnswer != "" {
		opts = append(opts, engine.WithAnswerer(engine.NewAutoAnswerer(cfg.autoAnswer)))
	}

	orch := engine.NewOrchestrator(ec, manifest.Plan(), opts...)
	status, err := orch.Run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	fmt.Printf("project %s: %s\n", manifest.Name, status.Status)
	for name, docStatus := range status.Documents {
		fmt.Printf("  %s: %s\n", name, docStatus)
	}
	if status.Status != engine.StatusStabilized {
		return 1
	}
	return 0
}

// serveProject runs the orchestrator alongside the HTTP API. Interrupts are
// answered through the API; the run loop picks resolutions up via resume.
func serveProject(cfg config, srvCfg *server.Config, manifest *project.Manifest) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ec, cleanup, err := buildConfig(ctx, cfg, srvCfg, manifest)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	defer cleanup()

	orch := engine.NewOrchestrator(ec, manifest.Plan(), engine.WithConcurrency(cfg.concurrency))

	var srvOpts []server.ServerOption
	srvOpts = append(srvOpts, server.WithResumer(orch))
	if srvCfg.AuthToken != "" {
		srvOpts = append(srvOpts, server.WithAuthToken(srvCfg.AuthToken))
	}
	api := server.NewServer(ec.States, ec.Interrupts, auditLogOf(ec), srvOpts...)

	httpSrv := &http.Server{Addr: srvCfg.Bind, Handler: api}
	errCh := make(chan error, 1)
	go func() {
		fmt.Printf("combine API listening on %s\n", srvCfg.Bind)
		errCh <- httpSrv.ListenAndServe()
	}()

	go func() {
		if _, err := orch.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "orchestrator: %v\n", err)
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "server: %v\n", err)
			return 1
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	return 0
}

// auditLogOf recovers the audit log the recorder was built over.
func auditLogOf(ec engine.Config) engine.AuditLog {
	return ec.Recorder.Log()
}
