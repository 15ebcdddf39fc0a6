package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dshills/tutormatch/internal/config"
	"github.com/dshills/tutormatch/internal/embedder"
	"github.com/dshills/tutormatch/internal/httpapi"
	"github.com/dshills/tutormatch/internal/logger"
	"github.com/dshills/tutormatch/internal/matching"
	"github.com/dshills/tutormatch/internal/mcp"
	"github.com/dshills/tutormatch/internal/notify"
	"github.com/dshills/tutormatch/internal/refresher"
	"github.com/dshills/tutormatch/internal/storage"
	"github.com/dshills/tutormatch/pkg/types"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

const usage = `usage: tutormatch [command] [flags]

commands:
  serve      serve MCP tools on stdio (default)
  http       serve the JSON API
  backfill   recompute cached profile embeddings
  --version  print build information
`

// app holds the wired components shared by every command
type app struct {
	cfg       *config.Config
	log       *logger.Logger
	store     *storage.SQLiteStorage
	emb       embedder.Embedder
	service   *matching.Service
	refresher *refresher.Refresher
	notifier  notify.Notifier
}

func main() {
	cmd := "serve"
	args := os.Args[1:]
	if len(args) > 0 {
		switch args[0] {
		case "--version", "version":
			printVersion()
			return
		case "-h", "--help", "help":
			fmt.Fprint(os.Stderr, usage)
			return
		}
		if !strings.HasPrefix(args[0], "-") {
			cmd, args = args[0], args[1:]
		}
	}

	a, err := newApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "tutormatch: %v\n", err)
		os.Exit(1)
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case "serve":
		err = a.serveMCP(ctx)
	case "http":
		err = a.serveHTTP(ctx)
	case "backfill":
		err = a.backfill(ctx, args)
	default:
		fmt.Fprint(os.Stderr, usage)
		err = fmt.Errorf("unknown command %q", cmd)
	}
	if err != nil {
		a.log.Error("command failed", "command", cmd, "error", err)
		a.close()
		os.Exit(1)
	}
}

func printVersion() {
	fmt.Printf("TutorMatch\n")
	fmt.Printf("Version: %s\n", version)
	fmt.Printf("Build Time: %s\n", buildTime)
	fmt.Printf("Build Mode: %s\n", storage.BuildMode)
	fmt.Printf("SQLite Driver: %s\n", storage.DriverName)
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg.Log.Mode, cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	store, err := storage.NewSQLiteStorage(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	emb, err := embedder.New(embedder.Config{
		Provider:  cfg.Embedding.Provider,
		APIKey:    cfg.Embedding.APIKey,
		Model:     cfg.Embedding.Model,
		BaseURL:   cfg.Embedding.BaseURL,
		CacheSize: cfg.Embedding.CacheSize,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("init embedder: %w", err)
	}

	svc, err := matching.NewService(store, emb, matching.Options{
		RetrieveTopK:  cfg.Matching.RetrieveTopK,
		RerankTopK:    cfg.Matching.RerankTopK,
		Workers:       cfg.Matching.Workers,
		FieldWeights:  cfg.Matching.FieldWeights,
		RerankWeights: cfg.Matching.RerankWeights,
	}, log)
	if err != nil {
		_ = emb.Close()
		_ = store.Close()
		return nil, err
	}

	log.Info("tutormatch starting",
		"version", version,
		"build_mode", storage.BuildMode,
		"driver", storage.DriverName,
		"db_path", cfg.Database.Path,
		"model", svc.Model())

	return &app{
		cfg:       cfg,
		log:       log,
		store:     store,
		emb:       emb,
		service:   svc,
		refresher: refresher.New(svc, log),
		notifier:  notify.NewLogNotifier(log),
	}, nil
}

func (a *app) close() {
	if a.emb != nil {
		_ = a.emb.Close()
		a.emb = nil
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("failed to close database", "error", err)
		}
		a.store = nil
	}
	a.log.Sync()
}

// serveMCP blocks on stdio until the client disconnects or ctx ends.
// Stdout is reserved for the protocol; logs go to stderr.
func (a *app) serveMCP(ctx context.Context) error {
	server, err := mcp.NewServer(a.service, a.refresher, a.notifier, a.log)
	if err != nil {
		return err
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Serve(ctx)
	}()

	select {
	case <-ctx.Done():
		a.log.Info("received shutdown signal")
		return nil
	case err := <-errChan:
		return err
	}
}

func (a *app) serveHTTP(ctx context.Context) error {
	if a.cfg.Log.Mode == "prod" || a.cfg.Log.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr: a.cfg.HTTP.Addr,
		Handler: httpapi.NewRouter(httpapi.RouterConfig{
			Service:   a.service,
			Refresher: a.refresher,
			Notifier:  a.notifier,
			Log:       a.log,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		a.log.Info("http server listening", "addr", srv.Addr)
		errChan <- srv.ListenAndServe()
	}()

	select {
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	a.log.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (a *app) backfill(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("backfill", flag.ContinueOnError)
	role := fs.String("role", "", "refresh only this role (student or tutor)")
	onlyMissing := fs.Bool("only-missing", false, "skip profiles that already have every slot")
	workers := fs.Int("workers", a.cfg.Matching.Workers, "concurrent embedder calls")
	batch := fs.Int("batch", refresher.DefaultBatchSize, "profiles per transaction")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := &refresher.Config{
		Workers:     *workers,
		BatchSize:   *batch,
		OnlyMissing: *onlyMissing,
	}
	if *role != "" {
		cfg.Roles = []types.Role{types.Role(*role)}
	}

	stats, err := a.refresher.RefreshAll(ctx, cfg)
	if err != nil {
		return err
	}
	fmt.Printf("model=%s students=%d tutors=%d skipped=%d failed=%d slots=%d duration=%s\n",
		stats.Model, stats.StudentsRefreshed, stats.TutorsRefreshed,
		stats.ProfilesSkipped, stats.ProfilesFailed, stats.SlotsWritten, stats.Duration)
	for _, msg := range stats.ErrorMessages {
		fmt.Fprintln(os.Stderr, msg)
	}
	return nil
}
