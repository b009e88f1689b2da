// Command framegrid-server serves the dataset API consumed by the grid
// client, plus /metrics (Prometheus) and /debug/vars (expvar).
package main

import (
	"context"
	"errors"
	"expvar"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	adapter "framegrid/internal/adapters/frames"
	"framegrid/internal/blob"
	"framegrid/internal/config"
	"framegrid/internal/frames"
	"framegrid/internal/observability"
)

const shutdownTimeout = 10 * time.Second

var (
	exitFunc = os.Exit
	getenv   = os.Getenv
	// serve blocks until ctx ends or the server fails.
	serve = func(ctx context.Context, srv *http.Server) error {
		errCh := make(chan error, 1)
		go func() { errCh <- srv.ListenAndServe() }()
		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		}
	}
)

func main() {
	exitFunc(cli(os.Args[1:], os.Stdout, os.Stderr))
}

func cli(args []string, stdout, stderr io.Writer) int {
	cfg, err := config.Load(getenv)
	if err != nil {
		fmt.Fprintf(stderr, "configuration: %v\n", err)
		return 1
	}
	fs := flag.NewFlagSet("framegrid-server", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&cfg.HTTPAddr, "addr", cfg.HTTPAddr, "listen address")
	store := fs.String("store", string(cfg.Storage.Driver), "catalog store: memory|sqlite|postgres")
	fs.StringVar(&cfg.Storage.SQLitePath, "sqlite-path", cfg.Storage.SQLitePath, "sqlite database file")
	fs.StringVar(&cfg.Storage.PostgresDSN, "postgres-dsn", cfg.Storage.PostgresDSN, "postgres DSN")
	blobDriver := fs.String("blob", string(cfg.Blob.Driver), "blob driver: fs|s3|memory")
	fs.StringVar(&cfg.Blob.FSRoot, "blob-root", cfg.Blob.FSRoot, "filesystem blob root")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug|info|warn|error")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "text|json")
	fs.Int64Var(&cfg.MaxUploadBytes, "max-upload-bytes", cfg.MaxUploadBytes, "upload size limit")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	cfg.Storage.Driver = frames.StorageDriver(*store)
	cfg.Blob.Driver = blob.Driver(*blobDriver)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "configuration: %v\n", err)
		return 1
	}
	level, _ := observability.ParseLevel(cfg.LogLevel)
	logger, err := observability.NewLogger(stderr, level, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(stderr, "logger: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handler, cleanup, err := buildHandler(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		return 1
	}
	defer cleanup()

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	fmt.Fprintf(stdout, "framegrid-server listening on %s (store=%s blob=%s)\n", cfg.HTTPAddr, cfg.Storage.Driver, cfg.Blob.Driver)
	if err := serve(ctx, srv); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server stopped", "error", err)
		return 1
	}
	return 0
}

// buildHandler wires storage, metrics and the dataset API into one mux.
func buildHandler(ctx context.Context, cfg config.Config, logger *slog.Logger) (http.Handler, func(), error) {
	store, closeStore, err := frames.OpenCatalog(ctx, cfg.Storage)
	if err != nil {
		return nil, nil, fmt.Errorf("open catalog: %w", err)
	}
	blobs, err := blob.Open(ctx, cfg.Blob)
	if err != nil {
		_ = closeStore()
		return nil, nil, fmt.Errorf("open blob store: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom, err := observability.NewPrometheusRecorder(reg)
	if err != nil {
		_ = closeStore()
		return nil, nil, err
	}
	metrics := observability.Multi(prom, observability.NewExpvarRecorder(""))
	var tracer observability.Tracer
	if logger.Enabled(ctx, slog.LevelDebug) {
		tracer = observability.NewJSONTracer(os.Stderr)
	}

	svc := frames.NewService(store, blobs,
		frames.WithMetrics(metrics),
		frames.WithTracer(tracer),
		frames.WithLogger(logger),
		frames.WithMaxUploadBytes(cfg.MaxUploadBytes),
	)
	api := adapter.NewHandler(svc)
	api.MaxUploadBytes = cfg.MaxUploadBytes
	api.Logger = logger

	mux := http.NewServeMux()
	mux.Handle(adapter.DefaultPrefix, api)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.Handle("/debug/vars", expvar.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "ok\n")
	})
	cleanup := func() {
		if err := closeStore(); err != nil {
			logger.Warn("close catalog", "error", err)
		}
	}
	return mux, cleanup, nil
}
