package serverrun

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	cfgpkg "github.com/rzbill/quarry/internal/config"
	"github.com/rzbill/quarry/internal/metrics"
	"github.com/rzbill/quarry/internal/runtime"
	httpserver "github.com/rzbill/quarry/internal/server/http"
	pebblestore "github.com/rzbill/quarry/internal/storage/pebble"
	logpkg "github.com/rzbill/quarry/pkg/log"
)

// Options describe how to start the server. Zero values defer to the
// config file, QUARRY_* environment variables, and built-in defaults,
// in that order of increasing precedence for flags.
type Options struct {
	ConfigPath      string
	DataDir         string
	HTTPAddr        string
	Fsync           string
	FsyncIntervalMs int
	LogLevel        string
	LogFormat       string
}

// BuildConfig resolves the effective configuration for the given options:
// file (if any), then environment overrides, then explicit flags.
func BuildConfig(opts Options) (cfgpkg.Config, error) {
	cfg, err := cfgpkg.Load(opts.ConfigPath)
	if err != nil {
		return cfgpkg.Config{}, err
	}
	cfgpkg.FromEnv(&cfg)
	if opts.DataDir != "" {
		cfg.DataDir = opts.DataDir
	}
	if opts.HTTPAddr != "" {
		cfg.HTTPAddr = opts.HTTPAddr
	}
	if opts.Fsync != "" {
		cfg.Fsync = opts.Fsync
	}
	if opts.FsyncIntervalMs > 0 {
		cfg.FsyncIntervalMs = opts.FsyncIntervalMs
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}
	if opts.LogFormat != "" {
		cfg.Log.Format = opts.LogFormat
	}
	if cfg.DataDir == "" {
		cfg.DataDir = cfgpkg.DefaultDataDir()
	}
	return cfg, nil
}

// Run starts the HTTP server and blocks until ctx is cancelled.
func Run(ctx context.Context, opts Options) error {
	// Be robust to callers that don't pass a signal-aware context
	// or if signal delivery needs to be observed here. We layer a
	// local signal context over the provided one.
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := BuildConfig(opts)
	if err != nil {
		return err
	}

	// Build process-wide logger; defaults: level=info, format=text
	logCfg := &logpkg.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	}
	procLogger, err := logpkg.ApplyConfig(logCfg)
	if err != nil {
		// Fallback to a sane default
		lvl := logpkg.InfoLevel
		if l, e := logpkg.ParseLevel(logCfg.Level); e == nil {
			lvl = l
		}
		procLogger = logpkg.NewLogger(logpkg.WithLevel(lvl), logpkg.WithFormatter(&logpkg.TextFormatter{}))
	}

	// Redirect stdlib logs (e.g., Pebble) to our logger
	logpkg.RedirectStdLog(procLogger)

	collector := metrics.NewCollector(nil)
	storage := metrics.NewStorageMetrics(nil)

	storeDir := filepath.Join(cfg.DataDir, "store")
	rt, err := runtime.Open(runtime.Options{
		DataDir: storeDir,
		Fsync:   pebblestore.ParseFsyncMode(cfg.Fsync),
		Config:  cfg,
		Logger:  procLogger,
		Metrics: collector,
		Storage: storage,
	})
	if err != nil {
		return err
	}
	defer rt.Close()

	procLogger.Info("Starting quarry server",
		logpkg.Str("http", cfg.HTTPAddr),
		logpkg.Str("data_dir", cfg.DataDir),
		logpkg.Str("fsync", cfg.Fsync),
		logpkg.Str("level", logCfg.Level),
		logpkg.Str("format", logCfg.Format),
	)

	hsrv := httpserver.New(rt, procLogger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- hsrv.ListenAndServe(sctx, cfg.HTTPAddr)
	}()

	select {
	case <-sctx.Done():
	case err := <-errCh:
		if err != nil && sctx.Err() == nil {
			hsrv.Close()
			return err
		}
	}
	// Initiate graceful shutdown of the server before closing the runtime/DB.
	hsrv.Close()
	return nil
}
