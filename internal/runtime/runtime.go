package runtime

import (
	"context"
	"errors"
	"time"

	cfgpkg "github.com/rzbill/quarry/internal/config"
	"github.com/rzbill/quarry/internal/events"
	"github.com/rzbill/quarry/internal/metrics"
	"github.com/rzbill/quarry/internal/queue"
	pebblestore "github.com/rzbill/quarry/internal/storage/pebble"
	logpkg "github.com/rzbill/quarry/pkg/log"
)

// Options for building the Runtime.
type Options struct {
	DataDir string
	Fsync   pebblestore.FsyncMode
	Config  cfgpkg.Config
	Logger  logpkg.Logger
	// Metrics selects the Prometheus registry; nil registers nothing.
	Metrics *metrics.Collector
	Storage *metrics.StorageMetrics
}

// Runtime wires storage, config, the queue engine, and the event hub for a
// single-node instance.
type Runtime struct {
	db      *pebblestore.DB
	config  cfgpkg.Config
	logger  logpkg.Logger
	engine  *queue.Engine
	hub     *events.Hub
	metrics *metrics.Collector
}

// Open initializes the underlying storage and the queue engine.
func Open(opts Options) (*Runtime, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewLogger(logpkg.WithLevel(logpkg.InfoLevel))
	}

	var hook pebblestore.MetricsHook
	if opts.Storage != nil {
		hook = opts.Storage
	}
	db, err := pebblestore.Open(pebblestore.Options{
		DataDir:       opts.DataDir,
		Fsync:         opts.Fsync,
		FsyncInterval: time.Duration(opts.Config.FsyncIntervalMs) * time.Millisecond,
		Metrics:       hook,
	})
	if err != nil {
		return nil, err
	}

	hub := events.New(logger)
	var emitter queue.Emitter = hub
	if opts.Metrics != nil {
		emitter = &countingEmitter{next: hub, metrics: opts.Metrics}
	}
	eng := queue.Open(db, queue.Options{
		DefaultRetries:           opts.Config.Queue.DefaultRetries,
		DefaultLeaseMs:           opts.Config.Queue.DefaultLeaseMs,
		PreserveRetriesOnRequeue: opts.Config.Queue.RequeuePreservesRetries,
		CompletedLimit:           opts.Config.Queue.CompletedLimit,
		Logger:                   logger.WithComponent("queue"),
		Emitter:                  emitter,
	})

	if opts.Config.Sweeper.Enabled {
		eng.StartSweeper(time.Duration(opts.Config.Sweeper.IntervalMs) * time.Millisecond)
	}

	return &Runtime{
		db:      db,
		config:  opts.Config,
		logger:  logger,
		engine:  eng,
		hub:     hub,
		metrics: opts.Metrics,
	}, nil
}

// countingEmitter feeds lease reclaims into the Prometheus collector before
// forwarding to the hub. Reclaims happen inside engine read paths, so the
// event stream is the only place they surface.
type countingEmitter struct {
	next    queue.Emitter
	metrics *metrics.Collector
}

func (c *countingEmitter) Emit(ev queue.Event) {
	if ev.Type == queue.EventReclaimed {
		c.metrics.IncReclaimed()
	}
	c.next.Emit(ev)
}

// Close stops the engine and closes underlying resources.
func (r *Runtime) Close() error {
	if r.engine != nil {
		r.engine.Close()
	}
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// CheckHealth performs a simple health check.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.db == nil {
		return errors.New("db not open")
	}
	it, err := r.db.NewIter(nil)
	if err != nil {
		return err
	}
	it.Close()
	return nil
}

// Engine returns the queue engine.
func (r *Runtime) Engine() *queue.Engine { return r.engine }

// Events returns the lifecycle event hub.
func (r *Runtime) Events() *events.Hub { return r.hub }

// Metrics returns the Prometheus collector; may be nil.
func (r *Runtime) Metrics() *metrics.Collector { return r.metrics }

// DB exposes the underlying DB for advanced operations (internal use only).
func (r *Runtime) DB() *pebblestore.DB { return r.db }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }

// Logger returns the runtime's base logger.
func (r *Runtime) Logger() logpkg.Logger { return r.logger }
