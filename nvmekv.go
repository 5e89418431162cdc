// Package nvmekv implements the device-side backend of an NVMe Key-Value
// command set: opcode decoding, a worker pool for the blocking file and SQL
// work, a content-addressed object store, and the select extension's result
// cache. The surrounding NVMe controller remains an external collaborator,
// attached through two callbacks: MapPayload for host DMA access and
// Complete for posting completions.
package nvmekv

import (
	"context"
	"fmt"

	"github.com/airmettle/go-nvme-kv/internal/config"
	"github.com/airmettle/go-nvme-kv/internal/logging"
	"github.com/airmettle/go-nvme-kv/internal/query"
	"github.com/airmettle/go-nvme-kv/internal/selectcache"
	"github.com/airmettle/go-nvme-kv/internal/store"
	"github.com/airmettle/go-nvme-kv/internal/tasks"
	"github.com/airmettle/go-nvme-kv/internal/uapi"
)

// Request is one in-flight KV command. The surrounding controller creates
// it from a submission queue entry and gets it back unchanged through the
// Complete callback; the core treats it as opaque beyond Cmd, Bus, and the
// payload handle attached during decode.
type Request struct {
	Cmd     uapi.KvCmd
	Bus     uint32 // PCI bus number, partitioning the key space with NSID
	Payload PayloadHandle
}

// Params configures a runtime. Zero values fall back to the environment
// (KV_BASE_DIR, KV_NUM_THREADS, KV_NUM_DB_CONNS) and then to defaults.
type Params struct {
	BaseDir    string
	NumThreads int
	NumDBConns int

	// MapPayload maps the host DMA region for a request. Required.
	MapPayload MapPayloadFunc

	// Complete posts deferred completions. Required.
	Complete CompleteFunc
}

// Options contains additional knobs for runtime creation.
type Options struct {
	// Context for shutdown (if nil, uses context.Background())
	Context context.Context

	// Logger for debug/info messages (if nil, the package default logger
	// is used)
	Logger Logger

	// Observer for metrics collection (if nil, uses the built-in metrics)
	Observer Observer
}

// Runtime owns the four core subsystems for one emulated controller. It is
// the Go shape of the original's module-scope singletons: constructed at
// controller bring-up, torn down at shutdown.
type Runtime struct {
	store      *store.Store
	engine     *query.Engine
	cache      *selectcache.Cache
	dispatcher *tasks.Dispatcher
	notifier   tasks.Notifier

	mapPayload MapPayloadFunc
	complete   CompleteFunc

	metrics  *Metrics
	observer Observer
	logger   Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a runtime and starts its worker pool and completion loop.
func New(params Params, options *Options) (*Runtime, error) {
	if params.MapPayload == nil || params.Complete == nil {
		return nil, fmt.Errorf("nvmekv: MapPayload and Complete callbacks are required")
	}
	if options == nil {
		options = &Options{}
	}
	ctx := options.Context
	if ctx == nil {
		ctx = context.Background()
	}

	env := config.Load()
	if params.BaseDir == "" {
		params.BaseDir = env.BaseDir
	}
	if params.NumThreads <= 0 {
		params.NumThreads = env.NumThreads
	}
	if params.NumDBConns <= 0 {
		params.NumDBConns = env.NumDBConns
	}

	logger := options.Logger
	if logger == nil {
		logger = logging.Default().WithComponent("nvmekv")
	}

	engine, err := query.New(params.NumDBConns, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open query engine: %w", err)
	}

	metrics := NewMetrics()
	var observer Observer = NewMetricsObserver(metrics)
	if options.Observer != nil {
		observer = options.Observer
	}

	r := &Runtime{
		store:      store.New(params.BaseDir),
		engine:     engine,
		cache:      selectcache.New(),
		notifier:   tasks.NewNotifier(),
		mapPayload: params.MapPayload,
		complete:   params.Complete,
		metrics:    metrics,
		observer:   observer,
		logger:     logger,
	}
	r.ctx, r.cancel = context.WithCancel(ctx)

	r.dispatcher = tasks.New(tasks.Config{
		NumWorkers: params.NumThreads,
		Store:      r.store,
		Query:      r.engine,
		Notifier:   r.notifier,
		Logger:     logger,
		Observer:   observer,
	})

	go r.completionLoop()

	logger.Debugf("runtime started: base=%s workers=%d db_conns=%d",
		params.BaseDir, params.NumThreads, params.NumDBConns)
	return r, nil
}

// Close stops the completion loop and worker pool and releases the query
// engine. In-flight tasks finish; their completions are dropped.
func (r *Runtime) Close() error {
	r.cancel()
	r.dispatcher.Close()
	return r.engine.Close()
}

// Metrics returns the runtime's built-in metrics.
func (r *Runtime) Metrics() *Metrics {
	return r.metrics
}

// BaseDir returns the object store root.
func (r *Runtime) BaseDir() string {
	return r.store.BaseDir()
}

// completionLoop plays the main-thread role: every notifier wakeup drains
// the result queue and posts completions. It is the only goroutine that
// calls the Complete callback.
func (r *Runtime) completionLoop() {
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-r.notifier:
			r.DrainResults()
		}
	}
}

// DrainResults translates every pending task result into a completion.
// Exported for hosts that embed the runtime into their own event loop
// instead of relying on the built-in completion goroutine.
func (r *Runtime) DrainResults() {
	for {
		result := r.dispatcher.NextResult()
		if result == nil {
			return
		}
		req := result.CmdHandle.(*Request)
		status, cqeResult := r.shapeCompletion(req, result)
		if status != uapi.StatusSuccess {
			status |= uapi.StatusDNR
		}
		r.complete(req, status, cqeResult)
	}
}
