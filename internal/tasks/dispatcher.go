// Package tasks bridges synchronous command admission and the blocking
// file / SQL work behind it. Requests enter a FIFO guarded by a mutex and
// condition variable; a fixed worker pool drains it, performs the blocking
// operation, and pushes results onto a second FIFO. Each pushed result sets
// a coalescing notifier so the controller thread knows to drain.
package tasks

import (
	"time"

	"github.com/airmettle/go-nvme-kv/internal/interfaces"
	"github.com/airmettle/go-nvme-kv/internal/kverr"
	"github.com/airmettle/go-nvme-kv/internal/query"
	"github.com/airmettle/go-nvme-kv/internal/store"
)

// Kind identifies the operation a task performs.
type Kind int

const (
	KindStore Kind = iota
	KindRetrieve
	KindList
	KindDelete
	KindExists
	KindSendSelect
)

// Request is one unit of blocking work. The dispatcher owns it from Submit
// until the worker has packaged the matching Result; Data is dropped with
// the request once the worker returns.
type Request struct {
	Kind         Kind
	Bus          uint32
	Namespace    uint32
	CmdHandle    interface{} // opaque controller request, never dereferenced here
	Key          []byte
	Data         []byte // pre-read host payload (STORE value / SELECT SQL text)
	MaxLength    uint64 // host buffer size (RETRIEVE) or listing cap (LIST)
	MustExist    bool
	MustNotExist bool
	Append       bool
	Offset       uint64
	SelectIn     query.DataType
	SelectOut    query.DataType
	InHeader     bool
	OutHeader    bool
}

// Result is the worker-side outcome handed back to the controller thread.
// Status is non-negative on success; negative values are kverr codes.
type Result struct {
	Kind      Kind
	CmdHandle interface{}
	Status    int64
	Data      []byte
	Keys      [][]byte // LIST only
	MaxLength uint64   // RETRIEVE: total object size
}

// Notifier mirrors an event notifier: Set is non-blocking and coalescing,
// and a receive from the channel blocks until at least one Set since the
// last receive.
type Notifier chan struct{}

// NewNotifier creates an unsignaled notifier.
func NewNotifier() Notifier {
	return make(Notifier, 1)
}

// Set signals the notifier. Repeated signals coalesce.
func (n Notifier) Set() {
	select {
	case n <- struct{}{}:
	default:
	}
}

// Config carries dispatcher construction parameters.
type Config struct {
	NumWorkers int
	Store      *store.Store
	Query      *query.Engine
	Notifier   Notifier
	Logger     interfaces.Logger
	Observer   interfaces.Observer
}

// Dispatcher owns the request and result queues and the worker pool.
type Dispatcher struct {
	requests fifo
	results  resultQueue
	store    *store.Store
	query    *query.Engine
	notifier Notifier
	logger   interfaces.Logger
	observer interfaces.Observer
}

// New creates a dispatcher and starts its workers.
func New(config Config) *Dispatcher {
	d := &Dispatcher{
		store:    config.Store,
		query:    config.Query,
		notifier: config.Notifier,
		logger:   config.Logger,
		observer: config.Observer,
	}
	d.requests.init()
	workers := config.NumWorkers
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		go d.run()
	}
	if d.logger != nil {
		d.logger.Debugf("task dispatcher started with %d workers", workers)
	}
	return d
}

// Submit appends a request and wakes one worker. Non-blocking.
func (d *Dispatcher) Submit(req *Request) {
	d.requests.push(req)
	if d.observer != nil {
		d.observer.ObserveQueueDepth(uint32(d.requests.len()))
	}
}

// NextResult pops the oldest pending result, or nil when the queue is
// empty. Called from the controller thread after a notifier wakeup.
func (d *Dispatcher) NextResult() *Result {
	return d.results.pop()
}

// Close stops the workers once the request queue is empty. Requests already
// picked up and requests still queued both run to completion.
func (d *Dispatcher) Close() {
	d.requests.close()
}

// run is the worker loop: pop a request (waiting on the condition variable
// when the queue is idle), execute it, push the result, signal the host.
func (d *Dispatcher) run() {
	for {
		req, ok := d.requests.popWait()
		if !ok {
			return
		}
		result := d.execute(req)
		req.Data = nil
		d.results.push(result)
		d.notifier.Set()
	}
}

// execute performs the blocking operation for one request.
func (d *Dispatcher) execute(req *Request) *Result {
	result := &Result{Kind: req.Kind, CmdHandle: req.CmdHandle, Status: -1}
	var start time.Time
	if d.observer != nil {
		start = time.Now()
	}

	switch req.Kind {
	case KindStore:
		n, err := d.store.Store(req.Bus, req.Namespace, req.Key, req.Data,
			req.Append, req.MustExist, req.MustNotExist)
		if err != nil {
			result.Status = int64(kverr.CodeOf(err))
		} else {
			result.Status = int64(n)
		}
		if d.observer != nil {
			d.observer.ObserveStore(uint64(n), sinceNs(start), err == nil)
		}

	case KindRetrieve:
		buf := make([]byte, req.MaxLength)
		n, total, err := d.store.Read(req.Bus, req.Namespace, req.Key, req.Offset, buf)
		if err != nil {
			result.Status = int64(kverr.CodeOf(err))
		} else {
			result.Status = int64(n)
			result.Data = buf[:n]
			result.MaxLength = total
		}
		if d.observer != nil {
			d.observer.ObserveRetrieve(uint64(n), sinceNs(start), err == nil)
		}

	case KindList:
		keys, err := d.store.List(req.Bus, req.Namespace, req.Key, req.Offset, req.MaxLength)
		if err != nil {
			result.Status = int64(kverr.CodeOf(err))
		} else {
			result.Status = 0
			result.Keys = keys
		}
		if d.observer != nil {
			d.observer.ObserveList(uint64(len(keys)), sinceNs(start), err == nil)
		}

	case KindDelete:
		err := d.store.Delete(req.Bus, req.Namespace, req.Key)
		if err != nil {
			result.Status = int64(kverr.CodeOf(err))
		} else {
			result.Status = 0
		}
		if d.observer != nil {
			d.observer.ObserveDelete(sinceNs(start), err == nil)
		}

	case KindExists:
		n, err := d.store.Exist(req.Bus, req.Namespace, req.Key)
		if err != nil {
			result.Status = int64(kverr.CodeOf(err))
		} else {
			result.Status = int64(n)
		}
		if d.observer != nil {
			d.observer.ObserveExist(sinceNs(start), err == nil)
		}

	case KindSendSelect:
		path, err := d.store.Path(req.Bus, req.Namespace, req.Key)
		var out []byte
		if err == nil {
			out, err = d.query.Query(path, string(req.Data),
				req.SelectIn, req.SelectOut, req.InHeader, req.OutHeader)
		}
		if err != nil {
			result.Status = int64(kverr.CodeOf(err))
		} else {
			result.Status = 0
			result.Data = out
		}
		if d.observer != nil {
			d.observer.ObserveSelect(uint64(len(out)), sinceNs(start), err == nil)
		}
	}

	if d.logger != nil && result.Status < 0 {
		d.logger.Debugf("task kind=%d failed with status %d", req.Kind, result.Status)
	}
	return result
}

func sinceNs(start time.Time) uint64 {
	return uint64(time.Since(start).Nanoseconds())
}
