package storage

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var persistFailures = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "storefront_persist_failures_total",
		Help: "Best-effort storage writes that failed and were dropped",
	},
	[]string{"key"},
)

const defaultWriteTimeout = 5 * time.Second

type pendingOp struct {
	value  string
	remove bool
}

// Persister applies writes to a KV asynchronously on a single worker
// goroutine. Pending writes to the same key are coalesced so only the latest
// value is written. Failures are logged and counted, never returned.
type Persister struct {
	kv           KV
	logger       *slog.Logger
	writeTimeout time.Duration

	mu       sync.Mutex
	pending  map[string]pendingOp
	order    []string
	inflight map[string]pendingOp
	closed   bool

	wake    chan struct{}
	flushes chan chan struct{}
	done    chan struct{}
	stopped chan struct{}
}

// NewPersister starts the worker. Call Close to stop it.
func NewPersister(kv KV, logger *slog.Logger) *Persister {
	p := &Persister{
		kv:           kv,
		logger:       logger,
		writeTimeout: defaultWriteTimeout,
		pending:      make(map[string]pendingOp),
		inflight:     make(map[string]pendingOp),
		wake:         make(chan struct{}, 1),
		flushes:      make(chan chan struct{}),
		done:         make(chan struct{}),
		stopped:      make(chan struct{}),
	}
	go p.run()
	return p
}

// Save queues value for key and returns immediately.
func (p *Persister) Save(key, value string) {
	p.enqueue(key, pendingOp{value: value})
}

// Remove queues deletion of key and returns immediately.
func (p *Persister) Remove(key string) {
	p.enqueue(key, pendingOp{remove: true})
}

func (p *Persister) enqueue(key string, op pendingOp) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.logger.Warn("persister closed, dropping write", slog.String("key", key))
		return
	}
	if _, queued := p.pending[key]; !queued {
		p.order = append(p.order, key)
	}
	p.pending[key] = op
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Lookup returns the newest write for key that has not reached the backend
// yet. removed is true when that write is a deletion.
func (p *Persister) Lookup(key string) (value string, removed, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	op, ok := p.pending[key]
	if !ok {
		op, ok = p.inflight[key]
	}
	return op.value, op.remove, ok
}

// Flush blocks until every write queued before the call has been applied.
func (p *Persister) Flush(ctx context.Context) error {
	reply := make(chan struct{})
	select {
	case p.flushes <- reply:
	case <-p.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-reply:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close flushes outstanding writes and stops the worker. Writes queued after
// Close are dropped.
func (p *Persister) Close(ctx context.Context) error {
	err := p.Flush(ctx)

	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.done)
	}
	p.mu.Unlock()

	select {
	case <-p.stopped:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}

func (p *Persister) run() {
	defer close(p.stopped)
	for {
		select {
		case <-p.wake:
			p.drain()
		case reply := <-p.flushes:
			p.drain()
			close(reply)
		case <-p.done:
			p.drain()
			return
		}
	}
}

func (p *Persister) drain() {
	for {
		key, op, ok := p.next()
		if !ok {
			return
		}
		p.apply(key, op)
		p.mu.Lock()
		delete(p.inflight, key)
		p.mu.Unlock()
	}
}

func (p *Persister) next() (string, pendingOp, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.order) == 0 {
		return "", pendingOp{}, false
	}
	key := p.order[0]
	p.order = p.order[1:]
	op := p.pending[key]
	delete(p.pending, key)
	p.inflight[key] = op
	return key, op, true
}

func (p *Persister) apply(key string, op pendingOp) {
	ctx, cancel := context.WithTimeout(context.Background(), p.writeTimeout)
	defer cancel()

	var err error
	if op.remove {
		err = p.kv.RemoveItem(ctx, key)
	} else {
		err = p.kv.SetItem(ctx, key, op.value)
	}
	if err != nil {
		persistFailures.WithLabelValues(metricLabel(key)).Inc()
		p.logger.Warn("persist failed",
			slog.String("key", key),
			slog.Bool("remove", op.remove),
			slog.String("error", err.Error()),
		)
	}
}

// metricLabel strips the device namespace so the label stays low-cardinality.
func metricLabel(key string) string {
	if i := strings.LastIndexByte(key, ':'); i >= 0 {
		return key[i+1:]
	}
	return key
}
