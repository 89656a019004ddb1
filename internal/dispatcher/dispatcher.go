// Package dispatcher runs crawl cycles asynchronously: requests queue on a
// bounded channel and a fixed worker pool drains them through the
// orchestrator.
package dispatcher

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/entigraph/entigraph/internal/kg"
)

// Defaults for pool sizing.
const (
	DefaultWorkers    = 2
	DefaultQueueDepth = 64
)

// ErrQueueFull is returned by Enqueue when the request queue is at capacity.
var ErrQueueFull = errors.New("dispatcher: queue full")

// ErrClosed is returned by Enqueue after the dispatcher has shut down.
var ErrClosed = errors.New("dispatcher: closed")

// Runner executes one crawl cycle. Implemented by the orchestrator.
type Runner interface {
	RunCrawlCycle(ctx context.Context, name string, kind kg.EntityKind, expansion bool) (kg.CycleResult, error)
}

// Request is one queued crawl cycle.
type Request struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Kind      kg.EntityKind `json:"kind"`
	Expansion bool          `json:"expansion"`
	Submitted time.Time     `json:"submitted"`
}

// State tracks a request through its lifecycle.
type State string

// Request states.
const (
	StateQueued  State = "queued"
	StateRunning State = "running"
	StateDone    State = "done"
	StateFailed  State = "failed"
)

// Status is the queryable view of one request.
type Status struct {
	Request  Request        `json:"request"`
	State    State          `json:"state"`
	Result   kg.CycleResult `json:"result,omitempty"`
	Error    string         `json:"error,omitempty"`
	Finished time.Time      `json:"finished,omitzero"`
}

// Config sizes the dispatcher.
type Config struct {
	Workers    int
	QueueDepth int
	// MaxHistory bounds retained finished statuses (default 512).
	MaxHistory int
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.QueueDepth <= 0 {
		c.QueueDepth = DefaultQueueDepth
	}
	if c.MaxHistory <= 0 {
		c.MaxHistory = 512
	}
	return c
}

// Dispatcher fans queued cycle requests out to a worker pool.
type Dispatcher struct {
	runner Runner
	idGen  kg.IDGenerator
	clock  kg.Clock
	cfg    Config
	logger *zap.Logger

	queue  chan Request
	closed chan struct{}

	mu      sync.RWMutex
	status  map[string]*Status
	history []string
}

// New creates a Dispatcher. Call Run to start the pool.
func New(runner Runner, idGen kg.IDGenerator, clock kg.Clock, cfg Config, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	return &Dispatcher{
		runner: runner,
		idGen:  idGen,
		clock:  clock,
		cfg:    cfg,
		logger: logger,
		queue:  make(chan Request, cfg.QueueDepth),
		closed: make(chan struct{}),
		status: make(map[string]*Status),
	}
}

// Run starts the worker pool and blocks until the context finishes and all
// in-flight cycles have drained.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < d.cfg.Workers; i++ {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			d.work(ctx, index)
		}(i)
	}
	<-ctx.Done()
	close(d.closed)
	wg.Wait()
}

// Enqueue queues a cycle request without blocking and returns its ID.
func (d *Dispatcher) Enqueue(_ context.Context, name string, kind kg.EntityKind, expansion bool) (string, error) {
	select {
	case <-d.closed:
		return "", ErrClosed
	default:
	}

	id, err := d.idGen.NewID()
	if err != nil {
		return "", err
	}
	req := Request{
		ID:        id,
		Name:      name,
		Kind:      kind,
		Expansion: expansion,
		Submitted: d.clock.Now(),
	}

	d.mu.Lock()
	d.status[id] = &Status{Request: req, State: StateQueued}
	d.mu.Unlock()

	select {
	case d.queue <- req:
		return id, nil
	default:
		d.mu.Lock()
		delete(d.status, id)
		d.mu.Unlock()
		return "", ErrQueueFull
	}
}

// Status returns the lifecycle view of a request.
func (d *Dispatcher) Status(id string) (Status, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	st, ok := d.status[id]
	if !ok {
		return Status{}, false
	}
	return *st, true
}

func (d *Dispatcher) work(ctx context.Context, index int) {
	logger := d.logger.With(zap.Int("worker", index))
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-d.queue:
			d.setState(req.ID, StateRunning, kg.CycleResult{}, nil)
			result, err := d.runner.RunCrawlCycle(ctx, req.Name, req.Kind, req.Expansion)
			if err != nil {
				logger.Warn("queued crawl cycle failed",
					zap.String("request_id", req.ID),
					zap.String("entity", req.Name),
					zap.Error(err),
				)
				d.setState(req.ID, StateFailed, kg.CycleResult{}, err)
				continue
			}
			d.setState(req.ID, StateDone, result, nil)
		}
	}
}

func (d *Dispatcher) setState(id string, state State, result kg.CycleResult, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.status[id]
	if !ok {
		return
	}
	st.State = state
	if state == StateDone {
		st.Result = result
	}
	if err != nil {
		st.Error = err.Error()
	}
	if state == StateDone || state == StateFailed {
		st.Finished = d.clock.Now()
		d.history = append(d.history, id)
		d.evictLocked()
	}
}

// evictLocked trims finished statuses beyond MaxHistory, oldest first.
func (d *Dispatcher) evictLocked() {
	for len(d.history) > d.cfg.MaxHistory {
		oldest := d.history[0]
		d.history = d.history[1:]
		delete(d.status, oldest)
	}
}
