// Package tasks runs background work for the memory service: summarization,
// promotion, indexing, and extraction. Work is queued in-process and executed
// by a bounded worker pool; enqueueing never blocks request handlers.
package tasks

import (
	"context"
	"fmt"
	"sync"

	"github.com/mnemo-ai/mnemo/retry"
	"github.com/mnemo-ai/mnemo/slogger"
)

// Defaults for the pool.
const (
	DefaultWorkers   = 4
	DefaultQueueSize = 256
)

// Task is one unit of background work. Tasks must be safe to re-run.
type Task struct {
	// Name identifies the task type in logs, e.g. "summarize".
	Name string

	// Key enables at-most-one coalescing: while a task with the same key
	// is queued or running, later enqueues are dropped. Empty disables
	// coalescing.
	Key string

	// Run does the work. Transient errors are retried per the runner's
	// policy; other errors are logged and dropped.
	Run func(ctx context.Context) error
}

// Runner is the background worker pool.
type Runner struct {
	queue  chan *Task
	policy retry.Policy
	logger slogger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	keyed  map[string]struct{}
	closed bool
}

// Option configures a Runner.
type Option func(*runnerConfig)

type runnerConfig struct {
	workers   int
	queueSize int
	policy    retry.Policy
	logger    slogger.Logger
}

// WithWorkers sets the number of concurrent workers.
func WithWorkers(n int) Option {
	return func(c *runnerConfig) { c.workers = n }
}

// WithQueueSize bounds the number of queued tasks.
func WithQueueSize(n int) Option {
	return func(c *runnerConfig) { c.queueSize = n }
}

// WithRetryPolicy overrides the retry policy for transient task failures.
func WithRetryPolicy(p retry.Policy) Option {
	return func(c *runnerConfig) { c.policy = p }
}

// WithLogger sets the pool's logger.
func WithLogger(logger slogger.Logger) Option {
	return func(c *runnerConfig) { c.logger = logger }
}

// NewRunner creates and starts a worker pool.
func NewRunner(opts ...Option) *Runner {
	cfg := &runnerConfig{
		workers:   DefaultWorkers,
		queueSize: DefaultQueueSize,
		policy:    retry.DefaultPolicy(),
		logger:    slogger.DefaultLogger,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		queue:  make(chan *Task, cfg.queueSize),
		policy: cfg.policy,
		logger: cfg.logger,
		ctx:    ctx,
		cancel: cancel,
		keyed:  make(map[string]struct{}),
	}
	for i := 0; i < cfg.workers; i++ {
		r.wg.Add(1)
		go r.worker()
	}
	return r
}

// Enqueue schedules a task. It returns false when the task was dropped:
// duplicate key, saturated queue, or pool shut down.
func (r *Runner) Enqueue(task *Task) bool {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return false
	}
	if task.Key != "" {
		if _, dup := r.keyed[task.Key]; dup {
			r.mu.Unlock()
			return false
		}
		r.keyed[task.Key] = struct{}{}
	}

	// The send happens under the same lock as the closed check so Shutdown
	// cannot close the queue between them. The queue is buffered and the
	// default arm keeps this non-blocking.
	select {
	case r.queue <- task:
		r.mu.Unlock()
		return true
	default:
		if task.Key != "" {
			delete(r.keyed, task.Key)
		}
		r.mu.Unlock()
		r.logger.Warn("task queue saturated, dropping task", "task", task.Name)
		return false
	}
}

// Shutdown stops accepting tasks and drains the queue. When ctx expires
// first, in-flight tasks are cancelled and Shutdown returns the context
// error after workers exit.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.cancel()
		return nil
	case <-ctx.Done():
		r.cancel()
		<-done
		return ctx.Err()
	}
}

func (r *Runner) worker() {
	defer r.wg.Done()
	for task := range r.queue {
		r.execute(task)
	}
}

func (r *Runner) execute(task *Task) {
	defer r.release(task)
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("task panicked", "task", task.Name, "panic", fmt.Sprint(p))
		}
	}()

	ctx := slogger.WithLogger(r.ctx, r.logger)
	err := r.policy.Do(ctx, func() error {
		return task.Run(ctx)
	})
	if err != nil && r.ctx.Err() == nil {
		r.logger.Error("task failed", "task", task.Name, "error", err)
	}
}

func (r *Runner) release(task *Task) {
	if task.Key == "" {
		return
	}
	r.mu.Lock()
	delete(r.keyed, task.Key)
	r.mu.Unlock()
}
