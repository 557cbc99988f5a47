package videos

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// AssetRemover deletes objects from the media host.
type AssetRemover interface {
	Delete(ctx context.Context, key string) error
}

// JanitorConfig controls the concurrency characteristics of the janitor.
type JanitorConfig struct {
	QueueSize     int
	Workers       int
	DeleteTimeout time.Duration
}

// Janitor removes orphaned media objects in the background. Failures are logged
// and never retried.
type Janitor struct {
	remover AssetRemover
	logger  *slog.Logger
	timeout time.Duration

	jobs   chan string
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

// NewJanitor starts a worker pool deleting keys through remover.
func NewJanitor(remover AssetRemover, cfg JanitorConfig, logger *slog.Logger) *Janitor {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.DeleteTimeout <= 0 {
		cfg.DeleteTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	j := &Janitor{
		remover: remover,
		logger:  logger,
		timeout: cfg.DeleteTimeout,
		jobs:    make(chan string, cfg.QueueSize),
		ctx:     ctx,
		cancel:  cancel,
	}

	j.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go j.worker()
	}

	return j
}

// Discard schedules deletion of every non-empty key. It blocks while the queue
// is full and gives up when ctx ends.
func (j *Janitor) Discard(ctx context.Context, keys ...string) error {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return ErrJanitorClosed
	}

	for _, key := range keys {
		if key == "" {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case j.jobs <- key:
		}
	}
	return nil
}

// Shutdown stops accepting work and waits for queued deletions to finish.
// Deletions still running when ctx ends are cancelled.
func (j *Janitor) Shutdown(ctx context.Context) error {
	j.mu.Lock()
	if !j.closed {
		j.closed = true
		close(j.jobs)
	}
	j.mu.Unlock()

	done := make(chan struct{})
	go func() {
		j.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		j.cancel()
		return ctx.Err()
	case <-done:
		j.cancel()
		return nil
	}
}

func (j *Janitor) worker() {
	defer j.wg.Done()

	for key := range j.jobs {
		j.remove(key)
	}
}

func (j *Janitor) remove(key string) {
	if j.remover == nil {
		j.logger.Error("media janitor missing remover", "key", key)
		return
	}

	ctx, cancel := context.WithTimeout(j.ctx, j.timeout)
	defer cancel()

	if err := j.remover.Delete(ctx, key); err != nil {
		j.logger.Warn("discard media asset failed", "key", key, "error", err)
		return
	}
	j.logger.Debug("discarded media asset", "key", key)
}
