package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"chaty/internal/metrics"
	"chaty/pkg/logging"
)

// TaskPool runs fire-and-forget side effects detached from the caller's
// cancellation, each bounded by a timeout.
type TaskPool struct {
	log     *slog.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewTaskPool(log *slog.Logger, timeout time.Duration) *TaskPool {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &TaskPool{log: log, timeout: timeout}
}

func (p *TaskPool) Go(ctx context.Context, name string, fn func(ctx context.Context) error) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		taskCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
		defer cancel()

		err := p.run(taskCtx, fn)
		if err != nil {
			metrics.DetachedTasks.WithLabelValues(name, "error").Inc()
			logging.FromContext(ctx, p.log).Warn("worker - detached task - failed", "task", name, logging.Err(err))
			return
		}
		metrics.DetachedTasks.WithLabelValues(name, "ok").Inc()
	}()
}

func (p *TaskPool) run(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}

// Wait blocks until every scheduled task has returned.
func (p *TaskPool) Wait() {
	p.wg.Wait()
}
