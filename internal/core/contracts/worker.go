package contracts

import "context"

// TaskRunner runs detached side effects. The outcome of a task is visible
// only through logs and metrics, never to the caller that scheduled it.
type TaskRunner interface {
	Go(ctx context.Context, name string, fn func(ctx context.Context) error)
}
