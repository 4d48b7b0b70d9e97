// Package route contains the bridge's routing core: the two directional
// message routers, chat provisioning, delivery-error classification, and the
// status router. Routers consume provider contracts from the bridge package
// and identity links from the link store; they never talk HTTP themselves.
package route

import (
	"context"
	"log/slog"
)

// Runner executes work detached from the request path.
type Runner interface {
	Run(name string, fn func(ctx context.Context))
}

// Tasks runs each task in its own goroutine with panic recovery. Tasks are
// never awaited and do not inherit the webhook request context, so an early
// 200 response cannot cancel them.
type Tasks struct {
	logger *slog.Logger
}

func NewTasks(log *slog.Logger) *Tasks {
	if log == nil {
		log = slog.Default()
	}
	return &Tasks{logger: log.With(slog.String("component", "tasks"))}
}

func (t *Tasks) Run(name string, fn func(ctx context.Context)) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				t.logger.Error("background task panicked",
					slog.String("task", name),
					slog.Any("panic", r))
			}
		}()
		fn(context.Background())
	}()
}
