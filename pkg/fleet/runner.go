package fleet

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/OjusWiZard/triton-bot/internal/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type TaskResult[T any] struct {
	Service *Service
	Value   T
	Err     error
}

// runAll runs fn for every service with at most `limit` running at once. Each task gets its
// own timeout; a failing or panicking task is captured in its result and never cancels the
// others. Results keep the fleet order.
func runAll[T any](
	ctx context.Context,
	services []*Service,
	limit int,
	timeout time.Duration,
	l *zap.Logger,
	fn func(ctx context.Context, svc *Service) (T, error),
) []TaskResult[T] {
	results := make([]TaskResult[T], len(services))

	g := new(errgroup.Group)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, svc := range services {
		i, svc := i, svc
		g.Go(func() error {
			results[i] = runOne(ctx, svc, timeout, l, fn)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func runOne[T any](
	ctx context.Context,
	svc *Service,
	timeout time.Duration,
	l *zap.Logger,
	fn func(ctx context.Context, svc *Service) (T, error),
) (result TaskResult[T]) {
	result.Service = svc

	taskCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			logger.ForService(l, svc.Name).Sugar().Errorw("Recovered from panic in service task",
				zap.Any("panic", r),
				zap.String("stack", string(debug.Stack())),
			)
			result.Err = fmt.Errorf("panic in task for %s: %v", svc.Name, r)
		}
	}()

	result.Value, result.Err = fn(taskCtx, svc)
	return result
}
