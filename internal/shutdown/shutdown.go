package shutdown

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

func CreateGracefulShutdownChannel() chan os.Signal {
	gracefulShutdown := make(chan os.Signal, 1)
	signal.Notify(gracefulShutdown, syscall.SIGTERM, syscall.SIGINT)

	return gracefulShutdown
}

// ListenForShutdown blocks until a termination signal arrives or ctx is done, runs
// signalHandler, then waits up to timeToWait for done to be closed by the caller.
func ListenForShutdown(
	ctx context.Context,
	signalChan chan os.Signal,
	done <-chan struct{},
	signalHandler func(),
	timeToWait time.Duration,
	l *zap.Logger,
) {
	select {
	case sig := <-signalChan:
		l.Sugar().Infof("caught signal %v", sig)
	case <-ctx.Done():
		l.Sugar().Infow("Context cancelled, shutting down")
	}

	signalHandler()

	l.Sugar().Infof("Waiting up to %v seconds to exit...", timeToWait.Seconds())
	select {
	case <-done:
	case <-time.After(timeToWait):
		l.Sugar().Warnw("Timed out waiting for jobs to finish")
	}
	l.Sugar().Infof("Exiting")
}
