// Package server manages process lifecycle: ordered service startup, signal
// handling, and reverse-order shutdown with a per-service stop deadline.
package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// DefaultStopTimeout bounds how long one service may take to stop before the
// lifecycle gives up on it and moves to the next.
const DefaultStopTimeout = 15 * time.Second

// Service is a long-running component. Start blocks until the service exits;
// Stop asks it to exit and returns once it has drained.
type Service interface {
	Start() error
	Stop()
}

// FuncService adapts bare functions into a Service. Either function may be
// nil: a nil StartFn returns immediately, a nil StopFn is a no-op.
type FuncService struct {
	StartFn func() error
	StopFn  func()
}

func (f *FuncService) Start() error {
	if f.StartFn == nil {
		return nil
	}
	return f.StartFn()
}

func (f *FuncService) Stop() {
	if f.StopFn != nil {
		f.StopFn()
	}
}

// Lifecycle starts registered services in order and stops them in reverse on
// the first termination signal, service failure, or context cancellation.
type Lifecycle struct {
	logger      *zap.Logger
	stopTimeout time.Duration

	mu       sync.Mutex
	services []registration
}

type registration struct {
	name string
	svc  Service
}

// NewLifecycle creates a Lifecycle manager.
//
// Precondition: logger must be non-nil.
func NewLifecycle(logger *zap.Logger) *Lifecycle {
	return &Lifecycle{logger: logger, stopTimeout: DefaultStopTimeout}
}

// SetStopTimeout overrides the per-service stop deadline.
//
// Precondition: d > 0.
func (l *Lifecycle) SetStopTimeout(d time.Duration) {
	l.stopTimeout = d
}

// Add registers a named service. Services start in registration order and
// stop in reverse.
//
// Precondition: name must be non-empty; svc must be non-nil.
func (l *Lifecycle) Add(name string, svc Service) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.services = append(l.services, registration{name: name, svc: svc})
}

// Run starts every registered service and blocks until SIGINT or SIGTERM
// arrives, a service fails, or ctx is cancelled. It then stops all services
// in reverse order.
//
// Postcondition: Every registered service has been asked to stop when Run returns.
// Postcondition: Returns the first service failure, or nil on a clean shutdown.
func (l *Lifecycle) Run(ctx context.Context) error {
	start := time.Now()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	failures := make(chan error, len(l.services))
	for _, reg := range l.services {
		reg := reg
		go func() {
			l.logger.Info("starting service", zap.String("service", reg.name))
			if err := reg.svc.Start(); err != nil {
				l.logger.Error("service failed",
					zap.String("service", reg.name),
					zap.Error(err),
				)
				failures <- fmt.Errorf("service %s: %w", reg.name, err)
			}
		}()
	}

	l.logger.Info("all services started",
		zap.Int("count", len(l.services)),
		zap.Duration("startup", time.Since(start)),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var cause error
	select {
	case sig := <-sigCh:
		l.logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
	case cause = <-failures:
		l.logger.Error("service error, shutting down", zap.Error(cause))
	case <-ctx.Done():
		l.logger.Info("context cancelled, shutting down")
	}

	l.shutdown()

	l.logger.Info("shutdown complete", zap.Duration("total_uptime", time.Since(start)))
	return cause
}

// shutdown stops services in reverse registration order. A service that
// exceeds the stop deadline is abandoned with a warning so one stuck Stop
// cannot wedge the whole exit.
func (l *Lifecycle) shutdown() {
	shutdownStart := time.Now()
	for i := len(l.services) - 1; i >= 0; i-- {
		reg := l.services[i]
		svcStart := time.Now()
		l.logger.Info("stopping service", zap.String("service", reg.name))

		done := make(chan struct{})
		go func() {
			defer close(done)
			reg.svc.Stop()
		}()

		select {
		case <-done:
			l.logger.Info("service stopped",
				zap.String("service", reg.name),
				zap.Duration("elapsed", time.Since(svcStart)),
			)
		case <-time.After(l.stopTimeout):
			l.logger.Warn("service stop timed out",
				zap.String("service", reg.name),
				zap.Duration("deadline", l.stopTimeout),
			)
		}
	}
	l.logger.Info("all services stopped",
		zap.Duration("shutdown_elapsed", time.Since(shutdownStart)),
	)
}
