package remotemetrics

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const exportInterval = 15 * time.Second

// exporter pushes a snapshot on a fixed interval. Failures log once and
// then stay quiet until a push succeeds again, so a long outage of the
// central Prometheus does not flood the local log.
type exporter struct {
	pusher   Pusher
	gatherer prometheus.Gatherer
	logger   *zap.Logger
	interval time.Duration

	stopCh    chan struct{}
	doneCh    chan struct{}
	errorOnce atomic.Bool
}

func newExporter(pusher Pusher, gatherer prometheus.Gatherer, logger *zap.Logger) *exporter {
	return &exporter{
		pusher:   pusher,
		gatherer: gatherer,
		logger:   logger,
		interval: exportInterval,
	}
}

func (e *exporter) Start() {
	if e == nil || e.stopCh != nil {
		return
	}
	e.stopCh = make(chan struct{})
	e.doneCh = make(chan struct{})

	go func() {
		defer close(e.doneCh)
		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()
		e.exportOnce()
		for {
			select {
			case <-ticker.C:
				e.exportOnce()
			case <-e.stopCh:
				return
			}
		}
	}()
}

func (e *exporter) Stop(ctx context.Context) error {
	if e == nil || e.stopCh == nil {
		return nil
	}
	close(e.stopCh)
	select {
	case <-e.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *exporter) exportOnce() {
	if e == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), defaultPushTimeout)
	defer cancel()

	if err := e.pusher.Push(ctx, e.gatherer); err != nil {
		if e.errorOnce.CompareAndSwap(false, true) {
			e.logger.Warn("remote metrics push failed", zap.Error(err))
		}
		return
	}
	e.errorOnce.Store(false)
}
