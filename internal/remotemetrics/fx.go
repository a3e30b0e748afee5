package remotemetrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/sentinel/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("remotemetrics",
	fx.Invoke(Register),
)

// Register starts the periodic push loop when remote metrics are
// configured. A disabled or misconfigured setup registers nothing.
func Register(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("remotemetrics")

	pusher := NewPusher(cfg, logger)
	if pusher == nil {
		return
	}

	exp := newExporter(pusher, prometheus.DefaultGatherer, logger)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			exp.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return exp.Stop(ctx)
		},
	})
	logger.Info("remote metrics push enabled",
		zap.String("exporter", cfg.RemoteMetrics.Exporter),
	)
}
