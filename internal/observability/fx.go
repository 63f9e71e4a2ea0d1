package observability

import (
	"github.com/zenbill/zenbill/internal/config"
	"github.com/zenbill/zenbill/internal/observability/metrics"
	"go.uber.org/fx"
)

// Module wires the metrics provider and domain instruments.
var Module = fx.Module("observability",
	fx.Provide(func(cfg config.Config) metrics.Config {
		return metrics.Config{
			Enabled:          cfg.MetricsEnabled,
			ExporterEndpoint: cfg.MetricsEndpoint,
			ExporterProtocol: cfg.MetricsProtocol,
			ServiceName:      cfg.AppName,
		}
	}),
	fx.Provide(metrics.NewProvider),
	fx.Provide(metrics.New),
)
