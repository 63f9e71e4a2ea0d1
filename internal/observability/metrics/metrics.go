// Package metrics exposes application-level otel instruments for the
// billing engine.
package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	invoiceOps         metric.Int64Counter
	paymentEvents      metric.Int64Counter
	loyaltySettlements metric.Int64Counter
	settlementLag      metric.Float64Histogram
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "zenbill"
	}
	meter := provider.Meter(name)

	invoiceOps, err := meter.Int64Counter("invoice_operations_total",
		metric.WithDescription("Invoice mutation operations by type and outcome"))
	if err != nil {
		return nil, err
	}
	paymentEvents, err := meter.Int64Counter("payment_events_total",
		metric.WithDescription("Payments recorded against invoices"))
	if err != nil {
		return nil, err
	}
	loyaltySettlements, err := meter.Int64Counter("loyalty_settlements_total",
		metric.WithDescription("Loyalty settlement attempts by result"))
	if err != nil {
		return nil, err
	}
	settlementLag, err := meter.Float64Histogram("loyalty_settlement_lag_seconds",
		metric.WithDescription("Delay between invoice commit and loyalty settlement"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		invoiceOps:         invoiceOps,
		paymentEvents:      paymentEvents,
		loyaltySettlements: loyaltySettlements,
		settlementLag:      settlementLag,
	}, nil
}

// RecordInvoiceOperation counts one mutation attempt.
func (m *Metrics) RecordInvoiceOperation(ctx context.Context, operation, outcome string) {
	if m == nil || m.invoiceOps == nil {
		return
	}
	m.invoiceOps.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	))
}

// RecordPaymentEvent counts one accepted payment.
func (m *Metrics) RecordPaymentEvent(ctx context.Context, method string) {
	if m == nil || m.paymentEvents == nil {
		return
	}
	m.paymentEvents.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
	))
}

// RecordLoyaltySettlement counts one settlement attempt by result.
func (m *Metrics) RecordLoyaltySettlement(ctx context.Context, result string) {
	if m == nil || m.loyaltySettlements == nil {
		return
	}
	m.loyaltySettlements.Add(ctx, 1, metric.WithAttributes(
		attribute.String("result", result),
	))
}

// ObserveSettlementLag records how far behind the worker is running.
func (m *Metrics) ObserveSettlementLag(ctx context.Context, lag time.Duration) {
	if m == nil || m.settlementLag == nil {
		return
	}
	m.settlementLag.Record(ctx, lag.Seconds())
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "", "grpc":
		return otlpmetricgrpc.New(context.Background(),
			otlpmetricgrpc.WithEndpoint(endpoint),
			otlpmetricgrpc.WithInsecure(),
		)
	case "http":
		return otlpmetrichttp.New(context.Background(),
			otlpmetrichttp.WithEndpoint(endpoint),
			otlpmetrichttp.WithInsecure(),
		)
	default:
		return nil, fmt.Errorf("unsupported metrics protocol %q", protocol)
	}
}
