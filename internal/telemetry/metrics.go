// Package telemetry holds the OpenTelemetry instruments shared by the API.
// Instruments come from the global meter provider, which is a no-op until an
// SDK provider is installed by the host process.
package telemetry

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/coedaniel/aws-propuestas-v3"

type instruments struct {
	capabilities     metric.Int64Counter
	upstreamFailures metric.Int64Counter
	proxyRequests    metric.Int64Counter
}

var (
	once sync.Once
	inst instruments
)

func get() *instruments {
	once.Do(func() {
		meter := otel.Meter(meterName)
		var err error
		if inst.capabilities, err = meter.Int64Counter("propuestas.capability.detected",
			metric.WithDescription("Capabilities detected in user messages")); err != nil {
			log.Warn().Err(err).Msg("Failed to create capability counter")
		}
		if inst.upstreamFailures, err = meter.Int64Counter("propuestas.upstream.failures",
			metric.WithDescription("Failed calls to the model runtime, MCP services or project API")); err != nil {
			log.Warn().Err(err).Msg("Failed to create upstream failure counter")
		}
		if inst.proxyRequests, err = meter.Int64Counter("propuestas.proxy.requests",
			metric.WithDescription("Requests relayed by the MCP proxy")); err != nil {
			log.Warn().Err(err).Msg("Failed to create proxy counter")
		}
	})
	return &inst
}

// CapabilityDetected counts one classification hit.
func CapabilityDetected(ctx context.Context, name string) {
	if c := get().capabilities; c != nil {
		c.Add(ctx, 1, metric.WithAttributes(attribute.String("capability", name)))
	}
}

// UpstreamFailure counts a failed outbound call.
func UpstreamFailure(ctx context.Context, upstream, op string) {
	if c := get().upstreamFailures; c != nil {
		c.Add(ctx, 1, metric.WithAttributes(
			attribute.String("upstream", upstream),
			attribute.String("op", op),
		))
	}
}

// ProxyRequest counts a relayed proxy request by service and final status.
func ProxyRequest(ctx context.Context, service string, status int) {
	if c := get().proxyRequests; c != nil {
		c.Add(ctx, 1, metric.WithAttributes(
			attribute.String("service", service),
			attribute.Int("status", status),
		))
	}
}
