package events

import (
	"context"
	"fmt"

	"go.uber.org/fx"

	"github.com/Aleph-Alpha/schema-registry/v1/tracer"
)

// FXModule provides the Publisher selected by Config.Enabled and Config.Transport.
var FXModule = fx.Module("events",
	fx.Provide(NewPublisherWithDI),
	fx.Invoke(RegisterPublisherLifecycle),
)

// PublisherParams groups the dependencies of NewPublisherWithDI.
type PublisherParams struct {
	fx.In

	Config Config
	Tracer *tracer.Tracer `optional:"true"`
	Logger Logger
}

// NewPublisherWithDI returns the publisher of the configured transport when
// events are enabled and Noop otherwise.
func NewPublisherWithDI(params PublisherParams) (Publisher, error) {
	if !params.Config.Enabled {
		return Noop{}, nil
	}
	var carrier TraceCarrier
	if params.Tracer != nil {
		carrier = params.Tracer
	}
	switch params.Config.Transport {
	case "", TransportKafka:
		return NewKafkaPublisher(params.Config, carrier, params.Logger)
	case TransportRabbitMQ:
		return NewRabbitPublisher(params.Config.RabbitMQ, carrier, params.Logger)
	default:
		return nil, fmt.Errorf("events: unknown transport %q", params.Config.Transport)
	}
}

// RegisterPublisherLifecycle closes the publisher on shutdown.
func RegisterPublisherLifecycle(lc fx.Lifecycle, p Publisher, logger Logger) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			logger.Info("closing event publisher", nil)
			return p.Close()
		},
	})
}
