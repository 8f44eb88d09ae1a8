package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const rabbitHeartbeat = 2 * time.Second

// amqpChannel is the part of *amqp.Channel the publisher uses.
type amqpChannel interface {
	PublishWithDeferredConfirmWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) (*amqp.DeferredConfirmation, error)
	Close() error
}

// RabbitPublisher publishes events to a RabbitMQ exchange with publisher
// confirms, so Publish returns only after the broker accepted the message.
type RabbitPublisher struct {
	conn     *amqp.Connection
	channel  amqpChannel
	exchange string
	tracer   TraceCarrier
	logger   Logger

	mu        sync.Mutex
	closeOnce sync.Once
}

// NewRabbitPublisher connects, enables confirms and declares the exchange.
func NewRabbitPublisher(cfg RabbitConfig, tracer TraceCarrier, logger Logger) (*RabbitPublisher, error) {
	cfg = rabbitDefaults(cfg)
	if cfg.Host == "" {
		return nil, errors.New("events: no RabbitMQ host configured")
	}

	amqpCfg := amqp.Config{Heartbeat: rabbitHeartbeat}
	if cfg.TLS.Enabled {
		tlsConfig, err := createTLSConfig(cfg.TLS)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
		amqpCfg.TLSClientConfig = tlsConfig
	}

	conn, err := amqp.DialConfig(rabbitURL(cfg), amqpCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to enable publisher confirms: %w", err)
	}
	err = ch.ExchangeDeclare(
		cfg.Exchange,
		cfg.ExchangeType,
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", cfg.Exchange, err)
	}

	logger.Info("rabbitmq event publisher initialized", nil, map[string]interface{}{
		"host":     cfg.Host,
		"exchange": cfg.Exchange,
	})
	p := newRabbitPublisher(ch, cfg.Exchange, tracer, logger)
	p.conn = conn
	return p, nil
}

func newRabbitPublisher(ch amqpChannel, exchange string, tracer TraceCarrier, logger Logger) *RabbitPublisher {
	return &RabbitPublisher{channel: ch, exchange: exchange, tracer: tracer, logger: logger}
}

func rabbitDefaults(cfg RabbitConfig) RabbitConfig {
	if cfg.Port == 0 {
		cfg.Port = 5672
	}
	if cfg.Exchange == "" {
		cfg.Exchange = DefaultExchange
	}
	if cfg.ExchangeType == "" {
		cfg.ExchangeType = DefaultExchangeType
	}
	return cfg
}

func rabbitURL(cfg RabbitConfig) string {
	scheme := "amqp"
	if cfg.TLS.Enabled {
		scheme = "amqps"
	}
	u := url.URL{
		Scheme: scheme,
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   cfg.Host + ":" + strconv.FormatUint(uint64(cfg.Port), 10),
		Path:   "/" + strings.TrimPrefix(cfg.VHost, "/"),
	}
	return u.String()
}

// RoutingKey is the routing key of events of type t.
func RoutingKey(t Type) string {
	return "registry." + string(t)
}

// Publish sends event and waits for the broker's confirmation.
func (p *RabbitPublisher) Publish(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	headers := amqp.Table{
		"event-type": string(event.Type),
		"event-id":   event.ID,
		"event-key":  event.Key(),
	}
	if p.tracer != nil {
		for k, v := range p.tracer.GetCarrier(ctx) {
			headers[k] = v
		}
	}

	msg := amqp.Publishing{
		Headers:      headers,
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.ID,
		Timestamp:    event.Time,
		Type:         string(event.Type),
		Body:         body,
	}

	// A channel is not safe for concurrent publishing.
	p.mu.Lock()
	confirm, err := p.channel.PublishWithDeferredConfirmWithContext(ctx, p.exchange, RoutingKey(event.Type), false, false, msg)
	p.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to publish %s event to %s: %w", event.Type, p.exchange, err)
	}
	if confirm != nil {
		acked, err := confirm.WaitContext(ctx)
		if err != nil {
			return fmt.Errorf("failed to confirm %s event: %w", event.Type, err)
		}
		if !acked {
			return fmt.Errorf("broker rejected %s event %s", event.Type, event.ID)
		}
	}

	p.logger.Debug("event published", nil, map[string]interface{}{
		"type":     string(event.Type),
		"key":      event.Key(),
		"exchange": p.exchange,
	})
	return nil
}

// Close closes the channel and the connection.
func (p *RabbitPublisher) Close() error {
	var err error
	p.closeOnce.Do(func() {
		err = p.channel.Close()
		if p.conn != nil {
			if cerr := p.conn.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}
	})
	return err
}
