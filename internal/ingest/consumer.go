package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	amqp "github.com/rabbitmq/amqp091-go"

	"smtrack.dev/telemetry-hub/pkg/metrics"
	"smtrack.dev/telemetry-hub/pkg/mq"
)

// Handler applies one consumed message. A nil return acknowledges the
// message; any error rejects it without requeue, routing it to the
// dead-letter queue.
type Handler func(ctx context.Context, body []byte) error

// Consumer runs a single-prefetch consume loop over one queue and applies
// each delivery through its Handler. Processing failures are isolated per
// message: the loop itself never stops on a bad payload.
type Consumer struct {
	logger   *slog.Logger
	mqClient mq.ClientInterface
	handler  Handler
	queue    string
	done     chan struct{}
	metrics  *metrics.IngestMetrics // Optional metrics
}

// ConsumerConfig holds the configuration for a Consumer.
type ConsumerConfig struct {
	Logger *slog.Logger
	// Client is the broker client bound to the queue to consume.
	Client mq.ClientInterface
	// Handler applies each message.
	Handler Handler
	// Metrics is the optional Prometheus metrics collector.
	Metrics *metrics.IngestMetrics
}

// NewConsumer creates a new Consumer instance.
func NewConsumer(cfg *ConsumerConfig) (*Consumer, error) {
	if cfg == nil {
		return nil, errors.New("consumer config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.Client == nil {
		return nil, errors.New("broker client cannot be nil")
	}

	if cfg.Handler == nil {
		return nil, errors.New("handler cannot be nil")
	}

	return &Consumer{
		logger:   cfg.Logger,
		mqClient: cfg.Client,
		handler:  cfg.Handler,
		queue:    cfg.Client.QueueName(),
		done:     make(chan struct{}),
		metrics:  cfg.Metrics,
	}, nil
}

// Start begins consuming messages from the queue.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("starting consumer", "queue", c.queue)

	// Wait for MQ client to be ready
	time.Sleep(2 * time.Second)

	deliveries, err := c.mqClient.Consume()
	if err != nil {
		return fmt.Errorf("failed to start consuming from %s: %w", c.queue, err)
	}

	c.logger.Info("consumer started, waiting for messages", "queue", c.queue)

	if c.metrics != nil {
		c.metrics.ActiveConsumers.Inc()
	}

	go c.processMessages(ctx, deliveries)

	return nil
}

// processMessages processes incoming messages from the deliveries channel.
func (c *Consumer) processMessages(ctx context.Context, deliveries <-chan amqp.Delivery) {
	defer func() {
		if c.metrics != nil {
			c.metrics.ActiveConsumers.Dec()
		}
		close(c.done)
	}()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("context canceled, stopping message processing", "queue", c.queue)
			return

		case delivery, ok := <-deliveries:
			if !ok {
				c.logger.Warn("deliveries channel closed", "queue", c.queue)
				return
			}

			c.handleDelivery(ctx, delivery)
		}
	}
}

// handleDelivery applies a single message. On success the message is
// acknowledged; on any failure it is rejected without requeue so a poison
// message cannot loop forever. Operators inspect the dead-letter queue for
// rejected payloads.
func (c *Consumer) handleDelivery(ctx context.Context, delivery amqp.Delivery) {
	var timer *prometheus.Timer
	if c.metrics != nil {
		timer = prometheus.NewTimer(c.metrics.ProcessingDuration.WithLabelValues(c.queue))
		defer timer.ObserveDuration()
	}

	if err := c.handler(ctx, delivery.Body); err != nil {
		c.logger.Error("failed to process message, rejecting without requeue",
			"queue", c.queue,
			"error", err,
			"body", string(delivery.Body),
		)
		if c.metrics != nil {
			c.metrics.MessagesProcessed.WithLabelValues(c.queue, "rejected").Inc()
		}
		if nackErr := delivery.Nack(false, false); nackErr != nil {
			c.logger.Error("failed to nack message", "queue", c.queue, "error", nackErr)
		}
		return
	}

	if err := delivery.Ack(false); err != nil {
		c.logger.Error("failed to ack message", "queue", c.queue, "error", err)
		return
	}

	if c.metrics != nil {
		c.metrics.MessagesProcessed.WithLabelValues(c.queue, "acked").Inc()
	}
}

// Stop stops the consumer and closes the MQ client.
func (c *Consumer) Stop() error {
	c.logger.Info("stopping consumer", "queue", c.queue)

	if err := c.mqClient.Close(); err != nil {
		return fmt.Errorf("failed to close mq client for %s: %w", c.queue, err)
	}

	// Wait for message processing to complete
	<-c.done

	c.logger.Info("consumer stopped", "queue", c.queue)
	return nil
}
