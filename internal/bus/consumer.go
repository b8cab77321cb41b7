package bus

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
)

const rejoinBackoff = 2 * time.Second

type MessageHandler interface {
	HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error
}

type Consumer struct {
	group sarama.ConsumerGroup
	log   *slog.Logger
}

func NewConsumer(brokers []string, groupID string, lgr *slog.Logger) (*Consumer, error) {
	const op = "bus.NewConsumer"

	if len(brokers) == 0 {
		return nil, fmt.Errorf("%s: kafka brokers required", op)
	}
	if groupID == "" {
		return nil, fmt.Errorf("%s: kafka consumer group required", op)
	}
	if lgr == nil {
		lgr = slog.Default()
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V3_6_0_0
	cfg.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRange()}
	// requests are only useful while the caller is still waiting
	cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	cfg.Consumer.Group.Session.Timeout = 30 * time.Second
	cfg.Consumer.Group.Heartbeat.Interval = 3 * time.Second
	cfg.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(brokers, groupID, cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Consumer{
		group: group,
		log:   lgr,
	}, nil
}

// Consume blocks until ctx is cancelled, rejoining the group after rebalances.
func (c *Consumer) Consume(ctx context.Context, topics []string, handler MessageHandler) error {
	if handler == nil {
		return fmt.Errorf("bus.Consume: message handler required")
	}

	cgHandler := &consumerGroupHandler{
		handler: handler,
		log:     c.log,
	}

	go c.logGroupErrors(ctx)

	for {
		if err := c.group.Consume(ctx, topics, cgHandler); err != nil {
			c.log.Error("kafka consume error", slog.Any("error", err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(rejoinBackoff):
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// logGroupErrors drains group errors, which sarama only reports on the
// channel when Consumer.Return.Errors is set.
func (c *Consumer) logGroupErrors(ctx context.Context) {
	errs := c.group.Errors()
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errs:
			if !ok {
				return
			}
			c.log.Error("kafka consumer group error", slog.Any("error", err))
		}
	}
}

func (c *Consumer) Close() error {
	if c.group == nil {
		return nil
	}
	return c.group.Close()
}

type consumerGroupHandler struct {
	handler MessageHandler
	log     *slog.Logger
}

func (h *consumerGroupHandler) Setup(_ sarama.ConsumerGroupSession) error   { return nil }
func (h *consumerGroupHandler) Cleanup(_ sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim marks every message, failed or not: auth requests are not
// retried, the caller times out instead.
func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		if err := h.handler.HandleMessage(session.Context(), msg); err != nil {
			h.log.Error("kafka message handler error",
				slog.String("topic", msg.Topic),
				slog.Int("partition", int(msg.Partition)),
				slog.Int64("offset", msg.Offset),
				slog.Any("error", err),
			)
		}
		session.MarkMessage(msg, "")
	}
	return nil
}
