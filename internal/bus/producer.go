package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
)

type Header struct {
	Key   string
	Value string
}

type Publisher interface {
	PublishJSON(ctx context.Context, topic, key string, value any, headers ...Header) error
	Close() error
}

type SyncProducer struct {
	producer sarama.SyncProducer
	log      *slog.Logger
}

func NewSyncProducer(brokers []string, lgr *slog.Logger) (*SyncProducer, error) {
	const op = "bus.NewSyncProducer"

	if len(brokers) == 0 {
		return nil, fmt.Errorf("%s: kafka brokers required", op)
	}
	if lgr == nil {
		lgr = slog.Default()
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V3_6_0_0
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Retry.Backoff = 100 * time.Millisecond

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &SyncProducer{
		producer: producer,
		log:      lgr,
	}, nil
}

func (p *SyncProducer) PublishJSON(ctx context.Context, topic, key string, value any, headers ...Header) error {
	const op = "bus.PublishJSON"

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(payload),
	}
	for _, h := range headers {
		msg.Headers = append(msg.Headers, sarama.RecordHeader{Key: []byte(h.Key), Value: []byte(h.Value)})
	}

	if _, _, err := p.producer.SendMessage(msg); err != nil {
		p.log.Error("kafka publish failed", slog.String("topic", topic), slog.Any("error", err))
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (p *SyncProducer) Close() error {
	if p.producer == nil {
		return nil
	}
	return p.producer.Close()
}
