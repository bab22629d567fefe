package repository

import (
	"context"
	"fmt"

	"FinHybrid/internal/domain/models"
	domrepo "FinHybrid/internal/domain/repository"
	applogger "FinHybrid/pkg/logger"
)

var (
	_ domrepo.SignalPublisher = (*KafkaSignalPublisher)(nil)
	_ domrepo.SignalPublisher = (*LogSignalPublisher)(nil)
)

type topicProducer interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	Close() error
}

// KafkaSignalPublisher writes signal events as JSON keyed by symbol, so one symbol stays on one partition.
type KafkaSignalPublisher struct {
	producer topicProducer
	topic    string
	l        *applogger.Logger
}

func NewKafkaSignalPublisher(p topicProducer, topic string, l *applogger.Logger) *KafkaSignalPublisher {
	return &KafkaSignalPublisher{producer: p, topic: topic, l: l}
}

func (p *KafkaSignalPublisher) PublishSignal(ctx context.Context, ev models.SignalEvent) error {
	if err := p.producer.Publish(ctx, p.topic, []byte(ev.Symbol), ev); err != nil {
		if p.l != nil {
			p.l.Error("publish signal failed",
				applogger.String("topic", p.topic),
				applogger.String("symbol", ev.Symbol),
				applogger.Error(err),
			)
		}
		return fmt.Errorf("publish signal: %w", err)
	}
	return nil
}

func (p *KafkaSignalPublisher) Close() error {
	return p.producer.Close()
}

// LogSignalPublisher logs events instead of publishing them. Used when Kafka is disabled.
type LogSignalPublisher struct {
	l *applogger.Logger
}

func NewLogSignalPublisher(l *applogger.Logger) *LogSignalPublisher {
	return &LogSignalPublisher{l: l}
}

func (p *LogSignalPublisher) PublishSignal(_ context.Context, ev models.SignalEvent) error {
	if p.l != nil {
		p.l.Info("signal",
			applogger.String("symbol", ev.Symbol),
			applogger.String("signal", string(ev.Signal)),
			applogger.Float("confidence", ev.Confidence),
			applogger.Float("price_target", ev.PriceTarget),
		)
	}
	return nil
}

func (p *LogSignalPublisher) Close() error { return nil }
