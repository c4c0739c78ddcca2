// Package messaging 模拟域事件的 Kafka 发布实现
package messaging

import (
	"context"

	"github.com/wyfcoding/creditrisk/internal/simulation/domain"
	"github.com/wyfcoding/creditrisk/pkg/mq"
)

type KafkaEventPublisher struct {
	producer *mq.KafkaProducer
	topic    string
}

func NewKafkaEventPublisher(producer *mq.KafkaProducer, topic string) domain.EventPublisher {
	return &KafkaEventPublisher{producer: producer, topic: topic}
}

// PublishSimulationCompleted 以组合 ID 为 key，保证同一组合的结果有序
func (p *KafkaEventPublisher) PublishSimulationCompleted(ctx context.Context, event domain.SimulationCompletedEvent) error {
	return p.producer.SendMessage(ctx, p.topic, event.PortfolioID, event)
}

// NoopEventPublisher Kafka 未启用时的空实现
type NoopEventPublisher struct{}

func NewNoopEventPublisher() domain.EventPublisher {
	return &NoopEventPublisher{}
}

func (NoopEventPublisher) PublishSimulationCompleted(ctx context.Context, event domain.SimulationCompletedEvent) error {
	return nil
}
