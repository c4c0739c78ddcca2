// Package messaging 贷款域事件的 Kafka 发布实现
package messaging

import (
	"context"

	"github.com/wyfcoding/creditrisk/internal/lending/domain"
	"github.com/wyfcoding/creditrisk/pkg/mq"
)

type KafkaEventPublisher struct {
	producer *mq.KafkaProducer
	topic    string
}

func NewKafkaEventPublisher(producer *mq.KafkaProducer, topic string) domain.EventPublisher {
	return &KafkaEventPublisher{producer: producer, topic: topic}
}

// PublishMarginCall 以贷款 ID 为 key，保证同一贷款的事件有序
func (p *KafkaEventPublisher) PublishMarginCall(ctx context.Context, event domain.MarginCallEvent) error {
	return p.producer.SendMessage(ctx, p.topic, event.LoanID, event)
}

// NoopEventPublisher Kafka 未启用时的空实现
type NoopEventPublisher struct{}

func NewNoopEventPublisher() domain.EventPublisher {
	return &NoopEventPublisher{}
}

func (NoopEventPublisher) PublishMarginCall(ctx context.Context, event domain.MarginCallEvent) error {
	return nil
}
