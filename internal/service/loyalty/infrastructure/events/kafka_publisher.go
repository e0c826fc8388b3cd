package events

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"loyalty/internal/pkg/logger"
	"loyalty/internal/pkg/mq"
	"loyalty/internal/service/loyalty/port"
)

// EventTypeRewardApplied 写在消息头 event-type 中
const EventTypeRewardApplied = "loyalty.reward_applied"

// MessageWriter 是 *kafka.Writer 的子集，便于测试替换
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaPublisher 是 port.EventPublisher 的 Kafka 实现，以订单号为 key 保证同一订单的事件有序。
type KafkaPublisher struct {
	writer MessageWriter
}

func NewKafkaPublisher(writer MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: writer}
}

func (p *KafkaPublisher) PublishRewardApplied(ctx context.Context, event *port.RewardApplied) error {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "marshal reward applied event")
	}
	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(event.OrderID, 10)),
		Value: eventBytes,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(EventTypeRewardApplied)},
			{Key: "event-id", Value: []byte(event.EventID)},
		},
	}
	mq.InjectTraceContext(ctx, &msg.Headers)

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return errors.Wrap(err, "produce reward applied event")
	}
	logger.Ctx(ctx).Debug().Str("event_id", event.EventID).Int64("reward_id", event.RewardID).Msg("reward applied event published")
	return nil
}
