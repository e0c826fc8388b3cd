package interfaces

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"loyalty/internal/pkg/logger"
	"loyalty/internal/pkg/mq"
	"loyalty/internal/pkg/tracing"
	"loyalty/internal/service/loyalty/application"
	"loyalty/internal/service/loyalty/domain"
)

const commandTimeout = 30 * time.Second // 单条命令处理的超时上限

// 命令类型
const (
	CommandApplyCoupon = "apply_coupon"
	CommandApplyReward = "apply_reward"
	CommandListRewards = "list_rewards"
)

// Command 结账流程发来的命令
type Command struct {
	CommandID string `json:"command_id"`
	Type      string `json:"type"`
	OrderID   int64  `json:"order_id"`
	Code      string `json:"code,omitempty"`
	RewardID  int64  `json:"reward_id,omitempty"`
}

// Reply 命令的处理结果，发送到回复主题
type Reply struct {
	CommandID string                   `json:"command_id"`
	Type      string                   `json:"type"`
	OrderID   int64                    `json:"order_id"`
	Success   bool                     `json:"success"`
	Message   string                   `json:"message,omitempty"`
	Rewards   []application.RewardView `json:"rewards,omitempty"`
	Error     string                   `json:"error,omitempty"`
	TraceID   string                   `json:"trace_id,omitempty"`
}

// LoyaltyService 消费者驱动的应用服务
type LoyaltyService interface {
	TryApplyCoupon(ctx context.Context, order *domain.Order, code string) (application.Result, error)
	TryApplyReward(ctx context.Context, order *domain.Order, rewardID int64) (application.Result, error)
	ListAvailableRewards(ctx context.Context, order *domain.Order) ([]application.RewardView, error)
}

// OrderLoader 按订单号加载完整订单
type OrderLoader interface {
	FindByID(ctx context.Context, orderID int64) (*domain.Order, error)
}

// MessageWriter 是 *kafka.Writer 的子集
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// CommandConsumer 是一个驱动适配器，它监听 Kafka 命令并驱动引擎，结果写回回复主题。
type CommandConsumer struct {
	reader  *kafka.Reader
	replies MessageWriter
	orders  OrderLoader
	svc     LoyaltyService
	tracer  trace.Tracer
}

func NewCommandConsumer(reader *kafka.Reader, replies MessageWriter, orders OrderLoader, svc LoyaltyService, tracer trace.Tracer) *CommandConsumer {
	return &CommandConsumer{reader: reader, replies: replies, orders: orders, svc: svc, tracer: tracer}
}

// Run 阻塞消费直到 ctx 取消
func (c *CommandConsumer) Run(ctx context.Context) error {
	log := logger.Ctx(ctx)
	log.Info().Str("topic", c.reader.Config().Topic).Msg("Kafka command consumer started")
	for {
		// 使用 FetchMessage 而不是 ReadMessage，处理完成后再手动提交
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info().Msg("Kafka command consumer shutting down")
				return nil
			}
			log.Error().Err(err).Msg("could not read message, retrying")
			time.Sleep(time.Second)
			continue
		}

		c.process(ctx, msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			log.Error().Err(err).Msg("failed to commit messages")
		}
	}
}

func (c *CommandConsumer) Close() error {
	return c.reader.Close()
}

func (c *CommandConsumer) process(parent context.Context, msg kafka.Message) {
	ctx := mq.ExtractTraceContext(parent, msg.Headers)
	ctx, span := c.tracer.Start(ctx, "loyalty-service.ProcessCommand",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
			attribute.String("messaging.kafka.message.key", string(msg.Key)),
		))
	defer span.End()

	var cmd Command
	if err := json.Unmarshal(msg.Value, &cmd); err != nil {
		// 无法解析的消息直接跳过
		span.RecordError(err)
		logger.Ctx(ctx).Error().Err(err).Msg("failed to unmarshal command, message skipped")
		return
	}
	span.SetAttributes(attribute.String("command.type", cmd.Type), attribute.Int64("order.id", cmd.OrderID))

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	reply := c.Handle(ctx, cmd)
	if reply.Error != "" {
		span.SetStatus(codes.Error, reply.Error)
	}
	if err := c.publishReply(ctx, reply); err != nil {
		span.RecordError(err)
		logger.Ctx(ctx).Error().Err(err).Str("command_id", cmd.CommandID).Msg("failed to publish reply")
	}
}

// Handle 执行一条命令并构造回复
func (c *CommandConsumer) Handle(ctx context.Context, cmd Command) Reply {
	reply := Reply{
		CommandID: cmd.CommandID,
		Type:      cmd.Type,
		OrderID:   cmd.OrderID,
		TraceID:   tracing.GetTraceIDFromContext(ctx),
	}
	ctx = logger.WithOrder(ctx, cmd.OrderID)

	order, err := c.orders.FindByID(ctx, cmd.OrderID)
	if err != nil {
		return c.failed(ctx, reply, err)
	}

	switch cmd.Type {
	case CommandApplyCoupon:
		res, err := c.svc.TryApplyCoupon(ctx, order, cmd.Code)
		if err != nil {
			return c.failed(ctx, reply, err)
		}
		reply.Success, reply.Message = res.Success, res.Message
	case CommandApplyReward:
		res, err := c.svc.TryApplyReward(ctx, order, cmd.RewardID)
		if err != nil {
			return c.failed(ctx, reply, err)
		}
		reply.Success, reply.Message = res.Success, res.Message
	case CommandListRewards:
		views, err := c.svc.ListAvailableRewards(ctx, order)
		if err != nil {
			return c.failed(ctx, reply, err)
		}
		reply.Success, reply.Rewards = true, views
	default:
		return c.failed(ctx, reply, errors.Errorf("unknown command type %q", cmd.Type))
	}
	return reply
}

func (c *CommandConsumer) failed(ctx context.Context, reply Reply, err error) Reply {
	logger.Ctx(ctx).Error().Err(err).Str("command_id", reply.CommandID).Str("type", reply.Type).Msg("command failed")
	reply.Success = false
	reply.Error = err.Error()
	return reply
}

func (c *CommandConsumer) publishReply(ctx context.Context, reply Reply) error {
	body, err := json.Marshal(reply)
	if err != nil {
		return errors.Wrap(err, "marshal reply")
	}
	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(reply.OrderID, 10)),
		Value: body,
	}
	mq.InjectTraceContext(ctx, &msg.Headers)
	return c.replies.WriteMessages(ctx, msg)
}
