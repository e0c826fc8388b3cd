package port

import (
	"context"

	"github.com/shopspring/decimal"

	"loyalty/internal/service/loyalty/domain"
)

// TraitResolver 价格模拟器的出站端口，只对云主机产品调用。
type TraitResolver interface {
	Resolve(ctx context.Context, req domain.TraitRequest) (domain.Traits, error)
}

// ConditionMatcher 用 traits 过滤活动条件
type ConditionMatcher interface {
	Match(ctx context.Context, conditions []*domain.Condition, traits domain.Traits) ([]*domain.Condition, error)
}

// OptionPricer 按新的基础价计算可配置项单价
type OptionPricer interface {
	PriceFromBase(cycle domain.OptionCycle, base decimal.Decimal) decimal.Decimal
}

// CurrencyConverter 金额币种换算
type CurrencyConverter interface {
	Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error)
}

// UsageCounter 用户在限量活动/奖励下剩余的可用次数
type UsageCounter interface {
	RemainingForProgram(ctx context.Context, program *domain.Program, userID int64) (int64, error)
	RemainingForReward(ctx context.Context, reward *domain.Reward, userID int64) (int64, error)
}

// OrderLocker 串行化同一订单的写操作
type OrderLocker interface {
	Lock(ctx context.Context, orderID int64) (unlock func() error, err error)
}

// RewardApplied 奖励成功应用后发布的领域事件
type RewardApplied struct {
	EventID   string          `json:"event_id"`
	OrderID   int64           `json:"order_id"`
	ClientID  int64           `json:"client_id"`
	ProgramID int64           `json:"program_id"`
	RewardID  int64           `json:"reward_id"`
	CouponID  int64           `json:"coupon_id"`
	ItemIDs   []int64         `json:"item_ids"`
	Discount  decimal.Decimal `json:"discount"`
	Mode      string          `json:"mode"`
}

// EventPublisher 领域事件的出站端口
type EventPublisher interface {
	PublishRewardApplied(ctx context.Context, event *RewardApplied) error
}
