package port

import (
	"context"
	"time"

	"loyalty/internal/service/loyalty/domain"
)

// ProgramQuery 查询可用活动的过滤条件
type ProgramQuery struct {
	Code string             // 券码，非空时只返回拥有该券码的活动
	Type domain.ProgramType // 活动类型，空表示不限
	At   time.Time
}

// ProgramRepository 活动是只读的外部参考数据
type ProgramRepository interface {
	// FindActive 返回有效期内、非钱包类型的活动，按优先级排序，已预加载条件/奖励/券。
	FindActive(ctx context.Context, q ProgramQuery) ([]*domain.Program, error)
	FindReward(ctx context.Context, rewardID int64) (*domain.Reward, *domain.Program, error)
}

// CouponRepository 订单积分账目的持久化
type CouponRepository interface {
	// Find 找不到时返回 domain.ErrCouponNotFound
	Find(ctx context.Context, orderID, programID, clientID int64) (*domain.Coupon, error)
	Create(ctx context.Context, coupon *domain.Coupon) error
	UpdatePoints(ctx context.Context, couponID, points int64) error
}

// ItemRepository 订单行价格的写入
type ItemRepository interface {
	SavePricing(ctx context.Context, item *domain.OrderItem) error
	SaveOptionPricing(ctx context.Context, option *domain.ConfigurableOption) error
	// ResetPricing 把订单行恢复到未应用奖励时的价格
	ResetPricing(ctx context.Context, items []*domain.OrderItem) error
}

// OrderRepository 加载完整订单（订单行、产品、服务、可配置项）
type OrderRepository interface {
	FindByID(ctx context.Context, orderID int64) (*domain.Order, error)
}

// UnitOfWork 一次事务内可用的写仓储
type UnitOfWork interface {
	Coupons() CouponRepository
	Items() ItemRepository
}

// Store 引擎依赖的记录存储
type Store interface {
	UnitOfWork
	Programs() ProgramRepository
	Orders() OrderRepository
	// Transaction 在单个事务中执行 fn，fn 返回错误时整体回滚。
	Transaction(ctx context.Context, fn func(uow UnitOfWork) error) error
}
