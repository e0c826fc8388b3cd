package persistence

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"loyalty/internal/service/loyalty/domain"
	"loyalty/internal/service/loyalty/port"
)

// GormStore 是 port.Store 的 GORM 实现
type GormStore struct {
	db *gorm.DB
}

// NewGormStore 创建一个新的 GORM 仓储实例
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Programs() port.ProgramRepository { return &programRepository{db: s.db} }
func (s *GormStore) Orders() port.OrderRepository     { return &orderRepository{db: s.db} }
func (s *GormStore) Coupons() port.CouponRepository   { return &couponRepository{db: s.db} }
func (s *GormStore) Items() port.ItemRepository       { return &itemRepository{db: s.db} }

// Transaction 在一个数据库事务里执行 fn，fn 返回错误时回滚
func (s *GormStore) Transaction(ctx context.Context, fn func(uow port.UnitOfWork) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&unitOfWork{db: tx})
	})
}

type unitOfWork struct {
	db *gorm.DB
}

func (u *unitOfWork) Coupons() port.CouponRepository { return &couponRepository{db: u.db} }
func (u *unitOfWork) Items() port.ItemRepository     { return &itemRepository{db: u.db} }

type programRepository struct {
	db *gorm.DB
}

func (r *programRepository) preloaded(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Preload("Cards").
		Preload("Conditions", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("Rewards", func(db *gorm.DB) *gorm.DB { return db.Order("id") })
}

// FindActive 查询有效期内的非钱包活动，按优先级排序
func (r *programRepository) FindActive(ctx context.Context, q port.ProgramQuery) ([]*domain.Program, error) {
	query := r.preloaded(ctx).
		Where("active = ?", true).
		Where("program_type <> ?", string(domain.ProgramTypeWallet)).
		Where("(start_at IS NULL OR start_at <= ?)", q.At).
		Where("(end_at IS NULL OR end_at > ?)", q.At)
	if q.Type != "" {
		query = query.Where("program_type = ?", string(q.Type))
	}
	if q.Code != "" {
		cards := r.db.Model(&LoyaltyCardModel{}).Select("program_id").Where("code = ?", q.Code)
		query = query.Where("id IN (?)", cards)
	}

	var models []*LoyaltyProgramModel
	if err := query.Order("priority DESC").Order("id").Find(&models).Error; err != nil {
		return nil, err
	}
	programs := make([]*domain.Program, len(models))
	for i, m := range models {
		programs[i] = toDomainProgram(m)
	}
	return programs, nil
}

// FindReward 查找奖励及其所属活动
func (r *programRepository) FindReward(ctx context.Context, rewardID int64) (*domain.Reward, *domain.Program, error) {
	var reward RewardProgramModel
	if err := r.db.WithContext(ctx).Where("id = ?", rewardID).First(&reward).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, domain.ErrRewardNotFound
		}
		return nil, nil, err
	}
	var program LoyaltyProgramModel
	if err := r.preloaded(ctx).Where("id = ?", reward.ProgramID).First(&program).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, domain.ErrRewardNotFound
		}
		return nil, nil, err
	}
	return toDomainReward(&reward), toDomainProgram(&program), nil
}

type orderRepository struct {
	db *gorm.DB
}

// FindByID 加载订单及其订单行、周期、产品、服务和可配置项
func (r *orderRepository) FindByID(ctx context.Context, orderID int64) (*domain.Order, error) {
	var model OrderModel
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("Items.Cycle").
		Preload("Items.Product").
		Preload("Items.Service.Cycle").
		Preload("Items.Options.OptionCycle").
		Where("id = ?", orderID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, err
	}
	return toDomainOrder(&model), nil
}

type couponRepository struct {
	db *gorm.DB
}

func (r *couponRepository) Find(ctx context.Context, orderID, programID, clientID int64) (*domain.Coupon, error) {
	var model OrderPointRewardModel
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND program_id = ? AND client_id = ?", orderID, programID, clientID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrCouponNotFound
		}
		return nil, err
	}
	return toDomainCoupon(&model), nil
}

func (r *couponRepository) Create(ctx context.Context, coupon *domain.Coupon) error {
	model := OrderPointRewardModel{
		OrderID:   coupon.OrderID,
		ProgramID: coupon.ProgramID,
		ClientID:  coupon.ClientID,
		Points:    coupon.Points,
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return err
	}
	coupon.ID = model.ID
	return nil
}

func (r *couponRepository) UpdatePoints(ctx context.Context, couponID, points int64) error {
	return r.db.WithContext(ctx).Model(&OrderPointRewardModel{}).
		Where("id = ?", couponID).
		Update("points", points).Error
}

type itemRepository struct {
	db *gorm.DB
}

// SavePricing 只更新价格相关字段
func (r *itemRepository) SavePricing(ctx context.Context, item *domain.OrderItem) error {
	updateData := map[string]interface{}{
		"fixed_price": item.FixedPrice,
		"total":       item.Total,
		"discount":    item.Discount,
		"reward_id":   item.RewardID,
		"coupon_id":   item.CouponID,
	}
	return r.db.WithContext(ctx).Model(&OrderItemModel{}).Where("id = ?", item.ID).Updates(updateData).Error
}

func (r *itemRepository) SaveOptionPricing(ctx context.Context, option *domain.ConfigurableOption) error {
	updateData := map[string]interface{}{
		"price":      option.Price,
		"unit_price": option.UnitPrice,
	}
	return r.db.WithContext(ctx).Model(&ConfigurableOptionModel{}).Where("id = ?", option.ID).Updates(updateData).Error
}

// ResetPricing 恢复订单行及其可配置项到基准价格，并摘除奖励
func (r *itemRepository) ResetPricing(ctx context.Context, items []*domain.OrderItem) error {
	db := r.db.WithContext(ctx)
	for _, item := range items {
		err := db.Model(&OrderItemModel{}).Where("id = ?", item.ID).Updates(map[string]interface{}{
			"fixed_price": gorm.Expr("baseline_fixed_price"),
			"total":       gorm.Expr("baseline_total"),
			"discount":    decimal.Zero,
			"reward_id":   nil,
			"coupon_id":   nil,
		}).Error
		if err != nil {
			return errors.Wrapf(err, "reset item %d", item.ID)
		}
		err = db.Model(&ConfigurableOptionModel{}).Where("order_item_id = ?", item.ID).Updates(map[string]interface{}{
			"price":      gorm.Expr("baseline_price"),
			"unit_price": gorm.Expr("baseline_unit_price"),
		}).Error
		if err != nil {
			return errors.Wrapf(err, "reset options of item %d", item.ID)
		}

		item.FixedPrice = item.BaselineFixedPrice
		item.Total = item.BaselineTotal
		item.Discount = decimal.Zero
		item.RewardID = nil
		item.CouponID = nil
		for _, opt := range item.ConfigurableOptions {
			opt.Price = opt.BaselinePrice
			opt.UnitPrice = opt.BaselineUnitPrice
		}
	}
	return nil
}
