package application

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"loyalty/internal/pkg/money"
	"loyalty/internal/service/loyalty/domain"
	"loyalty/internal/service/loyalty/port"
)

// ApplyReward 把奖励应用到与其活动配对的订单行上，其余订单行恢复原价。
// 不校验活动规则；不满足前置条件时返回 false 且不做任何修改。
// 必须在事务中调用，返回错误时由调用方回滚。
func (e *Engine) ApplyReward(
	ctx context.Context,
	uow port.UnitOfWork,
	order *domain.Order,
	reward *domain.Reward,
	coupon *domain.Coupon,
	points *PointsResult,
) (bool, error) {
	if reward.Type != domain.RewardTypeDiscount {
		return false, nil
	}
	if reward.Applicability != domain.ApplyOrder {
		return false, nil
	}
	items := points.ItemsFor(reward.ProgramID)
	if len(items) == 0 {
		return false, nil
	}

	// 固定金额折扣在配对的订单行之间平均分摊
	share := reward.Discount.Div(decimal.NewFromInt(int64(len(items))))
	selected := make(map[int64]struct{}, len(items))
	for _, item := range items {
		if err := e.discountItem(ctx, uow, item, reward, coupon, share); err != nil {
			return false, err
		}
		selected[item.ID] = struct{}{}
	}

	if rest := order.ItemsExcept(selected); len(rest) > 0 {
		if err := uow.Items().ResetPricing(ctx, rest); err != nil {
			return false, errors.Wrap(err, "reset remaining items")
		}
	}
	return true, nil
}

func (e *Engine) discountItem(
	ctx context.Context,
	uow port.UnitOfWork,
	item *domain.OrderItem,
	reward *domain.Reward,
	coupon *domain.Coupon,
	share decimal.Decimal,
) error {
	base, err := domain.BasePrice(item)
	if err != nil {
		return err
	}

	var price, discount decimal.Decimal
	switch reward.DiscountMode {
	case domain.DiscountModePercent:
		price = money.ApplyPercent(base, reward.Discount)
		discount = reward.Discount
	case domain.DiscountModeFixed:
		price = base.Sub(share)
		pct, ok := money.Percent(share, base)
		if !ok {
			return &domain.PricingError{ItemID: item.ID, Err: errors.New("zero base price")}
		}
		discount = money.Quantize(pct, 2)
	default:
		return errors.Errorf("loyalty: reward %d has unknown discount mode %q", reward.ID, reward.DiscountMode)
	}

	if item.Type == domain.ItemTypeService {
		// 按百分比计价的附加项跟随折后基础价重新计算
		for _, opt := range item.ConfigurableOptions {
			unit := opt.Cycle.Price
			if opt.Cycle.PriceType == domain.OptionPricePercentage {
				unit = e.pricer.PriceFromBase(opt.Cycle, price)
			}
			opt.UnitPrice = unit
			opt.Price = unit.Mul(decimal.NewFromInt(opt.Quantity))
			if err := uow.Items().SaveOptionPricing(ctx, opt); err != nil {
				return errors.Wrapf(err, "save option %d", opt.ID)
			}
		}
	} else {
		price = price.Sub(item.ConfigurableOptionsPrice)
		base = base.Sub(item.ConfigurableOptionsPrice)
	}

	rewardID, couponID := reward.ID, coupon.ID
	item.FixedPrice = money.Whole(base)
	item.Total = money.Whole(price)
	item.Discount = discount
	item.RewardID = &rewardID
	item.CouponID = &couponID
	if err := uow.Items().SavePricing(ctx, item); err != nil {
		return errors.Wrapf(err, "save item %d", item.ID)
	}
	return nil
}
