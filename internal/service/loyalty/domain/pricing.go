package domain

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// BasePrice 推导订单行在应用折扣前的标准化基础价。
//
//   - service：直接使用订单行已固定的价格
//   - 升级/变更规格、一次性周期：使用未应用奖励时的固定价（BaselineFixedPrice），
//     FixedPrice 会被应用奖励改写，不能作为基础价
//   - 续费等依赖服务的订单行：按服务未覆盖的原价换算到订单行请求的周期
//   - 其他类型没有定价规则，返回 ErrUnknownPricingBasis（不属于 PricingError）
func BasePrice(item *OrderItem) (decimal.Decimal, error) {
	switch {
	case item.Type == ItemTypeService:
		return item.FixedPrice, nil
	case item.Type.RequiresService():
		if item.Service == nil {
			return decimal.Zero, newPricingError(item.ID, ErrMissingService)
		}
		if item.Type.IsChange() || item.IsOneTime() || item.Cycle.Kind == CycleOneTime {
			return item.BaselineFixedPrice, nil
		}
		price, err := ConvertCyclePrice(item.Service.BasePrice, item.Service.Cycle, item.Cycle)
		if err != nil {
			return decimal.Zero, newPricingError(item.ID, err)
		}
		return price, nil
	default:
		return decimal.Zero, errors.Wrapf(ErrUnknownPricingBasis, "item %d type %q", item.ID, item.Type)
	}
}
