package pricing

import (
	"github.com/shopspring/decimal"

	"loyalty/internal/service/loyalty/domain"
)

var hundred = decimal.NewFromInt(100)

// PercentageOptionPricer 按百分比计价的可配置项，单价 = 基础价 × 百分比 / 100；
// 固定价格的可配置项直接用周期价格。
type PercentageOptionPricer struct{}

func NewPercentageOptionPricer() PercentageOptionPricer { return PercentageOptionPricer{} }

func (PercentageOptionPricer) PriceFromBase(cycle domain.OptionCycle, base decimal.Decimal) decimal.Decimal {
	if cycle.PriceType != domain.OptionPricePercentage {
		return cycle.Price
	}
	return base.Mul(cycle.Percentage).Div(hundred)
}
