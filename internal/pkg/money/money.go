// internal/pkg/money/money.go
package money

import "github.com/shopspring/decimal"

// 订单金额判零使用的精度（4 位小数）
const ZeroCheckPlaces int32 = 4

// Quantize 将金额按给定的小数位数四舍五入。
// places 为 0 时即取整到货币的整数单位。
func Quantize(amount decimal.Decimal, places int32) decimal.Decimal {
	return amount.Round(places)
}

// Whole 取整到整数货币单位，订单行上不保存小数部分。
func Whole(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(0)
}

// IsEffectivelyZero 判断金额在 4 位小数精度下是否小于 1 个货币单位。
func IsEffectivelyZero(amount decimal.Decimal) bool {
	return Quantize(amount, ZeroCheckPlaces).LessThan(decimal.NewFromInt(1))
}

// Sum 累加一组金额
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

// Min 返回最小值，空切片返回 false。
func Min(amounts []decimal.Decimal) (decimal.Decimal, bool) {
	if len(amounts) == 0 {
		return decimal.Zero, false
	}
	return decimal.Min(amounts[0], amounts[1:]...), true
}

// Percent 计算 part 占 whole 的百分比，whole 为零时返回 false。
func Percent(part, whole decimal.Decimal) (decimal.Decimal, bool) {
	if whole.IsZero() {
		return decimal.Zero, false
	}
	return part.Div(whole).Mul(decimal.NewFromInt(100)), true
}

// ApplyPercent 按百分比折扣计算折后价：amount * (1 - pct/100)
func ApplyPercent(amount, pct decimal.Decimal) decimal.Decimal {
	factor := decimal.NewFromInt(1).Sub(pct.Div(decimal.NewFromInt(100)))
	return amount.Mul(factor)
}
