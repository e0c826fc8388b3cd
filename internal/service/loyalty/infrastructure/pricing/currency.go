package pricing

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// StaticRateConverter 用固定汇率表换算金额。
// rates[c] 表示 1 个基准货币可兑换多少 c，基准货币本身为 1。
type StaticRateConverter struct {
	rates map[string]decimal.Decimal
}

// NewStaticRateConverter 解析配置里的汇率字符串
func NewStaticRateConverter(base string, rates map[string]string) (*StaticRateConverter, error) {
	c := &StaticRateConverter{rates: make(map[string]decimal.Decimal, len(rates)+1)}
	if base != "" {
		c.rates[strings.ToUpper(base)] = decimal.NewFromInt(1)
	}
	for code, raw := range rates {
		rate, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "rate of %s", code)
		}
		if !rate.IsPositive() {
			return nil, errors.Errorf("rate of %s must be positive, got %s", code, raw)
		}
		c.rates[strings.ToUpper(code)] = rate
	}
	return c, nil
}

func (c *StaticRateConverter) Convert(_ context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	from, to = strings.ToUpper(from), strings.ToUpper(to)
	if from == to {
		return amount, nil
	}
	fromRate, ok := c.rates[from]
	if !ok {
		return decimal.Zero, errors.Errorf("no rate for currency %s", from)
	}
	toRate, ok := c.rates[to]
	if !ok {
		return decimal.Zero, errors.Errorf("no rate for currency %s", to)
	}
	return amount.Div(fromRate).Mul(toRate), nil
}
