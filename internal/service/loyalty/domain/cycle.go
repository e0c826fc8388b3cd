package domain

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// CycleKind 计费周期种类
type CycleKind string

const (
	CycleOneTime CycleKind = "onetime"
	CycleMonth   CycleKind = "month"
	CycleYear    CycleKind = "year" // 年度族周期：1 年、2 年、3 年……
)

// Cycle 计费周期，Multiplier 表示几个单位周期，例如 3 个月、2 年。
type Cycle struct {
	ID         int64
	Kind       CycleKind
	Multiplier int64
}

func (c Cycle) String() string {
	return fmt.Sprintf("%d-%s", c.Multiplier, c.Kind)
}

var twelve = decimal.NewFromInt(12)

// monthsPerUnit 每个单位周期折合的月数，一次性周期不能参与换算。
func monthsPerUnit(kind CycleKind) (decimal.Decimal, error) {
	switch kind {
	case CycleMonth:
		return decimal.NewFromInt(1), nil
	case CycleYear:
		return twelve, nil
	case CycleOneTime:
		return decimal.Zero, errors.Errorf("cycle %q cannot be converted", kind)
	}
	return decimal.Zero, errors.Errorf("unknown cycle kind %q", kind)
}

// ConvertCyclePrice 把 from 周期下的价格换算到 to 周期。
// 同种周期直接按倍数比例缩放；不同种周期先折成单月价再展开。
func ConvertCyclePrice(price decimal.Decimal, from, to Cycle) (decimal.Decimal, error) {
	if from.Multiplier <= 0 || to.Multiplier <= 0 {
		return decimal.Zero, errors.Errorf("invalid cycle multiplier %s -> %s", from, to)
	}
	fromMul := decimal.NewFromInt(from.Multiplier)
	toMul := decimal.NewFromInt(to.Multiplier)

	if from.Kind == to.Kind {
		return price.Div(fromMul).Mul(toMul), nil
	}

	fromMonths, err := monthsPerUnit(from.Kind)
	if err != nil {
		return decimal.Zero, err
	}
	toMonths, err := monthsPerUnit(to.Kind)
	if err != nil {
		return decimal.Zero, err
	}
	perMonth := price.Div(fromMonths).Div(fromMul)
	return perMonth.Mul(toMul).Mul(toMonths), nil
}
