package application

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"loyalty/internal/pkg/logger"
	"loyalty/internal/pkg/money"
	"loyalty/internal/service/loyalty/domain"
)

// ProgramPoints 单个活动的积分计算结果，Err 非空表示不满足条件。
type ProgramPoints struct {
	Program *domain.Program
	Points  int64
	Err     string
}

func (p ProgramPoints) Eligible() bool { return p.Err == "" }

// mergeProgramPoints 合并同一活动在不同订单行上的结果。
// 已有结果带错误而新结果成功时用新结果，否则保留已有结果：
// 第一个成功结果胜出，之后同一活动的错误和成功都被丢弃。
func mergeProgramPoints(existing, next ProgramPoints) ProgramPoints {
	if !existing.Eligible() && next.Eligible() {
		return next
	}
	return existing
}

type pairing struct {
	itemID    int64
	programID int64
}

// PointsResult 一次积分计算的完整结果：按首次出现顺序排列的活动结果，
// 以及本次计算中记录的 (订单行, 活动) 配对。
type PointsResult struct {
	programs []ProgramPoints
	index    map[int64]int

	paired      map[pairing]struct{}
	pairedItems map[int64][]*domain.OrderItem
}

func newPointsResult() *PointsResult {
	return &PointsResult{
		index:       make(map[int64]int),
		paired:      make(map[pairing]struct{}),
		pairedItems: make(map[int64][]*domain.OrderItem),
	}
}

func (r *PointsResult) merge(pp ProgramPoints) {
	if i, ok := r.index[pp.Program.ID]; ok {
		r.programs[i] = mergeProgramPoints(r.programs[i], pp)
		return
	}
	r.index[pp.Program.ID] = len(r.programs)
	r.programs = append(r.programs, pp)
}

func (r *PointsResult) isPaired(item *domain.OrderItem, program *domain.Program) bool {
	_, ok := r.paired[pairing{itemID: item.ID, programID: program.ID}]
	return ok
}

func (r *PointsResult) pair(item *domain.OrderItem, program *domain.Program) {
	r.paired[pairing{itemID: item.ID, programID: program.ID}] = struct{}{}
	r.pairedItems[program.ID] = append(r.pairedItems[program.ID], item)
}

// Programs 按首次出现顺序返回所有活动结果
func (r *PointsResult) Programs() []ProgramPoints { return r.programs }

func (r *PointsResult) Empty() bool { return len(r.programs) == 0 }

// First 第一个活动的结果
func (r *PointsResult) First() (ProgramPoints, bool) {
	if r.Empty() {
		return ProgramPoints{}, false
	}
	return r.programs[0], true
}

func (r *PointsResult) Lookup(programID int64) (ProgramPoints, bool) {
	i, ok := r.index[programID]
	if !ok {
		return ProgramPoints{}, false
	}
	return r.programs[i], true
}

// ItemsFor 本次计算中与该活动配对的订单行
func (r *PointsResult) ItemsFor(programID int64) []*domain.OrderItem {
	return r.pairedItems[programID]
}

// HasPairings 是否存在任何配对
func (r *PointsResult) HasPairings() bool { return len(r.paired) > 0 }

// ComputePoints 校验每个匹配到的活动并计算可获得的积分。
// 只读，可在同一订单上重复调用，结果一致。
func (e *Engine) ComputePoints(ctx context.Context, order *domain.Order, matched []MatchedItem, code string) (*PointsResult, error) {
	ev := &evaluation{
		order: order,
		code:  code,
		now:   e.now(),
		total: order.TotalOrigin(),
		res:   newPointsResult(),
	}
	for _, m := range matched {
		for _, program := range m.Programs {
			pp, ok, err := e.evaluateProgram(ctx, ev, m, program)
			if err != nil {
				return nil, err
			}
			if ok {
				ev.res.merge(pp)
			}
		}
	}
	return ev.res, nil
}

type evaluation struct {
	order *domain.Order
	code  string
	now   time.Time
	total decimal.Decimal
	res   *PointsResult
}

// evaluateProgram 计算单个活动在单个订单行上的结果；ok 为 false 表示跳过该活动。
func (e *Engine) evaluateProgram(ctx context.Context, ev *evaluation, m MatchedItem, program *domain.Program) (ProgramPoints, bool, error) {
	item := m.Item
	if ev.code != "" && !program.HasUsableCard(ev.code, ev.order.UserID, ev.now) {
		return ProgramPoints{}, false, nil
	}
	if !program.Unlimited {
		remaining, err := e.usage.RemainingForProgram(ctx, program, ev.order.UserID)
		if err != nil {
			return ProgramPoints{}, false, errors.Wrapf(err, "remaining usage of program %d", program.ID)
		}
		if remaining < 1 {
			return ProgramPoints{}, false, nil
		}
	}

	conditions := program.ActiveConditions(ev.now)
	matched := len(conditions) > 0 && program.AppliesOn == domain.AppliesOnCurrent
	minimumAmountMatched := matched
	minimumQuantityMatched := matched
	orderTypeMatched := 0

	if program.HasTraitConditions() && m.Product.Type == domain.ProductTypeInstance {
		req, err := domain.TraitRequestFromPluginData(item.PluginData)
		if err != nil {
			logger.Ctx(ctx).Debug().Err(err).Int64("item_id", item.ID).Int64("program_id", program.ID).
				Msg("item cannot be rated, program skipped")
			return ProgramPoints{}, false, nil
		}
		traits, err := e.traits.Resolve(ctx, req)
		if err != nil {
			return ProgramPoints{}, false, errors.Wrapf(err, "resolve traits of item %d", item.ID)
		}
		if conditions, err = e.conditions.Match(ctx, conditions, traits); err != nil {
			return ProgramPoints{}, false, errors.Wrapf(err, "match conditions of program %d", program.ID)
		}
	}

	var (
		points   int64
		minimums []decimal.Decimal
	)
	for _, cond := range conditions {
		minimum, err := e.minimumAmount(ctx, cond, ev.order.Currency)
		if err != nil {
			return ProgramPoints{}, false, err
		}
		minimums = append(minimums, minimum)
		if minimum.GreaterThan(ev.total) {
			minimumAmountMatched = false
			continue
		}
		minimumAmountMatched = true
		minimumQuantityMatched = true

		// TODO: 作用于未来账期的活动需要在续费时发放积分，目前不累计
		if program.AppliesOn == domain.AppliesOnFuture {
			continue
		}
		if cond.RewardPointMode != domain.PointModeOrder {
			continue
		}
		if !cond.AllowsCycle(item.Cycle.ID) {
			continue
		}
		itemType := item.EffectiveType()
		if cond.OrderItemType != "" && itemType != cond.OrderItemType {
			continue
		}
		if ev.res.isPaired(item, program) {
			continue
		}
		// 用同类订单行的合计金额再校验一次门槛，一次性服务还要加上其自身类型的合计
		aggregate := ev.order.TotalOriginByType(itemType)
		if itemType != item.Type {
			aggregate = aggregate.Add(ev.order.TotalOriginByType(item.Type))
		}
		if aggregate.LessThan(minimum) {
			minimumAmountMatched = false
			continue
		}
		minimumAmountMatched = true
		ev.res.pair(item, program)
		orderTypeMatched++
		points += cond.RewardPointAmount
	}

	pp := ProgramPoints{Program: program, Points: points}
	switch {
	case !matched:
		pp.Err = MsgProgramNotApplied
	case !minimumAmountMatched:
		smallest, _ := money.Min(minimums)
		pp.Err = fmt.Sprintf(MsgMinimumAmount, smallest.StringFixed(2), ev.order.Currency)
	case !minimumQuantityMatched:
		pp.Err = MsgProgramNotApplied
	case orderTypeMatched == 0:
		pp.Err = MsgProgramNotApplied
	}
	return pp, true, nil
}

// minimumAmount 把条件门槛换算成订单币种
func (e *Engine) minimumAmount(ctx context.Context, cond *domain.Condition, currency string) (decimal.Decimal, error) {
	if cond.Currency == "" || cond.Currency == currency || cond.MinimumAmount.IsZero() {
		return cond.MinimumAmount, nil
	}
	amount, err := e.converter.Convert(ctx, cond.MinimumAmount, cond.Currency, currency)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "convert minimum amount of condition %d", cond.ID)
	}
	return amount, nil
}
