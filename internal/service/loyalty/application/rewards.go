package application

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"

	"loyalty/internal/pkg/money"
	"loyalty/internal/service/loyalty/domain"
)

type candidateReward struct {
	reward  *domain.Reward
	program *domain.Program
}

// ListAvailableRewards 列出订单可见的促销奖励，并标注每个奖励当前能否应用。不写入任何数据。
func (e *Engine) ListAvailableRewards(ctx context.Context, order *domain.Order) ([]RewardView, error) {
	started := time.Now()
	ctx, span := e.tracer.Start(ctx, "engine.ListAvailableRewards")
	defer span.End()
	span.SetAttributes(attribute.Int64("order.id", order.ID))

	views, err := e.listAvailableRewards(ctx, order)
	if err != nil {
		span.RecordError(err)
		e.metrics.observe(workflowListRewards, "error", started)
		return nil, err
	}
	span.SetAttributes(attribute.Int("loyalty.rewards", len(views)))
	e.metrics.observe(workflowListRewards, "listed", started)
	return views, nil
}

func (e *Engine) listAvailableRewards(ctx context.Context, order *domain.Order) ([]RewardView, error) {
	matched, err := e.Match(ctx, order, ProgramFilter{Type: domain.ProgramTypePromotion})
	if err != nil {
		return nil, err
	}
	now := e.now()

	// 去重后的奖励，保持首次出现的顺序
	seen := make(map[int64]struct{})
	var candidates []candidateReward
	for _, m := range matched {
		for _, program := range m.Programs {
			if program.HasCodedCards() && !program.HasUsableCard("", order.UserID, now) {
				continue
			}
			for _, reward := range program.Rewards {
				if _, ok := seen[reward.ID]; ok {
					continue
				}
				seen[reward.ID] = struct{}{}
				candidates = append(candidates, candidateReward{reward: reward, program: program})
			}
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	points, err := e.ComputePoints(ctx, order, matched, "")
	if err != nil {
		return nil, err
	}
	totalIsZero := money.IsEffectivelyZero(matchedTotal(matched))

	views := make([]RewardView, 0, len(candidates))
	for _, c := range candidates {
		view := newRewardView(c.reward)
		if c.reward.Type == domain.RewardTypeDiscount && totalIsZero {
			continue
		}
		if !c.program.Unlimited {
			remain, err := e.usage.RemainingForReward(ctx, c.reward, order.UserID)
			if err != nil {
				return nil, errors.Wrapf(err, "remaining usage of reward %d", c.reward.ID)
			}
			view.RemainUsage = remain
			if remain < 1 {
				continue
			}
		}
		pp, ok := points.Lookup(c.program.ID)
		switch {
		case !ok:
			view.reject(MsgProgramNotApplied)
		case !pp.Eligible():
			view.reject(pp.Err)
		case c.reward.RequiredPoints > pp.Points:
			view.reject(MsgNotEligible)
		}
		views = append(views, view)
	}
	return views, nil
}
