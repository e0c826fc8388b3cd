package application

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"loyalty/internal/pkg/logger"
	"loyalty/internal/service/loyalty/domain"
	"loyalty/internal/service/loyalty/port"
)

const (
	workflowApplyCoupon = "apply_coupon"
	workflowApplyReward = "apply_reward"
	workflowListRewards = "list_rewards"
)

// TryApplyCoupon 使用券码为订单匹配活动、累计积分，并自动应用折扣最大的奖励。
func (e *Engine) TryApplyCoupon(ctx context.Context, order *domain.Order, code string) (Result, error) {
	started := time.Now()
	ctx = logger.WithOrder(ctx, order.ID)
	ctx, span := e.tracer.Start(ctx, "engine.TryApplyCoupon")
	defer span.End()
	span.SetAttributes(attribute.Int64("order.id", order.ID), attribute.String("coupon.code", code))

	unlock, err := e.lockOrder(ctx, order.ID)
	if err != nil {
		return e.settle(ctx, span, workflowApplyCoupon, started, Result{}, nil, err, MsgCannotApplyCoupon)
	}
	defer unlock()

	matched, err := e.Match(ctx, order, ProgramFilter{Code: code})
	if err != nil || len(matched) == 0 {
		return e.settle(ctx, span, workflowApplyCoupon, started, fail(MsgNoProgramAvailable), nil, err, MsgCannotApplyCoupon)
	}
	points, err := e.ComputePoints(ctx, order, matched, code)
	if err != nil {
		return e.settle(ctx, span, workflowApplyCoupon, started, Result{}, nil, err, MsgCannotApplyCoupon)
	}
	first, ok := points.First()
	if !ok {
		return e.settle(ctx, span, workflowApplyCoupon, started, fail(MsgNoProgramAvailable), nil, nil, "")
	}
	if !first.Eligible() {
		return e.settle(ctx, span, workflowApplyCoupon, started, fail(first.Err), nil, nil, "")
	}

	var (
		res     Result
		applied *port.RewardApplied
	)
	err = e.store.Transaction(ctx, func(uow port.UnitOfWork) error {
		entries, err := e.ApplyPrograms(ctx, uow, order, points)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			res = fail(MsgCannotApplyProgram)
			return nil
		}
		claimable := ClaimableRewards(matched, entries)
		if len(claimable) != 1 {
			res = fail(MsgCannotApplyCoupon)
			return nil
		}
		best := claimable[0]
		reward := best.Rewards[0]
		ok, err := e.ApplyReward(ctx, uow, order, reward, best.Entry.Coupon, points)
		if err != nil {
			return err
		}
		if !ok {
			res = fail(MsgCannotApplyCoupon)
			return nil
		}
		res = succeed(MsgAppliedCoupon)
		applied = newRewardApplied(order, reward, best.Entry.Coupon, points)
		return nil
	})
	return e.settle(ctx, span, workflowApplyCoupon, started, res, applied, err, MsgCannotApplyCoupon)
}

// TryApplyReward 为订单应用指定的促销奖励。
func (e *Engine) TryApplyReward(ctx context.Context, order *domain.Order, rewardID int64) (Result, error) {
	started := time.Now()
	ctx = logger.WithOrder(ctx, order.ID)
	ctx, span := e.tracer.Start(ctx, "engine.TryApplyReward")
	defer span.End()
	span.SetAttributes(attribute.Int64("order.id", order.ID), attribute.Int64("reward.id", rewardID))

	_, program, err := e.store.Programs().FindReward(ctx, rewardID)
	if err != nil {
		if errors.Is(err, domain.ErrRewardNotFound) {
			return e.settle(ctx, span, workflowApplyReward, started, fail(MsgProgramNotAvailable), nil, nil, "")
		}
		return e.settle(ctx, span, workflowApplyReward, started, Result{}, nil, err, MsgCannotApplyProgram)
	}
	now := e.now()
	if len(program.Cards) > 0 && !program.HasUsableCard("", order.UserID, now) {
		return e.settle(ctx, span, workflowApplyReward, started, fail(MsgProgramNotAvailable), nil, nil, "")
	}

	unlock, err := e.lockOrder(ctx, order.ID)
	if err != nil {
		return e.settle(ctx, span, workflowApplyReward, started, Result{}, nil, err, MsgCannotApplyProgram)
	}
	defer unlock()

	matched, err := e.Match(ctx, order, ProgramFilter{Type: domain.ProgramTypePromotion})
	if err != nil || len(matched) == 0 {
		return e.settle(ctx, span, workflowApplyReward, started, fail(MsgProgramNotAvailable), nil, err, MsgCannotApplyProgram)
	}
	points, err := e.ComputePoints(ctx, order, matched, "")
	if err != nil {
		return e.settle(ctx, span, workflowApplyReward, started, Result{}, nil, err, MsgCannotApplyProgram)
	}
	pp, ok := points.Lookup(program.ID)
	if !ok {
		return e.settle(ctx, span, workflowApplyReward, started, fail(MsgProgramNotAvailable), nil, nil, "")
	}
	if !pp.Eligible() {
		return e.settle(ctx, span, workflowApplyReward, started, fail(pp.Err), nil, nil, "")
	}

	var (
		res     Result
		applied *port.RewardApplied
	)
	err = e.store.Transaction(ctx, func(uow port.UnitOfWork) error {
		entries, err := e.ApplyPrograms(ctx, uow, order, points)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			res = fail(MsgCannotApplyProgram)
			return nil
		}
		claimable := ClaimableRewards(matched, entries)
		if len(claimable) == 0 {
			res = fail(MsgCannotClaimProgram)
			return nil
		}
		reward, entry, found := findClaimable(claimable, rewardID)
		if !found {
			res = fail(MsgProgramNotAvailable)
			return nil
		}
		ok, err := e.ApplyReward(ctx, uow, order, reward, entry.Coupon, points)
		if err != nil {
			return err
		}
		if !ok {
			res = fail(MsgCannotApplyProgram)
			return nil
		}
		res = succeed(MsgAppliedProgram)
		applied = newRewardApplied(order, reward, entry.Coupon, points)
		return nil
	})
	return e.settle(ctx, span, workflowApplyReward, started, res, applied, err, MsgCannotApplyProgram)
}

// settle 统一收尾：定价错误已随事务回滚，转换为失败结果；其他错误原样返回。
func (e *Engine) settle(
	ctx context.Context,
	span trace.Span,
	workflow string,
	started time.Time,
	res Result,
	applied *port.RewardApplied,
	err error,
	pricingMsg string,
) (Result, error) {
	log := logger.Ctx(ctx)

	var pricingErr *domain.PricingError
	if errors.As(err, &pricingErr) {
		span.RecordError(err)
		log.Error().Err(err).Str("workflow", workflow).Msg("pricing failed, reward application rolled back")
		res, err = fail(pricingMsg), nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error().Err(err).Str("workflow", workflow).Msg("loyalty workflow failed")
		e.metrics.observe(workflow, "error", started)
		return Result{}, err
	}

	if applied != nil && e.publisher != nil {
		if pubErr := e.publisher.PublishRewardApplied(ctx, applied); pubErr != nil {
			span.RecordError(pubErr)
			log.Warn().Err(pubErr).Int64("reward_id", applied.RewardID).Msg("failed to publish reward applied event")
		}
	}

	outcome := "rejected"
	if res.Success {
		outcome = "applied"
		span.AddEvent("Reward applied to order")
	}
	span.SetAttributes(attribute.Bool("loyalty.success", res.Success), attribute.String("loyalty.message", res.Message))
	log.Info().Str("workflow", workflow).Bool("success", res.Success).Str("result", res.Message).Msg("loyalty workflow finished")
	e.metrics.observe(workflow, outcome, started)
	return res, nil
}

func newRewardApplied(order *domain.Order, reward *domain.Reward, coupon *domain.Coupon, points *PointsResult) *port.RewardApplied {
	items := points.ItemsFor(reward.ProgramID)
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	return &port.RewardApplied{
		EventID:   uuid.New().String(),
		OrderID:   order.ID,
		ClientID:  order.ClientID,
		ProgramID: reward.ProgramID,
		RewardID:  reward.ID,
		CouponID:  coupon.ID,
		ItemIDs:   ids,
		Discount:  reward.Discount,
		Mode:      string(reward.DiscountMode),
	}
}
