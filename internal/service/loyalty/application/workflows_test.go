package application

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loyalty/internal/service/loyalty/domain"
)

func summerProgram() *domain.Program {
	return newProgram(1, domain.ProgramTypeCoupons,
		withCard("SUMMER"),
		withCondition("50", 20),
		withReward(7, domain.DiscountModePercent, "10", 15),
	)
}

func TestTryApplyCoupon_AppliesBestReward(t *testing.T) {
	h := newHarness(t, Config{}, summerProgram())
	item := serviceItem(1, 100, "200")
	order := h.store.addOrder(newOrder(item))

	res, err := h.engine.TryApplyCoupon(context.Background(), order, "SUMMER")
	require.NoError(t, err)
	assert.Equal(t, Result{Success: true, Message: MsgAppliedCoupon}, res)

	assert.True(t, item.Total.Equal(dec("180")), item.Total.String())
	assert.True(t, item.FixedPrice.Equal(dec("200")))
	assert.True(t, item.Discount.Equal(dec("10")))
	require.NotNil(t, item.RewardID)
	assert.Equal(t, int64(7), *item.RewardID)

	coupons := h.store.couponList()
	require.Len(t, coupons, 1)
	assert.Equal(t, int64(20), coupons[0].Points)
	require.NotNil(t, item.CouponID)
	assert.Equal(t, coupons[0].ID, *item.CouponID)

	require.Len(t, h.publisher.events, 1)
	evt := h.publisher.events[0]
	assert.Equal(t, int64(7), evt.RewardID)
	assert.Equal(t, []int64{1}, evt.ItemIDs)
	assert.NotEmpty(t, evt.EventID)

	assert.Equal(t, 1, h.locker.locked)
	assert.Equal(t, 1, h.locker.unlocked)
	assert.Equal(t, float64(1), testutil.ToFloat64(h.engine.metrics.workflows.WithLabelValues(workflowApplyCoupon, "applied")))
}

func TestTryApplyCoupon_Idempotent(t *testing.T) {
	h := newHarness(t, Config{}, summerProgram())
	item := serviceItem(1, 100, "200")
	order := h.store.addOrder(newOrder(item))
	ctx := context.Background()

	first, err := h.engine.TryApplyCoupon(ctx, order, "SUMMER")
	require.NoError(t, err)
	total, discount := item.Total, item.Discount

	second, err := h.engine.TryApplyCoupon(ctx, order, "SUMMER")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.True(t, item.Total.Equal(total))
	assert.True(t, item.Discount.Equal(discount))
	assert.Len(t, h.store.couponList(), 1)
}

func TestTryApplyCoupon_RepeatedOnUpgradeItemIsStable(t *testing.T) {
	h := newHarness(t, Config{}, summerProgram())
	item := serviceItem(1, 100, "200")
	item.Type = domain.ItemTypeServiceUpgrade
	item.Service = &domain.Service{ID: 5, Cycle: cycleAnnually}
	item.ConfigurableOptionsPrice = dec("20")
	order := h.store.addOrder(newOrder(item))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := h.engine.TryApplyCoupon(ctx, order, "SUMMER")
		require.NoError(t, err)
		assert.Equal(t, Result{Success: true, Message: MsgAppliedCoupon}, res)
		// 200 * 0.9 - 20，基础价始终取自基准固定价
		assert.True(t, item.FixedPrice.Equal(dec("180")), "run %d fixed price %s", i, item.FixedPrice)
		assert.True(t, item.Total.Equal(dec("160")), "run %d total %s", i, item.Total)
	}
	assert.True(t, item.BaselineFixedPrice.Equal(dec("200")))
	assert.Len(t, h.store.couponList(), 1)
}

func TestTryApplyCoupon_LogsResultField(t *testing.T) {
	h := newHarness(t, Config{}, summerProgram())
	order := h.store.addOrder(newOrder(serviceItem(1, 100, "200")))

	var buf bytes.Buffer
	ctx := zerolog.New(&buf).WithContext(context.Background())
	_, err := h.engine.TryApplyCoupon(ctx, order, "SUMMER")
	require.NoError(t, err)

	var finished string
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if strings.Contains(line, "loyalty workflow finished") {
			finished = line
		}
	}
	require.NotEmpty(t, finished, buf.String())
	assert.Equal(t, 1, strings.Count(finished, `"message":`), finished)

	var fields map[string]any
	require.NoError(t, json.Unmarshal([]byte(finished), &fields))
	assert.Equal(t, MsgAppliedCoupon, fields["result"])
	assert.Equal(t, "loyalty workflow finished", fields["message"])
	assert.Equal(t, float64(order.ID), fields["order_id"])
}

func TestTryApplyCoupon_NoProgram(t *testing.T) {
	tests := []struct {
		name    string
		program *domain.Program
		code    string
	}{
		{"unknown code", summerProgram(), "WINTER"},
		{"expired card", newProgram(2, domain.ProgramTypeCoupons, withExpiredCard("OLD"), withCondition("0", 5)), "OLD"},
		{"exhausted usage", summerProgram(), "SUMMER"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Config{}, tt.program)
			h.usage.programs[1] = 0
			order := h.store.addOrder(newOrder(serviceItem(1, 100, "200")))

			res, err := h.engine.TryApplyCoupon(context.Background(), order, tt.code)
			require.NoError(t, err)
			assert.Equal(t, fail(MsgNoProgramAvailable), res)
			assert.Empty(t, h.store.couponList())
		})
	}
}

func TestTryApplyCoupon_MinimumNotMet(t *testing.T) {
	h := newHarness(t, Config{}, summerProgram())
	order := h.store.addOrder(newOrder(serviceItem(1, 100, "40")))

	res, err := h.engine.TryApplyCoupon(context.Background(), order, "SUMMER")
	require.NoError(t, err)
	assert.Equal(t, fail("A minimum of 50.00 USD should be purchased to get the reward"), res)
	assert.Empty(t, h.store.couponList())
}

func TestTryApplyCoupon_MinimumConvertedToOrderCurrency(t *testing.T) {
	p := summerProgram()
	p.Conditions[0].Currency = "USD"
	h := newHarness(t, Config{}, p)
	order := newOrder(serviceItem(1, 100, "80"))
	order.Currency = "XXX"
	h.store.addOrder(order)

	res, err := h.engine.TryApplyCoupon(context.Background(), order, "SUMMER")
	require.NoError(t, err)
	assert.Equal(t, fail("A minimum of 100.00 XXX should be purchased to get the reward"), res)
}

func TestTryApplyCoupon_ZeroTotalHasNoClaimableReward(t *testing.T) {
	p := newProgram(1, domain.ProgramTypeCoupons,
		withCard("FREE"),
		withCondition("0", 20),
		withReward(7, domain.DiscountModePercent, "10", 15),
	)
	h := newHarness(t, Config{}, p)
	item := serviceItem(1, 100, "0.5")
	order := h.store.addOrder(newOrder(item))

	res, err := h.engine.TryApplyCoupon(context.Background(), order, "FREE")
	require.NoError(t, err)
	assert.Equal(t, fail(MsgCannotApplyCoupon), res)
	assert.Nil(t, item.RewardID)
	// 积分账目照常写入
	assert.Len(t, h.store.couponList(), 1)
	assert.Empty(t, h.publisher.events)
}

func TestTryApplyCoupon_FutureProgramNotApplied(t *testing.T) {
	p := summerProgram()
	p.AppliesOn = domain.AppliesOnFuture
	h := newHarness(t, Config{}, p)
	order := h.store.addOrder(newOrder(serviceItem(1, 100, "200")))

	res, err := h.engine.TryApplyCoupon(context.Background(), order, "SUMMER")
	require.NoError(t, err)
	assert.Equal(t, fail(MsgProgramNotApplied), res)
}

func TestTryApplyCoupon_PricingErrorRollsBack(t *testing.T) {
	h := newHarness(t, Config{}, summerProgram())
	renew := serviceItem(1, 100, "200")
	renew.Type = domain.ItemTypeServiceRenew
	order := h.store.addOrder(newOrder(renew))

	res, err := h.engine.TryApplyCoupon(context.Background(), order, "SUMMER")
	require.NoError(t, err)
	assert.Equal(t, fail(MsgCannotApplyCoupon), res)
	assert.Empty(t, h.store.couponList(), "ledger writes rolled back")
	assert.Nil(t, renew.RewardID)
	assert.True(t, renew.Total.Equal(dec("200")))
	assert.Empty(t, h.publisher.events)
}

func TestTryApplyCoupon_UnknownPricingBasisIsFatal(t *testing.T) {
	h := newHarness(t, Config{}, summerProgram())
	addon := serviceItem(1, 100, "200")
	addon.Type = domain.ItemTypeAddon
	order := h.store.addOrder(newOrder(addon))

	_, err := h.engine.TryApplyCoupon(context.Background(), order, "SUMMER")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUnknownPricingBasis))
	assert.Empty(t, h.store.couponList())
	assert.Equal(t, float64(1), testutil.ToFloat64(h.engine.metrics.workflows.WithLabelValues(workflowApplyCoupon, "error")))
}

func TestTryApplyCoupon_StoreErrorPropagates(t *testing.T) {
	h := newHarness(t, Config{}, summerProgram())
	h.store.failItemSave = errors.New("connection reset")
	item := serviceItem(1, 100, "200")
	order := h.store.addOrder(newOrder(item))

	_, err := h.engine.TryApplyCoupon(context.Background(), order, "SUMMER")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Empty(t, h.store.couponList())
	assert.True(t, item.Total.Equal(dec("200")))
}

func TestTryApplyCoupon_ResetsOtherItems(t *testing.T) {
	p := summerProgram()
	p.ExcludedProductIDs = []int64{200}
	h := newHarness(t, Config{}, p)

	paired := serviceItem(1, 100, "200")
	other := serviceItem(2, 200, "60")
	stale := int64(99)
	other.Total, other.Discount, other.RewardID, other.CouponID = dec("30"), dec("50"), &stale, &stale
	order := h.store.addOrder(newOrder(paired, other))

	res, err := h.engine.TryApplyCoupon(context.Background(), order, "SUMMER")
	require.NoError(t, err)
	require.True(t, res.Success)

	assert.True(t, other.Total.Equal(other.BaselineTotal))
	assert.True(t, other.Discount.IsZero())
	assert.Nil(t, other.RewardID)
	assert.Nil(t, other.CouponID)
}

func TestTryApplyReward(t *testing.T) {
	promo := newProgram(3, domain.ProgramTypePromotion,
		withCondition("50", 20),
		withReward(30, domain.DiscountModeFixed, "20", 15),
		withReward(31, domain.DiscountModePercent, "50", 40),
	)

	t.Run("applies requested reward", func(t *testing.T) {
		h := newHarness(t, Config{}, promo)
		item := serviceItem(1, 100, "200")
		order := h.store.addOrder(newOrder(item))

		res, err := h.engine.TryApplyReward(context.Background(), order, 30)
		require.NoError(t, err)
		assert.Equal(t, Result{Success: true, Message: MsgAppliedProgram}, res)
		assert.True(t, item.Total.Equal(dec("180")))
		assert.True(t, item.Discount.Equal(dec("10")))
		assert.Len(t, h.publisher.events, 1)
	})

	t.Run("unknown reward", func(t *testing.T) {
		h := newHarness(t, Config{}, promo)
		order := h.store.addOrder(newOrder(serviceItem(1, 100, "200")))

		res, err := h.engine.TryApplyReward(context.Background(), order, 404)
		require.NoError(t, err)
		assert.Equal(t, fail(MsgProgramNotAvailable), res)
		assert.Zero(t, h.locker.locked)
	})

	t.Run("reward needs more points", func(t *testing.T) {
		h := newHarness(t, Config{}, promo)
		order := h.store.addOrder(newOrder(serviceItem(1, 100, "200")))

		res, err := h.engine.TryApplyReward(context.Background(), order, 31)
		require.NoError(t, err)
		assert.Equal(t, fail(MsgProgramNotAvailable), res)
	})

	t.Run("nothing claimable", func(t *testing.T) {
		p := newProgram(4, domain.ProgramTypePromotion,
			withCondition("50", 5),
			withReward(40, domain.DiscountModePercent, "10", 15),
		)
		h := newHarness(t, Config{}, p)
		order := h.store.addOrder(newOrder(serviceItem(1, 100, "200")))

		res, err := h.engine.TryApplyReward(context.Background(), order, 40)
		require.NoError(t, err)
		assert.Equal(t, fail(MsgCannotClaimProgram), res)
	})

	t.Run("card for another user", func(t *testing.T) {
		owner := int64(999)
		p := newProgram(5, domain.ProgramTypePromotion,
			withCondition("0", 20),
			withReward(50, domain.DiscountModePercent, "10", 15),
		)
		p.Cards = []domain.LoyaltyCard{{ProgramID: 5, PartnerID: &owner}}
		h := newHarness(t, Config{}, p)
		order := h.store.addOrder(newOrder(serviceItem(1, 100, "200")))

		res, err := h.engine.TryApplyReward(context.Background(), order, 50)
		require.NoError(t, err)
		assert.Equal(t, fail(MsgProgramNotAvailable), res)
	})

	t.Run("minimum not met", func(t *testing.T) {
		h := newHarness(t, Config{}, promo)
		order := h.store.addOrder(newOrder(serviceItem(1, 100, "10")))

		res, err := h.engine.TryApplyReward(context.Background(), order, 30)
		require.NoError(t, err)
		assert.Equal(t, fail("A minimum of 50.00 USD should be purchased to get the reward"), res)
	})
}
