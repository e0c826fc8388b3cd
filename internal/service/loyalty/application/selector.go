package application

import (
	"sort"

	"github.com/shopspring/decimal"

	"loyalty/internal/pkg/money"
	"loyalty/internal/service/loyalty/domain"
)

// CouponRewards 一条积分账目当前可兑换的奖励，按折扣从大到小排列。
type CouponRewards struct {
	Entry   LedgerEntry
	Rewards []*domain.Reward
}

// matchedTotal 匹配到活动的订单行原价合计
func matchedTotal(matched []MatchedItem) decimal.Decimal {
	total := decimal.Zero
	for _, m := range matched {
		total = total.Add(m.Item.AmountOrigin)
	}
	return total
}

// ClaimableRewards 找出每条积分账目当前能兑换的奖励，没有可兑换奖励的账目不出现在结果中。
func ClaimableRewards(matched []MatchedItem, entries []LedgerEntry) []CouponRewards {
	totalIsZero := money.IsEffectivelyZero(matchedTotal(matched))

	var result []CouponRewards
	for _, entry := range entries {
		var rewards []*domain.Reward
		for _, reward := range entry.Program.Rewards {
			if reward.Type == domain.RewardTypeDiscount && totalIsZero {
				continue
			}
			if reward.RequiredPoints > entry.Coupon.Points {
				continue
			}
			rewards = append(rewards, reward)
		}
		if len(rewards) == 0 {
			continue
		}
		sort.SliceStable(rewards, func(i, j int) bool {
			return rewards[i].Discount.GreaterThan(rewards[j].Discount)
		})
		result = append(result, CouponRewards{Entry: entry, Rewards: rewards})
	}
	return result
}

// findClaimable 在可兑换结果中查找指定奖励及其所属账目
func findClaimable(claimable []CouponRewards, rewardID int64) (*domain.Reward, LedgerEntry, bool) {
	for _, cr := range claimable {
		for _, r := range cr.Rewards {
			if r.ID == rewardID {
				return r, cr.Entry, true
			}
		}
	}
	return nil, LedgerEntry{}, false
}
