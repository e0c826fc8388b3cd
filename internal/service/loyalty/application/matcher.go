package application

import (
	"context"

	"github.com/pkg/errors"

	"loyalty/internal/service/loyalty/domain"
	"loyalty/internal/service/loyalty/port"
)

// ProgramFilter 匹配活动时的可选过滤条件
type ProgramFilter struct {
	Code string
	Type domain.ProgramType
}

// MatchedItem 一个订单行及其候选活动
type MatchedItem struct {
	Item     *domain.OrderItem
	Product  *domain.Product
	Programs []*domain.Program
}

// Match 为订单中的每个订单行找出适用的活动，只读。
func (e *Engine) Match(ctx context.Context, order *domain.Order, filter ProgramFilter) ([]MatchedItem, error) {
	programs, err := e.store.Programs().FindActive(ctx, port.ProgramQuery{
		Code: filter.Code,
		Type: filter.Type,
		At:   e.now(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "find active programs")
	}

	var matched []MatchedItem
	for _, item := range order.Items {
		if item.Product == nil {
			continue
		}
		// 已在同周期使用终身锁定价的服务不再重复处理
		if item.LockedLifetimePrice() {
			continue
		}
		var candidates []*domain.Program
		for _, p := range programs {
			if p.Type == domain.ProgramTypeWallet {
				continue
			}
			if filter.Type != "" && p.Type != filter.Type {
				continue
			}
			if filter.Code != "" && !p.HasCardCode(filter.Code) {
				continue
			}
			if p.AvailableFor(item.Product.ID, item.Cycle.ID) {
				candidates = append(candidates, p)
			}
		}
		if len(candidates) > 0 {
			matched = append(matched, MatchedItem{Item: item, Product: item.Product, Programs: candidates})
		}
	}
	return matched, nil
}
