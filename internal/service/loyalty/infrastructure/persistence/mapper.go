package persistence

import (
	"strconv"
	"strings"

	"loyalty/internal/service/loyalty/domain"
)

// toDomainOrder 将数据库模型转换为领域模型
func toDomainOrder(model *OrderModel) *domain.Order {
	order := &domain.Order{
		ID:       model.ID,
		ClientID: model.ClientID,
		UserID:   model.UserID,
		Currency: model.Currency,
		Items:    make([]*domain.OrderItem, 0, len(model.Items)),
	}
	for i := range model.Items {
		order.Items = append(order.Items, toDomainItem(&model.Items[i]))
	}
	return order
}

func toDomainItem(model *OrderItemModel) *domain.OrderItem {
	item := &domain.OrderItem{
		ID:                       model.ID,
		OrderID:                  model.OrderID,
		Type:                     domain.ItemType(model.ItemType),
		Cycle:                    toDomainCycle(&model.Cycle),
		AmountOrigin:             model.AmountOrigin,
		FixedPrice:               model.FixedPrice,
		Total:                    model.Total,
		Discount:                 model.Discount,
		ConfigurableOptionsPrice: model.ConfigurableOptionsPrice,
		RewardID:                 model.RewardID,
		CouponID:                 model.CouponID,
		BaselineFixedPrice:       model.BaselineFixedPrice,
		BaselineTotal:            model.BaselineTotal,
	}
	if model.PluginData != nil {
		item.PluginData = map[string]any(model.PluginData)
	}
	if model.Product != nil {
		item.Product = &domain.Product{
			ID:   model.Product.ID,
			Name: model.Product.Name,
			Type: domain.ProductType(model.Product.Type),
		}
	}
	if model.Service != nil {
		item.Service = &domain.Service{
			ID:              model.Service.ID,
			Cycle:           toDomainCycle(&model.Service.Cycle),
			FixedPrice:      model.Service.FixedPrice,
			BasePrice:       model.Service.BasePrice,
			PriceOverridden: model.Service.PriceOverridden,
		}
	}
	for i := range model.Options {
		opt := &model.Options[i]
		item.ConfigurableOptions = append(item.ConfigurableOptions, &domain.ConfigurableOption{
			ID:        opt.ID,
			ItemID:    opt.OrderItemID,
			Quantity:  opt.Quantity,
			Price:     opt.Price,
			UnitPrice: opt.UnitPrice,
			Cycle: domain.OptionCycle{
				ID:         opt.OptionCycle.ID,
				PriceType:  domain.OptionPriceType(opt.OptionCycle.PriceType),
				Price:      opt.OptionCycle.Price,
				Percentage: opt.OptionCycle.Percentage,
			},
			BaselinePrice:     opt.BaselinePrice,
			BaselineUnitPrice: opt.BaselineUnitPrice,
		})
	}
	return item
}

func toDomainCycle(model *CycleModel) domain.Cycle {
	return domain.Cycle{
		ID:         model.ID,
		Kind:       domain.CycleKind(model.Kind),
		Multiplier: model.Multiplier,
	}
}

func toDomainProgram(model *LoyaltyProgramModel) *domain.Program {
	program := &domain.Program{
		ID:                 model.ID,
		Name:               model.Name,
		Type:               domain.ProgramType(model.ProgramType),
		Unlimited:          model.Unlimited,
		AppliesOn:          domain.AppliesOn(model.AppliesOn),
		Active:             model.Active,
		StartAt:            model.StartAt,
		EndAt:              model.EndAt,
		ProductIDs:         splitIDs(model.ProductIDs),
		CycleIDs:           splitIDs(model.CycleIDs),
		ExcludedProductIDs: splitIDs(model.ExcludedProductIDs),
	}
	for _, c := range model.Cards {
		program.Cards = append(program.Cards, domain.LoyaltyCard{
			ID:        c.ID,
			ProgramID: c.ProgramID,
			Code:      c.Code,
			PartnerID: c.PartnerID,
			ExpiresAt: c.ExpirationTime,
		})
	}
	for i := range model.Conditions {
		c := &model.Conditions[i]
		program.Conditions = append(program.Conditions, &domain.Condition{
			ID:                c.ID,
			ProgramID:         c.ProgramID,
			MinimumAmount:     c.MinimumAmount,
			Currency:          c.Currency,
			OrderItemType:     domain.ItemType(c.OrderItemType),
			CycleIDs:          splitIDs(c.ProductCycleIDs),
			RewardPointMode:   domain.PointMode(c.RewardPointMode),
			RewardPointAmount: c.RewardPointAmount,
			TraitExpression:   c.TraitExpression,
			StartAt:           c.StartAt,
			EndAt:             c.EndAt,
		})
	}
	for i := range model.Rewards {
		program.Rewards = append(program.Rewards, toDomainReward(&model.Rewards[i]))
	}
	return program
}

func toDomainReward(model *RewardProgramModel) *domain.Reward {
	return &domain.Reward{
		ID:             model.ID,
		ProgramID:      model.ProgramID,
		Description:    model.Description,
		Type:           domain.RewardType(model.RewardType),
		DiscountMode:   domain.DiscountMode(model.DiscountMode),
		Applicability:  domain.Applicability(model.DiscountApplicability),
		RequiredPoints: model.RequiredPoint,
		Discount:       model.Discount,
	}
}

func toDomainCoupon(model *OrderPointRewardModel) *domain.Coupon {
	return &domain.Coupon{
		ID:        model.ID,
		OrderID:   model.OrderID,
		ProgramID: model.ProgramID,
		ClientID:  model.ClientID,
		Points:    model.Points,
	}
}

// splitIDs 将逗号分隔的 ID 字符串转换为切片，非法片段被忽略
func splitIDs(value string) []int64 {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	var ids []int64
	for _, part := range strings.Split(value, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

