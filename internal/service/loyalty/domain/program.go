package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProgramType 活动类型，钱包类不参与本引擎的匹配。
type ProgramType string

const (
	ProgramTypeWallet    ProgramType = "wallet"
	ProgramTypePromotion ProgramType = "promotion"
	ProgramTypeLoyalty   ProgramType = "loyalty"
	ProgramTypeCoupons   ProgramType = "coupons"
)

// AppliesOn 活动作用于当前账期还是未来账期
type AppliesOn string

const (
	AppliesOnCurrent AppliesOn = "current"
	AppliesOnFuture  AppliesOn = "future"
)

// PointMode 积分发放方式
type PointMode string

const (
	PointModeOrder PointMode = "order" // 按订单发放
	PointModeUnit  PointMode = "unit"  // 按数量发放，暂未支持
)

// RewardType 奖励类型
type RewardType string

const (
	RewardTypeDiscount RewardType = "discount"
	RewardTypeProduct  RewardType = "product"
)

// DiscountMode 折扣计算方式
type DiscountMode string

const (
	DiscountModePercent DiscountMode = "percent"
	DiscountModeFixed   DiscountMode = "fixed"
)

// Applicability 折扣作用范围
type Applicability string

const (
	ApplyOrder    Applicability = "order"
	ApplyCheapest Applicability = "cheapest"
	ApplySpecific Applicability = "specific"
)

// LoyaltyCard 活动券码，PartnerID 为空表示不限持有人。
type LoyaltyCard struct {
	ID        int64
	ProgramID int64
	Code      string
	PartnerID *int64
	ExpiresAt *time.Time
}

// Usable 券未过期且属于当前用户（或不限持有人）
func (c LoyaltyCard) Usable(userID int64, now time.Time) bool {
	if c.ExpiresAt != nil && !c.ExpiresAt.After(now) {
		return false
	}
	return c.PartnerID == nil || *c.PartnerID == userID
}

// Condition 积分发放条件
type Condition struct {
	ID                int64
	ProgramID         int64
	MinimumAmount     decimal.Decimal
	Currency          string
	OrderItemType     ItemType
	CycleIDs          []int64
	RewardPointMode   PointMode
	RewardPointAmount int64
	// TraitExpression 针对云主机规格的匹配表达式（CEL），为空表示不限规格
	TraitExpression string
	StartAt         *time.Time
	EndAt           *time.Time
}

// ActiveAt 条件自身的生效时间窗口
func (c *Condition) ActiveAt(now time.Time) bool {
	if c.StartAt != nil && now.Before(*c.StartAt) {
		return false
	}
	if c.EndAt != nil && !now.Before(*c.EndAt) {
		return false
	}
	return true
}

// AllowsCycle 条件未限制周期，或周期在允许列表内
func (c *Condition) AllowsCycle(cycleID int64) bool {
	if len(c.CycleIDs) == 0 {
		return true
	}
	return containsID(c.CycleIDs, cycleID)
}

// Reward 活动下可兑换的奖励
type Reward struct {
	ID             int64
	ProgramID      int64
	Description    string
	Type           RewardType
	DiscountMode   DiscountMode
	Applicability  Applicability
	RequiredPoints int64
	Discount       decimal.Decimal
}

// Program 积分/促销活动
type Program struct {
	ID        int64
	Name      string
	Type      ProgramType
	Unlimited bool
	AppliesOn AppliesOn
	Active    bool
	StartAt   *time.Time
	EndAt     *time.Time

	// 适用规则：空列表表示不限
	ProductIDs         []int64
	CycleIDs           []int64
	ExcludedProductIDs []int64

	Cards      []LoyaltyCard
	Conditions []*Condition
	Rewards    []*Reward
}

// ActiveAt 活动启用且处于有效期内
func (p *Program) ActiveAt(now time.Time) bool {
	if !p.Active {
		return false
	}
	if p.StartAt != nil && now.Before(*p.StartAt) {
		return false
	}
	if p.EndAt != nil && !now.Before(*p.EndAt) {
		return false
	}
	return true
}

// AvailableFor 活动是否适用于该产品与周期
func (p *Program) AvailableFor(productID, cycleID int64) bool {
	if containsID(p.ExcludedProductIDs, productID) {
		return false
	}
	if len(p.ProductIDs) > 0 && !containsID(p.ProductIDs, productID) {
		return false
	}
	if len(p.CycleIDs) > 0 && !containsID(p.CycleIDs, cycleID) {
		return false
	}
	return true
}

// HasCardCode 活动是否拥有该券码（不校验有效期）
func (p *Program) HasCardCode(code string) bool {
	for _, card := range p.Cards {
		if card.Code == code {
			return true
		}
	}
	return false
}

// HasUsableCard 存在与 code 匹配、未过期、属于 userID 的券；code 为空时不比较券码。
func (p *Program) HasUsableCard(code string, userID int64, now time.Time) bool {
	for _, card := range p.Cards {
		if code != "" && card.Code != code {
			continue
		}
		if card.Usable(userID, now) {
			return true
		}
	}
	return false
}

// HasCodedCards 存在带券码的卡
func (p *Program) HasCodedCards() bool {
	for _, card := range p.Cards {
		if card.Code != "" {
			return true
		}
	}
	return false
}

// ActiveConditions 当前生效的条件
func (p *Program) ActiveConditions(now time.Time) []*Condition {
	var active []*Condition
	for _, c := range p.Conditions {
		if c.ActiveAt(now) {
			active = append(active, c)
		}
	}
	return active
}

// HasTraitConditions 是否存在按主机规格匹配的条件
func (p *Program) HasTraitConditions() bool {
	for _, c := range p.Conditions {
		if c.TraitExpression != "" {
			return true
		}
	}
	return false
}

// RewardByID 按 ID 查找奖励
func (p *Program) RewardByID(id int64) (*Reward, bool) {
	for _, r := range p.Rewards {
		if r.ID == id {
			return r, true
		}
	}
	return nil, false
}

// Coupon 订单在某个活动下累计的积分账目，(order, program, client) 唯一。
type Coupon struct {
	ID        int64
	OrderID   int64
	ProgramID int64
	ClientID  int64
	Points    int64
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
