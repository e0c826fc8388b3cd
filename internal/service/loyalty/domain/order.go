package domain

import (
	"github.com/shopspring/decimal"

	"loyalty/internal/pkg/money"
)

// ItemType 订单行类型，是一个封闭枚举。
type ItemType string

const (
	ItemTypeService        ItemType = "service"
	ItemTypeServiceRenew   ItemType = "service_renew"
	ItemTypeServiceUpgrade ItemType = "service_upgrade"
	ItemTypeServiceResize  ItemType = "service_resize"
	ItemTypeAddon          ItemType = "addon" // 可配置附加项，没有定价规则
)

// RequiresService 该类型的订单行必须挂在一个已有服务上
func (t ItemType) RequiresService() bool {
	switch t {
	case ItemTypeServiceRenew, ItemTypeServiceUpgrade, ItemTypeServiceResize:
		return true
	}
	return false
}

// IsChange 升级/变更规格这类一次性变更
func (t ItemType) IsChange() bool {
	return t == ItemTypeServiceUpgrade || t == ItemTypeServiceResize
}

// Valid 判断是否为已知类型
func (t ItemType) Valid() bool {
	switch t {
	case ItemTypeService, ItemTypeServiceRenew, ItemTypeServiceUpgrade, ItemTypeServiceResize, ItemTypeAddon:
		return true
	}
	return false
}

// ProductType 产品类型
type ProductType string

const (
	ProductTypeInstance ProductType = "instance" // 云主机，可按规格计算 traits
	ProductTypeProxy    ProductType = "proxy"
	ProductTypeDomain   ProductType = "domain"
	ProductTypeSSL      ProductType = "ssl"
)

type Product struct {
	ID   int64
	Name string
	Type ProductType
}

// Service 订单行关联的已开通服务
type Service struct {
	ID    int64
	Cycle Cycle
	// FixedPrice 当前生效价格（可能是终身锁定价）
	FixedPrice decimal.Decimal
	// BasePrice 不考虑价格覆盖时的原始价格
	BasePrice       decimal.Decimal
	PriceOverridden bool
}

// OptionPriceType 可配置项周期价格的计价方式
type OptionPriceType string

const (
	OptionPricePercentage OptionPriceType = "percentage"
	OptionPriceAbsolute   OptionPriceType = "absolute"
)

// OptionCycle 可配置项在某个周期下的定价规则
type OptionCycle struct {
	ID         int64
	PriceType  OptionPriceType
	Price      decimal.Decimal
	Percentage decimal.Decimal
}

// ConfigurableOption 服务上的附加计价项
type ConfigurableOption struct {
	ID        int64
	ItemID    int64
	Quantity  int64
	Price     decimal.Decimal
	UnitPrice decimal.Decimal
	Cycle     OptionCycle

	BaselinePrice     decimal.Decimal
	BaselineUnitPrice decimal.Decimal
}

// OrderItem 订单中的一行
type OrderItem struct {
	ID         int64
	OrderID    int64
	Type       ItemType
	Cycle      Cycle
	Product    *Product
	Service    *Service
	PluginData map[string]any

	AmountOrigin             decimal.Decimal
	FixedPrice               decimal.Decimal
	Total                    decimal.Decimal
	Discount                 decimal.Decimal
	ConfigurableOptionsPrice decimal.Decimal
	ConfigurableOptions      []*ConfigurableOption

	// 当前挂载的奖励及积分券，二者同时存在或同时为空
	RewardID *int64
	CouponID *int64

	// 未应用任何奖励时的价格，重置时恢复
	BaselineFixedPrice decimal.Decimal
	BaselineTotal      decimal.Decimal
}

// IsOneTime 服务周期为一次性
func (i *OrderItem) IsOneTime() bool {
	return i.Service != nil && i.Service.Cycle.Kind == CycleOneTime
}

// EffectiveType 一次性服务按普通服务对待
func (i *OrderItem) EffectiveType() ItemType {
	if i.IsOneTime() {
		return ItemTypeService
	}
	return i.Type
}

// LockedLifetimePrice 服务已使用同周期的终身锁定价，不再参与活动
func (i *OrderItem) LockedLifetimePrice() bool {
	return i.Service != nil && i.Service.PriceOverridden && i.Service.Cycle.ID == i.Cycle.ID
}

// Order 订单聚合根
type Order struct {
	ID       int64
	ClientID int64
	UserID   int64
	Currency string
	Items    []*OrderItem
}

// TotalOrigin 订单原价合计
func (o *Order) TotalOrigin() decimal.Decimal {
	amounts := make([]decimal.Decimal, 0, len(o.Items))
	for _, item := range o.Items {
		amounts = append(amounts, item.AmountOrigin)
	}
	return money.Sum(amounts...)
}

// TotalOriginByType 某一类型订单行的原价合计
func (o *Order) TotalOriginByType(t ItemType) decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		if item.Type == t {
			total = total.Add(item.AmountOrigin)
		}
	}
	return total
}

// ItemsExcept 返回不在 ids 中的订单行
func (o *Order) ItemsExcept(ids map[int64]struct{}) []*OrderItem {
	var rest []*OrderItem
	for _, item := range o.Items {
		if _, ok := ids[item.ID]; !ok {
			rest = append(rest, item)
		}
	}
	return rest
}
