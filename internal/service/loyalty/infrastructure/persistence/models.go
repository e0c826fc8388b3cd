package persistence

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ProductModel 对应 products 表
type ProductModel struct {
	ID   int64 `gorm:"primaryKey"`
	Name string
	Type string `gorm:"size:32"`
}

func (ProductModel) TableName() string { return "products" }

// CycleModel 对应 cycles 表
type CycleModel struct {
	ID         int64  `gorm:"primaryKey"`
	Kind       string `gorm:"size:16"`
	Multiplier int64
}

func (CycleModel) TableName() string { return "cycles" }

// ServiceModel 对应 services 表
type ServiceModel struct {
	ID              int64 `gorm:"primaryKey"`
	CycleID         int64
	Cycle           CycleModel      `gorm:"foreignKey:CycleID"`
	FixedPrice      decimal.Decimal `gorm:"type:decimal(20,4)"`
	BasePrice       decimal.Decimal `gorm:"type:decimal(20,4)"`
	PriceOverridden bool
}

func (ServiceModel) TableName() string { return "services" }

// OrderModel 对应 orders 表
type OrderModel struct {
	ID        int64 `gorm:"primaryKey"`
	ClientID  int64 `gorm:"index"`
	UserID    int64
	Currency  string           `gorm:"size:8"`
	Items     []OrderItemModel `gorm:"foreignKey:OrderID"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (OrderModel) TableName() string { return "orders" }

// OrderItemModel 对应 order_items 表
type OrderItemModel struct {
	ID         int64  `gorm:"primaryKey"`
	OrderID    int64  `gorm:"index"`
	ItemType   string `gorm:"size:32"`
	CycleID    int64
	Cycle      CycleModel `gorm:"foreignKey:CycleID"`
	ProductID  *int64
	Product    *ProductModel `gorm:"foreignKey:ProductID"`
	ServiceID  *int64
	Service    *ServiceModel `gorm:"foreignKey:ServiceID"`
	PluginData datatypes.JSONMap

	AmountOrigin             decimal.Decimal `gorm:"type:decimal(20,4)"`
	FixedPrice               decimal.Decimal `gorm:"type:decimal(20,4)"`
	Total                    decimal.Decimal `gorm:"type:decimal(20,4)"`
	Discount                 decimal.Decimal `gorm:"type:decimal(10,4)"`
	ConfigurableOptionsPrice decimal.Decimal `gorm:"type:decimal(20,4)"`
	Options                  []ConfigurableOptionModel `gorm:"foreignKey:OrderItemID"`

	RewardID *int64
	CouponID *int64

	BaselineFixedPrice decimal.Decimal `gorm:"type:decimal(20,4)"`
	BaselineTotal      decimal.Decimal `gorm:"type:decimal(20,4)"`
}

func (OrderItemModel) TableName() string { return "order_items" }

// OptionCycleModel 可配置项在某个周期下的价格规则
type OptionCycleModel struct {
	ID         int64           `gorm:"primaryKey"`
	PriceType  string          `gorm:"size:16"`
	Price      decimal.Decimal `gorm:"type:decimal(20,4)"`
	Percentage decimal.Decimal `gorm:"type:decimal(10,4)"`
}

func (OptionCycleModel) TableName() string { return "configurable_option_cycles" }

// ConfigurableOptionModel 订单行上的可配置项
type ConfigurableOptionModel struct {
	ID            int64 `gorm:"primaryKey"`
	OrderItemID   int64 `gorm:"index"`
	OptionCycleID int64
	OptionCycle   OptionCycleModel `gorm:"foreignKey:OptionCycleID"`
	Quantity      int64
	Price         decimal.Decimal `gorm:"type:decimal(20,4)"`
	UnitPrice     decimal.Decimal `gorm:"type:decimal(20,4)"`

	BaselinePrice     decimal.Decimal `gorm:"type:decimal(20,4)"`
	BaselineUnitPrice decimal.Decimal `gorm:"type:decimal(20,4)"`
}

func (ConfigurableOptionModel) TableName() string { return "order_item_configurable_options" }

// LoyaltyProgramModel 对应 loyalty_programs 表。
// 适用产品、周期、排除产品以逗号分隔存储。
type LoyaltyProgramModel struct {
	ID                 int64  `gorm:"primaryKey"`
	Name               string
	ProgramType        string `gorm:"size:32;index"`
	Unlimited          bool
	AppliesOn          string `gorm:"size:16;default:current"`
	Active             bool   `gorm:"index"`
	Priority           int
	StartAt            *time.Time
	EndAt              *time.Time
	ProductIDs         string `gorm:"type:text"`
	CycleIDs           string `gorm:"type:text"`
	ExcludedProductIDs string `gorm:"type:text"`

	Cards      []LoyaltyCardModel      `gorm:"foreignKey:ProgramID"`
	Conditions []ProgramConditionModel `gorm:"foreignKey:ProgramID"`
	Rewards    []RewardProgramModel    `gorm:"foreignKey:ProgramID"`
}

func (LoyaltyProgramModel) TableName() string { return "loyalty_programs" }

// LoyaltyCardModel 对应 loyalty_cards 表
type LoyaltyCardModel struct {
	ID             int64  `gorm:"primaryKey"`
	ProgramID      int64  `gorm:"index"`
	Code           string `gorm:"size:64;index"`
	PartnerID      *int64
	ExpirationTime *time.Time
}

func (LoyaltyCardModel) TableName() string { return "loyalty_cards" }

// ProgramConditionModel 对应 program_conditions 表
type ProgramConditionModel struct {
	ID                int64           `gorm:"primaryKey"`
	ProgramID         int64           `gorm:"index"`
	MinimumAmount     decimal.Decimal `gorm:"type:decimal(20,4)"`
	Currency          string          `gorm:"size:8"`
	OrderItemType     string          `gorm:"size:32"`
	ProductCycleIDs   string          `gorm:"type:text"`
	RewardPointMode   string          `gorm:"size:16"`
	RewardPointAmount int64
	TraitExpression   string `gorm:"type:text"`
	StartAt           *time.Time
	EndAt             *time.Time
}

func (ProgramConditionModel) TableName() string { return "program_conditions" }

// RewardProgramModel 对应 program_rewards 表
type RewardProgramModel struct {
	ID                    int64 `gorm:"primaryKey"`
	ProgramID             int64 `gorm:"index"`
	Description           string
	RewardType            string `gorm:"size:16"`
	DiscountMode          string `gorm:"size:16"`
	DiscountApplicability string `gorm:"size:16"`
	RequiredPoint         int64
	Discount              decimal.Decimal `gorm:"type:decimal(20,4)"`
}

func (RewardProgramModel) TableName() string { return "program_rewards" }

// OrderPointRewardModel 订单积分账目，(order, program, client) 唯一
type OrderPointRewardModel struct {
	ID        int64 `gorm:"primaryKey"`
	OrderID   int64 `gorm:"uniqueIndex:idx_order_program_client"`
	ProgramID int64 `gorm:"uniqueIndex:idx_order_program_client"`
	ClientID  int64 `gorm:"uniqueIndex:idx_order_program_client"`
	Points    int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (OrderPointRewardModel) TableName() string { return "order_point_rewards" }

// AutoMigrate 创建或更新所有表结构
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&ProductModel{},
		&CycleModel{},
		&ServiceModel{},
		&OrderModel{},
		&OrderItemModel{},
		&OptionCycleModel{},
		&ConfigurableOptionModel{},
		&LoyaltyProgramModel{},
		&LoyaltyCardModel{},
		&ProgramConditionModel{},
		&RewardProgramModel{},
		&OrderPointRewardModel{},
	)
}
