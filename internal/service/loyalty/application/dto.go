package application

import (
	"github.com/shopspring/decimal"

	"loyalty/internal/service/loyalty/domain"
)

// 返回给调用方的提示文案（翻译由外部负责）
const (
	MsgNoProgramAvailable  = "No program available"
	MsgCannotApplyProgram  = "Can not apply program"
	MsgCannotApplyCoupon   = "Can not apply coupon"
	MsgAppliedCoupon       = "Applied coupon"
	MsgProgramNotAvailable = "Program not available"
	MsgCannotClaimProgram  = "Can not claim program"
	MsgAppliedProgram      = "Applied program"
	MsgProgramNotApplied   = "Can not apply program."
	MsgNotEligible         = "You are not eligible"
	MsgMinimumAmount       = "A minimum of %s %s should be purchased to get the reward"
)

// Result 是两个应用奖励流程的返回值
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func succeed(msg string) Result { return Result{Success: true, Message: msg} }
func fail(msg string) Result    { return Result{Success: false, Message: msg} }

// RewardView 可用奖励列表中的一项
type RewardView struct {
	RewardID       int64                `json:"id"`
	ProgramID      int64                `json:"program_id"`
	Description    string               `json:"description"`
	Type           domain.RewardType    `json:"reward_type"`
	DiscountMode   domain.DiscountMode  `json:"discount_mode"`
	Applicability  domain.Applicability `json:"discount_applicability"`
	Discount       decimal.Decimal      `json:"discount"`
	RequiredPoints int64                `json:"required_point"`

	CanApply      bool   `json:"can_apply"`
	RemainUsage   int64  `json:"remain_usage"` // -1 表示不限次数
	MessagesError string `json:"messages_error,omitempty"`
}

func newRewardView(r *domain.Reward) RewardView {
	return RewardView{
		RewardID:       r.ID,
		ProgramID:      r.ProgramID,
		Description:    r.Description,
		Type:           r.Type,
		DiscountMode:   r.DiscountMode,
		Applicability:  r.Applicability,
		Discount:       r.Discount,
		RequiredPoints: r.RequiredPoints,
		CanApply:       true,
		RemainUsage:    -1,
	}
}

func (v *RewardView) reject(msg string) {
	v.CanApply = false
	v.MessagesError = msg
}
