package application

import (
	"context"

	"github.com/pkg/errors"

	"loyalty/internal/pkg/logger"
	"loyalty/internal/service/loyalty/domain"
	"loyalty/internal/service/loyalty/port"
)

// LedgerEntry 一条积分账目及其所属活动
type LedgerEntry struct {
	Coupon  *domain.Coupon
	Program *domain.Program
}

// ApplyPrograms 为每个活动写入或更新订单积分账目，同一 (订单, 活动, 客户) 只会有一条。
func (e *Engine) ApplyPrograms(ctx context.Context, uow port.UnitOfWork, order *domain.Order, points *PointsResult) ([]LedgerEntry, error) {
	limit := e.cfg.MaxProgramsPerOrder
	entries := make([]LedgerEntry, 0, len(points.Programs()))
	for i, pp := range points.Programs() {
		if limit > 0 && i >= limit {
			if e.cfg.EnforceProgramCap {
				break
			}
			logger.Ctx(ctx).Debug().Int("limit", limit).Int64("program_id", pp.Program.ID).
				Msg("program count exceeds order limit, cap not enforced")
		}

		coupon, err := uow.Coupons().Find(ctx, order.ID, pp.Program.ID, order.ClientID)
		switch {
		case errors.Is(err, domain.ErrCouponNotFound):
			coupon = &domain.Coupon{
				OrderID:   order.ID,
				ProgramID: pp.Program.ID,
				ClientID:  order.ClientID,
				Points:    pp.Points,
			}
			if err := uow.Coupons().Create(ctx, coupon); err != nil {
				return nil, errors.Wrapf(err, "create coupon for program %d", pp.Program.ID)
			}
		case err != nil:
			return nil, errors.Wrapf(err, "find coupon for program %d", pp.Program.ID)
		case coupon.Points != pp.Points:
			if err := uow.Coupons().UpdatePoints(ctx, coupon.ID, pp.Points); err != nil {
				return nil, errors.Wrapf(err, "update coupon %d", coupon.ID)
			}
			coupon.Points = pp.Points
		}
		entries = append(entries, LedgerEntry{Coupon: coupon, Program: pp.Program})
	}
	return entries, nil
}
