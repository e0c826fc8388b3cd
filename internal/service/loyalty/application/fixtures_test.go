package application

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"loyalty/internal/service/loyalty/domain"
	"loyalty/internal/service/loyalty/port"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

var (
	cycleMonthly  = domain.Cycle{ID: 1, Kind: domain.CycleMonth, Multiplier: 1}
	cycleAnnually = domain.Cycle{ID: 12, Kind: domain.CycleYear, Multiplier: 1}
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// memStore 内存版 port.Store，事务失败时回滚积分账目与订单行价格
type memStore struct {
	programs []*domain.Program
	orders   map[int64]*domain.Order
	coupons  map[int64]*domain.Coupon
	nextID   int64

	findActiveCalls int
	itemSaves       int
	failItemSave    error
}

func newMemStore(programs ...*domain.Program) *memStore {
	return &memStore{programs: programs, orders: map[int64]*domain.Order{}, coupons: map[int64]*domain.Coupon{}}
}

func (s *memStore) addOrder(o *domain.Order) *domain.Order {
	s.orders[o.ID] = o
	return o
}

func (s *memStore) Programs() port.ProgramRepository { return memPrograms{s} }
func (s *memStore) Orders() port.OrderRepository     { return memOrders{s} }
func (s *memStore) Coupons() port.CouponRepository   { return memCoupons{s} }
func (s *memStore) Items() port.ItemRepository       { return memItems{s} }

type itemSnapshot struct {
	fixed, total, discount decimal.Decimal
	rewardID, couponID     *int64
	options                [][2]decimal.Decimal
}

func (s *memStore) Transaction(_ context.Context, fn func(uow port.UnitOfWork) error) error {
	coupons := make(map[int64]domain.Coupon, len(s.coupons))
	for id, c := range s.coupons {
		coupons[id] = *c
	}
	items := map[*domain.OrderItem]itemSnapshot{}
	for _, o := range s.orders {
		for _, it := range o.Items {
			snap := itemSnapshot{fixed: it.FixedPrice, total: it.Total, discount: it.Discount, rewardID: it.RewardID, couponID: it.CouponID}
			for _, opt := range it.ConfigurableOptions {
				snap.options = append(snap.options, [2]decimal.Decimal{opt.Price, opt.UnitPrice})
			}
			items[it] = snap
		}
	}

	if err := fn(s); err != nil {
		s.coupons = make(map[int64]*domain.Coupon, len(coupons))
		for id, c := range coupons {
			c := c
			s.coupons[id] = &c
		}
		for it, snap := range items {
			it.FixedPrice, it.Total, it.Discount = snap.fixed, snap.total, snap.discount
			it.RewardID, it.CouponID = snap.rewardID, snap.couponID
			for i, opt := range it.ConfigurableOptions {
				opt.Price, opt.UnitPrice = snap.options[i][0], snap.options[i][1]
			}
		}
		return err
	}
	return nil
}

func (s *memStore) couponList() []domain.Coupon {
	var list []domain.Coupon
	for _, c := range s.coupons {
		list = append(list, *c)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}

type memPrograms struct{ s *memStore }

func (r memPrograms) FindActive(_ context.Context, q port.ProgramQuery) ([]*domain.Program, error) {
	r.s.findActiveCalls++
	var out []*domain.Program
	for _, p := range r.s.programs {
		if !p.ActiveAt(q.At) || p.Type == domain.ProgramTypeWallet {
			continue
		}
		if q.Type != "" && p.Type != q.Type {
			continue
		}
		if q.Code != "" && !p.HasCardCode(q.Code) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (r memPrograms) FindReward(_ context.Context, rewardID int64) (*domain.Reward, *domain.Program, error) {
	for _, p := range r.s.programs {
		if reward, ok := p.RewardByID(rewardID); ok {
			return reward, p, nil
		}
	}
	return nil, nil, domain.ErrRewardNotFound
}

type memOrders struct{ s *memStore }

func (r memOrders) FindByID(_ context.Context, id int64) (*domain.Order, error) {
	o, ok := r.s.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return o, nil
}

type memCoupons struct{ s *memStore }

func (r memCoupons) Find(_ context.Context, orderID, programID, clientID int64) (*domain.Coupon, error) {
	for _, c := range r.s.coupons {
		if c.OrderID == orderID && c.ProgramID == programID && c.ClientID == clientID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, domain.ErrCouponNotFound
}

func (r memCoupons) Create(_ context.Context, c *domain.Coupon) error {
	if _, err := r.Find(context.Background(), c.OrderID, c.ProgramID, c.ClientID); err == nil {
		return errors.New("duplicate coupon")
	}
	r.s.nextID++
	c.ID = r.s.nextID
	cp := *c
	r.s.coupons[c.ID] = &cp
	return nil
}

func (r memCoupons) UpdatePoints(_ context.Context, couponID, points int64) error {
	c, ok := r.s.coupons[couponID]
	if !ok {
		return domain.ErrCouponNotFound
	}
	c.Points = points
	return nil
}

type memItems struct{ s *memStore }

func (r memItems) SavePricing(context.Context, *domain.OrderItem) error {
	if r.s.failItemSave != nil {
		return r.s.failItemSave
	}
	r.s.itemSaves++
	return nil
}

func (r memItems) SaveOptionPricing(context.Context, *domain.ConfigurableOption) error { return nil }

func (r memItems) ResetPricing(_ context.Context, items []*domain.OrderItem) error {
	for _, it := range items {
		it.FixedPrice = it.BaselineFixedPrice
		it.Total = it.BaselineTotal
		it.Discount = decimal.Zero
		it.RewardID, it.CouponID = nil, nil
		for _, opt := range it.ConfigurableOptions {
			opt.Price, opt.UnitPrice = opt.BaselinePrice, opt.BaselineUnitPrice
		}
	}
	return nil
}

// 协作者桩

type stubTraits struct {
	traits domain.Traits
	calls  int
}

func (s *stubTraits) Resolve(context.Context, domain.TraitRequest) (domain.Traits, error) {
	s.calls++
	return s.traits, nil
}

// stubMatcher 只保留 traits 中 key 为 TraitExpression 且值为 true 的条件
type stubMatcher struct{}

func (stubMatcher) Match(_ context.Context, conds []*domain.Condition, traits domain.Traits) ([]*domain.Condition, error) {
	var out []*domain.Condition
	for _, c := range conds {
		if c.TraitExpression == "" {
			out = append(out, c)
			continue
		}
		if ok, _ := traits[c.TraitExpression].(bool); ok {
			out = append(out, c)
		}
	}
	return out, nil
}

type stubPricer struct{}

func (stubPricer) PriceFromBase(cycle domain.OptionCycle, base decimal.Decimal) decimal.Decimal {
	return base.Mul(cycle.Percentage).Div(decimal.NewFromInt(100))
}

// stubConverter 1 USD = 2 XXX
type stubConverter struct{}

func (stubConverter) Convert(_ context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	switch {
	case from == to:
		return amount, nil
	case from == "USD" && to == "XXX":
		return amount.Mul(decimal.NewFromInt(2)), nil
	case from == "XXX" && to == "USD":
		return amount.Div(decimal.NewFromInt(2)), nil
	}
	return decimal.Zero, errors.Errorf("no rate %s->%s", from, to)
}

type stubUsage struct {
	programs map[int64]int64
	rewards  map[int64]int64
}

func (u *stubUsage) RemainingForProgram(_ context.Context, p *domain.Program, _ int64) (int64, error) {
	if n, ok := u.programs[p.ID]; ok {
		return n, nil
	}
	return 1, nil
}

func (u *stubUsage) RemainingForReward(_ context.Context, r *domain.Reward, _ int64) (int64, error) {
	if n, ok := u.rewards[r.ID]; ok {
		return n, nil
	}
	return 1, nil
}

type recordingPublisher struct{ events []*port.RewardApplied }

func (p *recordingPublisher) PublishRewardApplied(_ context.Context, e *port.RewardApplied) error {
	p.events = append(p.events, e)
	return nil
}

type recordingLocker struct{ locked, unlocked int }

func (l *recordingLocker) Lock(context.Context, int64) (func() error, error) {
	l.locked++
	return func() error { l.unlocked++; return nil }, nil
}

type harness struct {
	store     *memStore
	usage     *stubUsage
	traits    *stubTraits
	publisher *recordingPublisher
	locker    *recordingLocker
	engine    *Engine
}

func newHarness(t *testing.T, cfg Config, programs ...*domain.Program) *harness {
	t.Helper()
	h := &harness{
		store:     newMemStore(programs...),
		usage:     &stubUsage{programs: map[int64]int64{}, rewards: map[int64]int64{}},
		traits:    &stubTraits{traits: domain.Traits{}},
		publisher: &recordingPublisher{},
		locker:    &recordingLocker{},
	}
	h.engine = NewEngine(Dependencies{
		Store:      h.store,
		Traits:     h.traits,
		Conditions: stubMatcher{},
		Pricer:     stubPricer{},
		Converter:  stubConverter{},
		Usage:      h.usage,
	}, cfg,
		WithClock(func() time.Time { return testNow }),
		WithLocker(h.locker),
		WithPublisher(h.publisher),
		WithMetrics(NewMetrics(prometheus.NewRegistry())),
	)
	return h
}

// 构造器

func serviceItem(id int64, productID int64, price string) *domain.OrderItem {
	p := dec(price)
	return &domain.OrderItem{
		ID:                 id,
		OrderID:            1,
		Type:               domain.ItemTypeService,
		Cycle:              cycleAnnually,
		Product:            &domain.Product{ID: productID, Type: domain.ProductTypeProxy},
		AmountOrigin:       p,
		FixedPrice:         p,
		Total:              p,
		BaselineFixedPrice: p,
		BaselineTotal:      p,
	}
}

func newOrder(items ...*domain.OrderItem) *domain.Order {
	return &domain.Order{ID: 1, ClientID: 10, UserID: 20, Currency: "USD", Items: items}
}

type programOpt func(*domain.Program)

func withCard(code string) programOpt {
	return func(p *domain.Program) {
		p.Cards = append(p.Cards, domain.LoyaltyCard{ID: int64(len(p.Cards) + 1), ProgramID: p.ID, Code: code})
	}
}

func withExpiredCard(code string) programOpt {
	return func(p *domain.Program) {
		past := testNow.Add(-time.Hour)
		p.Cards = append(p.Cards, domain.LoyaltyCard{ProgramID: p.ID, Code: code, ExpiresAt: &past})
	}
}

func withCondition(minimum string, points int64) programOpt {
	return func(p *domain.Program) {
		p.Conditions = append(p.Conditions, &domain.Condition{
			ID:                p.ID*100 + int64(len(p.Conditions)+1),
			ProgramID:         p.ID,
			MinimumAmount:     dec(minimum),
			RewardPointMode:   domain.PointModeOrder,
			RewardPointAmount: points,
		})
	}
}

func withReward(id int64, mode domain.DiscountMode, discount string, required int64) programOpt {
	return func(p *domain.Program) {
		p.Rewards = append(p.Rewards, &domain.Reward{
			ID:             id,
			ProgramID:      p.ID,
			Type:           domain.RewardTypeDiscount,
			DiscountMode:   mode,
			Applicability:  domain.ApplyOrder,
			RequiredPoints: required,
			Discount:       dec(discount),
		})
	}
}

func newProgram(id int64, typ domain.ProgramType, opts ...programOpt) *domain.Program {
	p := &domain.Program{ID: id, Name: "program", Type: typ, Active: true, AppliesOn: domain.AppliesOnCurrent}
	for _, opt := range opts {
		opt(p)
	}
	return p
}
