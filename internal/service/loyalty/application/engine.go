package application

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"loyalty/internal/service/loyalty/port"
)

const tracerName = "loyalty-engine"

// Config 引擎配置，由调用方显式传入。
type Config struct {
	// MaxProgramsPerOrder 单个订单最多写入积分账目的活动数
	MaxProgramsPerOrder int `yaml:"max_programs_per_order"`
	// EnforceProgramCap 为 false 时只记录上限，不提前截断（保持现有行为）
	EnforceProgramCap bool `yaml:"enforce_program_cap"`
}

// Dependencies 引擎必需的外部协作者
type Dependencies struct {
	Store      port.Store
	Traits     port.TraitResolver
	Conditions port.ConditionMatcher
	Pricer     port.OptionPricer
	Converter  port.CurrencyConverter
	Usage      port.UsageCounter
}

// Engine 订单积分与奖励引擎。
// 引擎本身不保存任何订单状态，每个流程的中间结果都通过参数与返回值传递。
type Engine struct {
	store      port.Store
	traits     port.TraitResolver
	conditions port.ConditionMatcher
	pricer     port.OptionPricer
	converter  port.CurrencyConverter
	usage      port.UsageCounter

	locker    port.OrderLocker
	publisher port.EventPublisher
	tracer    trace.Tracer
	metrics   *Metrics
	cfg       Config
	now       func() time.Time
}

type Option func(*Engine)

// WithClock 替换时间来源（测试用）
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLocker 为写流程加订单级锁
func WithLocker(l port.OrderLocker) Option {
	return func(e *Engine) { e.locker = l }
}

// WithPublisher 奖励应用成功后发布事件
func WithPublisher(p port.EventPublisher) Option {
	return func(e *Engine) { e.publisher = p }
}

func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine 创建一个新的引擎实例
func NewEngine(deps Dependencies, cfg Config, opts ...Option) *Engine {
	e := &Engine{
		store:      deps.Store,
		traits:     deps.Traits,
		conditions: deps.Conditions,
		pricer:     deps.Pricer,
		converter:  deps.Converter,
		usage:      deps.Usage,
		cfg:        cfg,
		now:        time.Now,
		tracer:     otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// lockOrder 获取订单锁；未配置锁时返回空操作。
func (e *Engine) lockOrder(ctx context.Context, orderID int64) (func() error, error) {
	if e.locker == nil {
		return func() error { return nil }, nil
	}
	return e.locker.Lock(ctx, orderID)
}
