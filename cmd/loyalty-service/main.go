package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"loyalty/internal/pkg/bootstrap"
	"loyalty/internal/pkg/config"
	"loyalty/internal/pkg/database"
	"loyalty/internal/pkg/httpclient"
	"loyalty/internal/pkg/lock"
	"loyalty/internal/pkg/logger"
	"loyalty/internal/pkg/mq"
	"loyalty/internal/pkg/redis"
	"loyalty/internal/pkg/tracing"
	"loyalty/internal/service/loyalty/application"
	"loyalty/internal/service/loyalty/infrastructure/events"
	"loyalty/internal/service/loyalty/infrastructure/locking"
	"loyalty/internal/service/loyalty/infrastructure/persistence"
	"loyalty/internal/service/loyalty/infrastructure/pricing"
	"loyalty/internal/service/loyalty/infrastructure/rule"
	"loyalty/internal/service/loyalty/infrastructure/simulator"
	"loyalty/internal/service/loyalty/infrastructure/usage"
	"loyalty/internal/service/loyalty/interfaces"
)

// main 是应用的组装根：创建并组装所有依赖项，然后启动消费者和运维端口。
func main() {
	cfg, err := config.Load(getEnv("LOYALTY_CONFIG", ""))
	if err != nil {
		logger.Ctx(context.Background()).Fatal().Err(err).Msg("failed to load config")
	}
	logger.Init(cfg.Service.Name, cfg.Service.LogLevel)
	log := logger.Ctx(context.Background())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. 初始化核心技术组件
	tp, err := tracing.InitTracerProvider(cfg.Service.Name, cfg.Jaeger.Endpoint, cfg.Jaeger.SampleRatio)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize tracer provider")
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.Error().Err(err).Msg("error shutting down tracer provider")
		}
	}()
	tracer := otel.Tracer(cfg.Service.Name)

	db, err := database.OpenMySQL(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect database")
	}
	if cfg.Database.AutoMigrate {
		if err := persistence.AutoMigrate(db); err != nil {
			log.Fatal().Err(err).Msg("failed to migrate database")
		}
	}
	store := persistence.NewGormStore(db)

	redisClient, err := redis.NewClient(cfg.Redis.Addrs, cfg.Redis.Password)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize redis client")
	}
	defer redisClient.Close()

	// 2. 组装引擎的协作者
	counter, err := usage.NewRedisCounter(redisClient, cfg.Engine.DefaultUsageLimit)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize usage counter")
	}
	matcher, err := rule.NewCELMatcher()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize condition matcher")
	}
	converter, err := pricing.NewStaticRateConverter(cfg.Currency.Base, cfg.Currency.Rates)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid currency rates")
	}
	resolver := simulator.NewHTTPTraitResolver(httpclient.NewClient(tracer, cfg.Simulator.Timeout), cfg.Simulator.BaseURL)

	eventWriter := mq.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.EventTopic)
	defer eventWriter.Close()
	replyWriter := mq.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.ReplyTopic)
	defer replyWriter.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	opts := []application.Option{
		application.WithTracer(tracer),
		application.WithMetrics(application.NewMetrics(registry)),
		application.WithPublisher(events.NewKafkaPublisher(eventWriter)),
	}
	orderLocker, closeLocker := newOrderLocker(cfg, redisClient)
	defer closeLocker()
	if orderLocker != nil {
		opts = append(opts, application.WithLocker(orderLocker))
	}

	engine := application.NewEngine(application.Dependencies{
		Store:      store,
		Traits:     resolver,
		Conditions: matcher,
		Pricer:     pricing.NewPercentageOptionPricer(),
		Converter:  converter,
		Usage:      counter,
	}, application.Config{
		MaxProgramsPerOrder: cfg.Engine.MaxProgramsPerOrder,
		EnforceProgramCap:   cfg.Engine.EnforceProgramCap,
	}, opts...)

	// 3. 启动命令消费者与运维端口
	reader := mq.NewKafkaReader(cfg.Kafka.Brokers, cfg.Kafka.CommandTopic, cfg.Kafka.GroupID)
	consumer := interfaces.NewCommandConsumer(reader, replyWriter, store.Orders(), engine, tracer)
	defer consumer.Close()

	ready := func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
	opsServer := bootstrap.NewOpsServer(cfg.Service.HTTPAddr, registry, ready)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return consumer.Run(gctx) })
	g.Go(func() error { return bootstrap.Serve(gctx, opsServer) })

	log.Info().Str("topic", cfg.Kafka.CommandTopic).Msg("Loyalty service started")
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("loyalty service stopped with error")
		return
	}
	log.Info().Msg("Loyalty service gracefully shut down")
}

// newOrderLocker 按配置选择锁的实现，backend 为 none 时不加锁
func newOrderLocker(cfg *config.Config, redisClient *redis.Client) (*locking.OrderLocker, func()) {
	log := logger.Ctx(context.Background())
	switch strings.ToLower(cfg.Lock.Backend) {
	case "zookeeper":
		zkLocker, err := lock.NewZKLocker(cfg.Zookeeper.Servers, cfg.Zookeeper.Root, cfg.Lock.Timeout)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize zookeeper lock")
		}
		return locking.NewOrderLocker(zkLocker), zkLocker.Close
	case "redis":
		redisLocker, err := lock.NewRedisLocker(redisClient, cfg.Lock.TTL, cfg.Lock.Timeout)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize redis lock")
		}
		return locking.NewOrderLocker(redisLocker), func() {}
	default:
		log.Warn().Str("backend", cfg.Lock.Backend).Msg("order lock disabled")
		return nil, func() {}
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
