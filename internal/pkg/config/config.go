package config

import (
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	Engine    EngineConfig    `yaml:"engine"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Zookeeper ZookeeperConfig `yaml:"zookeeper"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Simulator SimulatorConfig `yaml:"simulator"`
	Jaeger    JaegerConfig    `yaml:"jaeger"`
	Currency  CurrencyConfig  `yaml:"currency"`
	Lock      LockConfig      `yaml:"lock"`
	Nacos     NacosConfig     `yaml:"nacos"`
}

type ServiceConfig struct {
	Name     string `yaml:"name"`
	LogLevel string `yaml:"log_level"`
	HTTPAddr string `yaml:"http_addr"`
}

type EngineConfig struct {
	MaxProgramsPerOrder int  `yaml:"max_programs_per_order"`
	EnforceProgramCap   bool `yaml:"enforce_program_cap"`
	// DefaultUsageLimit 未配置限额的活动/奖励每个用户可用的次数
	DefaultUsageLimit int64 `yaml:"default_usage_limit"`
}

type DatabaseConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	Name         string `yaml:"name"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
	AutoMigrate  bool   `yaml:"auto_migrate"`
}

type RedisConfig struct {
	Addrs    string `yaml:"addrs"`
	Password string `yaml:"password"`
}

type ZookeeperConfig struct {
	Servers []string `yaml:"servers"`
	Root    string   `yaml:"root"`
}

type KafkaConfig struct {
	Brokers      []string `yaml:"brokers"`
	CommandTopic string   `yaml:"command_topic"`
	ReplyTopic   string   `yaml:"reply_topic"`
	EventTopic   string   `yaml:"event_topic"`
	GroupID      string   `yaml:"group_id"`
}

type SimulatorConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type JaegerConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// CurrencyConfig 静态汇率，Rates[c] 表示 1 个基准货币可兑换的 c
type CurrencyConfig struct {
	Base  string            `yaml:"base"`
	Rates map[string]string `yaml:"rates"`
}

type LockConfig struct {
	// Backend 取值 zookeeper、redis 或 none
	Backend string        `yaml:"backend"`
	Timeout time.Duration `yaml:"timeout"`
	TTL     time.Duration `yaml:"ttl"`
}

type NacosConfig struct {
	Addrs     string `yaml:"addrs"`
	Namespace string `yaml:"namespace"`
	Group     string `yaml:"group"`
	DataID    string `yaml:"data_id"`
}

// Default 返回本地开发用的默认配置
func Default() *Config {
	return &Config{
		Service: ServiceConfig{Name: "loyalty-service", LogLevel: "info", HTTPAddr: ":8081"},
		Engine:  EngineConfig{MaxProgramsPerOrder: 1, DefaultUsageLimit: 1},
		Database: DatabaseConfig{
			Host: "localhost", Port: 3306, User: "root", Name: "loyalty",
			MaxOpenConns: 20, MaxIdleConns: 5,
		},
		Redis: RedisConfig{Addrs: "localhost:6379"},
		Zookeeper: ZookeeperConfig{
			Servers: []string{"localhost:2181"},
			Root:    "/distributed_locks",
		},
		Kafka: KafkaConfig{
			Brokers:      []string{"localhost:9092"},
			CommandTopic: "loyalty-commands",
			ReplyTopic:   "loyalty-replies",
			EventTopic:   "loyalty-events",
			GroupID:      "loyalty-service-group",
		},
		Simulator: SimulatorConfig{BaseURL: "http://localhost:8090/simulate", Timeout: 3 * time.Second},
		Jaeger:    JaegerConfig{Endpoint: "http://localhost:14268/api/traces", SampleRatio: 1},
		Currency:  CurrencyConfig{Base: "USD", Rates: map[string]string{"USD": "1"}},
		Lock:      LockConfig{Backend: "redis", Timeout: 5 * time.Second, TTL: 30 * time.Second},
		Nacos:     NacosConfig{Group: "DEFAULT_GROUP"},
	}
}

var current atomic.Pointer[Config]

// GetCurrentConfig 返回最近一次加载的配置，未加载时返回默认配置
func GetCurrentConfig() *Config {
	if c := current.Load(); c != nil {
		return c
	}
	return Default()
}

// Load 依次叠加默认值、YAML 文件、Nacos 配置和环境变量。
// path 为空时跳过文件；未配置 Nacos 地址时跳过远程配置。
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
		if err := Parse(data, cfg); err != nil {
			return nil, err
		}
	}

	nacosAddrs := getEnv("NACOS_SERVER_ADDRS", cfg.Nacos.Addrs)
	if nacosAddrs != "" && cfg.Nacos.DataID != "" {
		cfg.Nacos.Addrs = nacosAddrs
		content, err := FetchNacosConfig(cfg.Nacos)
		if err != nil {
			return nil, err
		}
		if err := Parse([]byte(content), cfg); err != nil {
			return nil, errors.Wrap(err, "nacos config")
		}
	}

	applyEnv(cfg)
	current.Store(cfg)
	return cfg, nil
}

// Parse 把 YAML 覆盖到 cfg 上
func Parse(data []byte, cfg *Config) error {
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return errors.Wrap(err, "parse yaml config")
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Service.LogLevel = getEnv("LOG_LEVEL", cfg.Service.LogLevel)
	cfg.Database.Host = getEnv("DB_HOST", cfg.Database.Host)
	cfg.Database.User = getEnv("DB_USER", cfg.Database.User)
	cfg.Database.Password = getEnv("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.Name = getEnv("DB_NAME", cfg.Database.Name)
	cfg.Redis.Addrs = getEnv("REDIS_ADDRS", cfg.Redis.Addrs)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Jaeger.Endpoint = getEnv("JAEGER_ENDPOINT", cfg.Jaeger.Endpoint)
	cfg.Simulator.BaseURL = getEnv("SIMULATOR_URL", cfg.Simulator.BaseURL)
	cfg.Lock.Backend = getEnv("LOCK_BACKEND", cfg.Lock.Backend)
	if v := getEnv("KAFKA_BROKERS", ""); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := getEnv("ZOOKEEPER_SERVERS", ""); v != "" {
		cfg.Zookeeper.Servers = strings.Split(v, ",")
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
