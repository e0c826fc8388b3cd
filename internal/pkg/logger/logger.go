// internal/pkg/logger/logger.go
package logger

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

// Init 配置全局 zerolog，所有日志都带上 service 字段。
func Init(serviceName, level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zlog.Logger = zerolog.New(os.Stdout).With().Timestamp().Str("service", serviceName).Logger()
}

// Ctx 从 context 中取出注入的 logger，没有注入时回落到全局 logger。
func Ctx(ctx context.Context) *zerolog.Logger {
	l := zerolog.Ctx(ctx)
	if l == zerolog.DefaultContextLogger || l.GetLevel() == zerolog.Disabled {
		return &zlog.Logger
	}
	return l
}

// WithOrder 返回带有订单字段的 context，便于串联同一订单的日志。
func WithOrder(ctx context.Context, orderID int64) context.Context {
	l := Ctx(ctx).With().Int64("order_id", orderID).Logger()
	return l.WithContext(ctx)
}
