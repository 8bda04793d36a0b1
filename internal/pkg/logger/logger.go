// internal/pkg/logger/logger.go
package logger

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

// Init 配置全局 zerolog Logger。所有服务在启动时调用一次。
func Init(serviceName string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zlog.Logger = zerolog.New(os.Stderr).With().
		Timestamp().
		Str("service", serviceName).
		Logger()
}

// Ctx 返回一个与当前请求绑定的 logger。
// 如果 context 中存在活跃的 Span，则自动附加 trace_id，
// 方便在日志系统里和 Jaeger 链路互相跳转。
func Ctx(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		return l
	}
	spanCtx := trace.SpanContextFromContext(ctx)
	if spanCtx.HasTraceID() {
		l := zlog.With().Str("trace_id", spanCtx.TraceID().String()).Logger()
		return &l
	}
	return &zlog.Logger
}

// WithContext 将带有 trace_id 的 logger 存入 context，供下游 handler 复用。
func WithContext(ctx context.Context) context.Context {
	return Ctx(ctx).WithContext(ctx)
}
