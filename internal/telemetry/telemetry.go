package telemetry

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/swapbot/goswap/internal/domain"
	"github.com/swapbot/goswap/pkg/logger"
)

// Reporter 外部错误追踪协作方。
// 实现自身的失败绝不允许传播回流水线。
type Reporter interface {
	ReportError(ctx context.Context, err error, fields map[string]string)
}

// Report 上报入口：过滤不可上报的错误并吞掉实现的 panic。
// 用户取消签名与本地校验错误不进入外部错误追踪。
func Report(ctx context.Context, r Reporter, err error, fields map[string]string) {
	if r == nil || !domain.Reportable(err) {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			logger.WithField("panic", rec).Warn("错误上报实现 panic，已忽略")
		}
	}()
	r.ReportError(ctx, err, fields)
}

// LogReporter 默认实现：错误写入结构化日志。
type LogReporter struct{}

func (LogReporter) ReportError(_ context.Context, err error, fields map[string]string) {
	entry := logger.WithError(err)
	lf := make(logrus.Fields, len(fields))
	for k, v := range fields {
		lf[k] = v
	}
	entry.WithFields(lf).Error("上报错误")
}

// NoopReporter 空实现（测试用）。
type NoopReporter struct{}

func (NoopReporter) ReportError(context.Context, error, map[string]string) {}
