package transcode

import (
	"context"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// pipelineMetrics 记录转码流水线的成功/失败计数与耗时分布。
type pipelineMetrics struct {
	success  metric.Int64Counter
	failure  metric.Int64Counter
	skipped  metric.Int64Counter
	duration metric.Float64Histogram
}

func newPipelineMetrics(helper *log.Helper) *pipelineMetrics {
	meter := otel.GetMeterProvider().Meter("lingo-services-media.transcode")
	m := &pipelineMetrics{}
	var err error

	if m.success, err = meter.Int64Counter("transcode_success_total",
		metric.WithDescription("Number of videos transcoded successfully")); err != nil {
		helper.Warnf("init transcode success counter failed: %v", err)
	}
	if m.failure, err = meter.Int64Counter("transcode_failure_total",
		metric.WithDescription("Number of transcode pipeline failures by stage")); err != nil {
		helper.Warnf("init transcode failure counter failed: %v", err)
	}
	if m.skipped, err = meter.Int64Counter("transcode_skipped_total",
		metric.WithDescription("Number of redeliveries acked because the video was already ready")); err != nil {
		helper.Warnf("init transcode skipped counter failed: %v", err)
	}
	if m.duration, err = meter.Float64Histogram("transcode_duration_seconds",
		metric.WithDescription("End to end transcode pipeline duration"), metric.WithUnit("s")); err != nil {
		helper.Warnf("init transcode duration histogram failed: %v", err)
	}
	return m
}

func (m *pipelineMetrics) recordSuccess(ctx context.Context, elapsed time.Duration) {
	if m == nil {
		return
	}
	if m.success != nil {
		m.success.Add(ctx, 1)
	}
	if m.duration != nil {
		m.duration.Record(ctx, elapsed.Seconds())
	}
}

func (m *pipelineMetrics) recordFailure(ctx context.Context, stage string) {
	if m == nil || m.failure == nil {
		return
	}
	m.failure.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
}

func (m *pipelineMetrics) recordSkipped(ctx context.Context) {
	if m == nil || m.skipped == nil {
		return
	}
	m.skipped.Add(ctx, 1)
}
