// Package transcode 实现转码请求的消费循环与流水线编排。
package transcode

import (
	"context"
	"fmt"

	"github.com/bionicotaku/lingo-services-media/internal/infrastructure/gcpubsub"
	"github.com/bionicotaku/lingo-services-media/internal/models/events"

	"github.com/go-kratos/kratos/v2/log"
)

// Runner 封装转码请求消费循环。
type Runner struct {
	subscriber gcpubsub.Subscriber
	handler    *Handler
	logger     *log.Helper
}

// RunnerParams 注入 Runner 所需依赖。
type RunnerParams struct {
	Subscriber gcpubsub.Subscriber
	Handler    *Handler
	Logger     log.Logger
}

// NewRunner 构造转码 Runner。
func NewRunner(params RunnerParams) (*Runner, error) {
	if params.Subscriber == nil {
		return nil, fmt.Errorf("transcode: subscriber is required")
	}
	if params.Handler == nil {
		return nil, fmt.Errorf("transcode: handler is required")
	}
	return &Runner{
		subscriber: params.Subscriber,
		handler:    params.Handler,
		logger:     log.NewHelper(params.Logger),
	}, nil
}

// Run 启动消费循环，直到 context 取消。
func (r *Runner) Run(ctx context.Context) error {
	if r == nil || r.subscriber == nil {
		return nil
	}
	return r.subscriber.Receive(ctx, r.processMessage)
}

func (r *Runner) processMessage(ctx context.Context, msg *gcpubsub.Message) error {
	if msg == nil {
		return nil
	}
	// 无法解码的消息重投也无法修复，确认后丢弃。
	evt, err := events.DecodeTranscodeRequested(msg.Data)
	if err != nil {
		r.logger.WithContext(ctx).Warnw("msg", "decode transcode request failed", "message_id", msg.ID, "error", err)
		return nil
	}
	return r.handler.Handle(ctx, evt.VideoID)
}
