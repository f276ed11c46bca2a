package main

import (
	"context"

	"github.com/bionicotaku/lingo-services-media/internal/infrastructure/configloader"
	"github.com/bionicotaku/lingo-services-media/internal/infrastructure/gcpubsub"
	"github.com/bionicotaku/lingo-services-media/internal/tasks/transcode"

	"github.com/go-kratos/kratos/v2/log"
)

// provideSubscriber 构造转码请求 subscription 的消费端。
// 消费并发与在途消息数由配置约束，单视频的处理耗时由编码超时约束。
func provideSubscriber(ctx context.Context, cfg configloader.MessagingConfig, logger log.Logger) (gcpubsub.Subscriber, func(), error) {
	component, cleanup, err := gcpubsub.NewComponent(ctx, gcpubsub.Config{
		ProjectID:      cfg.ProjectID,
		SubscriptionID: cfg.TranscodeSubscription,
		Receive: gcpubsub.ReceiveConfig{
			NumGoroutines:          cfg.NumConsumers,
			MaxOutstandingMessages: cfg.MaxOutstanding,
		},
	}, gcpubsub.Dependencies{Logger: logger})
	if err != nil {
		return nil, nil, err
	}
	return gcpubsub.ProvideSubscriber(component), cleanup, nil
}

func newWorkerApp(logger log.Logger, runner *transcode.Runner) *workerApp {
	return &workerApp{
		Runner: runner,
		Logger: logger,
	}
}
