package main

import (
	"context"
	"errors"

	"github.com/bionicotaku/lingo-services-media/internal/infrastructure/configloader"
	"github.com/bionicotaku/lingo-services-media/internal/infrastructure/gcpubsub"
	cleanuptask "github.com/bionicotaku/lingo-services-media/internal/tasks/cleanup"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/transport"
)

// providePublisher 构造转码请求 topic 的发布端。
func providePublisher(ctx context.Context, cfg configloader.MessagingConfig, logger log.Logger) (gcpubsub.Publisher, func(), error) {
	component, cleanup, err := gcpubsub.NewComponent(ctx, gcpubsub.Config{
		ProjectID: cfg.ProjectID,
		TopicID:   cfg.TranscodeTopic,
	}, gcpubsub.Dependencies{Logger: logger})
	if err != nil {
		return nil, nil, err
	}
	return gcpubsub.ProvidePublisher(component), cleanup, nil
}

// sweeperServer 将清理 Runner 适配为 Kratos transport.Server，
// 随 HTTP 进程一起启动与优雅退出。
type sweeperServer struct {
	runner *cleanuptask.Runner
	cancel context.CancelFunc
}

func provideSweeper(runner *cleanuptask.Runner) transport.Server {
	return &sweeperServer{runner: runner}
}

func (s *sweeperServer) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	err := s.runner.Run(runCtx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *sweeperServer) Stop(_ context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}
