//go:build wireinject
// +build wireinject

// Package main 为转码 Worker 提供 Wire 依赖注入定义。
package main

import (
	"context"

	"github.com/bionicotaku/lingo-services-media/internal/infrastructure/configloader"
	"github.com/bionicotaku/lingo-services-media/internal/infrastructure/database"
	"github.com/bionicotaku/lingo-services-media/internal/infrastructure/logger"
	"github.com/bionicotaku/lingo-services-media/internal/infrastructure/objectstore"
	"github.com/bionicotaku/lingo-services-media/internal/repositories"
	"github.com/bionicotaku/lingo-services-media/internal/tasks/transcode"

	"github.com/google/wire"
)

//go:generate go run github.com/google/wire/cmd/wire

func wireWorker(context.Context, configloader.Params) (*workerApp, func(), error) {
	panic(wire.Build(
		configloader.ProviderSet,
		logger.NewLogger,
		database.NewPgxPool,
		objectstore.NewClient,
		provideSubscriber,
		repositories.NewVideoRepository,
		transcode.ProvideRunner,
		newWorkerApp,
	))
}
