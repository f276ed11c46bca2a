//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package main

import (
	"context"

	"github.com/bionicotaku/lingo-services-media/internal/controllers"
	"github.com/bionicotaku/lingo-services-media/internal/infrastructure/configloader"
	"github.com/bionicotaku/lingo-services-media/internal/infrastructure/database"
	"github.com/bionicotaku/lingo-services-media/internal/infrastructure/logger"
	"github.com/bionicotaku/lingo-services-media/internal/infrastructure/objectstore"
	"github.com/bionicotaku/lingo-services-media/internal/infrastructure/txmanager"
	"github.com/bionicotaku/lingo-services-media/internal/repositories"
	"github.com/bionicotaku/lingo-services-media/internal/server"
	"github.com/bionicotaku/lingo-services-media/internal/services"
	cleanuptask "github.com/bionicotaku/lingo-services-media/internal/tasks/cleanup"

	"github.com/go-kratos/kratos/v2"
	"github.com/google/wire"
)

//go:generate go run github.com/google/wire/cmd/wire

// wireApp init kratos application.
func wireApp(context.Context, configloader.Params) (*kratos.App, func(), error) {
	panic(wire.Build(
		configloader.ProviderSet,
		logger.NewLogger,
		database.NewPgxPool,
		txmanager.NewManager,
		objectstore.NewClient,
		providePublisher,
		repositories.ProviderSet,
		services.ProviderSet,
		wire.Bind(new(services.VideoStore), new(*repositories.VideoRepository)),
		wire.Bind(new(services.VideoReader), new(*repositories.VideoRepository)),
		wire.Bind(new(services.VisibilityStore), new(*repositories.VideoRepository)),
		wire.Bind(new(services.CleanupVideoStore), new(*repositories.VideoRepository)),
		wire.Bind(new(services.UploadSessionStore), new(*repositories.UploadRepository)),
		wire.Bind(new(services.CleanupSessionStore), new(*repositories.UploadRepository)),
		wire.Bind(new(services.MultipartStorage), new(*objectstore.Client)),
		wire.Bind(new(services.CleanupStorage), new(*objectstore.Client)),
		controllers.ProviderSet,
		server.NewHTTPServer,
		cleanuptask.NewRunner,
		provideSweeper,
		newApp,
	))
}
