package transcode

import (
	"github.com/bionicotaku/lingo-services-media/internal/infrastructure/configloader"
	"github.com/bionicotaku/lingo-services-media/internal/infrastructure/gcpubsub"
	"github.com/bionicotaku/lingo-services-media/internal/infrastructure/objectstore"
	"github.com/bionicotaku/lingo-services-media/internal/media"
	"github.com/bionicotaku/lingo-services-media/internal/repositories"

	"github.com/go-kratos/kratos/v2/log"
)

// ProvideRunner 装配转码 Runner。
func ProvideRunner(
	videos *repositories.VideoRepository,
	storage *objectstore.Client,
	subscriber gcpubsub.Subscriber,
	cfg configloader.TranscodeConfig,
	logger log.Logger,
) (*Runner, error) {
	runner := media.NewRunner(logger)
	prober := media.NewProber(cfg, runner, logger)
	transcoder := media.NewTranscoder(cfg, runner, logger)
	uploader, err := media.NewArtifactUploader(storage, logger)
	if err != nil {
		return nil, err
	}

	metrics := newPipelineMetrics(log.NewHelper(logger))
	handler, err := NewHandler(videos, storage, prober, transcoder, uploader, cfg, metrics, logger)
	if err != nil {
		return nil, err
	}

	return NewRunner(RunnerParams{
		Subscriber: subscriber,
		Handler:    handler,
		Logger:     logger,
	})
}
