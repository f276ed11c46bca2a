package transcode_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/bionicotaku/lingo-services-media/internal/infrastructure/configloader"
	"github.com/bionicotaku/lingo-services-media/internal/infrastructure/txmanager"
	"github.com/bionicotaku/lingo-services-media/internal/media"
	"github.com/bionicotaku/lingo-services-media/internal/models/po"
	"github.com/bionicotaku/lingo-services-media/internal/repositories"
	"github.com/bionicotaku/lingo-services-media/internal/tasks/transcode"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
)

type videoStoreStub struct {
	video        *po.Video
	getErr       error
	durations    []int64
	ready        []repositories.MarkReadyInput
	markReadyErr error
}

func (s *videoStoreStub) GetByID(context.Context, txmanager.Session, uuid.UUID) (*po.Video, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.video, nil
}

func (s *videoStoreStub) UpdateDurationMicros(_ context.Context, _ txmanager.Session, _ uuid.UUID, durationMicros int64) error {
	s.durations = append(s.durations, durationMicros)
	return nil
}

func (s *videoStoreStub) MarkReady(_ context.Context, _ txmanager.Session, input repositories.MarkReadyInput) error {
	if s.markReadyErr != nil {
		return s.markReadyErr
	}
	s.ready = append(s.ready, input)
	return nil
}

type sourceStorageStub struct {
	downloads []string
	err       error
}

func (s *sourceStorageStub) DownloadToFile(_ context.Context, key, _ string) error {
	if s.err != nil {
		return s.err
	}
	s.downloads = append(s.downloads, key)
	return nil
}

type proberStub struct {
	duration time.Duration
	fps      float64
	err      error
}

func (s *proberStub) Duration(context.Context, string) (time.Duration, error) {
	return s.duration, s.err
}

func (s *proberStub) FrameRate(context.Context, string) float64 { return s.fps }

type transcoderStub struct {
	calls int
	fps   []float64
	err   error
}

func (s *transcoderStub) Transcode(_ context.Context, _, _ string, fps float64) error {
	s.calls++
	s.fps = append(s.fps, fps)
	return s.err
}

func (s *transcoderStub) Ladder() []media.Rendition { return media.DefaultLadder }

type uploaderStub struct {
	baseKeys []string
	err      error
}

func (s *uploaderStub) Upload(_ context.Context, _, baseKey string, _ []media.Rendition) error {
	if s.err != nil {
		return s.err
	}
	s.baseKeys = append(s.baseKeys, baseKey)
	return nil
}

type pipeline struct {
	videos     *videoStoreStub
	storage    *sourceStorageStub
	prober     *proberStub
	transcoder *transcoderStub
	uploader   *uploaderStub
	handler    *transcode.Handler
}

func newPipeline(t *testing.T, video *po.Video) *pipeline {
	t.Helper()
	p := &pipeline{
		videos:     &videoStoreStub{video: video},
		storage:    &sourceStorageStub{},
		prober:     &proberStub{duration: 90 * time.Second, fps: 25},
		transcoder: &transcoderStub{},
		uploader:   &uploaderStub{},
	}
	handler, err := transcode.NewHandler(
		p.videos, p.storage, p.prober, p.transcoder, p.uploader,
		configloader.TranscodeConfig{WorkDir: t.TempDir(), EncodeVersion: 1},
		nil,
		log.NewStdLogger(io.Discard),
	)
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	p.handler = handler
	return p
}

func uploadingVideo(videoID uuid.UUID) *po.Video {
	return &po.Video{
		VideoID:          videoID,
		ProcessingStatus: po.ProcessingStatusUploaded,
		SourceKey:        "videos/" + videoID.String() + "/source/source.mp4",
	}
}

func TestHandle_SuccessMarksReady(t *testing.T) {
	videoID, _ := uuid.NewV7()
	p := newPipeline(t, uploadingVideo(videoID))

	if err := p.handler.Handle(context.Background(), videoID); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(p.storage.downloads) != 1 || !strings.Contains(p.storage.downloads[0], videoID.String()) {
		t.Fatalf("unexpected downloads: %v", p.storage.downloads)
	}
	if len(p.videos.durations) != 1 || p.videos.durations[0] != (90*time.Second).Microseconds() {
		t.Fatalf("duration not persisted: %v", p.videos.durations)
	}
	if p.transcoder.calls != 1 || p.transcoder.fps[0] != 25 {
		t.Fatalf("transcode not invoked with probed fps: calls=%d fps=%v", p.transcoder.calls, p.transcoder.fps)
	}
	wantBaseKey := "videos/" + videoID.String() + "/outputs/hls/v1/"
	if len(p.uploader.baseKeys) != 1 || p.uploader.baseKeys[0] != wantBaseKey {
		t.Fatalf("unexpected upload base key: %v", p.uploader.baseKeys)
	}
	if len(p.videos.ready) != 1 || p.videos.ready[0].HLSBaseKey != wantBaseKey || p.videos.ready[0].EncodeVersion != 1 {
		t.Fatalf("unexpected mark ready input: %+v", p.videos.ready)
	}
}

func TestHandle_ReadyVideoAcksWithoutTranscoding(t *testing.T) {
	videoID, _ := uuid.NewV7()
	video := uploadingVideo(videoID)
	video.ProcessingStatus = po.ProcessingStatusReady
	p := newPipeline(t, video)

	if err := p.handler.Handle(context.Background(), videoID); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if p.transcoder.calls != 0 || len(p.storage.downloads) != 0 {
		t.Fatalf("ready video must not be reprocessed")
	}
}

func TestHandle_UnknownVideoAcks(t *testing.T) {
	videoID, _ := uuid.NewV7()
	p := newPipeline(t, nil)
	p.videos.getErr = repositories.ErrVideoNotFound

	if err := p.handler.Handle(context.Background(), videoID); err != nil {
		t.Fatalf("unknown video must be acked, got %v", err)
	}
	if p.transcoder.calls != 0 {
		t.Fatalf("transcode must not run for unknown video")
	}
}

func TestHandle_TranscodeFailurePropagates(t *testing.T) {
	videoID, _ := uuid.NewV7()
	p := newPipeline(t, uploadingVideo(videoID))
	p.transcoder.err = errors.New("encoder crashed")

	if err := p.handler.Handle(context.Background(), videoID); err == nil {
		t.Fatalf("transcode failure must propagate for redelivery")
	}
	if len(p.videos.ready) != 0 {
		t.Fatalf("video must not be marked ready after failure")
	}
}

func TestHandle_ConcurrentReadyAcks(t *testing.T) {
	videoID, _ := uuid.NewV7()
	p := newPipeline(t, uploadingVideo(videoID))
	p.videos.markReadyErr = repositories.ErrVideoNotFound

	if err := p.handler.Handle(context.Background(), videoID); err != nil {
		t.Fatalf("concurrent terminal transition must be acked, got %v", err)
	}
}

func TestHandle_DownloadFailurePropagates(t *testing.T) {
	videoID, _ := uuid.NewV7()
	p := newPipeline(t, uploadingVideo(videoID))
	p.storage.err = errors.New("object gone")

	if err := p.handler.Handle(context.Background(), videoID); err == nil {
		t.Fatalf("download failure must propagate for redelivery")
	}
	if p.transcoder.calls != 0 {
		t.Fatalf("pipeline must stop at download failure")
	}
}
