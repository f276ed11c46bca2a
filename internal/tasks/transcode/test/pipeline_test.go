package transcode_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/bionicotaku/lingo-services-media/internal/infrastructure/configloader"
	"github.com/bionicotaku/lingo-services-media/internal/infrastructure/gcpubsub"
	"github.com/bionicotaku/lingo-services-media/internal/infrastructure/objectstore"
	"github.com/bionicotaku/lingo-services-media/internal/infrastructure/txmanager"
	"github.com/bionicotaku/lingo-services-media/internal/models/events"
	"github.com/bionicotaku/lingo-services-media/internal/models/po"
	"github.com/bionicotaku/lingo-services-media/internal/repositories"
	"github.com/bionicotaku/lingo-services-media/internal/services"
	"github.com/bionicotaku/lingo-services-media/internal/tasks/transcode"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// 以下内存实现串起上传完成到转码就绪的完整链路，
// 仅对象存储与媒体工具为桩。

type memSession struct{}

func (memSession) Tx() pgx.Tx { return nil }

type memTxManager struct{}

func (memTxManager) WithinTx(ctx context.Context, fn func(context.Context, txmanager.Session) error) error {
	return fn(ctx, memSession{})
}

type memVideoStore struct {
	videos map[uuid.UUID]*po.Video
}

func (s *memVideoStore) Create(_ context.Context, _ txmanager.Session, input repositories.CreateVideoInput) (*po.Video, error) {
	v := &po.Video{
		VideoID:          input.VideoID,
		ProcessingStatus: po.ProcessingStatusUploading,
		Visibility:       po.VisibilityPrivate,
		SourceKey:        input.SourceKey,
	}
	s.videos[input.VideoID] = v
	return v, nil
}

func (s *memVideoStore) MarkUploaded(_ context.Context, _ txmanager.Session, videoID uuid.UUID) error {
	v, ok := s.videos[videoID]
	if !ok || v.ProcessingStatus != po.ProcessingStatusUploading {
		return repositories.ErrVideoNotFound
	}
	v.ProcessingStatus = po.ProcessingStatusUploaded
	return nil
}

func (s *memVideoStore) GetByID(_ context.Context, _ txmanager.Session, videoID uuid.UUID) (*po.Video, error) {
	v, ok := s.videos[videoID]
	if !ok {
		return nil, repositories.ErrVideoNotFound
	}
	return v, nil
}

func (s *memVideoStore) UpdateDurationMicros(_ context.Context, _ txmanager.Session, videoID uuid.UUID, durationMicros int64) error {
	v, ok := s.videos[videoID]
	if !ok {
		return repositories.ErrVideoNotFound
	}
	v.DurationMicros = &durationMicros
	return nil
}

func (s *memVideoStore) MarkReady(_ context.Context, _ txmanager.Session, input repositories.MarkReadyInput) error {
	v, ok := s.videos[input.VideoID]
	if !ok || v.ProcessingStatus != po.ProcessingStatusUploaded {
		return repositories.ErrVideoNotFound
	}
	v.ProcessingStatus = po.ProcessingStatusReady
	v.CurrentEncodeVersion = &input.EncodeVersion
	v.HLSBaseKey = &input.HLSBaseKey
	return nil
}

type memSessionStore struct {
	sessions map[uuid.UUID]*po.UploadSession
}

func (s *memSessionStore) Create(_ context.Context, _ txmanager.Session, input repositories.CreateUploadInput) (*po.UploadSession, error) {
	sess := &po.UploadSession{
		SessionID:         input.SessionID,
		VideoID:           input.VideoID,
		Bucket:            input.Bucket,
		ObjectKey:         input.ObjectKey,
		ExternalUploadID:  input.ExternalUploadID,
		Status:            po.UploadStatusUploading,
		PartSizeBytes:     input.PartSizeBytes,
		ExpectedSizeBytes: input.ExpectedSizeBytes,
		ExpiresAt:         input.ExpiresAt,
	}
	s.sessions[input.VideoID] = sess
	return sess, nil
}

func (s *memSessionStore) GetLatestByVideoID(_ context.Context, _ txmanager.Session, videoID uuid.UUID) (*po.UploadSession, error) {
	sess, ok := s.sessions[videoID]
	if !ok {
		return nil, repositories.ErrUploadSessionNotFound
	}
	return sess, nil
}

func (s *memSessionStore) MarkCompleted(_ context.Context, _ txmanager.Session, sessionID uuid.UUID) error {
	for _, sess := range s.sessions {
		if sess.SessionID == sessionID && sess.Status == po.UploadStatusUploading {
			sess.Status = po.UploadStatusCompleted
			return nil
		}
	}
	return repositories.ErrUploadSessionNotFound
}

func (s *memSessionStore) MarkAborted(_ context.Context, _ txmanager.Session, sessionID uuid.UUID) error {
	for _, sess := range s.sessions {
		if sess.SessionID == sessionID && sess.Status == po.UploadStatusUploading {
			sess.Status = po.UploadStatusAborted
			return nil
		}
	}
	return repositories.ErrUploadSessionNotFound
}

type memStorage struct {
	objectSize int64
}

func (s *memStorage) Bucket() string { return "mem-bucket" }

func (s *memStorage) CreateMultipartUpload(context.Context, string, string) (string, error) {
	return "mem-upload", nil
}

func (s *memStorage) PresignUploadPart(_ context.Context, _ string, _ string, partNumber int32, _ time.Duration) (string, error) {
	return "https://signed.example/part", nil
}

func (s *memStorage) CompleteMultipartUpload(context.Context, string, string, []objectstore.CompletedPart) error {
	return nil
}

func (s *memStorage) AbortMultipartUpload(context.Context, string, string) error { return nil }

func (s *memStorage) HeadObject(context.Context, string) (*objectstore.ObjectInfo, error) {
	return &objectstore.ObjectInfo{SizeBytes: s.objectSize}, nil
}

type capturePublisher struct {
	payloads [][]byte
}

func (p *capturePublisher) Publish(_ context.Context, msg gcpubsub.Message) (string, error) {
	p.payloads = append(p.payloads, msg.Data)
	return "mem-msg", nil
}

func TestUploadToReadyPipeline(t *testing.T) {
	logger := log.NewStdLogger(io.Discard)
	videos := &memVideoStore{videos: map[uuid.UUID]*po.Video{}}
	sessions := &memSessionStore{sessions: map[uuid.UUID]*po.UploadSession{}}
	storage := &memStorage{objectSize: 40 << 20}
	publisher := &capturePublisher{}

	uploadSvc, err := services.NewUploadService(
		videos, sessions, storage, memTxManager{}, publisher, services.NewIDProvider(),
		configloader.StorageConfig{
			Bucket:        "mem-bucket",
			PartSizeBytes: 8 << 20,
			MaxParts:      10000,
			URLTTL:        configloader.Duration(time.Hour),
		},
		logger,
	)
	if err != nil {
		t.Fatalf("NewUploadService: %v", err)
	}

	plan, err := uploadSvc.InitUpload(context.Background(), services.InitUploadInput{
		ContentType: "video/mp4",
		SizeBytes:   40 << 20,
	})
	if err != nil {
		t.Fatalf("InitUpload: %v", err)
	}
	if len(plan.Parts) != 5 {
		t.Fatalf("40MB at 8MB parts must yield 5 parts, got %d", len(plan.Parts))
	}

	completed := make([]services.CompletedPartInput, 0, len(plan.Parts))
	for _, p := range plan.Parts {
		completed = append(completed, services.CompletedPartInput{PartNumber: p.PartNumber, ETag: "etag"})
	}
	if err := uploadSvc.CompleteUpload(context.Background(), services.CompleteUploadInput{
		VideoID:   plan.VideoID,
		UploadID:  plan.UploadID,
		SizeBytes: 40 << 20,
		Parts:     completed,
	}); err != nil {
		t.Fatalf("CompleteUpload: %v", err)
	}

	video := videos.videos[plan.VideoID]
	if video.ProcessingStatus != po.ProcessingStatusUploaded {
		t.Fatalf("video status after complete = %s", video.ProcessingStatus)
	}
	if sessions.sessions[plan.VideoID].Status != po.UploadStatusCompleted {
		t.Fatalf("session status after complete = %s", sessions.sessions[plan.VideoID].Status)
	}
	if len(publisher.payloads) != 1 {
		t.Fatalf("expected one transcode request published")
	}

	// 消费发布的消息，驱动转码流水线。
	evt, err := events.DecodeTranscodeRequested(publisher.payloads[0])
	if err != nil {
		t.Fatalf("DecodeTranscodeRequested: %v", err)
	}
	if evt.VideoID != plan.VideoID {
		t.Fatalf("published video_id = %s, want %s", evt.VideoID, plan.VideoID)
	}

	handler, err := transcode.NewHandler(
		videos, &sourceStorageStub{}, &proberStub{duration: 2 * time.Minute, fps: 30},
		&transcoderStub{}, &uploaderStub{},
		configloader.TranscodeConfig{WorkDir: t.TempDir(), EncodeVersion: 1},
		nil,
		logger,
	)
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	if err := handler.Handle(context.Background(), evt.VideoID); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if video.ProcessingStatus != po.ProcessingStatusReady {
		t.Fatalf("video status after transcode = %s", video.ProcessingStatus)
	}
	wantKey := "videos/" + plan.VideoID.String() + "/outputs/hls/v1/"
	if video.HLSBaseKey == nil || *video.HLSBaseKey != wantKey {
		t.Fatalf("hls_base_key = %v, want %s", video.HLSBaseKey, wantKey)
	}
	if video.DurationMicros == nil || *video.DurationMicros != (2*time.Minute).Microseconds() {
		t.Fatalf("duration_micros = %v", video.DurationMicros)
	}
}
