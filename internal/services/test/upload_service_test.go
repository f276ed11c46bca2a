package services_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/bionicotaku/lingo-services-media/internal/infrastructure/configloader"
	"github.com/bionicotaku/lingo-services-media/internal/infrastructure/gcpubsub"
	"github.com/bionicotaku/lingo-services-media/internal/infrastructure/objectstore"
	"github.com/bionicotaku/lingo-services-media/internal/infrastructure/txmanager"
	"github.com/bionicotaku/lingo-services-media/internal/models/po"
	"github.com/bionicotaku/lingo-services-media/internal/repositories"
	"github.com/bionicotaku/lingo-services-media/internal/services"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const (
	testPartSize = int64(8 << 20)
	testMaxParts = int32(10000)
)

type stubSession struct{}

func (stubSession) Tx() pgx.Tx { return nil }

// stubTxManager 执行闭包并记录提交次序。
type stubTxManager struct {
	events *[]string
	err    error
}

func (m *stubTxManager) WithinTx(ctx context.Context, fn func(context.Context, txmanager.Session) error) error {
	if err := fn(ctx, stubSession{}); err != nil {
		return err
	}
	if m.err != nil {
		return m.err
	}
	if m.events != nil {
		*m.events = append(*m.events, "commit")
	}
	return nil
}

type stubStorage struct {
	uploadID       string
	presignedParts []int32
	completedParts []objectstore.CompletedPart
	completeCalls  int
	abortCalls     int
	headSize       int64
	headErr        error
	completeErr    error
}

func (s *stubStorage) Bucket() string { return "test-bucket" }

func (s *stubStorage) CreateMultipartUpload(context.Context, string, string) (string, error) {
	if s.uploadID == "" {
		s.uploadID = "upload-1"
	}
	return s.uploadID, nil
}

func (s *stubStorage) PresignUploadPart(_ context.Context, _ string, _ string, partNumber int32, _ time.Duration) (string, error) {
	s.presignedParts = append(s.presignedParts, partNumber)
	return "https://signed.example/part", nil
}

func (s *stubStorage) CompleteMultipartUpload(_ context.Context, _ string, _ string, parts []objectstore.CompletedPart) error {
	s.completeCalls++
	s.completedParts = parts
	return s.completeErr
}

func (s *stubStorage) AbortMultipartUpload(context.Context, string, string) error {
	s.abortCalls++
	return nil
}

func (s *stubStorage) HeadObject(context.Context, string) (*objectstore.ObjectInfo, error) {
	if s.headErr != nil {
		return nil, s.headErr
	}
	return &objectstore.ObjectInfo{SizeBytes: s.headSize}, nil
}

func (s *stubStorage) DeletePrefix(context.Context, string) error { return nil }

type stubVideoStore struct {
	created      []repositories.CreateVideoInput
	markUploaded []uuid.UUID
}

func (s *stubVideoStore) Create(_ context.Context, _ txmanager.Session, input repositories.CreateVideoInput) (*po.Video, error) {
	s.created = append(s.created, input)
	return &po.Video{VideoID: input.VideoID, ProcessingStatus: po.ProcessingStatusUploading, SourceKey: input.SourceKey}, nil
}

func (s *stubVideoStore) MarkUploaded(_ context.Context, _ txmanager.Session, videoID uuid.UUID) error {
	s.markUploaded = append(s.markUploaded, videoID)
	return nil
}

type stubSessionStore struct {
	created   []repositories.CreateUploadInput
	latest    *po.UploadSession
	latestErr error
	completed []uuid.UUID
	aborted   []uuid.UUID
}

func (s *stubSessionStore) Create(_ context.Context, _ txmanager.Session, input repositories.CreateUploadInput) (*po.UploadSession, error) {
	s.created = append(s.created, input)
	return &po.UploadSession{SessionID: input.SessionID, VideoID: input.VideoID, Status: po.UploadStatusUploading}, nil
}

func (s *stubSessionStore) GetLatestByVideoID(context.Context, txmanager.Session, uuid.UUID) (*po.UploadSession, error) {
	if s.latestErr != nil {
		return nil, s.latestErr
	}
	if s.latest == nil {
		return nil, repositories.ErrUploadSessionNotFound
	}
	return s.latest, nil
}

func (s *stubSessionStore) MarkCompleted(_ context.Context, _ txmanager.Session, sessionID uuid.UUID) error {
	s.completed = append(s.completed, sessionID)
	return nil
}

func (s *stubSessionStore) MarkAborted(_ context.Context, _ txmanager.Session, sessionID uuid.UUID) error {
	s.aborted = append(s.aborted, sessionID)
	return nil
}

type stubPublisher struct {
	events    *[]string
	published [][]byte
	err       error
}

func (p *stubPublisher) Publish(_ context.Context, msg gcpubsub.Message) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.published = append(p.published, msg.Data)
	if p.events != nil {
		*p.events = append(*p.events, "publish")
	}
	return "msg-1", nil
}

type fixture struct {
	videos    *stubVideoStore
	sessions  *stubSessionStore
	storage   *stubStorage
	publisher *stubPublisher
	events    []string
	svc       *services.UploadService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		videos:    &stubVideoStore{},
		sessions:  &stubSessionStore{},
		storage:   &stubStorage{},
		publisher: &stubPublisher{},
	}
	f.publisher.events = &f.events

	svc, err := services.NewUploadService(
		f.videos,
		f.sessions,
		f.storage,
		&stubTxManager{events: &f.events},
		f.publisher,
		services.NewIDProvider(),
		configloader.StorageConfig{
			Bucket:        "test-bucket",
			PartSizeBytes: testPartSize,
			MaxParts:      testMaxParts,
			URLTTL:        configloader.Duration(time.Hour),
		},
		log.NewStdLogger(io.Discard),
	)
	if err != nil {
		t.Fatalf("NewUploadService: %v", err)
	}
	f.svc = svc
	return f
}

func activeSession(videoID uuid.UUID) *po.UploadSession {
	sessionID, _ := uuid.NewV7()
	return &po.UploadSession{
		SessionID:         sessionID,
		VideoID:           videoID,
		Bucket:            "test-bucket",
		ObjectKey:         "videos/" + videoID.String() + "/source/source.mp4",
		ExternalUploadID:  "upload-1",
		Status:            po.UploadStatusUploading,
		PartSizeBytes:     testPartSize,
		ExpectedSizeBytes: 40 << 20,
		ExpiresAt:         time.Now().Add(time.Hour),
	}
}

func TestInitUpload_PartCount(t *testing.T) {
	cases := []struct {
		name  string
		size  int64
		parts int
	}{
		{"single byte", 1, 1},
		{"exactly one part", testPartSize, 1},
		{"one byte over", testPartSize + 1, 2},
		{"forty megabytes", 40 << 20, 5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			result, err := f.svc.InitUpload(context.Background(), services.InitUploadInput{
				ContentType: "video/mp4",
				SizeBytes:   tc.size,
			})
			if err != nil {
				t.Fatalf("InitUpload: %v", err)
			}
			if len(result.Parts) != tc.parts {
				t.Fatalf("expected %d parts, got %d", tc.parts, len(result.Parts))
			}
			for i, p := range result.Parts {
				if p.PartNumber != int32(i+1) {
					t.Fatalf("part %d has number %d", i, p.PartNumber)
				}
			}
			if len(f.videos.created) != 1 || len(f.sessions.created) != 1 {
				t.Fatalf("expected one video and one session persisted")
			}
		})
	}
}

func TestInitUpload_RejectsInvalidSize(t *testing.T) {
	f := newFixture(t)
	for _, size := range []int64{0, -1, testPartSize*int64(testMaxParts) + 1} {
		_, err := f.svc.InitUpload(context.Background(), services.InitUploadInput{
			ContentType: "video/mp4",
			SizeBytes:   size,
		})
		if !kerrors.IsBadRequest(err) {
			t.Fatalf("size %d: expected bad request, got %v", size, err)
		}
	}
	if len(f.videos.created) != 0 {
		t.Fatalf("no video should be created for invalid size")
	}
}

func TestCompleteUpload_UploadIDMismatch(t *testing.T) {
	videoID, _ := uuid.NewV7()
	f := newFixture(t)
	f.sessions.latest = activeSession(videoID)

	err := f.svc.CompleteUpload(context.Background(), services.CompleteUploadInput{
		VideoID:   videoID,
		UploadID:  "other-upload",
		SizeBytes: 40 << 20,
		Parts:     []services.CompletedPartInput{{PartNumber: 1, ETag: "a"}},
	})
	if !kerrors.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if f.storage.completeCalls != 0 {
		t.Fatalf("storage must not be mutated on mismatch")
	}
	if len(f.sessions.completed) != 0 || len(f.videos.markUploaded) != 0 {
		t.Fatalf("state must not change on mismatch")
	}
}

func TestCompleteUpload_Expired(t *testing.T) {
	videoID, _ := uuid.NewV7()
	f := newFixture(t)
	sess := activeSession(videoID)
	sess.ExpiresAt = time.Now().Add(-time.Minute)
	f.sessions.latest = sess

	err := f.svc.CompleteUpload(context.Background(), services.CompleteUploadInput{
		VideoID:   videoID,
		UploadID:  "upload-1",
		SizeBytes: 40 << 20,
		Parts:     []services.CompletedPartInput{{PartNumber: 1, ETag: "a"}},
	})
	if !kerrors.IsBadRequest(err) {
		t.Fatalf("expected bad request, got %v", err)
	}
	if f.storage.completeCalls != 0 {
		t.Fatalf("storage must not be mutated for an expired session")
	}
}

func TestCompleteUpload_SortsPartsAscending(t *testing.T) {
	videoID, _ := uuid.NewV7()
	f := newFixture(t)
	f.sessions.latest = activeSession(videoID)
	f.storage.headSize = 40 << 20

	err := f.svc.CompleteUpload(context.Background(), services.CompleteUploadInput{
		VideoID:   videoID,
		UploadID:  "upload-1",
		SizeBytes: 40 << 20,
		Parts: []services.CompletedPartInput{
			{PartNumber: 3, ETag: "c"},
			{PartNumber: 1, ETag: "a"},
			{PartNumber: 5, ETag: "e"},
			{PartNumber: 2, ETag: "b"},
			{PartNumber: 4, ETag: "d"},
		},
	})
	if err != nil {
		t.Fatalf("CompleteUpload: %v", err)
	}
	for i, p := range f.storage.completedParts {
		if p.PartNumber != int32(i+1) {
			t.Fatalf("parts not ascending at index %d: %d", i, p.PartNumber)
		}
	}
}

func TestCompleteUpload_SizeMismatch(t *testing.T) {
	videoID, _ := uuid.NewV7()
	f := newFixture(t)
	f.sessions.latest = activeSession(videoID)
	f.storage.headSize = 39 << 20

	err := f.svc.CompleteUpload(context.Background(), services.CompleteUploadInput{
		VideoID:   videoID,
		UploadID:  "upload-1",
		SizeBytes: 40 << 20,
		Parts:     []services.CompletedPartInput{{PartNumber: 1, ETag: "a"}},
	})
	if !kerrors.IsBadRequest(err) {
		t.Fatalf("expected bad request, got %v", err)
	}
	if len(f.sessions.completed) != 0 || len(f.videos.markUploaded) != 0 {
		t.Fatalf("state must not change on size mismatch")
	}
}

func TestCompleteUpload_PublishesAfterCommit(t *testing.T) {
	videoID, _ := uuid.NewV7()
	f := newFixture(t)
	f.sessions.latest = activeSession(videoID)
	f.storage.headSize = 40 << 20

	err := f.svc.CompleteUpload(context.Background(), services.CompleteUploadInput{
		VideoID:   videoID,
		UploadID:  "upload-1",
		SizeBytes: 40 << 20,
		Parts:     []services.CompletedPartInput{{PartNumber: 1, ETag: "a"}},
	})
	if err != nil {
		t.Fatalf("CompleteUpload: %v", err)
	}
	if len(f.events) != 2 || f.events[0] != "commit" || f.events[1] != "publish" {
		t.Fatalf("expected commit before publish, got %v", f.events)
	}
	if len(f.sessions.completed) != 1 || len(f.videos.markUploaded) != 1 {
		t.Fatalf("expected session completed and video uploaded")
	}
}

func TestCompleteUpload_PublishFailureStillSucceeds(t *testing.T) {
	videoID, _ := uuid.NewV7()
	f := newFixture(t)
	f.sessions.latest = activeSession(videoID)
	f.storage.headSize = 40 << 20
	f.publisher.err = context.DeadlineExceeded

	err := f.svc.CompleteUpload(context.Background(), services.CompleteUploadInput{
		VideoID:   videoID,
		UploadID:  "upload-1",
		SizeBytes: 40 << 20,
		Parts:     []services.CompletedPartInput{{PartNumber: 1, ETag: "a"}},
	})
	if err != nil {
		t.Fatalf("publish failure must not fail the completion: %v", err)
	}
	if len(f.videos.markUploaded) != 1 {
		t.Fatalf("video must stay uploaded for reconciliation")
	}
}

func TestCompleteUpload_AlreadyCompleted(t *testing.T) {
	videoID, _ := uuid.NewV7()
	f := newFixture(t)
	sess := activeSession(videoID)
	sess.Status = po.UploadStatusCompleted
	f.sessions.latest = sess

	err := f.svc.CompleteUpload(context.Background(), services.CompleteUploadInput{
		VideoID:   videoID,
		UploadID:  "upload-1",
		SizeBytes: 40 << 20,
		Parts:     []services.CompletedPartInput{{PartNumber: 1, ETag: "a"}},
	})
	if !kerrors.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestAbortUpload_Idempotent(t *testing.T) {
	videoID, _ := uuid.NewV7()
	f := newFixture(t)
	f.sessions.latest = activeSession(videoID)

	if err := f.svc.AbortUpload(context.Background(), videoID, "upload-1"); err != nil {
		t.Fatalf("AbortUpload: %v", err)
	}
	if f.storage.abortCalls != 1 || len(f.sessions.aborted) != 1 {
		t.Fatalf("expected storage abort and session transition")
	}

	// 第二次调用命中终态会话，直接成功且不再触碰存储。
	f.sessions.latest.Status = po.UploadStatusAborted
	if err := f.svc.AbortUpload(context.Background(), videoID, "upload-1"); err != nil {
		t.Fatalf("second AbortUpload: %v", err)
	}
	if f.storage.abortCalls != 1 {
		t.Fatalf("terminal session must not hit storage again")
	}
}

func TestAbortUpload_Mismatch(t *testing.T) {
	videoID, _ := uuid.NewV7()
	f := newFixture(t)
	f.sessions.latest = activeSession(videoID)

	err := f.svc.AbortUpload(context.Background(), videoID, "other-upload")
	if !kerrors.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if f.storage.abortCalls != 0 {
		t.Fatalf("storage must not be touched on mismatch")
	}
}
