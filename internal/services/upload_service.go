package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bionicotaku/lingo-services-media/internal/infrastructure/configloader"
	"github.com/bionicotaku/lingo-services-media/internal/infrastructure/gcpubsub"
	"github.com/bionicotaku/lingo-services-media/internal/infrastructure/objectstore"
	"github.com/bionicotaku/lingo-services-media/internal/infrastructure/txmanager"
	"github.com/bionicotaku/lingo-services-media/internal/models/events"
	"github.com/bionicotaku/lingo-services-media/internal/models/po"
	"github.com/bionicotaku/lingo-services-media/internal/repositories"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
)

// MultipartStorage 定义上传用例所需的对象存储能力。
type MultipartStorage interface {
	Bucket() string
	CreateMultipartUpload(ctx context.Context, key, contentType string) (string, error)
	PresignUploadPart(ctx context.Context, key, uploadID string, partNumber int32, ttl time.Duration) (string, error)
	CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []objectstore.CompletedPart) error
	AbortMultipartUpload(ctx context.Context, key, uploadID string) error
	HeadObject(ctx context.Context, key string) (*objectstore.ObjectInfo, error)
}

// VideoStore 抽象上传用例对视频表的写入，便于测试。
type VideoStore interface {
	Create(ctx context.Context, sess txmanager.Session, input repositories.CreateVideoInput) (*po.Video, error)
	MarkUploaded(ctx context.Context, sess txmanager.Session, videoID uuid.UUID) error
}

// UploadSessionStore 抽象上传会话持久化操作。
type UploadSessionStore interface {
	Create(ctx context.Context, sess txmanager.Session, input repositories.CreateUploadInput) (*po.UploadSession, error)
	GetLatestByVideoID(ctx context.Context, sess txmanager.Session, videoID uuid.UUID) (*po.UploadSession, error)
	MarkCompleted(ctx context.Context, sess txmanager.Session, sessionID uuid.UUID) error
	MarkAborted(ctx context.Context, sess txmanager.Session, sessionID uuid.UUID) error
}

// InitUploadInput 为上传初始化的服务层输入。
type InitUploadInput struct {
	ContentType string
	SizeBytes   int64
}

// PresignedPart 是返回给客户端的单个分片上传地址。
type PresignedPart struct {
	PartNumber int32
	URL        string
}

// InitUploadResult 为上传初始化的服务层输出。
type InitUploadResult struct {
	VideoID       uuid.UUID
	SessionID     uuid.UUID
	UploadID      string
	PartSizeBytes int64
	Parts         []PresignedPart
	ExpiresAt     time.Time
}

// CompletedPartInput 描述客户端上报的已完成分片。
type CompletedPartInput struct {
	PartNumber int32
	ETag       string
}

// CompleteUploadInput 为上传完成的服务层输入。
type CompleteUploadInput struct {
	VideoID   uuid.UUID
	UploadID  string
	SizeBytes int64
	Parts     []CompletedPartInput
}

// UploadService 实现分片上传会话的业务用例：
// 初始化计划、完成校验与状态落库、终止回收。
type UploadService struct {
	videos      VideoStore
	sessions    UploadSessionStore
	storage     MultipartStorage
	tx          txmanager.Manager
	publisher   gcpubsub.Publisher
	ids         IDProvider
	partSize    int64
	maxParts    int32
	urlTTL      time.Duration
	log         *log.Helper
	now         func() time.Time
	allowedMIME map[string]string
}

// NewUploadService 创建 UploadService。
func NewUploadService(
	videos VideoStore,
	sessions UploadSessionStore,
	storage MultipartStorage,
	tx txmanager.Manager,
	publisher gcpubsub.Publisher,
	ids IDProvider,
	cfg configloader.StorageConfig,
	logger log.Logger,
) (*UploadService, error) {
	switch {
	case videos == nil:
		return nil, errors.New("upload service: video store is required")
	case sessions == nil:
		return nil, errors.New("upload service: session store is required")
	case storage == nil:
		return nil, errors.New("upload service: storage is required")
	case tx == nil:
		return nil, errors.New("upload service: tx manager is required")
	case publisher == nil:
		return nil, errors.New("upload service: publisher is required")
	case ids == nil:
		return nil, errors.New("upload service: id provider is required")
	case cfg.PartSizeBytes <= 0:
		return nil, errors.New("upload service: part size must be positive")
	case cfg.MaxParts <= 0:
		return nil, errors.New("upload service: max parts must be positive")
	case cfg.URLTTL.AsDuration() <= 0:
		return nil, errors.New("upload service: url ttl must be positive")
	}

	return &UploadService{
		videos:    videos,
		sessions:  sessions,
		storage:   storage,
		tx:        tx,
		publisher: publisher,
		ids:       ids,
		partSize:  cfg.PartSizeBytes,
		maxParts:  cfg.MaxParts,
		urlTTL:    cfg.URLTTL.AsDuration(),
		now:       time.Now,
		allowedMIME: map[string]string{
			"video/mp4":       "mp4",
			"video/quicktime": "mov",
			"video/x-m4v":     "m4v",
			"video/webm":      "webm",
			"video/x-matroska": "mkv",
		},
		log: log.NewHelper(logger),
	}, nil
}

// InitUpload 分配视频记录并签发分片上传计划。
func (s *UploadService) InitUpload(ctx context.Context, input InitUploadInput) (*InitUploadResult, error) {
	contentType := strings.ToLower(strings.TrimSpace(input.ContentType))
	ext, ok := s.allowedMIME[contentType]
	if !ok {
		return nil, kerrors.BadRequest(ReasonUploadInvalid, fmt.Sprintf("unsupported content_type: %s", input.ContentType))
	}

	maxSize := s.partSize * int64(s.maxParts)
	if input.SizeBytes <= 0 || input.SizeBytes > maxSize {
		return nil, kerrors.BadRequest(ReasonUploadInvalid,
			fmt.Sprintf("size_bytes must be within 1-%d", maxSize))
	}

	videoID, err := s.ids.NewID()
	if err != nil {
		return nil, fmt.Errorf("allocate video id: %w", err)
	}
	sessionID, err := s.ids.NewID()
	if err != nil {
		return nil, fmt.Errorf("allocate session id: %w", err)
	}

	sourceKey := fmt.Sprintf("videos/%s/source/source.%s", videoID, ext)

	uploadID, err := s.storage.CreateMultipartUpload(ctx, sourceKey, contentType)
	if err != nil {
		return nil, fmt.Errorf("open multipart upload: %w", err)
	}

	partCount := int32((input.SizeBytes + s.partSize - 1) / s.partSize)
	expiresAt := s.now().Add(s.urlTTL).UTC()

	parts := make([]PresignedPart, 0, partCount)
	for n := int32(1); n <= partCount; n++ {
		url, err := s.storage.PresignUploadPart(ctx, sourceKey, uploadID, n, s.urlTTL)
		if err != nil {
			s.abortQuietly(ctx, sourceKey, uploadID)
			return nil, fmt.Errorf("presign part %d: %w", n, err)
		}
		parts = append(parts, PresignedPart{PartNumber: n, URL: url})
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context, sess txmanager.Session) error {
		if _, err := s.videos.Create(ctx, sess, repositories.CreateVideoInput{
			VideoID:   videoID,
			SourceKey: sourceKey,
		}); err != nil {
			return err
		}
		_, err := s.sessions.Create(ctx, sess, repositories.CreateUploadInput{
			SessionID:         sessionID,
			VideoID:           videoID,
			Bucket:            s.storage.Bucket(),
			ObjectKey:         sourceKey,
			ExternalUploadID:  uploadID,
			PartSizeBytes:     s.partSize,
			ExpectedSizeBytes: input.SizeBytes,
			ExpiresAt:         expiresAt,
		})
		return err
	})
	if err != nil {
		s.abortQuietly(ctx, sourceKey, uploadID)
		return nil, fmt.Errorf("persist upload plan: %w", err)
	}

	s.log.WithContext(ctx).Infof("upload plan issued: video_id=%s parts=%d expires_at=%s", videoID, partCount, expiresAt)
	return &InitUploadResult{
		VideoID:       videoID,
		SessionID:     sessionID,
		UploadID:      uploadID,
		PartSizeBytes: s.partSize,
		Parts:         parts,
		ExpiresAt:     expiresAt,
	}, nil
}

// CompleteUpload 校验并合并分片，落库后发布转码请求。
func (s *UploadService) CompleteUpload(ctx context.Context, input CompleteUploadInput) error {
	if input.VideoID == uuid.Nil {
		return kerrors.BadRequest(ReasonUploadInvalid, "video_id is required")
	}
	if input.UploadID == "" {
		return kerrors.BadRequest(ReasonUploadInvalid, "upload_id is required")
	}
	if len(input.Parts) == 0 {
		return kerrors.BadRequest(ReasonUploadInvalid, "parts must not be empty")
	}

	session, err := s.sessions.GetLatestByVideoID(ctx, nil, input.VideoID)
	if err != nil {
		if errors.Is(err, repositories.ErrUploadSessionNotFound) {
			return kerrors.NotFound(ReasonUploadSessionNotFound, "upload session not found")
		}
		return fmt.Errorf("lookup upload session: %w", err)
	}

	switch session.Status {
	case po.UploadStatusCompleted:
		return kerrors.Conflict(ReasonUploadAlreadyCompleted, "upload already completed")
	case po.UploadStatusAborted, po.UploadStatusExpired:
		return kerrors.Conflict(ReasonUploadSessionExpired, "upload session is no longer active")
	}

	if session.ExternalUploadID != input.UploadID {
		return kerrors.Conflict(ReasonUploadIDMismatch, "upload_id does not match the active session")
	}
	if session.IsExpired(s.now()) {
		return kerrors.BadRequest(ReasonUploadSessionExpired, "upload session expired")
	}

	parts, err := normalizeParts(input.Parts)
	if err != nil {
		return kerrors.BadRequest(ReasonUploadInvalid, err.Error())
	}

	if err := s.storage.CompleteMultipartUpload(ctx, session.ObjectKey, input.UploadID, parts); err != nil {
		return fmt.Errorf("complete multipart upload: %w", err)
	}

	// 合并后核对对象实际大小。失败时对象保留，交由人工排查，不做自动回滚。
	info, err := s.storage.HeadObject(ctx, session.ObjectKey)
	if err != nil {
		if errors.Is(err, objectstore.ErrObjectNotFound) {
			return kerrors.InternalServer(ReasonUploadSizeMismatch, "merged object not found")
		}
		return fmt.Errorf("verify merged object: %w", err)
	}
	if info.SizeBytes != input.SizeBytes {
		return kerrors.BadRequest(ReasonUploadSizeMismatch,
			fmt.Sprintf("object size %d does not match declared %d", info.SizeBytes, input.SizeBytes))
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context, sess txmanager.Session) error {
		if err := s.sessions.MarkCompleted(ctx, sess, session.SessionID); err != nil {
			return err
		}
		return s.videos.MarkUploaded(ctx, sess, input.VideoID)
	})
	if err != nil {
		return fmt.Errorf("finalize upload: %w", err)
	}

	// 事务提交后再发布。发布失败不回滚状态：视频停留在 uploaded，
	// 由运维侧对账补发，避免出现“已发消息但未落库”的反向不一致。
	s.publishTranscodeRequest(ctx, input.VideoID)
	return nil
}

// AbortUpload 终止上传会话并释放存储侧分片，可重复调用。
func (s *UploadService) AbortUpload(ctx context.Context, videoID uuid.UUID, uploadID string) error {
	if videoID == uuid.Nil {
		return kerrors.BadRequest(ReasonUploadInvalid, "video_id is required")
	}
	if uploadID == "" {
		return kerrors.BadRequest(ReasonUploadInvalid, "upload_id is required")
	}

	session, err := s.sessions.GetLatestByVideoID(ctx, nil, videoID)
	if err != nil {
		if errors.Is(err, repositories.ErrUploadSessionNotFound) {
			return kerrors.NotFound(ReasonUploadSessionNotFound, "upload session not found")
		}
		return fmt.Errorf("lookup upload session: %w", err)
	}

	switch session.Status {
	case po.UploadStatusAborted, po.UploadStatusExpired:
		// 已终态，重复 abort 视为成功。
		return nil
	case po.UploadStatusCompleted:
		return kerrors.Conflict(ReasonUploadAlreadyCompleted, "upload already completed")
	}

	if session.ExternalUploadID != uploadID {
		return kerrors.Conflict(ReasonUploadIDMismatch, "upload_id does not match the active session")
	}

	if err := s.storage.AbortMultipartUpload(ctx, session.ObjectKey, uploadID); err != nil {
		return fmt.Errorf("abort multipart upload: %w", err)
	}

	if err := s.sessions.MarkAborted(ctx, nil, session.SessionID); err != nil {
		if errors.Is(err, repositories.ErrUploadSessionNotFound) {
			// 并发下已被其他调用转为终态。
			return nil
		}
		return fmt.Errorf("mark session aborted: %w", err)
	}

	s.log.WithContext(ctx).Infof("upload aborted: video_id=%s session_id=%s", videoID, session.SessionID)
	return nil
}

func (s *UploadService) publishTranscodeRequest(ctx context.Context, videoID uuid.UUID) {
	payload, err := events.TranscodeRequested{VideoID: videoID}.Encode()
	if err != nil {
		s.log.WithContext(ctx).Errorf("encode transcode request failed: video_id=%s err=%v", videoID, err)
		return
	}
	msgID, err := s.publisher.Publish(ctx, gcpubsub.Message{Data: payload})
	if err != nil {
		s.log.WithContext(ctx).Errorf("publish transcode request failed, video stays uploaded: video_id=%s err=%v", videoID, err)
		return
	}
	s.log.WithContext(ctx).Infof("transcode request published: video_id=%s message_id=%s", videoID, msgID)
}

func (s *UploadService) abortQuietly(ctx context.Context, key, uploadID string) {
	if err := s.storage.AbortMultipartUpload(ctx, key, uploadID); err != nil {
		s.log.WithContext(ctx).Warnf("abort multipart upload failed: key=%s err=%v", key, err)
	}
}

// normalizeParts 校验分片编号合法且唯一，并按编号升序返回。
// 存储侧的合并接口要求分片严格升序，与客户端提交顺序无关。
func normalizeParts(input []CompletedPartInput) ([]objectstore.CompletedPart, error) {
	parts := make([]objectstore.CompletedPart, 0, len(input))
	seen := make(map[int32]struct{}, len(input))
	for _, p := range input {
		if p.PartNumber < 1 {
			return nil, fmt.Errorf("part number %d is invalid", p.PartNumber)
		}
		if p.ETag == "" {
			return nil, fmt.Errorf("part %d is missing etag", p.PartNumber)
		}
		if _, dup := seen[p.PartNumber]; dup {
			return nil, fmt.Errorf("part number %d is duplicated", p.PartNumber)
		}
		seen[p.PartNumber] = struct{}{}
		parts = append(parts, objectstore.CompletedPart{PartNumber: p.PartNumber, ETag: p.ETag})
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].PartNumber < parts[j].PartNumber })
	return parts, nil
}
