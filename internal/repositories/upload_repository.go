package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bionicotaku/lingo-services-media/internal/infrastructure/txmanager"
	"github.com/bionicotaku/lingo-services-media/internal/models/po"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrUploadSessionNotFound 表示上传会话不存在。
var ErrUploadSessionNotFound = errors.New("upload session not found")

const uploadColumns = `session_id, video_id, bucket, object_key, external_upload_id,
	status, part_size_bytes, expected_size_bytes, expires_at, created_at, updated_at`

// UploadRepository 封装 media.upload_sessions 表的访问逻辑。
type UploadRepository struct {
	db  *pgxpool.Pool
	log *log.Helper
}

// NewUploadRepository 构造 UploadRepository。
func NewUploadRepository(db *pgxpool.Pool, logger log.Logger) *UploadRepository {
	return &UploadRepository{
		db:  db,
		log: log.NewHelper(logger),
	}
}

// CreateUploadInput 描述初始化上传会话所需的字段。
type CreateUploadInput struct {
	SessionID         uuid.UUID
	VideoID           uuid.UUID
	Bucket            string
	ObjectKey         string
	ExternalUploadID  string
	PartSizeBytes     int64
	ExpectedSizeBytes int64
	ExpiresAt         time.Time
}

// Create 插入一条 uploading 状态的上传会话。
func (r *UploadRepository) Create(ctx context.Context, sess txmanager.Session, input CreateUploadInput) (*po.UploadSession, error) {
	row := querier(r.db, sess).QueryRow(ctx, `
		INSERT INTO upload_sessions (
			session_id, video_id, bucket, object_key, external_upload_id,
			status, part_size_bytes, expected_size_bytes, expires_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+uploadColumns,
		input.SessionID, input.VideoID, input.Bucket, input.ObjectKey, input.ExternalUploadID,
		po.UploadStatusUploading, input.PartSizeBytes, input.ExpectedSizeBytes, input.ExpiresAt,
	)

	session, err := scanUploadSession(row)
	if err != nil {
		r.log.WithContext(ctx).Errorf("create upload session failed: video_id=%s err=%v", input.VideoID, err)
		return nil, fmt.Errorf("create upload session: %w", err)
	}
	return session, nil
}

// GetLatestByVideoID 查询指定视频最近一次上传会话。
// SessionID 为 UUID v7，按其排序即按创建时间排序。
func (r *UploadRepository) GetLatestByVideoID(ctx context.Context, sess txmanager.Session, videoID uuid.UUID) (*po.UploadSession, error) {
	row := querier(r.db, sess).QueryRow(ctx, `
		SELECT `+uploadColumns+`
		FROM upload_sessions
		WHERE video_id = $1
		ORDER BY session_id DESC
		LIMIT 1`,
		videoID,
	)

	session, err := scanUploadSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUploadSessionNotFound
		}
		r.log.WithContext(ctx).Errorf("get upload session failed: video_id=%s err=%v", videoID, err)
		return nil, fmt.Errorf("get upload session: %w", err)
	}
	return session, nil
}

// MarkCompleted 将 uploading 状态的会话置为 completed。
// 条件更新使重复 complete 请求自然落空；未命中返回 ErrUploadSessionNotFound。
func (r *UploadRepository) MarkCompleted(ctx context.Context, sess txmanager.Session, sessionID uuid.UUID) error {
	return r.transition(ctx, sess, sessionID, po.UploadStatusUploading, po.UploadStatusCompleted)
}

// MarkAborted 将 uploading 状态的会话置为 aborted。
func (r *UploadRepository) MarkAborted(ctx context.Context, sess txmanager.Session, sessionID uuid.UUID) error {
	return r.transition(ctx, sess, sessionID, po.UploadStatusUploading, po.UploadStatusAborted)
}

func (r *UploadRepository) transition(ctx context.Context, sess txmanager.Session, sessionID uuid.UUID, from, to po.UploadStatus) error {
	tag, err := querier(r.db, sess).Exec(ctx, `
		UPDATE upload_sessions
		SET status = $1, updated_at = now()
		WHERE session_id = $2 AND status = $3`,
		to, sessionID, from,
	)
	if err != nil {
		r.log.WithContext(ctx).Errorf("transition upload session failed: session_id=%s to=%s err=%v", sessionID, to, err)
		return fmt.Errorf("transition upload session to %s: %w", to, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUploadSessionNotFound
	}
	return nil
}

// ExpireBatch 将已过期且仍为 uploading 的会话批量置为 expired，返回受影响的会话。
// 清理任务据此向对象存储发起 multipart abort。
func (r *UploadRepository) ExpireBatch(ctx context.Context, sess txmanager.Session, now time.Time, limit int32) ([]*po.UploadSession, error) {
	rows, err := querier(r.db, sess).Query(ctx, `
		UPDATE upload_sessions
		SET status = $1, updated_at = now()
		WHERE session_id IN (
			SELECT session_id
			FROM upload_sessions
			WHERE status = $2 AND expires_at < $3
			ORDER BY expires_at
			LIMIT $4
		)
		RETURNING `+uploadColumns,
		po.UploadStatusExpired, po.UploadStatusUploading, now, limit,
	)
	if err != nil {
		r.log.WithContext(ctx).Errorf("expire upload sessions failed: err=%v", err)
		return nil, fmt.Errorf("expire upload sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*po.UploadSession
	for rows.Next() {
		session, err := scanUploadSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expired session: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expired sessions: %w", err)
	}
	return sessions, nil
}

func scanUploadSession(row pgx.Row) (*po.UploadSession, error) {
	var s po.UploadSession
	err := row.Scan(
		&s.SessionID,
		&s.VideoID,
		&s.Bucket,
		&s.ObjectKey,
		&s.ExternalUploadID,
		&s.Status,
		&s.PartSizeBytes,
		&s.ExpectedSizeBytes,
		&s.ExpiresAt,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
