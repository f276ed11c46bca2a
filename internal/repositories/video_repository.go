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

// ErrVideoNotFound 表示视频记录不存在或已软删除。
var ErrVideoNotFound = errors.New("video not found")

const videoColumns = `video_id, processing_status, visibility, source_key,
	duration_micros, current_encode_version, hls_base_key,
	created_at, updated_at, deleted_at`

// VideoRepository 封装 media.videos 表的访问逻辑。
type VideoRepository struct {
	db  *pgxpool.Pool
	log *log.Helper
}

// NewVideoRepository 构造 VideoRepository。
func NewVideoRepository(db *pgxpool.Pool, logger log.Logger) *VideoRepository {
	return &VideoRepository{
		db:  db,
		log: log.NewHelper(logger),
	}
}

// CreateVideoInput 描述新建视频记录所需字段。
type CreateVideoInput struct {
	VideoID   uuid.UUID
	SourceKey string
}

// Create 插入一条 uploading 状态的视频记录。
func (r *VideoRepository) Create(ctx context.Context, sess txmanager.Session, input CreateVideoInput) (*po.Video, error) {
	row := querier(r.db, sess).QueryRow(ctx, `
		INSERT INTO videos (video_id, processing_status, visibility, source_key)
		VALUES ($1, $2, $3, $4)
		RETURNING `+videoColumns,
		input.VideoID, po.ProcessingStatusUploading, po.VisibilityPrivate, input.SourceKey,
	)

	video, err := scanVideo(row)
	if err != nil {
		r.log.WithContext(ctx).Errorf("create video failed: video_id=%s err=%v", input.VideoID, err)
		return nil, fmt.Errorf("create video: %w", err)
	}
	return video, nil
}

// GetByID 查询指定视频，软删除记录视为不存在。
func (r *VideoRepository) GetByID(ctx context.Context, sess txmanager.Session, videoID uuid.UUID) (*po.Video, error) {
	row := querier(r.db, sess).QueryRow(ctx, `
		SELECT `+videoColumns+`
		FROM videos
		WHERE video_id = $1 AND deleted_at IS NULL`,
		videoID,
	)

	video, err := scanVideo(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrVideoNotFound
		}
		r.log.WithContext(ctx).Errorf("get video failed: video_id=%s err=%v", videoID, err)
		return nil, fmt.Errorf("get video: %w", err)
	}
	return video, nil
}

// MarkUploaded 将 uploading 状态的视频置为 uploaded。
// 条件更新保证重复调用与乱序调用不破坏状态机；未命中时返回 ErrVideoNotFound。
func (r *VideoRepository) MarkUploaded(ctx context.Context, sess txmanager.Session, videoID uuid.UUID) error {
	tag, err := querier(r.db, sess).Exec(ctx, `
		UPDATE videos
		SET processing_status = $1, updated_at = now()
		WHERE video_id = $2 AND processing_status = $3 AND deleted_at IS NULL`,
		po.ProcessingStatusUploaded, videoID, po.ProcessingStatusUploading,
	)
	if err != nil {
		r.log.WithContext(ctx).Errorf("mark video uploaded failed: video_id=%s err=%v", videoID, err)
		return fmt.Errorf("mark video uploaded: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrVideoNotFound
	}
	return nil
}

// MarkReadyInput 描述转码完成后的补写字段。
type MarkReadyInput struct {
	VideoID       uuid.UUID
	EncodeVersion int32
	HLSBaseKey    string
}

// MarkReady 将 uploaded 状态的视频置为 ready，写入编码版本与产物前缀。
func (r *VideoRepository) MarkReady(ctx context.Context, sess txmanager.Session, input MarkReadyInput) error {
	tag, err := querier(r.db, sess).Exec(ctx, `
		UPDATE videos
		SET processing_status = $1,
		    current_encode_version = $2,
		    hls_base_key = $3,
		    updated_at = now()
		WHERE video_id = $4 AND processing_status = $5 AND deleted_at IS NULL`,
		po.ProcessingStatusReady, input.EncodeVersion, input.HLSBaseKey,
		input.VideoID, po.ProcessingStatusUploaded,
	)
	if err != nil {
		r.log.WithContext(ctx).Errorf("mark video ready failed: video_id=%s err=%v", input.VideoID, err)
		return fmt.Errorf("mark video ready: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrVideoNotFound
	}
	return nil
}

// UpdateDurationMicros 写入探测到的视频时长。
func (r *VideoRepository) UpdateDurationMicros(ctx context.Context, sess txmanager.Session, videoID uuid.UUID, durationMicros int64) error {
	tag, err := querier(r.db, sess).Exec(ctx, `
		UPDATE videos
		SET duration_micros = $1, updated_at = now()
		WHERE video_id = $2 AND deleted_at IS NULL`,
		durationMicros, videoID,
	)
	if err != nil {
		r.log.WithContext(ctx).Errorf("update video duration failed: video_id=%s err=%v", videoID, err)
		return fmt.Errorf("update video duration: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrVideoNotFound
	}
	return nil
}

// UpdateVisibility 更新可见性。置为 public 要求视频已 ready；
// 未命中返回 ErrVideoNotFound，由上层区分不存在与状态不满足。
func (r *VideoRepository) UpdateVisibility(ctx context.Context, sess txmanager.Session, videoID uuid.UUID, visibility po.Visibility) error {
	query := `
		UPDATE videos
		SET visibility = $1, updated_at = now()
		WHERE video_id = $2 AND deleted_at IS NULL`
	args := []any{visibility, videoID}
	if visibility == po.VisibilityPublic {
		query += ` AND processing_status = $3`
		args = append(args, po.ProcessingStatusReady)
	}

	tag, err := querier(r.db, sess).Exec(ctx, query, args...)
	if err != nil {
		r.log.WithContext(ctx).Errorf("update video visibility failed: video_id=%s err=%v", videoID, err)
		return fmt.Errorf("update video visibility: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrVideoNotFound
	}
	return nil
}

// ListStaleUploading 列出长期停留在 uploading 状态的视频，供清理任务回收。
func (r *VideoRepository) ListStaleUploading(ctx context.Context, sess txmanager.Session, olderThan time.Time, limit int32) ([]*po.Video, error) {
	rows, err := querier(r.db, sess).Query(ctx, `
		SELECT `+videoColumns+`
		FROM videos
		WHERE processing_status = $1 AND created_at < $2 AND deleted_at IS NULL
		ORDER BY created_at
		LIMIT $3`,
		po.ProcessingStatusUploading, olderThan, limit,
	)
	if err != nil {
		r.log.WithContext(ctx).Errorf("list stale videos failed: err=%v", err)
		return nil, fmt.Errorf("list stale videos: %w", err)
	}
	defer rows.Close()

	var videos []*po.Video
	for rows.Next() {
		video, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stale video: %w", err)
		}
		videos = append(videos, video)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stale videos: %w", err)
	}
	return videos, nil
}

// SoftDelete 打软删除标记，幂等。
func (r *VideoRepository) SoftDelete(ctx context.Context, sess txmanager.Session, videoID uuid.UUID) error {
	_, err := querier(r.db, sess).Exec(ctx, `
		UPDATE videos
		SET deleted_at = now(), updated_at = now()
		WHERE video_id = $1 AND deleted_at IS NULL`,
		videoID,
	)
	if err != nil {
		r.log.WithContext(ctx).Errorf("soft delete video failed: video_id=%s err=%v", videoID, err)
		return fmt.Errorf("soft delete video: %w", err)
	}
	return nil
}

func scanVideo(row pgx.Row) (*po.Video, error) {
	var v po.Video
	err := row.Scan(
		&v.VideoID,
		&v.ProcessingStatus,
		&v.Visibility,
		&v.SourceKey,
		&v.DurationMicros,
		&v.CurrentEncodeVersion,
		&v.HLSBaseKey,
		&v.CreatedAt,
		&v.UpdatedAt,
		&v.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
