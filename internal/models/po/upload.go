package po

import (
	"time"

	"github.com/google/uuid"
)

// UploadStatus 表示上传会话的当前状态。
type UploadStatus string

const (
	UploadStatusUploading UploadStatus = "uploading"
	UploadStatusCompleted UploadStatus = "completed"
	UploadStatusAborted   UploadStatus = "aborted"
	UploadStatusExpired   UploadStatus = "expired"
)

// UploadSession 描述 media.upload_sessions 表中的一条分片上传会话记录。
// ExternalUploadID 是对象存储侧的 multipart upload id，
// 完成/终止时必须与客户端回传的 id 精确匹配。
type UploadSession struct {
	SessionID         uuid.UUID
	VideoID           uuid.UUID
	Bucket            string
	ObjectKey         string
	ExternalUploadID  string
	Status            UploadStatus
	PartSizeBytes     int64
	ExpectedSizeBytes int64
	ExpiresAt         time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// IsExpired 判断会话在给定时刻是否已过期。
func (s *UploadSession) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
