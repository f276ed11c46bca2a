// Package po 定义面向持久化的数据对象（Persistent Objects），由 Repository 层使用。
// PO 对象映射数据库表结构，不直接暴露给上层业务逻辑。
package po

import (
	"time"

	"github.com/google/uuid"
)

// ProcessingStatus 表示视频在媒体流水线中的生命周期状态
type ProcessingStatus string

// 处理状态常量定义
const (
	ProcessingStatusUploading ProcessingStatus = "uploading" // 上传会话已创建，源文件未就位
	ProcessingStatusUploaded  ProcessingStatus = "uploaded"  // 源文件已落存储，等待转码
	ProcessingStatusReady     ProcessingStatus = "ready"     // HLS 产物已生成，可供播放
)

// Visibility 表示视频对外可见性
type Visibility string

// 可见性常量定义
const (
	VisibilityPrivate Visibility = "private" // 仅上传者可见
	VisibilityPublic  Visibility = "public"  // 对外公开（要求 ready）
)

// Video 表示 media.videos 表的数据库实体。
// 映射视频从上传会话创建到 HLS 产物就绪的完整生命周期。
type Video struct {
	VideoID          uuid.UUID        `db:"video_id"`          // 主键（UUID v7，时间有序）
	ProcessingStatus ProcessingStatus `db:"processing_status"` // 流水线状态
	Visibility       Visibility       `db:"visibility"`        // 对外可见性
	SourceKey        string           `db:"source_key"`        // 源文件对象键
	CreatedAt        time.Time        `db:"created_at"`        // 记录创建时间
	UpdatedAt        time.Time        `db:"updated_at"`        // 最近更新时间

	// 转码完成后补写
	DurationMicros       *int64  `db:"duration_micros"`        // 视频时长（微秒）
	CurrentEncodeVersion *int32  `db:"current_encode_version"` // 当前产物的编码版本
	HLSBaseKey           *string `db:"hls_base_key"`           // HLS 产物根前缀

	// 软删除标记，清理任务据此回收存储
	DeletedAt *time.Time `db:"deleted_at"`
}

// IsReady 判断视频是否已具备可播放产物。
func (v *Video) IsReady() bool {
	return v.ProcessingStatus == ProcessingStatusReady
}
