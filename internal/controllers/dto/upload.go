// Package dto 定义 HTTP 层的请求/响应结构及与服务层类型的映射。
package dto

import (
	"github.com/bionicotaku/lingo-services-media/internal/models/po"
	"github.com/bionicotaku/lingo-services-media/internal/services"
)

// InitUploadRequest 是上传初始化请求体。
type InitUploadRequest struct {
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
}

// PresignedPart 是单个分片的上传地址。
type PresignedPart struct {
	PartNumber int32  `json:"part_number"`
	URL        string `json:"url"`
}

// InitUploadResponse 是上传初始化响应体。
type InitUploadResponse struct {
	VideoID         string          `json:"video_id"`
	SessionID       string          `json:"session_id"`
	UploadID        string          `json:"upload_id"`
	PartSizeBytes   int64           `json:"part_size_bytes"`
	Parts           []PresignedPart `json:"parts"`
	ExpiresAtUnixMs int64           `json:"expires_at_unixms"`
}

// FromInitUploadResult 将服务层结果映射为响应体。
func FromInitUploadResult(result *services.InitUploadResult) *InitUploadResponse {
	parts := make([]PresignedPart, 0, len(result.Parts))
	for _, p := range result.Parts {
		parts = append(parts, PresignedPart{PartNumber: p.PartNumber, URL: p.URL})
	}
	return &InitUploadResponse{
		VideoID:         result.VideoID.String(),
		SessionID:       result.SessionID.String(),
		UploadID:        result.UploadID,
		PartSizeBytes:   result.PartSizeBytes,
		Parts:           parts,
		ExpiresAtUnixMs: result.ExpiresAt.UnixMilli(),
	}
}

// CompletedPart 是客户端上报的已完成分片。
type CompletedPart struct {
	PartNumber int32  `json:"part_number"`
	ETag       string `json:"etag"`
}

// CompleteUploadRequest 是上传完成请求体。
type CompleteUploadRequest struct {
	UploadID  string          `json:"upload_id"`
	SizeBytes int64           `json:"size_bytes"`
	Parts     []CompletedPart `json:"parts"`
}

// ToCompletedParts 映射为服务层输入。
func (r *CompleteUploadRequest) ToCompletedParts() []services.CompletedPartInput {
	parts := make([]services.CompletedPartInput, 0, len(r.Parts))
	for _, p := range r.Parts {
		parts = append(parts, services.CompletedPartInput{PartNumber: p.PartNumber, ETag: p.ETag})
	}
	return parts
}

// AbortUploadRequest 是上传终止请求体。
type AbortUploadRequest struct {
	UploadID string `json:"upload_id"`
}

// StatusResponse 是无业务载荷操作的通用响应。
type StatusResponse struct {
	Status string `json:"status"`
}

// UpdateVisibilityRequest 是可见性切换请求体。
type UpdateVisibilityRequest struct {
	Visibility string `json:"visibility"`
}

// VideoResponse 是视频状态查询响应体。
type VideoResponse struct {
	VideoID              string  `json:"video_id"`
	ProcessingStatus     string  `json:"processing_status"`
	Visibility           string  `json:"visibility"`
	DurationMicros       *int64  `json:"duration_micros,omitempty"`
	CurrentEncodeVersion *int32  `json:"current_encode_version,omitempty"`
	HLSBaseKey           *string `json:"hls_base_key,omitempty"`
	CreatedAtUnixMs      int64   `json:"created_at_unixms"`
	UpdatedAtUnixMs      int64   `json:"updated_at_unixms"`
}

// FromVideo 将视频实体映射为响应体。
func FromVideo(video *po.Video) *VideoResponse {
	return &VideoResponse{
		VideoID:              video.VideoID.String(),
		ProcessingStatus:     string(video.ProcessingStatus),
		Visibility:           string(video.Visibility),
		DurationMicros:       video.DurationMicros,
		CurrentEncodeVersion: video.CurrentEncodeVersion,
		HLSBaseKey:           video.HLSBaseKey,
		CreatedAtUnixMs:      video.CreatedAt.UnixMilli(),
		UpdatedAtUnixMs:      video.UpdatedAt.UnixMilli(),
	}
}
