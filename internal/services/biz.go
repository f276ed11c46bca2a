// Package services contains application use case orchestration.
package services

import "github.com/google/wire"

// 错误原因枚举：随 kratos errors 的 reason 字段返回给调用方。
const (
	ReasonUploadInvalid          = "UPLOAD_INVALID"
	ReasonUploadIDMismatch       = "UPLOAD_ID_MISMATCH"
	ReasonUploadSessionExpired   = "UPLOAD_SESSION_EXPIRED"
	ReasonUploadSessionNotFound  = "UPLOAD_SESSION_NOT_FOUND"
	ReasonUploadAlreadyCompleted = "UPLOAD_ALREADY_COMPLETED"
	ReasonUploadSizeMismatch     = "UPLOAD_SIZE_MISMATCH"
	ReasonVideoNotFound          = "VIDEO_NOT_FOUND"
	ReasonVisibilityInvalid      = "VISIBILITY_INVALID"
	ReasonQueryVideoFailed       = "QUERY_VIDEO_FAILED"
)

// ProviderSet is services providers.
var ProviderSet = wire.NewSet(
	NewIDProvider,
	NewUploadService,
	NewVideoQueryService,
	NewVisibilityService,
	NewCleanupService,
)
