// Package controllers 将 HTTP 请求映射到服务层用例。
package controllers

import (
	stdhttp "net/http"

	"github.com/bionicotaku/lingo-services-media/internal/controllers/dto"
	"github.com/bionicotaku/lingo-services-media/internal/services"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	khttp "github.com/go-kratos/kratos/v2/transport/http"
	"github.com/google/uuid"
)

// UploadHandler 暴露上传会话生命周期接口。
type UploadHandler struct {
	svc *services.UploadService
}

// NewUploadHandler 构造 UploadHandler。
func NewUploadHandler(svc *services.UploadService) *UploadHandler {
	return &UploadHandler{svc: svc}
}

// RegisterRoutes 在路由器上注册上传接口。
func (h *UploadHandler) RegisterRoutes(r *khttp.Router) {
	r.POST("/uploads", h.InitUpload)
	r.POST("/uploads/{video_id}/complete", h.CompleteUpload)
	r.POST("/uploads/{video_id}/abort", h.AbortUpload)
}

// InitUpload 处理上传初始化请求。
func (h *UploadHandler) InitUpload(ctx khttp.Context) error {
	var req dto.InitUploadRequest
	if err := ctx.Bind(&req); err != nil {
		return kerrors.BadRequest(services.ReasonUploadInvalid, "invalid request body")
	}

	result, err := h.svc.InitUpload(ctx, services.InitUploadInput{
		ContentType: req.ContentType,
		SizeBytes:   req.SizeBytes,
	})
	if err != nil {
		return err
	}
	return ctx.Result(stdhttp.StatusOK, dto.FromInitUploadResult(result))
}

// CompleteUpload 处理上传完成请求。
func (h *UploadHandler) CompleteUpload(ctx khttp.Context) error {
	videoID, err := pathVideoID(ctx)
	if err != nil {
		return err
	}

	var req dto.CompleteUploadRequest
	if err := ctx.Bind(&req); err != nil {
		return kerrors.BadRequest(services.ReasonUploadInvalid, "invalid request body")
	}

	if err := h.svc.CompleteUpload(ctx, services.CompleteUploadInput{
		VideoID:   videoID,
		UploadID:  req.UploadID,
		SizeBytes: req.SizeBytes,
		Parts:     req.ToCompletedParts(),
	}); err != nil {
		return err
	}
	return ctx.Result(stdhttp.StatusOK, &dto.StatusResponse{Status: "completed"})
}

// AbortUpload 处理上传终止请求。
func (h *UploadHandler) AbortUpload(ctx khttp.Context) error {
	videoID, err := pathVideoID(ctx)
	if err != nil {
		return err
	}

	var req dto.AbortUploadRequest
	if err := ctx.Bind(&req); err != nil {
		return kerrors.BadRequest(services.ReasonUploadInvalid, "invalid request body")
	}

	if err := h.svc.AbortUpload(ctx, videoID, req.UploadID); err != nil {
		return err
	}
	return ctx.Result(stdhttp.StatusOK, &dto.StatusResponse{Status: "aborted"})
}

// pathVideoID 解析路径中的 video_id。
func pathVideoID(ctx khttp.Context) (uuid.UUID, error) {
	raw := ctx.Vars().Get("video_id")
	videoID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, kerrors.BadRequest(services.ReasonUploadInvalid, "video_id must be a uuid")
	}
	return videoID, nil
}
