package controllers

import (
	stdhttp "net/http"

	"github.com/bionicotaku/lingo-services-media/internal/controllers/dto"
	"github.com/bionicotaku/lingo-services-media/internal/models/po"
	"github.com/bionicotaku/lingo-services-media/internal/services"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	khttp "github.com/go-kratos/kratos/v2/transport/http"
	"github.com/google/uuid"
)

// VideoHandler 暴露视频状态查询与可见性切换接口。
type VideoHandler struct {
	query      *services.VideoQueryService
	visibility *services.VisibilityService
}

// NewVideoHandler 构造 VideoHandler。
func NewVideoHandler(query *services.VideoQueryService, visibility *services.VisibilityService) *VideoHandler {
	return &VideoHandler{query: query, visibility: visibility}
}

// RegisterRoutes 在路由器上注册视频接口。
func (h *VideoHandler) RegisterRoutes(r *khttp.Router) {
	r.GET("/videos/{video_id}", h.GetVideo)
	r.POST("/videos/{video_id}/visibility", h.UpdateVisibility)
}

// GetVideo 查询单个视频的当前状态。
func (h *VideoHandler) GetVideo(ctx khttp.Context) error {
	videoID, err := videoIDVar(ctx)
	if err != nil {
		return err
	}

	video, err := h.query.GetVideo(ctx, videoID)
	if err != nil {
		return err
	}
	return ctx.Result(stdhttp.StatusOK, dto.FromVideo(video))
}

// UpdateVisibility 切换视频可见性。
func (h *VideoHandler) UpdateVisibility(ctx khttp.Context) error {
	videoID, err := videoIDVar(ctx)
	if err != nil {
		return err
	}

	var req dto.UpdateVisibilityRequest
	if err := ctx.Bind(&req); err != nil {
		return kerrors.BadRequest(services.ReasonVisibilityInvalid, "invalid request body")
	}

	video, err := h.visibility.UpdateVisibility(ctx, videoID, po.Visibility(req.Visibility))
	if err != nil {
		return err
	}
	return ctx.Result(stdhttp.StatusOK, dto.FromVideo(video))
}

func videoIDVar(ctx khttp.Context) (uuid.UUID, error) {
	raw := ctx.Vars().Get("video_id")
	videoID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, kerrors.BadRequest(services.ReasonVideoNotFound, "video_id must be a uuid")
	}
	return videoID, nil
}
