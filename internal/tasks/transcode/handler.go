package transcode

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bionicotaku/lingo-services-media/internal/infrastructure/configloader"
	"github.com/bionicotaku/lingo-services-media/internal/infrastructure/txmanager"
	"github.com/bionicotaku/lingo-services-media/internal/media"
	"github.com/bionicotaku/lingo-services-media/internal/models/po"
	"github.com/bionicotaku/lingo-services-media/internal/repositories"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
)

type videoStore interface {
	GetByID(ctx context.Context, sess txmanager.Session, videoID uuid.UUID) (*po.Video, error)
	UpdateDurationMicros(ctx context.Context, sess txmanager.Session, videoID uuid.UUID, durationMicros int64) error
	MarkReady(ctx context.Context, sess txmanager.Session, input repositories.MarkReadyInput) error
}

type sourceStorage interface {
	DownloadToFile(ctx context.Context, key, path string) error
}

type mediaProber interface {
	Duration(ctx context.Context, path string) (time.Duration, error)
	FrameRate(ctx context.Context, path string) float64
}

type mediaTranscoder interface {
	Transcode(ctx context.Context, sourcePath, outputDir string, fps float64) error
	Ladder() []media.Rendition
}

type artifactUploader interface {
	Upload(ctx context.Context, localRoot, baseKey string, ladder []media.Rendition) error
}

// Handler 顺序执行单个视频的转码流水线：
// 下载源文件 → 探测 → 转码 → 上传产物 → 置 ready。
// 任一环节失败向上传播，由消息 Nack 触发 broker 重投；
// 每一步都可安全重复（下载与上传覆盖写，状态迁移带条件）。
type Handler struct {
	videos        videoStore
	storage       sourceStorage
	prober        mediaProber
	transcoder    mediaTranscoder
	uploader      artifactUploader
	workDir       string
	encodeVersion int32
	metrics       *pipelineMetrics
	log           *log.Helper
}

// NewHandler 构造转码处理器。
func NewHandler(
	videos videoStore,
	storage sourceStorage,
	prober mediaProber,
	transcoder mediaTranscoder,
	uploader artifactUploader,
	cfg configloader.TranscodeConfig,
	metrics *pipelineMetrics,
	logger log.Logger,
) (*Handler, error) {
	switch {
	case videos == nil:
		return nil, errors.New("transcode: video store is required")
	case storage == nil:
		return nil, errors.New("transcode: storage is required")
	case prober == nil || transcoder == nil || uploader == nil:
		return nil, errors.New("transcode: media pipeline is required")
	case cfg.WorkDir == "":
		return nil, errors.New("transcode: work dir is required")
	case cfg.EncodeVersion <= 0:
		return nil, errors.New("transcode: encode version must be positive")
	}
	return &Handler{
		videos:        videos,
		storage:       storage,
		prober:        prober,
		transcoder:    transcoder,
		uploader:      uploader,
		workDir:       cfg.WorkDir,
		encodeVersion: cfg.EncodeVersion,
		metrics:       metrics,
		log:           log.NewHelper(logger),
	}, nil
}

// Handle 处理一条转码请求。返回 nil 表示消息可确认。
func (h *Handler) Handle(ctx context.Context, videoID uuid.UUID) error {
	video, err := h.videos.GetByID(ctx, nil, videoID)
	if err != nil {
		if errors.Is(err, repositories.ErrVideoNotFound) {
			// 视频已删除或从未存在，重投无意义。
			h.log.WithContext(ctx).Warnf("transcode request for unknown video, ack: video_id=%s", videoID)
			return nil
		}
		return fmt.Errorf("load video: %w", err)
	}

	// 幂等守卫：重投一条已成功处理的消息直接确认，不再触发编码。
	if video.IsReady() {
		h.log.WithContext(ctx).Infof("video already ready, ack redelivery: video_id=%s", videoID)
		h.metrics.recordSkipped(ctx)
		return nil
	}

	workDir := filepath.Join(h.workDir, fmt.Sprintf("%s-v%d", videoID, h.encodeVersion))
	defer func() {
		// 工作目录清理失败只记日志，不得掩盖流水线真实结果。
		if err := os.RemoveAll(workDir); err != nil {
			h.log.WithContext(ctx).Warnf("remove workdir failed: dir=%s err=%v", workDir, err)
		}
	}()
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return fmt.Errorf("create workdir: %w", err)
	}

	started := time.Now()

	sourcePath := filepath.Join(workDir, "source"+filepath.Ext(video.SourceKey))
	if err := h.storage.DownloadToFile(ctx, video.SourceKey, sourcePath); err != nil {
		h.metrics.recordFailure(ctx, "download")
		return fmt.Errorf("download source: %w", err)
	}

	duration, err := h.prober.Duration(ctx, sourcePath)
	if err != nil {
		h.metrics.recordFailure(ctx, "probe")
		return err
	}
	if err := h.videos.UpdateDurationMicros(ctx, nil, videoID, duration.Microseconds()); err != nil {
		h.metrics.recordFailure(ctx, "persist_duration")
		return err
	}

	fps := h.prober.FrameRate(ctx, sourcePath)

	outputDir := filepath.Join(workDir, "output")
	if err := h.transcoder.Transcode(ctx, sourcePath, outputDir, fps); err != nil {
		h.metrics.recordFailure(ctx, "transcode")
		return err
	}

	hlsBaseKey := fmt.Sprintf("videos/%s/outputs/hls/v%d/", videoID, h.encodeVersion)
	if err := h.uploader.Upload(ctx, outputDir, hlsBaseKey, h.transcoder.Ladder()); err != nil {
		h.metrics.recordFailure(ctx, "upload")
		return err
	}

	if err := h.videos.MarkReady(ctx, nil, repositories.MarkReadyInput{
		VideoID:       videoID,
		EncodeVersion: h.encodeVersion,
		HLSBaseKey:    hlsBaseKey,
	}); err != nil {
		if errors.Is(err, repositories.ErrVideoNotFound) {
			// 条件更新未命中：另一次重投已先行完成，产物覆盖写无害。
			h.log.WithContext(ctx).Warnf("video state moved concurrently, ack: video_id=%s", videoID)
			return nil
		}
		h.metrics.recordFailure(ctx, "mark_ready")
		return fmt.Errorf("mark video ready: %w", err)
	}

	h.metrics.recordSuccess(ctx, time.Since(started))
	h.log.WithContext(ctx).Infof("transcode completed: video_id=%s duration=%s elapsed=%s hls_base_key=%s",
		videoID, duration, time.Since(started), hlsBaseKey)
	return nil
}
