package media

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/bionicotaku/lingo-services-media/internal/infrastructure/configloader"

	"github.com/go-kratos/kratos/v2/log"
)

// Rendition 描述一个固定分辨率/码率的输出档位。
type Rendition struct {
	Name    string
	Width   int
	Height  int
	Bitrate string
	MaxRate string
	BufSize string
}

// DefaultLadder 是固定的三档输出阶梯。
var DefaultLadder = []Rendition{
	{Name: "360p", Width: 640, Height: 360, Bitrate: "800k", MaxRate: "856k", BufSize: "1200k"},
	{Name: "720p", Width: 1280, Height: 720, Bitrate: "2800k", MaxRate: "2996k", BufSize: "4200k"},
	{Name: "1080p", Width: 1920, Height: 1080, Bitrate: "5000k", MaxRate: "5350k", BufSize: "7500k"},
}

const (
	audioBitrate   = "128k"
	masterPlaylist = "master.m3u8"
	maxSaneGOP     = 6000
)

// Transcoder 调用 ffmpeg 将源文件一次性转出全部档位的切片视频。
// 单次调用摊薄解码成本，且保证各档位关键帧落在相同时间边界上，
// 这是客户端中途切换码率不产生画面跳变的前提。
type Transcoder struct {
	ffmpegPath     string
	segmentSeconds int
	encodeTimeout  configloader.Duration
	ladder         []Rendition
	runner         *Runner
	log            *log.Helper
}

// NewTranscoder 构造 Transcoder。
func NewTranscoder(cfg configloader.TranscodeConfig, runner *Runner, logger log.Logger) *Transcoder {
	return &Transcoder{
		ffmpegPath:     cfg.FFmpegPath,
		segmentSeconds: cfg.SegmentSeconds,
		encodeTimeout:  cfg.EncodeTimeout,
		ladder:         DefaultLadder,
		runner:         runner,
		log:            log.NewHelper(logger),
	}
}

// Ladder 返回输出阶梯。
func (t *Transcoder) Ladder() []Rendition { return t.ladder }

// Transcode 将 sourcePath 转码为 outputDir 下的多档位切片树：
// {rendition}/segment_%05d.ts、{rendition}/index.m3u8 与顶层 master.m3u8。
func (t *Transcoder) Transcode(ctx context.Context, sourcePath, outputDir string, fps float64) error {
	gop := gopSize(t.segmentSeconds, fps)
	args := t.buildArgs(sourcePath, outputDir, gop)

	t.log.WithContext(ctx).Infof("transcode started: source=%s gop=%d renditions=%d", sourcePath, gop, len(t.ladder))
	if _, err := t.runner.Run(ctx, CommandSpec{
		Name:    t.ffmpegPath,
		Args:    args,
		WorkDir: outputDir,
		Timeout: t.encodeTimeout.AsDuration(),
	}); err != nil {
		return fmt.Errorf("transcode: %w", err)
	}
	return nil
}

// gopSize 计算关键帧间隔。帧率不可信（非有限、≤0.1、结果离谱）时
// 按 30fps 兜底，防止损坏的探测结果产出不可播放的编码参数。
func gopSize(segmentSeconds int, fps float64) int {
	gop := int(math.Round(float64(segmentSeconds) * fps))
	if math.IsNaN(fps) || math.IsInf(fps, 0) || fps <= 0.1 || gop > maxSaneGOP {
		return segmentSeconds * 30
	}
	return gop
}

func (t *Transcoder) buildArgs(sourcePath, outputDir string, gop int) []string {
	args := []string{
		"-y",
		"-i", sourcePath,
		"-filter_complex", t.buildFilterGraph(),
	}

	for i, r := range t.ladder {
		idx := fmt.Sprintf("%d", i)
		args = append(args,
			"-map", fmt.Sprintf("[v%dout]", i),
			"-c:v:"+idx, "libx264",
			"-b:v:"+idx, r.Bitrate,
			"-maxrate:v:"+idx, r.MaxRate,
			"-bufsize:v:"+idx, r.BufSize,
			"-g:v:"+idx, fmt.Sprintf("%d", gop),
			"-keyint_min:v:"+idx, fmt.Sprintf("%d", gop),
		)
		args = append(args,
			"-map", "a:0",
			"-c:a:"+idx, "aac",
			"-b:a:"+idx, audioBitrate,
			"-ac", "2",
		)
	}

	// 禁用场景切换插帧，保证关键帧严格按 gop 间隔落点。
	args = append(args, "-sc_threshold", "0")

	args = append(args,
		"-f", "hls",
		"-hls_time", fmt.Sprintf("%d", t.segmentSeconds),
		"-hls_playlist_type", "vod",
		"-hls_flags", "independent_segments",
		"-hls_segment_type", "mpegts",
		"-hls_segment_filename", filepath.Join(outputDir, "%v/segment_%05d.ts"),
		"-master_pl_name", masterPlaylist,
	)

	var streamMap []string
	for i, r := range t.ladder {
		streamMap = append(streamMap, fmt.Sprintf("v:%d,a:%d,name:%s", i, i, r.Name))
	}
	args = append(args, "-var_stream_map", strings.Join(streamMap, " "))

	args = append(args, filepath.Join(outputDir, "%v/index.m3u8"))
	return args
}

// buildFilterGraph 生成视频分流与缩放滤镜：
// 等比缩放后补边到精确目标分辨率，保证任意源宽高比都产出偶数合法尺寸。
func (t *Transcoder) buildFilterGraph() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[0:v]split=%d", len(t.ladder))
	for i := range t.ladder {
		fmt.Fprintf(&b, "[v%d]", i)
	}
	for i, r := range t.ladder {
		fmt.Fprintf(&b,
			"; [v%d]scale=w=%d:h=%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2[v%dout]",
			i, r.Width, r.Height, r.Width, r.Height, i,
		)
	}
	return b.String()
}
