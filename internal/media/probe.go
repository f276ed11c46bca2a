package media

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bionicotaku/lingo-services-media/internal/infrastructure/configloader"

	"github.com/go-kratos/kratos/v2/log"
)

// fallbackFPS 在探测失败时兜底。帧率只用于对齐编码 GOP，
// 取不到真实值时按 30fps 编码仍然正确。
const fallbackFPS = 30.0

// Prober 通过 ffprobe 提取源文件的时长与帧率。
type Prober struct {
	ffprobePath string
	timeout     time.Duration
	runner      *Runner
	log         *log.Helper
}

// NewProber 构造 Prober。
func NewProber(cfg configloader.TranscodeConfig, runner *Runner, logger log.Logger) *Prober {
	return &Prober{
		ffprobePath: cfg.FFprobePath,
		timeout:     cfg.ProbeTimeout.AsDuration(),
		runner:      runner,
		log:         log.NewHelper(logger),
	}
}

// Duration 探测源文件时长。时长是落库字段，探测失败向上传播。
func (p *Prober) Duration(ctx context.Context, path string) (time.Duration, error) {
	result, err := p.runner.Run(ctx, CommandSpec{
		Name: p.ffprobePath,
		Args: []string{
			"-v", "error",
			"-show_entries", "format=duration",
			"-of", "csv=p=0",
			path,
		},
		Timeout:       p.timeout,
		CaptureStdout: true,
	})
	if err != nil {
		return 0, fmt.Errorf("probe duration: %w", err)
	}

	raw := strings.TrimSpace(string(result.Stdout))
	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("probe duration: parse %q: %w", raw, err)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

// FrameRate 探测视频流帧率。任何失败都返回 fallbackFPS 而不是错误。
func (p *Prober) FrameRate(ctx context.Context, path string) float64 {
	result, err := p.runner.Run(ctx, CommandSpec{
		Name: p.ffprobePath,
		Args: []string{
			"-v", "error",
			"-select_streams", "v:0",
			"-show_entries", "stream=avg_frame_rate",
			"-of", "csv=p=0",
			path,
		},
		Timeout:       p.timeout,
		CaptureStdout: true,
	})
	if err != nil {
		p.log.WithContext(ctx).Warnf("probe frame rate failed, using %.0ffps: %v", fallbackFPS, err)
		return fallbackFPS
	}

	fps := parseFrameRate(strings.TrimSpace(string(result.Stdout)))
	if fps <= 0 {
		p.log.WithContext(ctx).Warnf("unparsable frame rate %q, using %.0ffps", strings.TrimSpace(string(result.Stdout)), fallbackFPS)
		return fallbackFPS
	}
	return fps
}

// parseFrameRate 解析 "30000/1001" 这类有理数或 "29.97" 这类小数。
func parseFrameRate(raw string) float64 {
	parts := strings.Split(raw, "/")
	if len(parts) != 2 {
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return f
		}
		return 0
	}

	num, err1 := strconv.ParseFloat(parts[0], 64)
	den, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil || den == 0 {
		return 0
	}
	return num / den
}
