package media

import (
	"io"
	"math"
	"strings"
	"testing"

	"github.com/bionicotaku/lingo-services-media/internal/infrastructure/configloader"

	"github.com/go-kratos/kratos/v2/log"
)

func newTestTranscoder(t *testing.T) *Transcoder {
	t.Helper()
	logger := log.NewStdLogger(io.Discard)
	return NewTranscoder(configloader.TranscodeConfig{
		FFmpegPath:     "ffmpeg",
		SegmentSeconds: 4,
	}, NewRunner(logger), logger)
}

func TestGopSize(t *testing.T) {
	cases := []struct {
		name string
		fps  float64
		want int
	}{
		{"thirty fps", 30, 120},
		{"ntsc fps", 29.97, 120},
		{"sixty fps", 60, 240},
		{"zero fps", 0, 120},
		{"negative fps", -1, 120},
		{"nan", math.NaN(), 120},
		{"positive inf", math.Inf(1), 120},
		{"absurdly high", 1e9, 120},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := gopSize(4, tc.fps); got != tc.want {
				t.Fatalf("gopSize(4, %v) = %d, want %d", tc.fps, got, tc.want)
			}
		})
	}
}

func TestBuildArgs(t *testing.T) {
	tr := newTestTranscoder(t)
	args := tr.buildArgs("/tmp/in/source.mp4", "/tmp/out", 120)
	joined := strings.Join(args, " ")

	for _, want := range []string{
		"-var_stream_map v:0,a:0,name:360p v:1,a:1,name:720p v:2,a:2,name:1080p",
		"-sc_threshold 0",
		"-g:v:0 120",
		"-g:v:2 120",
		"-keyint_min:v:1 120",
		"-b:v:0 800k",
		"-b:v:1 2800k",
		"-b:v:2 5000k",
		"-maxrate:v:2 5350k",
		"-hls_time 4",
		"-hls_playlist_type vod",
		"-master_pl_name master.m3u8",
		"-hls_segment_filename /tmp/out/%v/segment_%05d.ts",
	} {
		if !strings.Contains(joined, want) {
			t.Fatalf("args missing %q:\n%s", want, joined)
		}
	}
	if args[len(args)-1] != "/tmp/out/%v/index.m3u8" {
		t.Fatalf("last arg should be rendition playlist pattern, got %q", args[len(args)-1])
	}
}

func TestBuildFilterGraph(t *testing.T) {
	tr := newTestTranscoder(t)
	graph := tr.buildFilterGraph()

	if !strings.HasPrefix(graph, "[0:v]split=3[v0][v1][v2]") {
		t.Fatalf("unexpected split stage: %s", graph)
	}
	for _, want := range []string{
		"[v0]scale=w=640:h=360:force_original_aspect_ratio=decrease,pad=640:360:(ow-iw)/2:(oh-ih)/2[v0out]",
		"[v1]scale=w=1280:h=720:force_original_aspect_ratio=decrease,pad=1280:720:(ow-iw)/2:(oh-ih)/2[v1out]",
		"[v2]scale=w=1920:h=1080:force_original_aspect_ratio=decrease,pad=1920:1080:(ow-iw)/2:(oh-ih)/2[v2out]",
	} {
		if !strings.Contains(graph, want) {
			t.Fatalf("filter graph missing %q:\n%s", want, graph)
		}
	}
}
