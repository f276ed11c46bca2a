// Package media 封装外部媒体工具（ffmpeg/ffprobe）的调用：
// 受控进程执行、源文件探测、多码率切片转码与产物上传。
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/go-kratos/kratos/v2/log"
)

const defaultTailLines = 40

// CommandSpec 描述一次外部进程调用。
type CommandSpec struct {
	Name          string
	Args          []string
	WorkDir       string
	Timeout       time.Duration
	CaptureStdout bool
}

// RunResult 是进程执行结果。Tail 保留合并输出的末尾若干行，用于失败诊断。
type RunResult struct {
	Stdout []byte
	Tail   []string
}

// CommandError 携带失败进程的诊断信息。
type CommandError struct {
	Name    string
	Timeout bool
	Tail    []string
	Err     error
}

func (e *CommandError) Error() string {
	kind := "failed"
	if e.Timeout {
		kind = "timed out"
	}
	if len(e.Tail) == 0 {
		return fmt.Sprintf("%s %s: %v", e.Name, kind, e.Err)
	}
	return fmt.Sprintf("%s %s: %v\noutput tail:\n%s", e.Name, kind, e.Err, strings.Join(e.Tail, "\n"))
}

func (e *CommandError) Unwrap() error { return e.Err }

// Runner 同步执行外部进程：合并 stdout/stderr 持续排空（未读的管道缓冲
// 会阻塞长时间编码），保留末尾输出作诊断，超时强杀。
type Runner struct {
	tailLines int
	log       *log.Helper
}

// NewRunner 构造 Runner。
func NewRunner(logger log.Logger) *Runner {
	return &Runner{
		tailLines: defaultTailLines,
		log:       log.NewHelper(logger),
	}
}

// Run 执行进程并等待退出。
// 超时与非零退出都返回 *CommandError；调用方 ctx 取消则返回 ctx 错误本身。
func (r *Runner) Run(ctx context.Context, spec CommandSpec) (*RunResult, error) {
	if spec.Name == "" {
		return nil, errors.New("runner: command name is required")
	}

	if spec.WorkDir != "" {
		if err := os.MkdirAll(spec.WorkDir, 0o755); err != nil {
			return nil, fmt.Errorf("runner: create workdir: %w", err)
		}
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if spec.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	tail := newTailWriter(r.tailLines)
	var stdout bytes.Buffer

	cmd := exec.CommandContext(runCtx, spec.Name, spec.Args...)
	cmd.Dir = spec.WorkDir
	if spec.CaptureStdout {
		cmd.Stdout = io.MultiWriter(&stdout, tail)
	} else {
		cmd.Stdout = tail
	}
	cmd.Stderr = tail

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if err != nil {
		// 调用方取消优先于其他失败原因。
		if ctx.Err() != nil && runCtx.Err() != context.DeadlineExceeded {
			return nil, ctx.Err()
		}
		timedOut := runCtx.Err() == context.DeadlineExceeded
		r.log.WithContext(ctx).Errorf("command failed: name=%s elapsed=%s timeout=%v err=%v", spec.Name, elapsed, timedOut, err)
		return nil, &CommandError{
			Name:    spec.Name,
			Timeout: timedOut,
			Tail:    tail.Lines(),
			Err:     err,
		}
	}

	r.log.WithContext(ctx).Debugf("command completed: name=%s elapsed=%s", spec.Name, elapsed)
	return &RunResult{Stdout: stdout.Bytes(), Tail: tail.Lines()}, nil
}

// tailWriter 是保留末尾 N 行的 io.Writer。
// stdout 与 stderr 并发写入，必须加锁。
type tailWriter struct {
	mu      sync.Mutex
	limit   int
	lines   []string
	partial strings.Builder
}

func newTailWriter(limit int) *tailWriter {
	return &tailWriter{limit: limit}
}

func (w *tailWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, b := range p {
		if b == '\n' {
			w.appendLine(w.partial.String())
			w.partial.Reset()
			continue
		}
		w.partial.WriteByte(b)
	}
	return len(p), nil
}

func (w *tailWriter) appendLine(line string) {
	w.lines = append(w.lines, line)
	if len(w.lines) > w.limit {
		w.lines = w.lines[len(w.lines)-w.limit:]
	}
}

// Lines 返回末尾输出行，包含未换行的残留内容。
func (w *tailWriter) Lines() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]string, len(w.lines), len(w.lines)+1)
	copy(out, w.lines)
	if w.partial.Len() > 0 {
		out = append(out, w.partial.String())
	}
	return out
}
