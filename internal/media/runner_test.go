package media

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/go-kratos/kratos/v2/log"
)

func newTestRunner(t *testing.T) *Runner {
	t.Helper()
	return NewRunner(log.NewStdLogger(io.Discard))
}

func TestRun_CapturesStdout(t *testing.T) {
	r := newTestRunner(t)
	result, err := r.Run(context.Background(), CommandSpec{
		Name:          "sh",
		Args:          []string{"-c", "echo hello"},
		CaptureStdout: true,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := strings.TrimSpace(string(result.Stdout)); got != "hello" {
		t.Fatalf("stdout = %q, want hello", got)
	}
}

func TestRun_NonZeroExitReturnsCommandError(t *testing.T) {
	r := newTestRunner(t)
	_, err := r.Run(context.Background(), CommandSpec{
		Name: "sh",
		Args: []string{"-c", "echo first line >&2; echo second line >&2; exit 3"},
	})
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("expected *CommandError, got %v", err)
	}
	if cmdErr.Timeout {
		t.Fatalf("exit failure must not be reported as timeout")
	}
	if len(cmdErr.Tail) != 2 || cmdErr.Tail[1] != "second line" {
		t.Fatalf("unexpected tail: %v", cmdErr.Tail)
	}
}

func TestRun_TimeoutKillsProcess(t *testing.T) {
	r := newTestRunner(t)
	start := time.Now()
	_, err := r.Run(context.Background(), CommandSpec{
		Name:    "sh",
		Args:    []string{"-c", "sleep 10"},
		Timeout: 100 * time.Millisecond,
	})
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("expected *CommandError, got %v", err)
	}
	if !cmdErr.Timeout {
		t.Fatalf("expected timeout flag set")
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("process was not killed promptly")
	}
}

func TestRun_CallerCancelPropagatesContextError(t *testing.T) {
	r := newTestRunner(t)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()
	_, err := r.Run(ctx, CommandSpec{
		Name: "sh",
		Args: []string{"-c", "sleep 10"},
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestTailWriter_KeepsLastLines(t *testing.T) {
	w := newTailWriter(3)
	for _, chunk := range []string{"a\nb\n", "c\nd\n", "e\npartial"} {
		if _, err := w.Write([]byte(chunk)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	lines := w.Lines()
	want := []string{"c", "d", "e", "partial"}
	if len(lines) != len(want) {
		t.Fatalf("lines = %v, want %v", lines, want)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Fatalf("lines = %v, want %v", lines, want)
		}
	}
}
