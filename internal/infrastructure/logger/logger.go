// Package logger builds the Kratos-compatible structured logger shared by all processes.
package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/bionicotaku/lingo-services-media/internal/infrastructure/configloader"

	"github.com/go-kratos/kratos/v2/log"
	"go.opentelemetry.io/otel/trace"
)

// jsonLogger emits one JSON object per record, Cloud Logging friendly.
type jsonLogger struct {
	mu  sync.Mutex
	out io.Writer
}

// Log implements log.Logger.
func (l *jsonLogger) Log(level log.Level, keyvals ...interface{}) error {
	entry := make(map[string]interface{}, len(keyvals)/2+2)
	entry["severity"] = level.String()
	entry["timestamp"] = time.Now().UTC().Format(time.RFC3339Nano)

	for i := 0; i+1 < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			key = fmt.Sprint(keyvals[i])
		}
		entry[key] = loggable(keyvals[i+1])
	}

	buf, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	buf = append(buf, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	_, err = l.out.Write(buf)
	return err
}

func loggable(v interface{}) interface{} {
	switch val := v.(type) {
	case error:
		return val.Error()
	case fmt.Stringer:
		return val.String()
	default:
		return val
	}
}

// NewLogger 构建全应用共享的结构化日志器，附带服务元信息与 trace/span 标签。
func NewLogger(meta configloader.ServiceMetadata) (log.Logger, error) {
	base := &jsonLogger{out: os.Stdout}
	return log.With(
		base,
		"service.name", meta.Name,
		"service.version", meta.Version,
		"service.id", meta.InstanceID,
		"environment", meta.Environment,
		"trace_id", log.Valuer(func(ctx context.Context) interface{} {
			sc := trace.SpanContextFromContext(ctx)
			if sc.HasTraceID() {
				return sc.TraceID().String()
			}
			return ""
		}),
		"span_id", log.Valuer(func(ctx context.Context) interface{} {
			sc := trace.SpanContextFromContext(ctx)
			if sc.HasSpanID() {
				return sc.SpanID().String()
			}
			return ""
		}),
	), nil
}
