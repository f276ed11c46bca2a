package transcode_test

import (
	"context"
	"io"
	"testing"

	"github.com/bionicotaku/lingo-services-media/internal/infrastructure/gcpubsub"
	"github.com/bionicotaku/lingo-services-media/internal/models/events"
	"github.com/bionicotaku/lingo-services-media/internal/tasks/transcode"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
)

// replaySubscriber 同步投递预置消息并记录处理结果。
type replaySubscriber struct {
	messages []*gcpubsub.Message
	results  []error
}

func (s *replaySubscriber) Receive(ctx context.Context, handle func(context.Context, *gcpubsub.Message) error) error {
	for _, msg := range s.messages {
		s.results = append(s.results, handle(ctx, msg))
	}
	return nil
}

func TestRun_AcksPoisonMessages(t *testing.T) {
	videoID, _ := uuid.NewV7()
	p := newPipeline(t, uploadingVideo(videoID))

	payload, err := events.TranscodeRequested{VideoID: videoID}.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	sub := &replaySubscriber{messages: []*gcpubsub.Message{
		{ID: "m1", Data: []byte("not json")},
		{ID: "m2", Data: payload},
	}}

	runner, err := transcode.NewRunner(transcode.RunnerParams{
		Subscriber: sub,
		Handler:    p.handler,
		Logger:     log.NewStdLogger(io.Discard),
	})
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(sub.results) != 2 {
		t.Fatalf("expected 2 handled messages, got %d", len(sub.results))
	}
	if sub.results[0] != nil {
		t.Fatalf("undecodable message must be acked, got %v", sub.results[0])
	}
	if sub.results[1] != nil {
		t.Fatalf("valid message failed: %v", sub.results[1])
	}
	if len(p.videos.ready) != 1 {
		t.Fatalf("valid message must drive the pipeline to ready")
	}
}
