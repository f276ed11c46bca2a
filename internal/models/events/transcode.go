// Package events 定义跨进程消息的载荷结构与编解码。
package events

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// TranscodeRequested 是上传完成后投递到转码队列的消息载荷。
// 载荷刻意保持最小：消费端以数据库为准读取视频当前状态。
type TranscodeRequested struct {
	VideoID uuid.UUID `json:"video_id"`
}

// Encode 序列化为队列消息体。
func (e TranscodeRequested) Encode() ([]byte, error) {
	if e.VideoID == uuid.Nil {
		return nil, errors.New("events: video_id is required")
	}
	return json.Marshal(e)
}

// DecodeTranscodeRequested 解析队列消息体并校验必填字段。
func DecodeTranscodeRequested(data []byte) (TranscodeRequested, error) {
	var evt TranscodeRequested
	if err := json.Unmarshal(data, &evt); err != nil {
		return TranscodeRequested{}, fmt.Errorf("events: decode transcode request: %w", err)
	}
	if evt.VideoID == uuid.Nil {
		return TranscodeRequested{}, errors.New("events: transcode request missing video_id")
	}
	return evt, nil
}
