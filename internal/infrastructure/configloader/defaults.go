package configloader

import "time"

const (
	// defaultConfPath is the fallback configuration directory when no overrides are provided.
	defaultConfPath = "configs"
	// defaultServiceName is used when SERVICE_NAME is missing.
	defaultServiceName = "media"
	// defaultServiceVersion is used when SERVICE_VERSION is missing.
	defaultServiceVersion = "dev"
	// defaultEnvironment is used when APP_ENV is missing.
	defaultEnvironment = "development"

	// defaultPartSizeBytes is the multipart chunk size handed to clients (8 MiB).
	defaultPartSizeBytes = int64(8 << 20)
	// defaultMaxParts mirrors the S3 hard limit on part count.
	defaultMaxParts = int32(10000)
	// defaultSegmentSeconds keeps HLS segments short enough for quick rendition switches.
	defaultSegmentSeconds = 4
	// defaultEncodeVersion tags the artifact layout produced by the current ladder.
	defaultEncodeVersion = int32(1)
)

// applyDefaults 填充缺省值，保持配置文件精简。
func applyDefaults(bc *Bootstrap) {
	if bc == nil {
		return
	}
	if bc.Server.HTTP.Addr == "" {
		bc.Server.HTTP.Addr = "0.0.0.0:8000"
	}
	if bc.Server.HTTP.Timeout == 0 {
		bc.Server.HTTP.Timeout = Duration(30 * time.Second)
	}
	if bc.Data.Postgres.Schema == "" {
		bc.Data.Postgres.Schema = "media"
	}
	if bc.Storage.PartSizeBytes == 0 {
		bc.Storage.PartSizeBytes = defaultPartSizeBytes
	}
	if bc.Storage.MaxParts == 0 {
		bc.Storage.MaxParts = defaultMaxParts
	}
	if bc.Storage.URLTTL == 0 {
		bc.Storage.URLTTL = Duration(time.Hour)
	}
	if bc.Messaging.NumConsumers == 0 {
		bc.Messaging.NumConsumers = 4
	}
	if bc.Messaging.MaxOutstanding == 0 {
		bc.Messaging.MaxOutstanding = 8
	}
	if bc.Transcode.FFmpegPath == "" {
		bc.Transcode.FFmpegPath = "ffmpeg"
	}
	if bc.Transcode.FFprobePath == "" {
		bc.Transcode.FFprobePath = "ffprobe"
	}
	if bc.Transcode.WorkDir == "" {
		bc.Transcode.WorkDir = "/tmp/media-transcode"
	}
	if bc.Transcode.SegmentSeconds == 0 {
		bc.Transcode.SegmentSeconds = defaultSegmentSeconds
	}
	if bc.Transcode.EncodeTimeout == 0 {
		bc.Transcode.EncodeTimeout = Duration(30 * time.Minute)
	}
	if bc.Transcode.ProbeTimeout == 0 {
		bc.Transcode.ProbeTimeout = Duration(15 * time.Second)
	}
	if bc.Transcode.EncodeVersion == 0 {
		bc.Transcode.EncodeVersion = defaultEncodeVersion
	}
	if bc.Cleanup.Interval == 0 {
		bc.Cleanup.Interval = Duration(5 * time.Minute)
	}
	if bc.Cleanup.SessionBatchSize == 0 {
		bc.Cleanup.SessionBatchSize = 100
	}
	if bc.Cleanup.VideoRetention == 0 {
		bc.Cleanup.VideoRetention = Duration(24 * time.Hour)
	}
}
