// Package configloader 负责加载 bootstrap 配置并派生各组件的强类型配置片段。
// 配置来源优先级：显式 -conf 路径 > CONF_PATH 环境变量 > 默认 configs 目录，
// 敏感字段（DATABASE_URL、PORT 等）允许环境变量覆盖。
package configloader

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/go-kratos/kratos/v2/config"
	"github.com/go-kratos/kratos/v2/config/file"
	"github.com/joho/godotenv"
)

const (
	envConfPath       = "CONF_PATH"
	envServiceName    = "SERVICE_NAME"
	envServiceVersion = "SERVICE_VERSION"
	envAppEnv         = "APP_ENV"
	envDatabaseURL    = "DATABASE_URL"
	envPort           = "PORT"
)

var envFileNames = []string{".env.local", ".env"}

// Params 包含构造配置 Bundle 所需的运行时输入参数。
type Params struct {
	ConfPath string // 配置文件路径（可为空，使用默认值）
}

// Duration 在 YAML/JSON 中以 "30s" 字符串形式表达的时长。
type Duration time.Duration

// UnmarshalJSON 支持 "5m" 字符串或纳秒整数两种表达。
func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse duration %q: %w", v, err)
		}
		*d = Duration(parsed)
		return nil
	case float64:
		*d = Duration(time.Duration(v))
		return nil
	default:
		return fmt.Errorf("unsupported duration value: %v", raw)
	}
}

// AsDuration 返回标准库 time.Duration。
func (d Duration) AsDuration() time.Duration { return time.Duration(d) }

// Bootstrap 是顶层配置结构，对应 configs/config.yaml。
type Bootstrap struct {
	Server    ServerConfig    `json:"server"`
	Data      DataConfig      `json:"data"`
	Storage   StorageConfig   `json:"storage"`
	Messaging MessagingConfig `json:"messaging"`
	Transcode TranscodeConfig `json:"transcode"`
	Cleanup   CleanupConfig   `json:"cleanup"`
}

// ServerConfig 描述对外 HTTP 服务。
type ServerConfig struct {
	HTTP HTTPConfig `json:"http"`
}

// HTTPConfig 描述 HTTP 监听参数。
type HTTPConfig struct {
	Network string   `json:"network"`
	Addr    string   `json:"addr"`
	Timeout Duration `json:"timeout"`
}

// DataConfig 聚合持久化相关配置。
type DataConfig struct {
	Postgres PostgresConfig `json:"postgres"`
}

// PostgresConfig 描述 pgx 连接池参数。
type PostgresConfig struct {
	DSN                      string   `json:"dsn"`
	Schema                   string   `json:"schema"`
	MaxOpenConns             int32    `json:"max_open_conns"`
	MinOpenConns             int32    `json:"min_open_conns"`
	MaxConnLifetime          Duration `json:"max_conn_lifetime"`
	MaxConnIdleTime          Duration `json:"max_conn_idle_time"`
	HealthCheckPeriod        Duration `json:"health_check_period"`
	EnablePreparedStatements bool     `json:"enable_prepared_statements"`
}

// StorageConfig 描述对象存储（S3 兼容）与分片上传计划参数。
type StorageConfig struct {
	Bucket         string   `json:"bucket"`
	Region         string   `json:"region"`
	Endpoint       string   `json:"endpoint"`
	ForcePathStyle bool     `json:"force_path_style"`
	PartSizeBytes  int64    `json:"part_size_bytes"`
	MaxParts       int32    `json:"max_parts"`
	URLTTL         Duration `json:"url_ttl"`
}

// MessagingConfig 描述 Pub/Sub 主题与订阅。
type MessagingConfig struct {
	ProjectID             string `json:"project_id"`
	TranscodeTopic        string `json:"transcode_topic"`
	TranscodeSubscription string `json:"transcode_subscription"`
	NumConsumers          int    `json:"num_consumers"`
	MaxOutstanding        int    `json:"max_outstanding"`
}

// TranscodeConfig 描述转码 Worker 的外部工具与产物参数。
type TranscodeConfig struct {
	FFmpegPath     string   `json:"ffmpeg_path"`
	FFprobePath    string   `json:"ffprobe_path"`
	WorkDir        string   `json:"work_dir"`
	SegmentSeconds int      `json:"segment_seconds"`
	EncodeTimeout  Duration `json:"encode_timeout"`
	ProbeTimeout   Duration `json:"probe_timeout"`
	EncodeVersion  int32    `json:"encode_version"`
}

// CleanupConfig 描述清理任务的节奏与保留窗口。
type CleanupConfig struct {
	Interval         Duration `json:"interval"`
	SessionBatchSize int32    `json:"session_batch_size"`
	VideoRetention   Duration `json:"video_retention"`
}

// ServiceMetadata 保存服务标识信息，供日志组件使用。
type ServiceMetadata struct {
	Name        string
	Version     string
	Environment string
	InstanceID  string
}

// Bundle 聚合强类型的配置片段，供下游 Wire 注入使用。
type Bundle struct {
	Bootstrap *Bootstrap
	Service   ServiceMetadata
}

// BuildError 捕获配置构建过程中的上下文错误信息。
type BuildError struct {
	Stage string
	Path  string
	Err   error
}

// Error 实现 error 接口，提供包含上下文的错误信息。
func (e BuildError) Error() string {
	if e.Stage == "" {
		return e.Err.Error()
	}
	if e.Path != "" {
		return fmt.Sprintf("config %s at %q: %v", e.Stage, e.Path, e.Err)
	}
	return fmt.Sprintf("config %s: %v", e.Stage, e.Err)
}

// Unwrap 暴露底层错误，支持 errors.Is/As 链式查询。
func (e BuildError) Unwrap() error {
	return e.Err
}

// Build 从 bootstrap 配置文件构建 Bundle，包含配置对象和服务元信息。
func Build(params Params) (*Bundle, error) {
	confPath := ResolveConfPath(params.ConfPath)
	loadEnvFiles(confPath)

	bootstrap, err := loadBootstrap(confPath)
	if err != nil {
		return nil, err
	}

	return &Bundle{
		Bootstrap: bootstrap,
		Service:   buildServiceMetadata(),
	}, nil
}

// ResolveConfPath 应用回退规则确定要加载的配置目录/文件路径。
func ResolveConfPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if env := os.Getenv(envConfPath); env != "" {
		return env
	}
	return defaultConfPath
}

// loadBootstrap 从指定路径加载、扫描并校验 Bootstrap 配置。
func loadBootstrap(confPath string) (*Bootstrap, error) {
	c := config.New(config.WithSource(file.NewSource(confPath)))
	if err := c.Load(); err != nil {
		return nil, BuildError{Stage: "load", Path: confPath, Err: err}
	}
	defer c.Close()

	var bc Bootstrap
	if err := c.Scan(&bc); err != nil {
		return nil, BuildError{Stage: "scan", Path: confPath, Err: err}
	}
	applyEnvOverrides(&bc)
	applyDefaults(&bc)

	if err := validate(&bc); err != nil {
		return nil, BuildError{Stage: "validate", Path: confPath, Err: err}
	}
	return &bc, nil
}

// validate 做最小必要校验：无法给出合理默认值的字段必须显式提供。
func validate(bc *Bootstrap) error {
	if bc.Data.Postgres.DSN == "" {
		return fmt.Errorf("data.postgres.dsn is required (set DATABASE_URL)")
	}
	if bc.Storage.Bucket == "" {
		return fmt.Errorf("storage.bucket is required")
	}
	if bc.Storage.PartSizeBytes <= 0 {
		return fmt.Errorf("storage.part_size_bytes must be positive")
	}
	if bc.Storage.MaxParts <= 0 {
		return fmt.Errorf("storage.max_parts must be positive")
	}
	return nil
}

// applyEnvOverrides 应用环境变量覆盖配置文件中的特定字段。
// 遵循 12-Factor：敏感信息从环境变量读取，空值不覆盖。
func applyEnvOverrides(bc *Bootstrap) {
	if bc == nil {
		return
	}
	if dsn := os.Getenv(envDatabaseURL); dsn != "" {
		bc.Data.Postgres.DSN = dsn
	}
	if port := os.Getenv(envPort); port != "" {
		bc.Server.HTTP.Addr = replacePort(bc.Server.HTTP.Addr, port)
	}
}

// buildServiceMetadata 构建服务元信息，用于日志标签与实例标识。
func buildServiceMetadata() ServiceMetadata {
	name := os.Getenv(envServiceName)
	if name == "" {
		name = defaultServiceName
	}
	version := os.Getenv(envServiceVersion)
	if version == "" {
		version = defaultServiceVersion
	}
	env := os.Getenv(envAppEnv)
	if env == "" {
		env = defaultEnvironment
	}
	host, _ := os.Hostname()

	return ServiceMetadata{
		Name:        name,
		Version:     version,
		Environment: env,
		InstanceID:  host,
	}
}

// loadEnvFiles best-effort 加载配置相关的 .env 文件，失败时忽略以保持幂等。
func loadEnvFiles(confPath string) {
	files := envFileCandidates(confPath)
	if len(files) == 0 {
		return
	}
	_ = godotenv.Load(files...)
}

// envFileCandidates 搜索并返回所有可用的 .env 文件路径。
// 搜索顺序：confPath 所在目录 -> 当前工作目录；.env.local 优先于 .env。
func envFileCandidates(confPath string) []string {
	dirs := orderedDirs(confPath)
	seen := make(map[string]struct{})
	var files []string
	for _, dir := range dirs {
		for _, name := range envFileNames {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err != nil {
				continue
			}
			if _, ok := seen[candidate]; ok {
				continue
			}
			files = append(files, candidate)
			seen[candidate] = struct{}{}
		}
	}
	return files
}

// orderedDirs 按优先级返回用于搜索 .env 文件的目录列表（已去重）。
func orderedDirs(confPath string) []string {
	var dirs []string
	appendUnique := func(path string) {
		if path == "" {
			return
		}
		clean := filepath.Clean(path)
		for _, existing := range dirs {
			if existing == clean {
				return
			}
		}
		dirs = append(dirs, clean)
	}

	if confPath != "" {
		if info, err := os.Stat(confPath); err == nil {
			if info.IsDir() {
				appendUnique(confPath)
			} else {
				appendUnique(filepath.Dir(confPath))
			}
		}
	}

	if cwd, err := os.Getwd(); err == nil {
		appendUnique(cwd)
	}

	return dirs
}

// replacePort 替换地址中的端口部分，保留 host。
// 支持 "0.0.0.0:9090"、":9090"、"[::1]:9090" 等格式。
func replacePort(addr, newPort string) string {
	if addr == "" {
		return "0.0.0.0:" + newPort
	}

	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return "0.0.0.0:" + newPort
	}

	return net.JoinHostPort(host, newPort)
}
