package mjstream

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"mjstream/pkg/rtp"
	"mjstream/pkg/rtsp"
)

// DefaultConfigPath는 -config 플래그가 없을 때 사용하는 설정 파일 경로입니다.
var DefaultConfigPath = filepath.Join("configs", "default.yaml")

type Config struct {
	RTSP       RTSPConfig       `yaml:"rtsp"`
	RTCP       RTCPConfig       `yaml:"rtcp"`
	Congestion CongestionConfig `yaml:"congestion"`
	Stream     StreamConfig     `yaml:"stream"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type RTSPConfig struct {
	Port      int `yaml:"port"`
	SessionID int `yaml:"session_id"`
}

type RTCPConfig struct {
	Port          int `yaml:"port"`
	IntervalMs    int `yaml:"interval_ms"`
	PollTimeoutMs int `yaml:"poll_timeout_ms"`
}

type CongestionConfig struct {
	IntervalMs int `yaml:"interval_ms"`
}

type StreamConfig struct {
	FramePeriodMs int    `yaml:"frame_period_ms"`
	VideoLength   int    `yaml:"video_length"`
	PayloadType   int    `yaml:"payload_type"`
	SSRC          uint32 `yaml:"ssrc"`
	MaxFrameSize  int    `yaml:"max_frame_size"`
	MediaDir      string `yaml:"media_dir"`
	MimeFormat    string `yaml:"mime_format"`
}

type LoggingConfig struct {
	Level           string `yaml:"level"`
	StatsIntervalMs int    `yaml:"stats_interval_ms"`
}

// DefaultConfig는 내장 기본값을 반환합니다.
// yaml 파일에 있는 값만 필드 단위로 덮어씁니다.
func DefaultConfig() *Config {
	return &Config{
		RTSP: RTSPConfig{
			Port:      rtsp.DefaultRTSPPort,
			SessionID: rtsp.DefaultSessionID,
		},
		RTCP: RTCPConfig{
			Port:          rtsp.DefaultRTCPPort,
			IntervalMs:    400,
			PollTimeoutMs: 100,
		},
		Congestion: CongestionConfig{
			IntervalMs: 400,
		},
		Stream: StreamConfig{
			FramePeriodMs: 50,
			VideoLength:   500,
			PayloadType:   rtp.PayloadTypeMJPEG,
			SSRC:          rtp.DefaultSSRC,
			MaxFrameSize:  rtp.DefaultMaxSize,
			MediaDir:      ".",
			MimeFormat:    "MJPEG",
		},
		Logging: LoggingConfig{
			Level:           "info",
			StatsIntervalMs: 5000,
		},
	}
}

// LoadConfig loads configuration from yaml file
func LoadConfig(configPath string) (*Config, error) {
	// 파일 존재 확인
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", configPath)
	}

	// 파일 읽기
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return ParseConfig(data)
}

// ParseConfig parses yaml data on top of the defaults
func ParseConfig(data []byte) (*Config, error) {
	// 기본값 위에 YAML 파싱
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// validate checks if the configuration is valid
func (c *Config) validate() error {
	// 포트 검증 (0이면 OS가 빈 포트를 할당)
	if c.RTSP.Port < 0 || c.RTSP.Port > 65535 {
		return fmt.Errorf("invalid rtsp port: %d (must be between 0-65535)", c.RTSP.Port)
	}
	if c.RTCP.Port < 0 || c.RTCP.Port > 65535 {
		return fmt.Errorf("invalid rtcp port: %d (must be between 0-65535)", c.RTCP.Port)
	}

	// 로그 레벨 검증
	validLevels := []string{"debug", "info", "warn", "error"}
	levelValid := false
	for _, level := range validLevels {
		if strings.ToLower(c.Logging.Level) == level {
			levelValid = true
			break
		}
	}
	if !levelValid {
		return fmt.Errorf("invalid log level: %s (must be one of: %v)", c.Logging.Level, validLevels)
	}

	// 주기 및 스트림 설정 검증
	if c.RTCP.IntervalMs <= 0 || c.RTCP.PollTimeoutMs <= 0 || c.Congestion.IntervalMs <= 0 {
		return fmt.Errorf("rtcp and congestion intervals must be positive")
	}
	if c.Stream.FramePeriodMs <= 0 {
		return fmt.Errorf("invalid frame_period_ms: %d (must be positive)", c.Stream.FramePeriodMs)
	}
	if c.Stream.VideoLength <= 0 || c.Stream.VideoLength > 65535 {
		return fmt.Errorf("invalid video_length: %d (must be between 1-65535)", c.Stream.VideoLength)
	}
	if c.Stream.PayloadType < 0 || c.Stream.PayloadType > 127 {
		return fmt.Errorf("invalid payload_type: %d (must be between 0-127)", c.Stream.PayloadType)
	}
	if c.Stream.MaxFrameSize <= 0 {
		return fmt.Errorf("invalid max_frame_size: %d (must be positive)", c.Stream.MaxFrameSize)
	}
	if c.Stream.MimeFormat == "" {
		return fmt.Errorf("mime_format must not be empty")
	}
	if c.Logging.StatsIntervalMs < 0 {
		return fmt.Errorf("invalid stats_interval_ms: %d (must be non-negative)", c.Logging.StatsIntervalMs)
	}

	return nil
}

// GetSlogLevel returns slog.Level from config
func (c *Config) GetSlogLevel() slog.Level {
	switch strings.ToLower(c.Logging.Level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo // 기본값
	}
}

// RTSPSettings converts the file settings to the session configuration.
// The frame source and encoder are wired by the server.
func (c *Config) RTSPSettings() rtsp.RTSPConfig {
	return rtsp.RTSPConfig{
		Port:            c.RTSP.Port,
		SessionID:       c.RTSP.SessionID,
		RTCPPort:        c.RTCP.Port,
		RTCPInterval:    ms(c.RTCP.IntervalMs),
		RTCPPollTimeout: ms(c.RTCP.PollTimeoutMs),
		ControlInterval: ms(c.Congestion.IntervalMs),
		FramePeriod:     ms(c.Stream.FramePeriodMs),
		VideoLength:     c.Stream.VideoLength,
		PayloadType:     uint8(c.Stream.PayloadType),
		SSRC:            c.Stream.SSRC,
		MimeFormat:      c.Stream.MimeFormat,
	}
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}
