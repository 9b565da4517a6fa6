// Package config loads service configuration from defaults, an optional TOML
// file and environment variables, in that order of precedence.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog/log"
)

// Configuration is the complete service configuration.
type Configuration struct {
	Service       ServiceConfig       `toml:"service"`
	Recorder      RecorderConfig      `toml:"recorder"`
	Capture       CaptureConfig       `toml:"capture"`
	STT           STTConfig           `toml:"stt"`
	Upload        UploadConfig        `toml:"upload"`
	Kafka         KafkaConfig         `toml:"kafka"`
	Observability ObservabilityConfig `toml:"observability"`

	// File is the config file that was applied, empty if none.
	File string `toml:"-"`
}

// ServiceConfig holds service identity and listener ports.
type ServiceConfig struct {
	Principal   string `toml:"principal"`
	HTTPPort    string `toml:"http_port"`
	GRPCPort    string `toml:"grpc_port"`
	MetricsPort string `toml:"metrics_port"`
}

// RecorderConfig holds chunked recorder settings.
type RecorderConfig struct {
	ChunkDurationSeconds int           `toml:"chunk_duration_seconds"`
	TickInterval         time.Duration `toml:"tick_interval"`
	LevelInterval        time.Duration `toml:"level_interval"`
	NotifyOnEmpty        bool          `toml:"notify_on_empty"`
	ProcessorTimeout     time.Duration `toml:"processor_timeout"` // 0 = no bound
	MaxInFlight          int           `toml:"max_in_flight"`     // 0 = unbounded
}

// CaptureConfig selects and configures the audio source.
type CaptureConfig struct {
	Source       string `toml:"source"` // ffmpeg, wav
	FFmpegBinary string `toml:"ffmpeg_binary"`
	InputFormat  string `toml:"input_format"` // empty = platform default
	InputDevice  string `toml:"input_device"` // empty = platform default
	SampleRateHz int    `toml:"sample_rate_hz"`
	Channels     int    `toml:"channels"`
	WAVPath      string `toml:"wav_path"`
	Realtime     bool   `toml:"realtime"`
}

// STTConfig holds Speech-to-Text configuration.
type STTConfig struct {
	Provider      string `toml:"provider"` // mock, google, none
	LanguageCode  string `toml:"language_code"`
	SampleRateHz  int    `toml:"sample_rate_hz"`
	AudioEncoding string `toml:"audio_encoding"`
	Model         string `toml:"model"`
}

// UploadConfig holds analysis backend configuration.
type UploadConfig struct {
	Enabled  bool          `toml:"enabled"`
	BaseURL  string        `toml:"base_url"`
	APIToken string        `toml:"api_token"`
	Timeout  time.Duration `toml:"timeout"`
	Analyze  bool          `toml:"analyze"`
}

// KafkaConfig holds Kafka publisher configuration.
type KafkaConfig struct {
	Enabled       bool     `toml:"enabled"`
	Brokers       []string `toml:"brokers"`
	TopicSegments string   `toml:"topic_segments"`
	TopicSessions string   `toml:"topic_sessions"`
	Principal     string   `toml:"principal"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"` // json, console
}

// Defaults returns the built-in configuration.
func Defaults() *Configuration {
	return &Configuration{
		Service: ServiceConfig{
			Principal:   "svc-workshop-recorder",
			HTTPPort:    "8080",
			GRPCPort:    "50051",
			MetricsPort: "9090",
		},
		Recorder: RecorderConfig{
			ChunkDurationSeconds: 300,
			TickInterval:         time.Second,
			LevelInterval:        100 * time.Millisecond,
			NotifyOnEmpty:        true,
		},
		Capture: CaptureConfig{
			Source:       "ffmpeg",
			FFmpegBinary: "ffmpeg",
			SampleRateHz: 16000,
			Channels:     1,
			Realtime:     true,
		},
		STT: STTConfig{
			Provider:      "mock",
			LanguageCode:  "en-US",
			SampleRateHz:  16000,
			AudioEncoding: "LINEAR16",
		},
		Upload: UploadConfig{
			Enabled: false,
			BaseURL: "http://localhost:8000",
			Timeout: 60 * time.Second,
			Analyze: true,
		},
		Kafka: KafkaConfig{
			Enabled:       false,
			Brokers:       []string{"localhost:9092"},
			TopicSegments: "recorder.segments",
			TopicSessions: "recorder.sessions",
		},
		Observability: ObservabilityConfig{
			LogLevel:  "info",
			LogFormat: "json",
		},
	}
}

// Load builds the configuration. A config file that cannot be parsed is
// logged and skipped.
func Load() *Configuration {
	cfg := Defaults()

	if path := configFilePath(); path != "" {
		if err := applyFile(cfg, path); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Ignoring unreadable config file")
		}
	}

	applyEnvOverrides(cfg)
	return cfg
}

// applyFile decodes path over cfg. Keys absent from the file keep their
// current values.
func applyFile(cfg *Configuration, path string) error {
	next := *cfg
	next.Kafka.Brokers = append([]string(nil), cfg.Kafka.Brokers...)
	if _, err := toml.DecodeFile(path, &next); err != nil {
		return err
	}
	next.File = path
	*cfg = next
	return nil
}

func applyEnvOverrides(cfg *Configuration) {
	s := &cfg.Service
	s.Principal = envOrDefault("SERVICE_PRINCIPAL", s.Principal)
	s.HTTPPort = envOrDefault("HTTP_PORT", s.HTTPPort)
	s.GRPCPort = envOrDefault("GRPC_PORT", s.GRPCPort)
	s.MetricsPort = envOrDefault("METRICS_PORT", s.MetricsPort)

	r := &cfg.Recorder
	r.ChunkDurationSeconds = envOrDefaultInt("CHUNK_DURATION_SECONDS", r.ChunkDurationSeconds)
	r.TickInterval = envOrDefaultDuration("RECORDER_TICK_INTERVAL", r.TickInterval)
	r.LevelInterval = envOrDefaultDuration("RECORDER_LEVEL_INTERVAL", r.LevelInterval)
	r.NotifyOnEmpty = envOrDefaultBool("RECORDER_NOTIFY_ON_EMPTY", r.NotifyOnEmpty)
	r.ProcessorTimeout = envOrDefaultDuration("PROCESSOR_TIMEOUT", r.ProcessorTimeout)
	r.MaxInFlight = envOrDefaultInt("PROCESSOR_MAX_IN_FLIGHT", r.MaxInFlight)

	c := &cfg.Capture
	c.Source = envOrDefault("CAPTURE_SOURCE", c.Source)
	c.FFmpegBinary = envOrDefault("CAPTURE_FFMPEG_BINARY", c.FFmpegBinary)
	c.InputFormat = envOrDefault("CAPTURE_INPUT_FORMAT", c.InputFormat)
	c.InputDevice = envOrDefault("CAPTURE_INPUT_DEVICE", c.InputDevice)
	c.SampleRateHz = envOrDefaultInt("CAPTURE_SAMPLE_RATE_HZ", c.SampleRateHz)
	c.Channels = envOrDefaultInt("CAPTURE_CHANNELS", c.Channels)
	c.WAVPath = envOrDefault("CAPTURE_WAV_PATH", c.WAVPath)
	c.Realtime = envOrDefaultBool("CAPTURE_REALTIME", c.Realtime)

	st := &cfg.STT
	st.Provider = envOrDefault("STT_PROVIDER", st.Provider)
	st.LanguageCode = envOrDefault("STT_LANGUAGE_CODE", st.LanguageCode)
	st.SampleRateHz = envOrDefaultInt("STT_SAMPLE_RATE_HZ", st.SampleRateHz)
	st.AudioEncoding = envOrDefault("STT_AUDIO_ENCODING", st.AudioEncoding)
	st.Model = envOrDefault("STT_MODEL", st.Model)

	u := &cfg.Upload
	u.Enabled = envOrDefaultBool("UPLOAD_ENABLED", u.Enabled)
	u.BaseURL = envOrDefault("UPLOAD_BASE_URL", u.BaseURL)
	u.APIToken = envOrDefault("UPLOAD_API_TOKEN", u.APIToken)
	u.Timeout = envOrDefaultDuration("UPLOAD_TIMEOUT", u.Timeout)
	u.Analyze = envOrDefaultBool("UPLOAD_ANALYZE", u.Analyze)

	k := &cfg.Kafka
	k.Enabled = envOrDefaultBool("KAFKA_ENABLED", k.Enabled)
	k.Brokers = envOrDefaultList("KAFKA_BROKERS", k.Brokers)
	k.TopicSegments = envOrDefault("KAFKA_TOPIC_SEGMENTS", k.TopicSegments)
	k.TopicSessions = envOrDefault("KAFKA_TOPIC_SESSIONS", k.TopicSessions)
	k.Principal = envOrDefault("KAFKA_PRINCIPAL", k.Principal)
	if k.Principal == "" {
		k.Principal = s.Principal
	}

	o := &cfg.Observability
	o.LogLevel = envOrDefault("LOG_LEVEL", o.LogLevel)
	o.LogFormat = envOrDefault("LOG_FORMAT", o.LogFormat)
}

// configFilePath returns RECORDER_CONFIG or the XDG config file when it exists.
func configFilePath() string {
	if p := os.Getenv("RECORDER_CONFIG"); p != "" {
		return p
	}

	var configDir string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		configDir = filepath.Join(xdg, "workshop-recorder")
	} else if home, err := os.UserHomeDir(); err == nil {
		configDir = filepath.Join(home, ".config", "workshop-recorder")
	} else {
		return ""
	}

	path := filepath.Join(configDir, "config.toml")
	if _, err := os.Stat(path); err == nil {
		return path
	}
	return ""
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func envOrDefaultList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
