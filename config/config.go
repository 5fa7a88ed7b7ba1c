package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config is the full service configuration. Every empirically tuned constant
// in the pipeline is a named field here so deployments can adjust them without
// touching code. Defaults are set in Load.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Audio       AudioConfig       `mapstructure:"audio"`
	Segmenter   SegmenterConfig   `mapstructure:"segmenter"`
	Transcriber TranscriberConfig `mapstructure:"transcriber"`
	Worker      WorkerConfig      `mapstructure:"worker"`
	LogLevel    string            `mapstructure:"log_level"`
}

type ServerConfig struct {
	Port    int    `mapstructure:"port" validate:"gt=0,lte=65535"`
	DataDir string `mapstructure:"data_dir" validate:"required"`
	// MaxUploadMB bounds the multipart body size accepted by the server.
	MaxUploadMB int `mapstructure:"max_upload_mb" validate:"gt=0"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

type AudioConfig struct {
	// SampleRate is the rate required by the transcriber; all input is
	// resampled to it.
	SampleRate int `mapstructure:"sample_rate" validate:"gt=0"`
	// TargetPeak is the full-scale fraction the loudest sample is scaled to.
	TargetPeak float64 `mapstructure:"target_peak" validate:"gt=0,lte=1"`
	// MinRMS is the whole-file energy floor below which input is rejected
	// as empty or silent.
	MinRMS float64 `mapstructure:"min_rms" validate:"gt=0"`
	// FFmpegPath locates the ffmpeg binary used to decode non-WAV input.
	FFmpegPath string `mapstructure:"ffmpeg_path" validate:"required"`
}

type SegmenterConfig struct {
	FrameMs       int     `mapstructure:"frame_ms" validate:"gt=0"`
	HopMs         int     `mapstructure:"hop_ms" validate:"gt=0"`
	MinSegmentSec float64 `mapstructure:"min_segment_sec" validate:"gt=0"`
	MaxSegmentSec float64 `mapstructure:"max_segment_sec" validate:"gt=0,gtfield=MinSegmentSec"`
	// MinSilenceSec is the longest pause bridged inside one segment.
	MinSilenceSec float64 `mapstructure:"min_silence_sec" validate:"gt=0"`
	// SpeechSNRdB is how far above the estimated noise floor a frame must
	// sit to count as speech.
	SpeechSNRdB float64 `mapstructure:"speech_snr_db" validate:"gt=0"`
	// NoiseFloorPercentile selects the frame-energy percentile used as the
	// per-file noise floor estimate.
	NoiseFloorPercentile float64 `mapstructure:"noise_floor_percentile" validate:"gt=0,lt=1"`
}

type TranscriberConfig struct {
	// Backend selects the model integration: "whispercpp" or "http".
	Backend string `mapstructure:"backend" validate:"oneof=whispercpp http"`
	// BinPath and ModelPath configure the whispercpp backend.
	BinPath   string `mapstructure:"bin_path"`
	ModelPath string `mapstructure:"model_path"`
	// URL configures the http backend.
	URL string `mapstructure:"url"`
	// MaxConcurrent caps transcriber invocations process-wide.
	MaxConcurrent int `mapstructure:"max_concurrent" validate:"gt=0"`
	// MaxAttempts bounds retries on transient transcription failures.
	MaxAttempts int `mapstructure:"max_attempts" validate:"gt=0"`
}

type WorkerConfig struct {
	PoolSize  int `mapstructure:"pool_size" validate:"gt=0"`
	QueueSize int `mapstructure:"queue_size" validate:"gt=0"`
}

// Load reads configuration from an optional config.yaml in the working
// directory plus SPEECHFORGE_* environment variables, applies defaults and
// validates the result.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("log_level", "info")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.data_dir", "data")
	v.SetDefault("server.max_upload_mb", 256)
	v.SetDefault("database.path", "data/speechforge.sqlite")
	v.SetDefault("audio.sample_rate", 16000)
	v.SetDefault("audio.target_peak", 0.8)
	v.SetDefault("audio.min_rms", 0.0005)
	v.SetDefault("audio.ffmpeg_path", "ffmpeg")
	v.SetDefault("segmenter.frame_ms", 25)
	v.SetDefault("segmenter.hop_ms", 10)
	v.SetDefault("segmenter.min_segment_sec", 1.0)
	v.SetDefault("segmenter.max_segment_sec", 30.0)
	v.SetDefault("segmenter.min_silence_sec", 0.5)
	v.SetDefault("segmenter.speech_snr_db", 6.0)
	v.SetDefault("segmenter.noise_floor_percentile", 0.2)
	v.SetDefault("transcriber.backend", "whispercpp")
	v.SetDefault("transcriber.bin_path", "whisper-cli")
	v.SetDefault("transcriber.model_path", "models/ggml-base.en.bin")
	v.SetDefault("transcriber.url", "")
	v.SetDefault("transcriber.max_concurrent", 2)
	v.SetDefault("transcriber.max_attempts", 3)
	v.SetDefault("worker.pool_size", 4)
	v.SetDefault("worker.queue_size", 64)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix("SPEECHFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	if cfg.Transcriber.Backend == "http" && cfg.Transcriber.URL == "" {
		return nil, fmt.Errorf("validate config: transcriber.url is required for the http backend")
	}

	return &cfg, nil
}
