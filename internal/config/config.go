// Package config loads voxscribe settings from a YAML file, VOXSCRIBE_*
// environment variables, an optional .env file and command line flags, in
// increasing order of precedence.
package config

import (
	"time"

	"github.com/fmueller/voxscribe/internal/whisper"
)

const envPrefix = "VOXSCRIBE"

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Whisper     WhisperConfig     `mapstructure:"whisper"`
	OpenAI      OpenAIConfig      `mapstructure:"openai"`
	Silence     SilenceConfig     `mapstructure:"silence"`
	Transcripts TranscriptsConfig `mapstructure:"transcripts"`
	Log         LogConfig         `mapstructure:"log"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port" validate:"min=0,max=65535"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" validate:"gte=0"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
	MaxUploadMB     int64         `mapstructure:"max_upload_mb" validate:"min=1"`
}

type WhisperConfig struct {
	Engine        string `mapstructure:"engine" validate:"oneof=bundled openai"`
	Model         string `mapstructure:"model"`
	ModelDir      string `mapstructure:"model_dir"`
	Language      string `mapstructure:"language"`
	AutoDownload  bool   `mapstructure:"auto_download"`
	Executable    string `mapstructure:"executable"`
	FFmpeg        string `mapstructure:"ffmpeg"`
	Threads       int    `mapstructure:"threads" validate:"min=0"`
	MaxConcurrent int64  `mapstructure:"max_concurrent" validate:"min=1"`
}

type OpenAIConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url" validate:"omitempty,url"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

type SilenceConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	ThresholdDBFS float64 `mapstructure:"threshold_dbfs" validate:"lte=0"`
}

type TranscriptsConfig struct {
	TTL        time.Duration `mapstructure:"ttl" validate:"gt=0"`
	MaxEntries int           `mapstructure:"max_entries" validate:"min=1"`
}

type LogConfig struct {
	Level   string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON    bool   `mapstructure:"json"`
	Verbose bool   `mapstructure:"verbose"`
}

func (s ServerConfig) MaxUploadBytes() int64 {
	return s.MaxUploadMB << 20
}

func defaults() map[string]any {
	return map[string]any{
		"server.host":             "127.0.0.1",
		"server.port":             8080,
		"server.read_timeout":     2 * time.Minute,
		"server.write_timeout":    15 * time.Minute,
		"server.shutdown_timeout": 10 * time.Second,
		"server.max_upload_mb":    int64(100),

		"whisper.engine":         whisper.BundledEngineName,
		"whisper.model":          whisper.DefaultModel,
		"whisper.model_dir":      "",
		"whisper.language":       whisper.AutoLanguage,
		"whisper.auto_download":  true,
		"whisper.executable":     "",
		"whisper.ffmpeg":         "",
		"whisper.threads":        0,
		"whisper.max_concurrent": int64(1),

		"openai.api_key":  "",
		"openai.base_url": "",
		"openai.model":    "",
		"openai.timeout":  5 * time.Minute,

		"silence.enabled":        true,
		"silence.threshold_dbfs": -65.0,

		"transcripts.ttl":         time.Hour,
		"transcripts.max_entries": 1000,

		"log.level":   "info",
		"log.json":    false,
		"log.verbose": false,
	}
}

// Default returns the configuration used when nothing else is set.
func Default() Config {
	cfg, err := Load(LoadOptions{SkipFiles: true, SkipEnv: true})
	if err != nil {
		panic(err)
	}
	return cfg
}
