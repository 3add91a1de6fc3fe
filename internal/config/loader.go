package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/fmueller/voxscribe/internal/platform"
)

type LoadOptions struct {
	// File is an explicit config file; a missing explicit file is an error.
	File string
	// EnvFile defaults to ".env" in the working directory when empty.
	EnvFile   string
	Flags     *pflag.FlagSet
	SkipFiles bool
	SkipEnv   bool
}

// flagKeys maps command line flag names onto config keys.
var flagKeys = map[string]string{
	"host":                   "server.host",
	"port":                   "server.port",
	"max-upload-mb":          "server.max_upload_mb",
	"engine":                 "whisper.engine",
	"model":                  "whisper.model",
	"model-dir":              "whisper.model_dir",
	"language":               "whisper.language",
	"auto-download":          "whisper.auto_download",
	"whisper-path":           "whisper.executable",
	"ffmpeg-path":            "whisper.ffmpeg",
	"threads":                "whisper.threads",
	"max-concurrent":         "whisper.max_concurrent",
	"openai-base-url":        "openai.base_url",
	"openai-model":           "openai.model",
	"silence-gate":           "silence.enabled",
	"silence-threshold-dbfs": "silence.threshold_dbfs",
	"transcript-ttl":         "transcripts.ttl",
	"max-transcripts":        "transcripts.max_entries",
	"log-level":              "log.level",
	"json":                   "log.json",
	"verbose":                "log.verbose",
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()
	for key, value := range defaults() {
		v.SetDefault(key, value)
	}

	if !opts.SkipEnv {
		if err := loadEnvFile(opts.EnvFile); err != nil {
			return Config{}, err
		}
		v.SetEnvPrefix(envPrefix)
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()
	}

	if !opts.SkipFiles {
		if err := readConfigFile(v, opts.File); err != nil {
			return Config{}, err
		}
	}

	if opts.Flags != nil {
		for name, key := range flagKeys {
			if flag := opts.Flags.Lookup(name); flag != nil {
				if err := v.BindPFlag(key, flag); err != nil {
					return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadEnvFile(path string) error {
	explicit := path != ""
	if !explicit {
		path = ".env"
	}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return nil
		}
		return fmt.Errorf("env file %s: %w", path, err)
	}

	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func readConfigFile(v *viper.Viper, explicit string) error {
	if explicit != "" {
		v.SetConfigFile(explicit)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", explicit, err)
		}
		return nil
	}

	v.SetConfigName("voxscribe")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if env, err := platform.CurrentEnv(); err == nil {
		if dir, err := env.ConfigDir(); err == nil {
			v.AddConfigPath(dir)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func (c *Config) normalize() {
	c.Server.Host = strings.TrimSpace(c.Server.Host)
	c.Whisper.Engine = strings.TrimSpace(strings.ToLower(c.Whisper.Engine))
	c.Whisper.Model = strings.TrimSpace(c.Whisper.Model)
	c.Whisper.Language = strings.TrimSpace(strings.ToLower(c.Whisper.Language))
	if c.Whisper.Language == "" {
		c.Whisper.Language = "auto"
	}
	c.Log.Level = strings.TrimSpace(strings.ToLower(c.Log.Level))
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validate config: %w", err)
	}

	problems := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		key := fe.Namespace()
		if i := strings.Index(key, "."); i >= 0 {
			key = key[i+1:]
		}
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		problems = append(problems, fmt.Sprintf("%s (got %v) violates %s", key, fe.Value(), rule))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
}
