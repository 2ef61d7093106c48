// Package config handles pipeline configuration: defaults, an optional YAML file, .env and
// the process environment, in increasing order of precedence.
package config

import (
	"errors"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	apperr "github.com/GriffinCanCode/olfactory-vision/internal/errors"
)

// Inference backends
const (
	BackendOpenAI = "openai"
	BackendGRPC   = "grpc"
)

type Config struct {
	HTTPAddr string `yaml:"http_addr"`
	GRPCAddr string `yaml:"grpc_addr"` // serve the inference facade when set

	Backend        string        `yaml:"backend"`
	InferenceAddr  string        `yaml:"inference_addr"`
	APIKey         string        `yaml:"api_key"`
	BaseURL        string        `yaml:"base_url"`
	VisualModel    string        `yaml:"visual_model"`
	OlfactoryModel string        `yaml:"olfactory_model"`
	RequestTimeout time.Duration `yaml:"request_timeout"`

	FPS               float64 `yaml:"fps"`
	CoverageThreshold float64 `yaml:"coverage_threshold"`
	MaxHighActivity   float64 `yaml:"max_high_activity"` // seconds
	RetryBudget       int     `yaml:"retry_budget"`
	MediumThreshold   float64 `yaml:"medium_threshold"`
	HighThreshold     float64 `yaml:"high_threshold"`
	Thermodynamic     bool    `yaml:"thermodynamic"`
	Hygrometric       bool    `yaml:"hygrometric"`
	Aerodynamic       bool    `yaml:"aerodynamic"`
	FrameLog          bool    `yaml:"frame_log"`

	FFmpeg    string `yaml:"ffmpeg"`
	FFprobe   string `yaml:"ffprobe"`
	FramesDir string `yaml:"frames_dir"` // keep sampled frames here when set
	OutputDir string `yaml:"output_dir"`
	DBPath    string `yaml:"db_path"`

	BatchConcurrency int           `yaml:"batch_concurrency"`
	BatchCooldown    time.Duration `yaml:"batch_cooldown"` // minimum spacing between video starts

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // text or json
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		HTTPAddr:          ":8000",
		Backend:           BackendOpenAI,
		InferenceAddr:     "localhost:50051",
		BaseURL:           "https://generativelanguage.googleapis.com/v1beta/openai/",
		VisualModel:       "gemini-2.5-flash",
		OlfactoryModel:    "gemini-2.5-flash",
		RequestTimeout:    3 * time.Minute,
		FPS:               4,
		CoverageThreshold: 0.95,
		MaxHighActivity:   4.0,
		RetryBudget:       3,
		MediumThreshold:   0.35,
		HighThreshold:     0.7,
		FrameLog:          true,
		FFmpeg:            "ffmpeg",
		FFprobe:           "ffprobe",
		OutputDir:         "output_reports",
		DBPath:            "vos.db",
		BatchConcurrency:  1,
		BatchCooldown:     2 * time.Second,
		LogLevel:          "info",
		LogFormat:         "text",
	}
}

// Load reads .env (if present), the YAML file named by VOS_CONFIG (if set) and the environment.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit YAML path; an empty path falls back to VOS_CONFIG.
func LoadFile(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, apperr.Wrap(err, apperr.CodeConfigInvalid, "read .env")
	}

	cfg := Defaults()
	if path == "" {
		path = os.Getenv("VOS_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, apperr.Wrap(err, apperr.CodeConfigInvalid, "read config file").WithMetadata("path", path)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, apperr.Wrap(err, apperr.CodeConfigInvalid, "parse config file").WithMetadata("path", path)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.HTTPAddr = getEnv("HTTP_ADDR", c.HTTPAddr)
	c.GRPCAddr = getEnv("GRPC_ADDR", c.GRPCAddr)
	c.Backend = getEnv("INFERENCE_BACKEND", c.Backend)
	c.InferenceAddr = getEnv("INFERENCE_ADDR", c.InferenceAddr)
	c.APIKey = getEnv("VOS_API_KEY", getEnv("GOOGLE_API_KEY", getEnv("OPENAI_API_KEY", c.APIKey)))
	c.BaseURL = getEnv("INFERENCE_BASE_URL", c.BaseURL)
	c.VisualModel = getEnv("VISUAL_MODEL", c.VisualModel)
	c.OlfactoryModel = getEnv("OLFACTORY_MODEL", c.OlfactoryModel)
	c.RequestTimeout = getEnvDuration("REQUEST_TIMEOUT", c.RequestTimeout)

	c.FPS = getEnvFloat("FPS", c.FPS)
	c.CoverageThreshold = getEnvFloat("COVERAGE_THRESHOLD", c.CoverageThreshold)
	c.MaxHighActivity = getEnvFloat("MAX_HIGH_ACTIVITY", c.MaxHighActivity)
	c.RetryBudget = getEnvInt("RETRY_BUDGET", c.RetryBudget)
	c.MediumThreshold = getEnvFloat("MEDIUM_THRESHOLD", c.MediumThreshold)
	c.HighThreshold = getEnvFloat("HIGH_THRESHOLD", c.HighThreshold)
	c.Thermodynamic = getEnvBool("MODIFIER_THERMODYNAMIC", c.Thermodynamic)
	c.Hygrometric = getEnvBool("MODIFIER_HYGROMETRIC", c.Hygrometric)
	c.Aerodynamic = getEnvBool("MODIFIER_AERODYNAMIC", c.Aerodynamic)
	c.FrameLog = getEnvBool("FRAME_LOG", c.FrameLog)

	c.FFmpeg = getEnv("FFMPEG", c.FFmpeg)
	c.FFprobe = getEnv("FFPROBE", c.FFprobe)
	c.FramesDir = getEnv("FRAMES_DIR", c.FramesDir)
	c.OutputDir = getEnv("OUTPUT_DIR", c.OutputDir)
	c.DBPath = getEnv("DB_PATH", c.DBPath)

	c.BatchConcurrency = getEnvInt("BATCH_CONCURRENCY", c.BatchConcurrency)
	c.BatchCooldown = getEnvDuration("BATCH_COOLDOWN", c.BatchCooldown)

	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)
}

// Validate reports the first invalid field as CONFIG_INVALID.
func (c *Config) Validate() error {
	invalid := func(field, msg string) error {
		return apperr.New(apperr.CodeConfigInvalid, field+": "+msg).WithMetadata("field", field)
	}
	switch c.Backend {
	case BackendOpenAI:
		if c.APIKey == "" {
			return invalid("api_key", "required for the openai backend")
		}
	case BackendGRPC:
		if c.InferenceAddr == "" {
			return invalid("inference_addr", "required for the grpc backend")
		}
	default:
		return invalid("backend", "must be openai or grpc")
	}
	switch {
	case c.VisualModel == "" || c.OlfactoryModel == "":
		return invalid("visual_model", "both model names are required")
	case c.RequestTimeout <= 0:
		return invalid("request_timeout", "must be positive")
	case c.FPS <= 0:
		return invalid("fps", "must be positive")
	case c.CoverageThreshold <= 0 || c.CoverageThreshold > 1:
		return invalid("coverage_threshold", "must be in (0, 1]")
	case c.MaxHighActivity <= 0:
		return invalid("max_high_activity", "must be positive")
	case c.RetryBudget < 1:
		return invalid("retry_budget", "must be at least 1")
	case c.MediumThreshold <= 0 || c.MediumThreshold > c.HighThreshold || c.HighThreshold > 1:
		return invalid("medium_threshold", "need 0 < medium <= high <= 1")
	case c.BatchConcurrency < 1:
		return invalid("batch_concurrency", "must be at least 1")
	case c.BatchCooldown < 0:
		return invalid("batch_cooldown", "must not be negative")
	case c.LogFormat != "text" && c.LogFormat != "json":
		return invalid("log_format", "must be text or json")
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return invalid("log_level", err.Error())
	}
	return nil
}

// Level returns the parsed log level, info when unparseable.
func (c *Config) Level() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true" || v == "1"
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
