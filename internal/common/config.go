package common

import (
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	OCR      OCRConfig      `yaml:"ocr"`
	LLM      LLMConfig      `yaml:"llm"`
	Worker   WorkerConfig   `yaml:"worker"`
	Mapper   MapperConfig   `yaml:"mapper"`
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver           string        `yaml:"driver" env:"DB_DRIVER" env-default:"postgres"`
	DSN              string        `yaml:"dsn" env:"DB_URL"`
	MaxConns         int32         `yaml:"max_conns" env:"DB_MAX_CONNS" env-default:"20"`
	MinConns         int32         `yaml:"min_conns" env:"DB_MIN_CONNS" env-default:"2"`
	MaxConnLifetime  time.Duration `yaml:"max_conn_lifetime" env:"DB_MAX_CONN_LIFETIME" env-default:"30m"`
	MaxConnIdleTime  time.Duration `yaml:"max_conn_idle_time" env:"DB_MAX_CONN_IDLE_TIME" env-default:"5m"`
	DialTimeout      time.Duration `yaml:"dial_timeout" env:"DB_DIAL_TIMEOUT" env-default:"3s"`
	StatementTimeout time.Duration `yaml:"statement_timeout" env:"DB_STATEMENT_TIMEOUT" env-default:"0s"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	GRPCAddr string `yaml:"grpc_addr" env:"GRPC_ADDR" env-default:":8080"`
}

// StorageConfig controls where uploads land and how large they may be.
type StorageConfig struct {
	UploadDir      string `yaml:"upload_dir" env:"UPLOAD_DIR" env-default:"./uploads"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes" env:"MAX_UPLOAD_BYTES" env-default:"16777216"`
	InboxDir       string `yaml:"inbox_dir" env:"INBOX_DIR"`
}

// OCRConfig holds OCR-related configuration
type OCRConfig struct {
	Tesseract     string `yaml:"tesseract" env:"TESSERACT_BIN" env-default:"tesseract"`
	Pdftoppm      string `yaml:"pdftoppm" env:"PDFTOPPM_BIN" env-default:"pdftoppm"`
	TesseractLang string `yaml:"lang" env:"TESSERACT_LANG" env-default:"pol"`
	TessdataDir   string `yaml:"tessdata_dir" env:"TESSDATA_PREFIX"`
	DPI           int    `yaml:"dpi" env:"OCR_DPI" env-default:"300"`
}

// LLMConfig holds LLM-related configuration
type LLMConfig struct {
	BaseURL       string        `yaml:"base_url" env:"OLLAMA_API_URL" env-default:"http://localhost:11434"`
	Model         string        `yaml:"model" env:"OLLAMA_MODEL" env-default:"bielik-local-q8"`
	Temperature   float32       `yaml:"temperature" env:"OLLAMA_TEMPERATURE" env-default:"0"`
	Timeout       time.Duration `yaml:"timeout" env:"OLLAMA_TIMEOUT" env-default:"30s"`
	RetryAttempts int           `yaml:"retry_attempts" env:"LLM_RETRY_ATTEMPTS" env-default:"3"`
	RetryMinWait  time.Duration `yaml:"retry_min_wait" env:"LLM_RETRY_MIN_WAIT" env-default:"4s"`
	RetryMaxWait  time.Duration `yaml:"retry_max_wait" env:"LLM_RETRY_MAX_WAIT" env-default:"10s"`
}

// WorkerConfig sizes the background processing queue.
type WorkerConfig struct {
	Workers     int           `yaml:"workers" env:"WORKERS" env-default:"1"`
	QueueSize   int           `yaml:"queue_size" env:"QUEUE_SIZE" env-default:"64"`
	TaskTimeout time.Duration `yaml:"task_timeout" env:"TASK_TIMEOUT" env-default:"1h"`
}

// MapperConfig tunes fuzzy product matching.
type MapperConfig struct {
	Threshold int `yaml:"threshold" env:"MAPPER_THRESHOLD" env-default:"80"`
	Limit     int `yaml:"limit" env:"MAPPER_LIMIT" env-default:"3"`
}

// MaxTaskTimeout is the ceiling for a single processing run.
const MaxTaskTimeout = time.Hour

// LoadConfig reads configuration from a YAML file when path is set, otherwise
// from environment variables only. Environment variables override file values.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	var err error
	if strings.TrimSpace(path) != "" {
		err = cleanenv.ReadConfig(path, &cfg)
	} else {
		err = cleanenv.ReadEnv(&cfg)
	}
	if err != nil {
		return nil, NewAppError("CONFIG_ERROR", "failed to read configuration", err)
	}
	return &cfg, nil
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("DB_DRIVER %q must be postgres or sqlite", c.Database.Driver), ErrInvalidInput)
	}
	if c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL is required", ErrInvalidInput)
	}
	if c.Server.GRPCAddr == "" {
		return NewAppError("CONFIG_ERROR", "GRPC_ADDR is required", ErrInvalidInput)
	}
	if c.Storage.UploadDir == "" {
		return NewAppError("CONFIG_ERROR", "UPLOAD_DIR is required", ErrInvalidInput)
	}
	if c.Storage.MaxUploadBytes <= 0 {
		return NewAppError("CONFIG_ERROR", "MAX_UPLOAD_BYTES must be positive", ErrInvalidInput)
	}
	if c.LLM.BaseURL == "" || c.LLM.Model == "" {
		return NewAppError("CONFIG_ERROR", "OLLAMA_API_URL and OLLAMA_MODEL are required", ErrInvalidInput)
	}
	if c.LLM.RetryAttempts < 1 {
		return NewAppError("CONFIG_ERROR", "LLM_RETRY_ATTEMPTS must be at least 1", ErrInvalidInput)
	}
	if c.LLM.RetryMinWait > c.LLM.RetryMaxWait {
		return NewAppError("CONFIG_ERROR", "LLM_RETRY_MIN_WAIT exceeds LLM_RETRY_MAX_WAIT", ErrInvalidInput)
	}
	if c.Worker.TaskTimeout <= 0 || c.Worker.TaskTimeout > MaxTaskTimeout {
		return NewAppError("CONFIG_ERROR", "TASK_TIMEOUT must be within (0, 1h]", ErrInvalidInput)
	}
	if c.Mapper.Threshold < 0 || c.Mapper.Threshold > 100 {
		return NewAppError("CONFIG_ERROR", "MAPPER_THRESHOLD must be within [0, 100]", ErrInvalidInput)
	}
	return nil
}
