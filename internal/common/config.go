package common

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	OCR      OCRConfig
	LLM      LLMConfig
	Pipeline PipelineConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Addr            string
	MaxUploadBytes  int64
	ShutdownTimeout time.Duration
}

// StoreConfig selects and configures the artifact store backend.
type StoreConfig struct {
	// Backend is one of "memory", "sqlite", "postgres".
	Backend string
	// DSN is the sqlite file path or postgres connection string.
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
}

// OCRConfig holds optical-recognition configuration.
type OCRConfig struct {
	Tesseract string
	Language  string
	DPI       int
	PSM       int
}

// LLMConfig holds semantic-extraction configuration.
type LLMConfig struct {
	BaseURL     string
	Model       string
	APIKey      string
	Temperature float32
	Timeout     time.Duration
	MaxChars    int
}

// PipelineConfig holds orchestrator and worker-pool configuration.
type PipelineConfig struct {
	// MinTextWords is the fallback threshold: primary text extraction
	// yielding fewer words than this triggers the optical path.
	MinTextWords   int
	Workers        int
	QueueSize      int
	ProcessTimeout time.Duration
	UploadDir      string
	ArtifactDir    string
	// Format is the artifact serializer, "csv" or "xlsx".
	Format string
}

// LoadConfig loads configuration from the environment. A .env file in the
// working directory is applied first when present.
func LoadConfig() *Config {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Addr:            getEnv("HTTP_ADDR", ":8080"),
			MaxUploadBytes:  getEnvAsInt64("MAX_UPLOAD_BYTES", 50<<20),
			ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		Store: StoreConfig{
			Backend:         getEnv("STORE_BACKEND", "memory"),
			DSN:             getEnv("STORE_DSN", ""),
			MaxConns:        getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:        getEnvAsInt32("DB_MIN_CONNS", 2),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:     getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
		},
		OCR: OCRConfig{
			Tesseract: getEnv("TESSERACT_BIN", "tesseract"),
			Language:  getEnv("TESSERACT_LANG", "eng"),
			DPI:       getEnvAsInt("OCR_DPI", 300),
			PSM:       getEnvAsInt("OCR_PSM", 0),
		},
		LLM: LLMConfig{
			BaseURL:     getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Model:       getEnv("OPENAI_MODEL", "gpt-4o"),
			APIKey:      getEnv("OPENAI_API_KEY", ""),
			Temperature: getEnvAsFloat32("OPENAI_TEMPERATURE", 0.1),
			Timeout:     getEnvAsDuration("OPENAI_TIMEOUT", 60*time.Second),
			MaxChars:    getEnvAsInt("LLM_MAX_CHARS", 15000),
		},
		Pipeline: PipelineConfig{
			MinTextWords:   getEnvAsInt("MIN_TEXT_WORDS", 50),
			Workers:        getEnvAsInt("PIPELINE_WORKERS", 4),
			QueueSize:      getEnvAsInt("PIPELINE_QUEUE_SIZE", 256),
			ProcessTimeout: getEnvAsDuration("PIPELINE_TIMEOUT", 5*time.Minute),
			UploadDir:      getEnv("UPLOAD_DIR", "./uploads"),
			ArtifactDir:    getEnv("ARTIFACT_DIR", "./artifacts"),
			Format:         getEnv("ARTIFACT_FORMAT", "csv"),
		},
	}
}

// Validate validates the loaded configuration.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "memory":
	case "sqlite", "postgres":
		if c.Store.DSN == "" {
			return NewAppError("CONFIG_ERROR", "STORE_DSN is required for backend "+c.Store.Backend, ErrInvalidInput)
		}
	default:
		return NewAppError("CONFIG_ERROR", "unknown STORE_BACKEND "+c.Store.Backend, ErrInvalidInput)
	}
	if c.LLM.APIKey == "" {
		return NewAppError("CONFIG_ERROR", "OPENAI_API_KEY is required", ErrInvalidInput)
	}
	if c.Pipeline.Format != "csv" && c.Pipeline.Format != "xlsx" {
		return NewAppError("CONFIG_ERROR", "ARTIFACT_FORMAT must be csv or xlsx", ErrInvalidInput)
	}
	return nil
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
