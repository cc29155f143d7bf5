package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LLM provider names.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
	ProviderBedrock   = "bedrock"
	// ProviderFake answers with canned summaries; used for dry runs.
	ProviderFake = "fake"
)

// Config holds all configuration values.
type Config struct {
	// Preprocessing
	MaxLinesPerChunk int
	MaxCharsPerChunk int
	MaxFileWorkers   int
	MaxChunkWorkers  int

	// LLM provider
	LLMProvider     string
	OpenAIAPIKey    string
	OpenAIKeyFile   string
	AnthropicAPIKey string
	OllamaHost      string
	AWSRegion       string
	AnalysisModel   string
	SummaryModel    string

	// LLM call policy
	LLMMaxRetries  int
	LLMBaseBackoff time.Duration
	LLMTimeout     time.Duration
	LLMRPS         float64
	LLMBurst       int

	// Logging
	LogEnabled bool
	LogFile    string
	LogLevel   slog.Level

	// Server / client
	ServerPort     string
	ServerURL      string
	MaxUploadBytes int64
}

// Load reads configuration from environment variables.
// A .env file in the working directory is loaded first if present; real
// environment variables win over it.
func Load() Config {
	_ = godotenv.Load()

	fileWorkers := getEnvInt("PREPROCESS_MAX_WORKERS", 4)

	return Config{
		MaxLinesPerChunk: getEnvInt("PREPROCESS_MAX_LINES_PER_CHUNK", 400),
		MaxCharsPerChunk: getEnvInt("PREPROCESS_MAX_CHARS_PER_CHUNK", 6000),
		MaxFileWorkers:   fileWorkers,
		MaxChunkWorkers:  getEnvInt("PREPROCESS_MAX_CHUNK_WORKERS", fileWorkers),

		LLMProvider:     strings.ToLower(getEnv("LLM_PROVIDER", ProviderOpenAI)),
		OpenAIAPIKey:    strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		OpenAIKeyFile:   getEnv("OPENAI_API_KEY_FILE", "openai_api_key.txt"),
		AnthropicAPIKey: strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")),
		OllamaHost:      getEnv("OLLAMA_HOST", "http://localhost:11434"),
		AWSRegion:       getEnv("AWS_REGION", "us-east-1"),
		AnalysisModel:   getEnv("OPENAI_ANALYSIS_MODEL", getEnv("OPENAI_MODEL", "gpt-4.1")),
		SummaryModel:    getEnv("OPENAI_SUMMARY_MODEL", "gpt-4.1-mini"),

		LLMMaxRetries:  getEnvInt("LLM_MAX_RETRIES", 3),
		LLMBaseBackoff: getEnvDuration("LLM_BASE_BACKOFF", time.Second),
		LLMTimeout:     getEnvDuration("LLM_TIMEOUT", 120*time.Second),
		LLMRPS:         getEnvFloat("LLM_RPS", 0),
		LLMBurst:       getEnvInt("LLM_BURST", 1),

		LogEnabled: getEnv("LOG_ENABLED", "true") == "true",
		LogFile:    getEnv("AICORE_LOG_FILE", filepath.Join(os.TempDir(), "perfsight.log")),
		LogLevel:   parseLogLevel(getEnv("LOG_LEVEL", "INFO")),

		ServerPort:     getEnv("PERFSIGHT_SERVER_PORT", "8484"),
		ServerURL:      getEnv("PERFSIGHT_SERVER_URL", "http://localhost:8484"),
		MaxUploadBytes: int64(getEnvInt("PERFSIGHT_MAX_UPLOAD_MB", 512)) << 20,
	}
}

// ResolveOpenAIKey returns the OpenAI key from the environment or the key file.
func (c Config) ResolveOpenAIKey() (string, error) {
	if c.OpenAIAPIKey != "" {
		return c.OpenAIAPIKey, nil
	}
	path := c.OpenAIKeyFile
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}
	data, err := os.ReadFile(path)
	if err == nil {
		if key := strings.TrimSpace(string(data)); key != "" {
			return key, nil
		}
	}
	return "", fmt.Errorf("OpenAI API key not found: set OPENAI_API_KEY or place it in %s (configurable via OPENAI_API_KEY_FILE)", path)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// getEnvInt returns defaultVal for missing, malformed or non-positive values.
func getEnvInt(key string, defaultVal int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil || n <= 0 {
		return defaultVal
	}
	return n
}

func getEnvFloat(key string, defaultVal float64) float64 {
	f, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil || f < 0 {
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
