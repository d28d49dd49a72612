package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	// Agent configuration
	AgentType string // "llm", "react", or "multi"
	Model     string

	// OpenAI
	OpenAIAPIKey string

	// Server
	Host        string
	Port        string
	CORSOrigins []string

	// Dataset
	DatasetPath   string
	QueryRowLimit int

	// Conversation loop
	MaxIterations   int
	StreamChunkSize int

	// Conversation logs
	LogsDir string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Printf("[INFO] No .env file found, using environment variables")
	}

	return &Config{
		AgentType:       getEnv("AGENT_TYPE", "llm"),
		Model:           getEnv("MODEL", "gpt-4o-mini"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		Host:            getEnv("HOST", "0.0.0.0"),
		Port:            getEnv("PORT", "8000"),
		CORSOrigins:     strings.Split(getEnv("CORS_ORIGINS", "*"), ","),
		DatasetPath:     getEnv("DATASET_PATH", "data/cybersecurity_attacks.csv"),
		QueryRowLimit:   getEnvInt("QUERY_ROW_LIMIT", 50),
		MaxIterations:   getEnvInt("MAX_ITERATIONS", 5),
		StreamChunkSize: getEnvInt("STREAM_CHUNK_SIZE", 30),
		LogsDir:         getEnv("LOGS_DIR", "logs"),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("[ERROR] Invalid value for %s: %q, using default %d", key, value, fallback)
		return fallback
	}
	return parsed
}
