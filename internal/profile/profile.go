package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Profile is the configuration to start the coach server.
type Profile struct {
	// Mode can be "prod" or "dev" or "demo"
	Mode string
	// Addr is the binding address for server
	Addr string
	// Port is the binding port for server
	Port int
	// Data is the data directory
	Data string
	// DSN points to where coach stores its own data
	DSN string
	// Driver is the database driver (sqlite or postgres)
	Driver string
	// Version is the current version of server
	Version string

	// AI configuration
	AIEnabled           bool    // COACH_AI_ENABLED
	AIEmbeddingProvider string  // COACH_AI_EMBEDDING_PROVIDER (default: openai)
	AILLMProvider       string  // COACH_AI_LLM_PROVIDER (default: openai)
	AIOpenAIAPIKey      string  // COACH_AI_OPENAI_API_KEY
	AIOpenAIBaseURL     string  // COACH_AI_OPENAI_BASE_URL (default: https://api.openai.com/v1)
	AIEmbeddingModel    string  // COACH_AI_EMBEDDING_MODEL (default: text-embedding-3-small)
	AIEmbeddingDims     int     // COACH_AI_EMBEDDING_DIMENSIONS (default: 1536)
	AILLMModel          string  // COACH_AI_LLM_MODEL (default: gpt-4o-mini)
	AIMaxContextTokens  int     // COACH_AI_MAX_CONTEXT_TOKENS (default: 4096)
	AITemperature       float32 // COACH_AI_TEMPERATURE (default: 0.7)
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsAIEnabled returns true if AI is enabled and an API key is configured.
func (p *Profile) IsAIEnabled() bool {
	return p.AIEnabled && p.AIOpenAIAPIKey != ""
}

// getEnvOrDefault returns the environment variable value or the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnvOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

// FromEnv loads configuration from COACH_* environment variables.
func (p *Profile) FromEnv() {
	p.AIEnabled = os.Getenv("COACH_AI_ENABLED") == "true"
	p.AIEmbeddingProvider = getEnvOrDefault("COACH_AI_EMBEDDING_PROVIDER", "openai")
	p.AILLMProvider = getEnvOrDefault("COACH_AI_LLM_PROVIDER", "openai")
	p.AIOpenAIAPIKey = os.Getenv("COACH_AI_OPENAI_API_KEY")
	p.AIOpenAIBaseURL = getEnvOrDefault("COACH_AI_OPENAI_BASE_URL", "https://api.openai.com/v1")
	p.AIEmbeddingModel = getEnvOrDefault("COACH_AI_EMBEDDING_MODEL", "text-embedding-3-small")
	p.AIEmbeddingDims = getIntEnvOrDefault("COACH_AI_EMBEDDING_DIMENSIONS", 1536)
	p.AILLMModel = getEnvOrDefault("COACH_AI_LLM_MODEL", "gpt-4o-mini")
	p.AIMaxContextTokens = getIntEnvOrDefault("COACH_AI_MAX_CONTEXT_TOKENS", 4096)
	p.AITemperature = 0.7
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.Mode == "prod" && p.Data == "" {
		if runtime.GOOS == "windows" {
			p.Data = filepath.Join(os.Getenv("ProgramData"), "coach")
			if _, err := os.Stat(p.Data); os.IsNotExist(err) {
				if err := os.MkdirAll(p.Data, 0770); err != nil {
					return errors.Wrapf(err, "failed to create data directory %s", p.Data)
				}
			}
		} else {
			p.Data = "/var/opt/coach"
		}
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		return err
	}

	p.Data = dataDir
	if p.Driver == "sqlite" && p.DSN == "" {
		dbFile := fmt.Sprintf("coach_%s.db", p.Mode)
		p.DSN = filepath.Join(dataDir, dbFile)
	}

	return nil
}
