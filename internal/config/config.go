// Package config resolves runtime settings from the environment, with an
// optional .env file for local development. Command flags override these
// values at the CLI layer.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	DefaultModel     = "gemini-2.0-flash"
	DefaultOutputDir = "./repo_analysis"
	DefaultWorkers   = 10
	DefaultTopK      = 10
	DefaultRetries   = 3
	DefaultAddr      = ":8080"

	DefaultMaxFileBytes = 500_000
	DefaultMaxFiles     = 500
)

type Config struct {
	GeminiAPIKey string
	Model        string
	GitHubToken  string

	OutputDir   string
	HistoryPath string

	Workers int
	RPS     int
	Retries int
	TopK    int

	MaxFileBytes int64
	MaxFiles     int

	Addr string

	Store StoreConfig
}

// StoreConfig selects the snapshot backend. Backend is one of "file",
// "postgres" or "s3"; the matching settings must be present.
type StoreConfig struct {
	Backend string
	PGDSN   string
	S3      S3Config
}

type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Load reads the environment. A missing .env file is not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	outputDir := firstNonEmpty(os.Getenv("REPOQA_OUTPUT_DIR"), DefaultOutputDir)

	cfg := &Config{
		GeminiAPIKey: firstNonEmpty(os.Getenv("GEMINI_API_KEY"), os.Getenv("GOOGLE_API_KEY")),
		Model:        firstNonEmpty(os.Getenv("REPOQA_MODEL"), DefaultModel),
		GitHubToken:  firstNonEmpty(os.Getenv("GITHUB_TOKEN"), os.Getenv("GH_TOKEN")),

		OutputDir:   outputDir,
		HistoryPath: firstNonEmpty(os.Getenv("REPOQA_HISTORY"), filepath.Join(outputDir, "history.db")),

		Workers: intEnv("REPOQA_WORKERS", DefaultWorkers),
		RPS:     intEnv("REPOQA_RPS", 0),
		Retries: intEnv("REPOQA_RETRIES", DefaultRetries),
		TopK:    intEnv("REPOQA_TOP_K", DefaultTopK),

		MaxFileBytes: int64(intEnv("REPOQA_MAX_FILE_BYTES", DefaultMaxFileBytes)),
		MaxFiles:     intEnv("REPOQA_MAX_FILES", DefaultMaxFiles),

		Addr: firstNonEmpty(os.Getenv("REPOQA_ADDR"), DefaultAddr),

		Store: loadStoreConfig(),
	}

	switch cfg.Store.Backend {
	case "file", "postgres", "s3":
	default:
		return nil, fmt.Errorf("unknown REPOQA_STORE %q (want file, postgres or s3)", cfg.Store.Backend)
	}
	return cfg, nil
}

// RequireModel verifies the settings needed to talk to the model.
func (c *Config) RequireModel() error {
	if strings.TrimSpace(c.GeminiAPIKey) == "" {
		return fmt.Errorf("GEMINI_API_KEY is not set (put it in the environment or a .env file)")
	}
	return nil
}

func loadStoreConfig() StoreConfig {
	return StoreConfig{
		Backend: strings.ToLower(firstNonEmpty(os.Getenv("REPOQA_STORE"), "file")),
		PGDSN:   strings.TrimSpace(os.Getenv("REPOQA_PG_DSN")),
		S3: S3Config{
			Endpoint:  strings.TrimSpace(os.Getenv("REPOQA_S3_ENDPOINT")),
			Region:    firstNonEmpty(os.Getenv("REPOQA_S3_REGION"), "us-east-1"),
			AccessKey: firstNonEmpty(os.Getenv("REPOQA_S3_ACCESS_KEY"), os.Getenv("MINIO_ROOT_USER")),
			SecretKey: firstNonEmpty(os.Getenv("REPOQA_S3_SECRET_KEY"), os.Getenv("MINIO_ROOT_PASSWORD")),
			Bucket:    firstNonEmpty(os.Getenv("REPOQA_S3_BUCKET"), "repoqa-snapshots"),
			UseSSL:    boolEnv("REPOQA_S3_USE_SSL", true),
		},
	}
}

func intEnv(name string, def int) int {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func boolEnv(name string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
