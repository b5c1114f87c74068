// Package config centralizes how DocScrub reads environment variables and
// exposes them as strongly typed Go values.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents runtime configuration for the server, the worker and the
// CLI. Optional backends are enabled by setting their address.
type Config struct {
	Address     string
	DataDir     string
	UploadsDir  string
	OutputsDir  string
	MaxFileSize int64

	// DatabaseURL selects the Postgres job store. Empty means in-memory.
	DatabaseURL string

	// RedisAddr selects the asynq scheduler. Empty means the in-process pool.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// S3Endpoint selects MinIO artifact storage. Empty means the local
	// uploads and outputs directories.
	S3Endpoint      string
	S3AccessKey     string
	S3SecretKey     string
	S3UseSSL        bool
	S3Region        string
	RawBucket       string
	ProcessedBucket string

	// Workers bounds concurrent jobs. Zero or less runs one goroutine per job
	// with no bound.
	Workers    int
	QueueDepth int

	SigningSecret []byte
	SignedURLTTL  time.Duration

	LogLevel    string
	CORSOrigins []string
}

const (
	defaultAddress     = ":8000"
	defaultDataDir     = "data"
	defaultMaxFileSize = 25 << 20 // 25 MiB
	defaultSignedTTL   = 5 * time.Minute
	defaultWorkerCount = 4
	defaultQueueDepth  = 64
	defaultRegion      = "us-east-1"
)

// LoadDotEnv reads variables from the given files, or ".env" when none are
// named, without overriding variables already present. Missing files are not
// an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads configuration from environment variables falling back to defaults.
func Load() (*Config, error) {
	dataDir := readEnv("DOCSCRUB_DATA_DIR", defaultDataDir)
	cfg := &Config{
		Address:     readEnv("DOCSCRUB_ADDRESS", defaultAddress),
		DataDir:     dataDir,
		UploadsDir:  readEnv("DOCSCRUB_UPLOADS_DIR", filepath.Join(dataDir, "uploads")),
		OutputsDir:  readEnv("DOCSCRUB_OUTPUTS_DIR", filepath.Join(dataDir, "outputs")),
		MaxFileSize: parseInt64("DOCSCRUB_MAX_FILE_BYTES", defaultMaxFileSize),

		DatabaseURL: readEnv("DOCSCRUB_DATABASE_URL", ""),

		RedisAddr:     readEnv("DOCSCRUB_REDIS_ADDR", ""),
		RedisPassword: readEnv("DOCSCRUB_REDIS_PASSWORD", ""),
		RedisDB:       parseInt("DOCSCRUB_REDIS_DB", 0),

		S3Endpoint:      readEnv("DOCSCRUB_S3_ENDPOINT", ""),
		S3AccessKey:     readEnv("DOCSCRUB_S3_ACCESS_KEY", ""),
		S3SecretKey:     readEnv("DOCSCRUB_S3_SECRET_KEY", ""),
		S3UseSSL:        parseBool("DOCSCRUB_S3_USE_SSL", false),
		S3Region:        readEnv("DOCSCRUB_S3_REGION", defaultRegion),
		RawBucket:       readEnv("DOCSCRUB_S3_RAW_BUCKET", "docscrub-uploads"),
		ProcessedBucket: readEnv("DOCSCRUB_S3_PROCESSED_BUCKET", "docscrub-outputs"),

		Workers:    parseInt("DOCSCRUB_WORKERS", defaultWorkerCount),
		QueueDepth: parseInt("DOCSCRUB_QUEUE_DEPTH", defaultQueueDepth),

		SigningSecret: parseSecret("DOCSCRUB_SIGNING_SECRET"),
		SignedURLTTL:  parseDuration("DOCSCRUB_SIGNED_TTL", defaultSignedTTL),

		LogLevel:    readEnv("DOCSCRUB_LOG_LEVEL", "info"),
		CORSOrigins: parseList("DOCSCRUB_CORS_ORIGINS", "*"),
	}
	if cfg.SigningSecret == nil {
		cfg.SigningSecret = randomSecret()
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = defaultMaxFileSize
	}
	if cfg.SignedURLTTL <= 0 {
		cfg.SignedURLTTL = defaultSignedTTL
	}
	if cfg.QueueDepth < 0 {
		cfg.QueueDepth = 0
	}
	if cfg.S3Endpoint != "" && (cfg.S3AccessKey == "" || cfg.S3SecretKey == "") {
		return nil, errors.New("DOCSCRUB_S3_ACCESS_KEY and DOCSCRUB_S3_SECRET_KEY are required with DOCSCRUB_S3_ENDPOINT")
	}
	// Jobs run by a separate worker must find their record in a shared store.
	if cfg.RedisAddr != "" && cfg.DatabaseURL == "" {
		return nil, errors.New("DOCSCRUB_DATABASE_URL is required with DOCSCRUB_REDIS_ADDR")
	}
	return cfg, nil
}

func readEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func parseList(key, def string) []string {
	val := readEnv(key, def)
	var out []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseInt64(key string, def int64) int64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			return parsed
		}
	}
	return def
}

func parseInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseSecret(key string) []byte {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return []byte(v)
	}
	return nil
}

func randomSecret() []byte {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return []byte(hex.EncodeToString([]byte("fallbacksecret")))
	}
	return buf
}
