package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/maneesh/sharebox/internal/logger"
)

// Config holds all application configuration
type Config struct {
	// Service configuration
	ServicePort       string
	ServiceName       string
	JWTSecret         string
	MultipartMemoryMB int
	// UploadTimeout bounds reading a request body and writing its response
	UploadTimeout     time.Duration

	// Quota configuration
	QuotaTotalMB         int64
	QuotaRefreshInterval time.Duration
	CleanupTimeout       time.Duration

	// Upload lock configuration
	UploadLockEnabled bool
	UploadLockTTL     time.Duration
	UploadLockWait    time.Duration

	// MinIO configuration
	MinIOEndpoint   string
	MinIOAccessKey  string
	MinIOSecretKey  string
	MinIOBucketName string
	MinIOUseSSL     bool
	MinIORegion     string
	MinIOPartSizeMB int

	// TiDB configuration
	TiDBHost     string
	TiDBPort     string
	TiDBUser     string
	TiDBPassword string
	TiDBDatabase string

	// Redis configuration
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Jaeger configuration
	JaegerEndpoint   string
	TraceSampleRatio float64

	Log logger.Config
}

// LoadConfig loads configuration from environment variables with sensible defaults
func LoadConfig() (*Config, error) {
	config := &Config{
		ServicePort:       getEnv("SERVICE_PORT", "8080"),
		ServiceName:       getEnv("SERVICE_NAME", "sharebox"),
		JWTSecret:         getEnv("JWT_SECRET", ""),
		MultipartMemoryMB: getEnvAsInt("MULTIPART_MEMORY_MB", 32),
		UploadTimeout:     time.Duration(getEnvAsInt("UPLOAD_TIMEOUT_SECONDS", 600)) * time.Second,

		QuotaTotalMB:         int64(getEnvAsInt("QUOTA_TOTAL_MB", 0)),
		QuotaRefreshInterval: time.Duration(getEnvAsInt("QUOTA_REFRESH_SECONDS", 60)) * time.Second,
		CleanupTimeout:       time.Duration(getEnvAsInt("CLEANUP_TIMEOUT_SECONDS", 10)) * time.Second,

		UploadLockEnabled: getEnvAsBool("UPLOAD_LOCK_ENABLED", true),
		UploadLockTTL:     time.Duration(getEnvAsInt("UPLOAD_LOCK_TTL_SECONDS", 900)) * time.Second,
		UploadLockWait:    time.Duration(getEnvAsInt("UPLOAD_LOCK_WAIT_MS", 2000)) * time.Millisecond,

		MinIOEndpoint:   getEnv("MINIO_ENDPOINT", "localhost:9000"),
		MinIOAccessKey:  getEnv("MINIO_ACCESS_KEY", "minioadmin"),
		MinIOSecretKey:  getEnv("MINIO_SECRET_KEY", "minioadmin"),
		MinIOBucketName: getEnv("MINIO_BUCKET_NAME", "sharebox"),
		MinIOUseSSL:     getEnvAsBool("MINIO_USE_SSL", false),
		MinIORegion:     getEnv("MINIO_REGION", ""),
		MinIOPartSizeMB: getEnvAsInt("MINIO_PART_SIZE_MB", 16),

		TiDBHost:     getEnv("TIDB_HOST", "localhost"),
		TiDBPort:     getEnv("TIDB_PORT", "4000"),
		TiDBUser:     getEnv("TIDB_USER", "root"),
		TiDBPassword: getEnv("TIDB_PASSWORD", ""),
		TiDBDatabase: getEnv("TIDB_DATABASE", "sharebox"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		JaegerEndpoint:   getEnv("JAEGER_ENDPOINT", "localhost:4318"),
		TraceSampleRatio: getEnvAsFloat("TRACE_SAMPLE_RATIO", 1),

		Log: logger.Config{
			Level:      getEnv("LOG_LEVEL", "info"),
			Format:     getEnv("LOG_FORMAT", "json"),
			Output:     getEnv("LOG_OUTPUT", "console"),
			Filename:   getEnv("LOG_FILE", "logs/sharebox.log"),
			MaxSizeMB:  getEnvAsInt("LOG_MAX_SIZE_MB", 100),
			MaxBackups: getEnvAsInt("LOG_MAX_BACKUPS", 10),
			MaxAgeDays: getEnvAsInt("LOG_MAX_AGE_DAYS", 30),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate rejects configurations the server cannot run with
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.MultipartMemoryMB <= 0 {
		return fmt.Errorf("MULTIPART_MEMORY_MB must be positive, got %d", c.MultipartMemoryMB)
	}
	if c.UploadTimeout <= 0 {
		return errors.New("UPLOAD_TIMEOUT_SECONDS must be positive")
	}
	if c.MinIOPartSizeMB < 5 {
		return fmt.Errorf("MINIO_PART_SIZE_MB must be at least 5, got %d", c.MinIOPartSizeMB)
	}
	if c.QuotaTotalMB < 0 {
		return fmt.Errorf("QUOTA_TOTAL_MB must not be negative, got %d", c.QuotaTotalMB)
	}
	if c.QuotaRefreshInterval < 0 {
		return errors.New("QUOTA_REFRESH_SECONDS must not be negative")
	}
	if c.CleanupTimeout <= 0 {
		return errors.New("CLEANUP_TIMEOUT_SECONDS must be positive")
	}
	if c.TraceSampleRatio < 0 || c.TraceSampleRatio > 1 {
		return fmt.Errorf("TRACE_SAMPLE_RATIO must be between 0 and 1, got %g", c.TraceSampleRatio)
	}
	if c.UploadLockEnabled {
		if c.UploadLockTTL <= 0 || c.UploadLockWait < 0 {
			return errors.New("upload lock TTL must be positive and wait must not be negative")
		}
		// a lock that expires mid-upload no longer serializes the owner
		if c.UploadLockTTL < c.UploadTimeout {
			return fmt.Errorf("UPLOAD_LOCK_TTL_SECONDS (%s) must not be shorter than UPLOAD_TIMEOUT_SECONDS (%s)",
				c.UploadLockTTL, c.UploadTimeout)
		}
	}
	return c.Log.Validate()
}

// GetDSN returns the TiDB connection string
func (c *Config) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		c.TiDBUser,
		c.TiDBPassword,
		c.TiDBHost,
		c.TiDBPort,
		c.TiDBDatabase,
	)
}

// GetRedisAddr returns the Redis address
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

// GetMinIOPartSizeBytes returns the part size of streamed uploads
func (c *Config) GetMinIOPartSizeBytes() uint64 {
	return uint64(c.MinIOPartSizeMB) * 1024 * 1024
}

// GetMultipartMemoryBytes returns how many bytes of form fields an upload may
// send ahead of its file part
func (c *Config) GetMultipartMemoryBytes() int64 {
	return int64(c.MultipartMemoryMB) * 1024 * 1024
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}
