package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	AppEnv   string `yaml:"app_env"`
	HTTPAddr string `yaml:"http_addr"`
	LogDir   string `yaml:"log_dir"`

	DBDriver   string `yaml:"db_driver"`
	DBUser     string `yaml:"db_user"`
	DBPassword string `yaml:"db_password"`
	DBHost     string `yaml:"db_host"`
	DBPort     string `yaml:"db_port"`
	DBName     string `yaml:"db_name"`

	JWTSecret string        `yaml:"jwt_secret"`
	JWTTTL    time.Duration `yaml:"jwt_ttl"`

	MinIOEndpoint  string        `yaml:"minio_endpoint"`
	MinIOAccessKey string        `yaml:"minio_access_key"`
	MinIOSecretKey string        `yaml:"minio_secret_key"`
	MinIOBucket    string        `yaml:"minio_bucket"`
	MinIOUseSSL    bool          `yaml:"minio_use_ssl"`
	BlobURLTTL     time.Duration `yaml:"blob_url_ttl"`
	BlobPartSize   uint64        `yaml:"blob_part_size"`
	// BlobBaseURL, when set, makes blob URLs stable links served by this
	// process instead of presigned ones.
	BlobBaseURL string `yaml:"blob_base_url"`

	RedisURL           string `yaml:"redis_url"`
	PushInstallationID string `yaml:"push_installation_id"`
}

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

func LoadConfig() Config {
	// a missing .env is fine, the environment wins anyway
	_ = godotenv.Load()

	cfg := Config{
		AppEnv:   getEnv("APP_ENV", "development"),
		HTTPAddr: getEnv("HTTP_ADDR", ":8000"),
		LogDir:   getEnv("LOG_DIR", "./logs"),

		DBDriver:   getEnv("DB_DRIVER", DriverPostgres),
		DBUser:     getEnv("DB_USER", ""),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBHost:     getEnv("DB_HOST", ""),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBName:     getEnv("DB_NAME", ""),

		JWTSecret: getEnv("JWT_SECRET", ""),
		JWTTTL:    getEnvDuration("JWT_TTL", 24*time.Hour),

		MinIOEndpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
		MinIOAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinIOBucket:    getEnv("MINIO_BUCKET", "courier"),
		MinIOUseSSL:    getEnvBool("MINIO_USE_SSL", false),
		BlobURLTTL:     getEnvDuration("BLOB_URL_TTL", 7*24*time.Hour),
		BlobPartSize:   uint64(getEnvInt("BLOB_PART_SIZE", 16<<20)),
		BlobBaseURL:    getEnv("BLOB_BASE_URL", ""),

		RedisURL:           getEnv("REDIS_URL", ""),
		PushInstallationID: getEnv("PUSH_INSTALLATION_ID", ""),
	}

	if path := os.Getenv("COURIER_CONFIG"); path != "" {
		if err := cfg.overlay(path); err != nil {
			fmt.Fprintln(os.Stderr, "config overlay ignored:", err)
		}
	}
	return cfg
}

// overlay applies non-zero values from a YAML file on top of cfg.
func (c *Config) overlay(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var file Config
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	setString := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	setString(&c.AppEnv, file.AppEnv)
	setString(&c.HTTPAddr, file.HTTPAddr)
	setString(&c.LogDir, file.LogDir)
	setString(&c.DBDriver, file.DBDriver)
	setString(&c.DBUser, file.DBUser)
	setString(&c.DBPassword, file.DBPassword)
	setString(&c.DBHost, file.DBHost)
	setString(&c.DBPort, file.DBPort)
	setString(&c.DBName, file.DBName)
	setString(&c.JWTSecret, file.JWTSecret)
	setString(&c.MinIOEndpoint, file.MinIOEndpoint)
	setString(&c.MinIOAccessKey, file.MinIOAccessKey)
	setString(&c.MinIOSecretKey, file.MinIOSecretKey)
	setString(&c.MinIOBucket, file.MinIOBucket)
	setString(&c.BlobBaseURL, file.BlobBaseURL)
	setString(&c.RedisURL, file.RedisURL)
	setString(&c.PushInstallationID, file.PushInstallationID)
	if file.JWTTTL > 0 {
		c.JWTTTL = file.JWTTTL
	}
	if file.BlobURLTTL > 0 {
		c.BlobURLTTL = file.BlobURLTTL
	}
	if file.BlobPartSize > 0 {
		c.BlobPartSize = file.BlobPartSize
	}
	if file.MinIOUseSSL {
		c.MinIOUseSSL = true
	}
	return nil
}

func (c Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	switch c.DBDriver {
	case DriverPostgres:
		if c.DBHost == "" || c.DBName == "" {
			return errors.New("DB_HOST and DB_NAME are required for the postgres driver")
		}
	case DriverSQLite:
		if c.DBName == "" {
			return errors.New("DB_NAME (database file) is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unknown DB_DRIVER %q", c.DBDriver)
	}
	return nil
}

func (c Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}
