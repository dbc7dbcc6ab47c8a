package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Address string
	Secret  []byte

	DBHost        string
	DBPort        string
	DBUser        string
	DBPassword    string
	DBName        string
	DBSslMode     string
	DBConnStr     string
	DBMaxConns    int
	DBAutoMigrate bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	ReaperInterval time.Duration
	ReaperLockKey  string

	LogLevel  string
	LogFormat string
	LogFile   string
}

var AppConfig *Config

// Load reads the environment (and a .env file when present) into AppConfig.
func Load() error {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	cfg, err := FromEnv()
	if err != nil {
		return err
	}
	AppConfig = cfg
	return nil
}

func FromEnv() (*Config, error) {
	cfg := &Config{
		Address:        getEnv("CLUSTERIZER_ADDRESS", "0.0.0.0:3000"),
		Secret:         []byte(getEnv("CLUSTERIZER_SECRET", "")),
		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnv("DB_PORT", "5432"),
		DBUser:         getEnv("DB_USER", "clusterizer"),
		DBPassword:     getEnv("DB_PASSWORD", "clusterizer"),
		DBName:         getEnv("DB_NAME", "clusterizer"),
		DBSslMode:      getEnv("DB_SSLMODE", "disable"),
		DBMaxConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		DBAutoMigrate:  getEnvAsBool("DB_AUTO_MIGRATE", true),
		RedisAddr:      getEnv("REDIS_ADDR", ""),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisDB:        getEnvAsInt("REDIS_DB", 0),
		ReaperInterval: getEnvAsDuration("REAPER_INTERVAL", 15*time.Minute),
		ReaperLockKey:  getEnv("REAPER_LOCK_KEY", "clusterizer:reaper_lock"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "console"),
		LogFile:        getEnv("LOG_FILE", ""),
	}

	if len(cfg.Secret) == 0 {
		return nil, fmt.Errorf("CLUSTERIZER_SECRET must be set")
	}
	if cfg.ReaperInterval <= 0 {
		return nil, fmt.Errorf("REAPER_INTERVAL must be positive, got %s", cfg.ReaperInterval)
	}

	cfg.DBConnStr = getEnv("DATABASE_URL", "")
	if cfg.DBConnStr == "" {
		cfg.DBConnStr = getEnv("CLUSTERIZER_DATABASE", "")
	}
	if cfg.DBConnStr == "" {
		cfg.DBConnStr = "host=" + cfg.DBHost +
			" port=" + cfg.DBPort +
			" user=" + cfg.DBUser +
			" password=" + cfg.DBPassword +
			" dbname=" + cfg.DBName +
			" sslmode=" + cfg.DBSslMode
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return fallback
}
