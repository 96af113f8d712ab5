package config

import (
	"net/url"
	"os"
	"path/filepath"
	"strconv"
)

// Config holds all environment-driven settings. Load a .env file (if any)
// before calling FromEnv; missing values fall back to defaults suitable for
// local development.
type Config struct {
	Port         string
	GinMode      string
	DelaySeconds int

	DBType string // "sqlite" or "postgres"
	DBFile string // sqlite only

	DBUser     string
	DBPassword string
	DBHost     string
	DBPort     string
	DBName     string

	DataDir string

	TelegramToken  string
	TelegramChatID int64
}

func FromEnv() Config {
	return Config{
		Port:           getenv("PORT", "8080"),
		GinMode:        os.Getenv("GIN_MODE"),
		DelaySeconds:   getenvInt("DELAY_SECONDS", 60),
		DBType:         getenv("DB_TYPE", "sqlite"),
		DBFile:         getenv("DB_FILE", filepath.Join(getenv("DATA_DIR", "./data"), "price_watcher.db")),
		DBUser:         os.Getenv("DB_USER"),
		DBPassword:     os.Getenv("DB_PASSWORD"),
		DBHost:         os.Getenv("DB_HOST"),
		DBPort:         getenv("DB_PORT", "5432"),
		DBName:         os.Getenv("DB_NAME"),
		DataDir:        getenv("DATA_DIR", "./data"),
		TelegramToken:  os.Getenv("TELEGRAM_TOKEN"),
		TelegramChatID: getenvInt64("TELEGRAM_CHAT_ID", 0),
	}
}

// PostgresDSN builds a URL-encoded DSN from the DB_* variables.
func (c Config) PostgresDSN() string {
	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.DBUser, c.DBPassword),
		Host:   c.DBHost + ":" + c.DBPort,
		Path:   "/" + c.DBName,
	}
	q := u.Query()
	q.Set("sslmode", "disable")
	u.RawQuery = q.Encode()
	return u.String()
}

func (c Config) LogFile() string {
	return filepath.Join(c.DataDir, "price_watcher.log")
}

// GraphDir is where per-product chart images are written.
func (c Config) GraphDir() string {
	return filepath.Join(c.DataDir, "graphs")
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func getenvInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}
