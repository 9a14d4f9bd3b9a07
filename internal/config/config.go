package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreMySQL  = "mysql"
	StoreMemory = "memory"
)

type Config struct {
	Port            string
	Env             string
	Store           string
	DSN             string
	MigrationsDir   string
	JWTSecret       string
	JWTTTLHrs       int
	TypingTTL       time.Duration
	CORSOrigins     []string
	ShutdownTimeout time.Duration
	LogLevel        string
	LogFormat       string
}

// Load reads the environment, after merging in a .env file when one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var errs []string
	c := &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "dev"),
		Store:         strings.ToLower(getEnv("STORE", StoreMySQL)),
		MigrationsDir: getEnv("MIGRATIONS_DIR", "migrations"),
		CORSOrigins:   splitList(getEnv("CORS_ORIGINS", "*")),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "text"),
	}

	var err error
	if c.JWTSecret, err = mustEnv("JWT_SECRET"); err != nil {
		errs = append(errs, err.Error())
	}
	switch c.Store {
	case StoreMySQL:
		if c.DSN, err = mustEnv("DB_DSN"); err != nil {
			errs = append(errs, err.Error())
		}
	case StoreMemory:
		c.DSN = os.Getenv("DB_DSN")
	default:
		errs = append(errs, fmt.Sprintf("STORE must be %q or %q, got %q", StoreMySQL, StoreMemory, c.Store))
	}
	if c.JWTTTLHrs, err = getEnvInt("JWT_TTL_HOURS", 24); err != nil {
		errs = append(errs, err.Error())
	}
	if c.TypingTTL, err = getEnvDuration("TYPING_TTL", 5*time.Second); err != nil {
		errs = append(errs, err.Error())
	}
	if c.ShutdownTimeout, err = getEnvDuration("SHUTDOWN_TIMEOUT", 15*time.Second); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return c, nil
}

func (c *Config) Addr() string { return ":" + c.Port }

func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func mustEnv(k string) (string, error) {
	v := os.Getenv(k)
	if v == "" {
		return "", fmt.Errorf("missing env: %s", k)
	}
	return v, nil
}

func getEnvInt(k string, def int) (int, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", k, v)
	}
	return n, nil
}

func getEnvDuration(k string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration, got %q", k, v)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
