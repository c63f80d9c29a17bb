package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	ServerAddr     string
	DatabaseDSN    string
	RedisAddr      string
	RedisPassword  string
	AllowedOrigins []string
	EvictionGrace  time.Duration
	RateLimit      int
	RateWindow     time.Duration
	LogLevel       logrus.Level
}

type Params struct {
	ServerAddr     string
	DatabaseDSN    string
	RedisAddr      string
	RedisPassword  string
	AllowedOrigins []string
	EvictionGrace  time.Duration
	RateLimit      int
	RateWindow     time.Duration
	LogLevel       string
}

func NewConfig(p Params) (*Config, error) {
	if p.ServerAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if p.EvictionGrace <= 0 {
		return nil, fmt.Errorf("eviction grace must be positive")
	}
	if p.RateLimit <= 0 || p.RateWindow <= 0 {
		return nil, fmt.Errorf("rate limit and rate window must be positive")
	}

	level, err := logrus.ParseLevel(p.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	return &Config{
		ServerAddr:     p.ServerAddr,
		DatabaseDSN:    p.DatabaseDSN,
		RedisAddr:      p.RedisAddr,
		RedisPassword:  p.RedisPassword,
		AllowedOrigins: p.AllowedOrigins,
		EvictionGrace:  p.EvictionGrace,
		RateLimit:      p.RateLimit,
		RateWindow:     p.RateWindow,
		LogLevel:       level,
	}, nil
}

// LoadEnv loads variables from the given .env files into the process
// environment. Missing files are ignored.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}

	var present []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		}
	}
	if len(present) == 0 {
		return nil
	}

	return godotenv.Load(present...)
}

func EnvString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func EnvDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func EnvInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// SplitList splits a comma separated list, dropping empty items.
func SplitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
