package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port           int
	ProjectID      string
	DispatchTopic  string
	GeminiModel    string
	GeminiAPIKey   string
	DispatchUnits  []string
	PublishTimeout time.Duration
	LogLevel       string
}

func Load() Config {
	return Config{
		Port:           envInt("PORT", 8080),
		ProjectID:      envStr("GCP_PROJECT_ID", ""),
		DispatchTopic:  envStr("DISPATCH_TOPIC", "dispatcher"),
		GeminiModel:    envStr("GEMINI_MODEL", "gemini-2.0-flash"),
		GeminiAPIKey:   envStr("GEMINI_API_KEY", ""),
		DispatchUnits:  envList("DISPATCH_UNITS", []string{"Police station unit", "Medical unit", "Fire unit"}),
		PublishTimeout: time.Duration(envInt("PUBLISH_TIMEOUT_MS", 10000)) * time.Millisecond,
		LogLevel:       envStr("LOG_LEVEL", "info"),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
