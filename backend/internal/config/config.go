// Package config loads relay settings from flags, the environment and an
// optional .env file.
package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

const (
	DefaultAddr = ":8080"
	DefaultSTUN = "stun:stun.l.google.com:19302"
)

type Config struct {
	// Addr is the HTTP listen address.
	Addr string

	// RedisAddr enables the room status mirror when set.
	RedisAddr     string
	RedisPassword string

	// Advertised to clients at /api/v1/webrtc/config.
	STUNServers []string
	TURNServers []string
	TURNUser    string
	TURNPass    string

	AllowedOrigins []string
}

// Options carries flag values. Empty fields fall through to the environment.
type Options struct {
	Addr      string
	RedisAddr string
}

// Load reads configuration with the following priority:
// 1. flags (passed via Options)
// 2. environment variables, including those from .env
// 3. defaults
func Load(opts Options) *Config {
	// A missing .env is normal in containers.
	_ = godotenv.Load()

	addr := firstNonEmpty(opts.Addr, os.Getenv("RELAY_ADDR"))
	if addr == "" {
		if port := os.Getenv("PORT"); port != "" {
			addr = ":" + port
		} else {
			addr = DefaultAddr
		}
	}

	stun := splitList(os.Getenv("STUN_SERVERS"))
	if len(stun) == 0 {
		stun = []string{DefaultSTUN}
	}

	origins := splitList(os.Getenv("ALLOWED_ORIGINS"))
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	return &Config{
		Addr:           addr,
		RedisAddr:      firstNonEmpty(opts.RedisAddr, os.Getenv("REDIS_ADDR")),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		STUNServers:    stun,
		TURNServers:    splitList(os.Getenv("TURN_SERVERS")),
		TURNUser:       os.Getenv("TURN_USERNAME"),
		TURNPass:       os.Getenv("TURN_PASSWORD"),
		AllowedOrigins: origins,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
