package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Default configuration values (production)
const (
	DefaultDomain         = "warproom.qzz.io"
	DefaultSTUN           = "stun:stun.l.google.com:19302"
	DefaultTURN           = "warproom.qzz.io"
	DefaultTURNUser       = "warproom"
	DefaultTURNPass       = "warproom-secret"
	DefaultExecutionURL   = "http://localhost:8090"
	DefaultConnectTimeout = 20 * time.Second
)

// Config holds application configuration
type Config struct {
	// Domain is the relay domain, optionally with a port.
	Domain string

	// WebSocketURL is constructed from domain
	WebSocketURL string

	// ICE servers for WebRTC
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string

	// ForceRelay restricts ICE to TURN candidates.
	ForceRelay bool

	// ExecutionURL is the base URL of the code execution service.
	ExecutionURL string

	// ConnectTimeout bounds the wait for a peer connection before a
	// reconnect is suggested.
	ConnectTimeout time.Duration

	// ReportViolations forwards the candidate's proctoring violations to
	// the host.
	ReportViolations bool

	// Name is shown to the other participant.
	Name string
}

// Options for loading config with CLI flag overrides
type Options struct {
	Domain           string
	STUNServer       string
	TURNServer       string
	TURNUser         string
	TURNPass         string
	ForceRelay       bool
	Insecure         bool
	ExecutionURL     string
	ConnectTimeout   time.Duration
	ReportViolations bool
	Name             string
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables, including a .env file in the working directory
// 3. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	_ = godotenv.Load()

	domain := pick(opts.Domain, "DOMAIN", DefaultDomain)

	timeout := opts.ConnectTimeout
	if timeout == 0 {
		if raw := os.Getenv("CONNECT_TIMEOUT"); raw != "" {
			d, err := time.ParseDuration(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid CONNECT_TIMEOUT %q: %w", raw, err)
			}
			timeout = d
		}
	}
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}

	execURL := pick(opts.ExecutionURL, "EXECUTION_SERVICE_URL", DefaultExecutionURL)
	if _, err := url.ParseRequestURI(execURL); err != nil {
		return nil, fmt.Errorf("invalid execution service URL %q: %w", execURL, err)
	}

	name := pick(opts.Name, "WARPROOM_NAME", "")
	if name == "" {
		name, _ = os.Hostname()
	}

	scheme := "wss"
	if opts.Insecure || envBool("RELAY_INSECURE") {
		scheme = "ws"
	}

	return &Config{
		Domain:           domain,
		WebSocketURL:     fmt.Sprintf("%s://%s/ws", scheme, domain),
		STUNServer:       pick(opts.STUNServer, "STUN_SERVER", DefaultSTUN),
		TURNServer:       pick(opts.TURNServer, "TURN_SERVER", DefaultTURN),
		TURNUser:         pick(opts.TURNUser, "TURN_USERNAME", DefaultTURNUser),
		TURNPass:         pick(opts.TURNPass, "TURN_PASSWORD", DefaultTURNPass),
		ForceRelay:       opts.ForceRelay || envBool("FORCE_RELAY"),
		ExecutionURL:     strings.TrimRight(execURL, "/"),
		ConnectTimeout:   timeout,
		ReportViolations: opts.ReportViolations || envBool("REPORT_VIOLATIONS"),
		Name:             name,
	}, nil
}

// pick returns the flag value, else the env var, else the default.
func pick(flag, env, def string) string {
	if flag != "" {
		return flag
	}
	if v := os.Getenv(env); v != "" {
		return v
	}
	return def
}

func envBool(key string) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && v
}

// GetRoomLink returns the webapp URL for a room ID
func (c *Config) GetRoomLink(roomID string) string {
	return fmt.Sprintf("https://%s/r/%s", c.Domain, roomID)
}

// GetSTUNServers returns STUN server URLs as strings
func (c *Config) GetSTUNServers() []string {
	if c.STUNServer == "" {
		return nil
	}
	return []string{c.STUNServer}
}

// GetTURNServers returns TURN server URLs if configured. TURNServer is a
// bare host; a "turn:" prefix is tolerated.
func (c *Config) GetTURNServers() []string {
	host := strings.TrimPrefix(c.TURNServer, "turn:")
	if host == "" {
		return nil
	}
	return []string{
		fmt.Sprintf("turn:%s:3478?transport=udp", host),
		fmt.Sprintf("turn:%s:3478?transport=tcp", host),
		fmt.Sprintf("turns:%s:5349?transport=tcp", host),
	}
}

// GetTURNCredentials returns TURN username and password
func (c *Config) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}
