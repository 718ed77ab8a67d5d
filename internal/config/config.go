package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/mmuslimabdulj/sketchrelay/internal/domain"
	"github.com/mmuslimabdulj/sketchrelay/internal/logger"
	"golang.org/x/time/rate"
)

// Config holds all application configuration
type Config struct {
	// Server
	Port string

	// Security
	AllowedOrigins []string
	// TrustProxyHeaders keys rate limits on X-Forwarded-For / X-Real-IP.
	// Enable only behind a reverse proxy that sets them.
	TrustProxyHeaders bool

	// Rate Limiting
	RateLimitAPI rate.Limit
	RateLimitWS  rate.Limit
	DrawRate     rate.Limit
	DrawBurst    int

	// Logging
	LogLevel  string
	LogFormat string
	LogFile   string

	// WebSocket
	MaxMessageSize int
	SendBufferSize int

	// Protocol
	MaxUsernameLength int
	MaxPointsPerEvent int
	UsernamePolicy    domain.UsernamePolicy

	// Event mirror (empty URL disables it)
	NatsURL           string
	NatsSubjectPrefix string
}

// DefaultConfig returns configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Port:              "8080",
		AllowedOrigins:    []string{"http://localhost:8080", "http://localhost:3000"},
		RateLimitAPI:      domain.DefaultRateLimitAPI,
		RateLimitWS:       domain.DefaultRateLimitWS,
		DrawRate:          domain.DefaultDrawRate,
		DrawBurst:         domain.DefaultDrawBurst,
		LogLevel:          "info", // Options: debug, info, warn, error, silent
		LogFormat:         "console",
		MaxMessageSize:    domain.MaxMessageSize,
		SendBufferSize:    domain.SendBufferSize,
		MaxUsernameLength: domain.MaxUsernameLength,
		MaxPointsPerEvent: domain.MaxPointsPerEvent,
		UsernamePolicy:    domain.UsernamePolicyReject,
		NatsSubjectPrefix: "drawrelay",
	}
}

// fileConfig mirrors Config in TOML form
type fileConfig struct {
	Server struct {
		Port              string   `toml:"port"`
		AllowedOrigins    []string `toml:"allowed_origins"`
		TrustProxyHeaders bool     `toml:"trust_proxy_headers"`
	} `toml:"server"`
	RateLimit struct {
		API       float64 `toml:"api"`
		WS        float64 `toml:"ws"`
		Draw      float64 `toml:"draw"`
		DrawBurst int     `toml:"draw_burst"`
	} `toml:"rate_limit"`
	Logging struct {
		Level  string `toml:"level"`
		Format string `toml:"format"` // "json" or "console"
		File   string `toml:"file"`
	} `toml:"logging"`
	Protocol struct {
		MaxMessageSize    int    `toml:"max_message_size"`
		SendBufferSize    int    `toml:"send_buffer_size"`
		MaxUsernameLength int    `toml:"max_username_length"`
		MaxPointsPerEvent int    `toml:"max_points_per_event"`
		UsernamePolicy    string `toml:"username_policy"` // "reject" or "allow"
	} `toml:"protocol"`
	Nats struct {
		URL           string `toml:"url"`
		SubjectPrefix string `toml:"subject_prefix"`
	} `toml:"nats"`
}

// Load builds the configuration: defaults, then the TOML file at path (if any), then the environment
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	cfg := DefaultConfig()
	cfg.applyEnv()
	return cfg
}

func (cfg *Config) applyFile(path string) error {
	var fc fileConfig
	fc.Server.Port = cfg.Port
	fc.Server.AllowedOrigins = cfg.AllowedOrigins
	fc.Server.TrustProxyHeaders = cfg.TrustProxyHeaders
	fc.RateLimit.API = float64(cfg.RateLimitAPI)
	fc.RateLimit.WS = float64(cfg.RateLimitWS)
	fc.RateLimit.Draw = float64(cfg.DrawRate)
	fc.RateLimit.DrawBurst = cfg.DrawBurst
	fc.Logging.Level = cfg.LogLevel
	fc.Logging.Format = cfg.LogFormat
	fc.Logging.File = cfg.LogFile
	fc.Protocol.MaxMessageSize = cfg.MaxMessageSize
	fc.Protocol.SendBufferSize = cfg.SendBufferSize
	fc.Protocol.MaxUsernameLength = cfg.MaxUsernameLength
	fc.Protocol.MaxPointsPerEvent = cfg.MaxPointsPerEvent
	fc.Protocol.UsernamePolicy = string(cfg.UsernamePolicy)
	fc.Nats.URL = cfg.NatsURL
	fc.Nats.SubjectPrefix = cfg.NatsSubjectPrefix

	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.Port = fc.Server.Port
	cfg.AllowedOrigins = fc.Server.AllowedOrigins
	cfg.TrustProxyHeaders = fc.Server.TrustProxyHeaders
	if fc.RateLimit.API > 0 {
		cfg.RateLimitAPI = rate.Limit(fc.RateLimit.API)
	}
	if fc.RateLimit.WS > 0 {
		cfg.RateLimitWS = rate.Limit(fc.RateLimit.WS)
	}
	// draw = 0 turns draw limiting off
	if fc.RateLimit.Draw >= 0 {
		cfg.DrawRate = rate.Limit(fc.RateLimit.Draw)
	}
	if fc.RateLimit.DrawBurst > 0 {
		cfg.DrawBurst = fc.RateLimit.DrawBurst
	}
	cfg.LogLevel = fc.Logging.Level
	cfg.LogFormat = fc.Logging.Format
	cfg.LogFile = fc.Logging.File
	if fc.Protocol.MaxMessageSize > 0 {
		cfg.MaxMessageSize = fc.Protocol.MaxMessageSize
	}
	if fc.Protocol.SendBufferSize > 0 {
		cfg.SendBufferSize = fc.Protocol.SendBufferSize
	}
	if fc.Protocol.MaxUsernameLength > 0 {
		cfg.MaxUsernameLength = fc.Protocol.MaxUsernameLength
	}
	if fc.Protocol.MaxPointsPerEvent > 0 {
		cfg.MaxPointsPerEvent = fc.Protocol.MaxPointsPerEvent
	}
	cfg.UsernamePolicy = domain.ParseUsernamePolicy(fc.Protocol.UsernamePolicy)
	cfg.NatsURL = fc.Nats.URL
	cfg.NatsSubjectPrefix = fc.Nats.SubjectPrefix
	return nil
}

func (cfg *Config) applyEnv() {
	// Server
	if port := os.Getenv("PORT"); port != "" {
		cfg.Port = port
	}

	// Security
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseOrigins(origins)
	}
	if trust := os.Getenv("TRUST_PROXY_HEADERS"); trust != "" {
		if val, err := strconv.ParseBool(trust); err == nil {
			cfg.TrustProxyHeaders = val
		}
	}

	// Rate Limiting
	if val, ok := positiveInt("RATE_LIMIT_API"); ok {
		cfg.RateLimitAPI = rate.Limit(val)
	}
	if val, ok := positiveInt("RATE_LIMIT_WS"); ok {
		cfg.RateLimitWS = rate.Limit(val)
	}
	if val, ok := nonNegativeInt("DRAW_RATE"); ok {
		cfg.DrawRate = rate.Limit(val)
	}
	if val, ok := positiveInt("DRAW_BURST"); ok {
		cfg.DrawBurst = val
	}

	// Logging
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}
	if format := os.Getenv("LOG_FORMAT"); format != "" {
		cfg.LogFormat = format
	}
	if file := os.Getenv("LOG_FILE"); file != "" {
		cfg.LogFile = file
	}

	// WebSocket
	if val, ok := positiveInt("MAX_MESSAGE_SIZE"); ok {
		cfg.MaxMessageSize = val
	}
	if val, ok := positiveInt("SEND_BUFFER_SIZE"); ok {
		cfg.SendBufferSize = val
	}

	// Protocol
	if val, ok := positiveInt("MAX_USERNAME_LENGTH"); ok {
		cfg.MaxUsernameLength = val
	}
	if val, ok := positiveInt("MAX_POINTS_PER_EVENT"); ok {
		cfg.MaxPointsPerEvent = val
	}
	if policy := os.Getenv("USERNAME_POLICY"); policy != "" {
		cfg.UsernamePolicy = domain.ParseUsernamePolicy(policy)
	}

	// Event mirror
	if url := os.Getenv("NATS_URL"); url != "" {
		cfg.NatsURL = url
	}
	if prefix := os.Getenv("NATS_SUBJECT_PREFIX"); prefix != "" {
		cfg.NatsSubjectPrefix = prefix
	}
}

// LogConfig derives the logger settings
func (cfg *Config) LogConfig() logger.LogConfig {
	lc := logger.DefaultLogConfig()
	lc.Level = cfg.LogLevel
	lc.Format = cfg.LogFormat
	lc.FilePath = cfg.LogFile
	return lc
}

// IsOriginAllowed checks if the origin is in the allowed list
func (cfg *Config) IsOriginAllowed(origin string) bool {
	// Empty origin is allowed (same-origin requests and non-browser clients)
	if origin == "" {
		return true
	}
	for _, allowed := range cfg.AllowedOrigins {
		if allowed == "*" || origin == allowed {
			return true
		}
	}
	return false
}

func positiveInt(key string) (int, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, false
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val <= 0 {
		return 0, false
	}
	return val, true
}

func nonNegativeInt(key string) (int, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, false
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val < 0 {
		return 0, false
	}
	return val, true
}

// parseOrigins parses comma-separated origins
func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
