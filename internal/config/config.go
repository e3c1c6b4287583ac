package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Auth      AuthConfig      `yaml:"auth"`
	LiveKit   LiveKitConfig   `yaml:"livekit"`
	Session   SessionConfig   `yaml:"session"`
	Notify    NotifyConfig    `yaml:"notify"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	CORS      CORSConfig      `yaml:"cors"`
}

type CORSConfig struct {
	AllowedOrigins string `yaml:"allowed_origins"`
}

type ServerConfig struct {
	Port     int    `yaml:"port"`
	BasePath string `yaml:"base_path"`
	Env      string `yaml:"env"`
	LogLevel string `yaml:"log_level"`
}

type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	AutoMigrate     bool          `yaml:"auto_migrate"`
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Addr returns host:port for the redis client.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type AuthConfig struct {
	SecretKey string `yaml:"secret_key"`
}

type LiveKitConfig struct {
	Host      string `yaml:"host"`
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	WSUrl     string `yaml:"ws_url"`
}

// Enabled reports whether enough credentials are present to talk to LiveKit.
func (l LiveKitConfig) Enabled() bool {
	return l.Host != "" && l.APIKey != "" && l.APISecret != ""
}

// SessionConfig holds the timing rules for live sessions and requests.
type SessionConfig struct {
	MaxSessionDuration time.Duration `yaml:"max_session_duration"`
	ActivityGrace      time.Duration `yaml:"activity_grace"`
	RequestTTL         time.Duration `yaml:"request_ttl"`
	HeartbeatTimeout   time.Duration `yaml:"heartbeat_timeout"`
	ReaperSchedule     string        `yaml:"reaper_schedule"`
	ActorIdleTimeout   time.Duration `yaml:"actor_idle_timeout"`
	RetryAttempts      int           `yaml:"retry_attempts"`
	RetryBackoff       time.Duration `yaml:"retry_backoff"`
	DefaultStartTime   string        `yaml:"default_start_time"`
	DefaultEndTime     string        `yaml:"default_end_time"`
	DefaultTimezone    string        `yaml:"default_timezone"`
}

type NotifyConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	PollBatch    int           `yaml:"poll_batch"`
	GapGrace     time.Duration `yaml:"gap_grace"`
	DedupSize    int           `yaml:"dedup_size"`
	DedupTTL     time.Duration `yaml:"dedup_ttl"`
}

type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	Burst             int `yaml:"burst"`
}

// Default returns a configuration usable for local development and tests.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:     8010,
			BasePath: "/api/live",
			Env:      "dev",
			LogLevel: "debug",
		},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    10,
			ConnMaxLifetime: time.Hour,
			AutoMigrate:     true,
		},
		Redis: RedisConfig{
			Host: "localhost",
			Port: 6379,
		},
		LiveKit: LiveKitConfig{
			Host:  "http://localhost:7880",
			WSUrl: "ws://localhost:7880",
		},
		Session: SessionConfig{
			MaxSessionDuration: 2 * time.Hour,
			ActivityGrace:      10 * time.Minute,
			RequestTTL:         15 * time.Minute,
			HeartbeatTimeout:   90 * time.Second,
			ReaperSchedule:     "@every 5m",
			ActorIdleTimeout:   time.Minute,
			RetryAttempts:      3,
			RetryBackoff:       200 * time.Millisecond,
			DefaultStartTime:   "09:00",
			DefaultEndTime:     "17:00",
			DefaultTimezone:    "UTC",
		},
		Notify: NotifyConfig{
			PollInterval: 2 * time.Second,
			PollBatch:    200,
			GapGrace:     30 * time.Second,
			DedupSize:    4096,
			DedupTTL:     10 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 10,
			Burst:             3,
		},
		CORS: CORSConfig{
			AllowedOrigins: "*",
		},
	}
}

func Load(path string) (*Config, error) {
	cfg := Default()

	// Load from yaml file if exists
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	if basePath := os.Getenv("SERVER_BASE_PATH"); basePath != "" {
		cfg.Server.BasePath = basePath
	}
	if env := os.Getenv("ENV"); env != "" {
		cfg.Server.Env = env
	}
	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		cfg.Server.LogLevel = logLevel
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Database.URL = dbURL
	}
	if v := os.Getenv("DB_AUTO_MIGRATE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Database.AutoMigrate = b
		}
	}
	if redisHost := os.Getenv("REDIS_HOST"); redisHost != "" {
		cfg.Redis.Host = redisHost
	}
	if redisPort := os.Getenv("REDIS_PORT"); redisPort != "" {
		if p, err := strconv.Atoi(redisPort); err == nil {
			cfg.Redis.Port = p
		}
	}
	if redisPassword := os.Getenv("REDIS_PASSWORD"); redisPassword != "" {
		cfg.Redis.Password = redisPassword
	}
	if secretKey := os.Getenv("JWT_SECRET"); secretKey != "" {
		cfg.Auth.SecretKey = secretKey
	}

	// LiveKit configuration
	if lkHost := os.Getenv("LIVEKIT_HOST"); lkHost != "" {
		cfg.LiveKit.Host = lkHost
	}
	if lkAPIKey := os.Getenv("LIVEKIT_API_KEY"); lkAPIKey != "" {
		cfg.LiveKit.APIKey = lkAPIKey
	}
	if lkAPISecret := os.Getenv("LIVEKIT_API_SECRET"); lkAPISecret != "" {
		cfg.LiveKit.APISecret = lkAPISecret
	}
	if lkWSUrl := os.Getenv("LIVEKIT_WS_URL"); lkWSUrl != "" {
		cfg.LiveKit.WSUrl = lkWSUrl
	}

	// Session timing
	envDuration("SESSION_MAX_DURATION", &cfg.Session.MaxSessionDuration)
	envDuration("SESSION_ACTIVITY_GRACE", &cfg.Session.ActivityGrace)
	envDuration("SESSION_REQUEST_TTL", &cfg.Session.RequestTTL)
	envDuration("SESSION_HEARTBEAT_TIMEOUT", &cfg.Session.HeartbeatTimeout)
	if schedule := os.Getenv("SESSION_REAPER_SCHEDULE"); schedule != "" {
		cfg.Session.ReaperSchedule = schedule
	}

	if corsOrigins := os.Getenv("CORS_ORIGINS"); corsOrigins != "" {
		cfg.CORS.AllowedOrigins = corsOrigins
	}
}

func envDuration(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// Validate rejects values that would make the session rules meaningless.
func (c *Config) Validate() error {
	if c.Session.MaxSessionDuration <= 0 {
		return fmt.Errorf("session.max_session_duration must be positive")
	}
	if c.Session.RequestTTL <= 0 {
		return fmt.Errorf("session.request_ttl must be positive")
	}
	if c.Session.HeartbeatTimeout <= 0 {
		return fmt.Errorf("session.heartbeat_timeout must be positive")
	}
	if c.Session.RetryAttempts < 1 {
		return fmt.Errorf("session.retry_attempts must be at least 1")
	}
	if _, err := time.LoadLocation(c.Session.DefaultTimezone); err != nil {
		return fmt.Errorf("session.default_timezone: %w", err)
	}
	return nil
}
