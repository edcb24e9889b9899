// Package config loads the node's YAML configuration, with environment
// overrides and sane defaults when no file is present.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	HTTP struct {
		Listen string `yaml:"listen"`
		CORS   bool   `yaml:"cors"`
	} `yaml:"http"`

	Auth struct {
		Tokens   []string `yaml:"tokens"`
		Accounts []struct {
			Username string `yaml:"username"`
			Password string `yaml:"password"`
		} `yaml:"accounts"`
	} `yaml:"auth"`

	AdminAuth struct {
		Tokens   []string `yaml:"tokens"`
		Accounts []struct {
			Username string `yaml:"username"`
			Password string `yaml:"password"`
		} `yaml:"accounts"`
	} `yaml:"admin_auth"`

	ICEServers []ICEServer `yaml:"ice_servers"`

	Strategy struct {
		AutoCreateWhip                   bool  `yaml:"auto_create_whip"`
		AutoCreateWhep                   bool  `yaml:"auto_create_whep"`
		AutoDeleteWhipMs                 int64 `yaml:"auto_delete_whip_ms"`
		AutoDeleteWhepMs                 int64 `yaml:"auto_delete_whep_ms"`
		CascadePushCloseSub              bool  `yaml:"cascade_push_close_sub"`
		AutoDeleteWhipMsFromSubscribeCreate bool `yaml:"auto_delete_whip_ms_from_subscribe_create"`
		MaxSubscribersPerStream          int   `yaml:"max_subscribers_per_stream"`
	} `yaml:"strategy"`

	Webhooks []string `yaml:"webhooks"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		JaegerURL   string  `yaml:"jaeger_url"`
		ServiceName string  `yaml:"service_name"`
		SampleRate  float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	RateLimit struct {
		Enabled             bool    `yaml:"enabled"`
		RequestsPerSecond   float64 `yaml:"requests_per_second"`
		Burst               int     `yaml:"burst"`
	} `yaml:"rate_limit"`

	Cascade struct {
		ConnectTimeout time.Duration `yaml:"connect_timeout"`
		TotalTimeout   time.Duration `yaml:"total_timeout"`
	} `yaml:"cascade"`
}

// ICEServer mirrors a WebRTC ICE server entry, echoed in WHIP/WHEP `Link` headers.
type ICEServer struct {
	URLs           []string `yaml:"urls"`
	Username       string   `yaml:"username,omitempty"`
	Credential     string   `yaml:"credential,omitempty"`
	CredentialType string   `yaml:"credential_type,omitempty"`
}

// Validate checks configuration values are self-consistent.
func (c *Config) Validate() error {
	if c.HTTP.Listen == "" {
		return fmt.Errorf("http.listen must not be empty")
	}
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}
	if c.Redis.Enabled && c.Redis.Address == "" {
		return fmt.Errorf("redis.address must not be empty when redis.enabled=true")
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limit.requests_per_second must be > 0 when rate_limit.enabled=true")
		}
		if c.RateLimit.Burst <= 0 {
			return fmt.Errorf("rate_limit.burst must be > 0 when rate_limit.enabled=true")
		}
	}
	if c.Cascade.ConnectTimeout <= 0 {
		return fmt.Errorf("cascade.connect_timeout must be > 0")
	}
	if c.Cascade.TotalTimeout <= 0 {
		return fmt.Errorf("cascade.total_timeout must be > 0")
	}
	if c.Cascade.ConnectTimeout > c.Cascade.TotalTimeout {
		return fmt.Errorf("cascade.connect_timeout must be <= cascade.total_timeout")
	}
	return nil
}

// Load reads configuration from a YAML file, falling back to defaults if the
// file is absent (same fallback-then-override shape as the prior ingest
// node's config loader).
func Load(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns a configuration usable with no file on disk at all.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.HTTP.Listen = ":7777"
	cfg.HTTP.CORS = true

	cfg.ICEServers = []ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}

	cfg.Strategy.AutoCreateWhip = true
	cfg.Strategy.AutoCreateWhep = true
	cfg.Strategy.AutoDeleteWhipMs = 3000
	cfg.Strategy.AutoDeleteWhepMs = 3000
	cfg.Strategy.CascadePushCloseSub = false
	cfg.Strategy.AutoDeleteWhipMsFromSubscribeCreate = true
	cfg.Strategy.MaxSubscribersPerStream = 0 // unlimited

	cfg.Redis.Enabled = false
	cfg.Redis.Address = "localhost:6379"

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.Tracing.Enabled = false
	cfg.Tracing.ServiceName = "live777go"
	cfg.Tracing.SampleRate = 0.1

	cfg.RateLimit.Enabled = false
	cfg.RateLimit.RequestsPerSecond = 50
	cfg.RateLimit.Burst = 100

	cfg.Cascade.ConnectTimeout = 500 * time.Millisecond
	cfg.Cascade.TotalTimeout = 1 * time.Second

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if addr := os.Getenv("LIVE777_HTTP_LISTEN"); addr != "" {
		c.HTTP.Listen = addr
	}
	if level := os.Getenv("LIVE777_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if tokens := os.Getenv("LIVE777_AUTH_TOKENS"); tokens != "" {
		c.Auth.Tokens = strings.Split(tokens, ",")
	}
	if tokens := os.Getenv("LIVE777_ADMIN_TOKENS"); tokens != "" {
		c.AdminAuth.Tokens = strings.Split(tokens, ",")
	}
	if redisAddr := os.Getenv("LIVE777_REDIS_ADDRESS"); redisAddr != "" {
		c.Redis.Address = redisAddr
		c.Redis.Enabled = true
	}
	if v := os.Getenv("LIVE777_CASCADE_PUSH_CLOSE_SUB"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Strategy.CascadePushCloseSub = b
		}
	}
}
