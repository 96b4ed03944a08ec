// Package appconfig loads the configuration of the authkit service: a YAML
// file, an optional .env file, then AUTHKIT_* environment overrides.
package appconfig

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/authkit"
	"github.com/MrEthical07/authkit/jwt"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const envPrefix = "AUTHKIT_"

// Config is the service configuration. Durations accept Go syntax ("15m").
type Config struct {
	App struct {
		// dev | prod
		Env      string `yaml:"env"`
		LogLevel string `yaml:"log_level"`
		Name     string `yaml:"name"`
	} `yaml:"app"`

	Server struct {
		Addr            string        `yaml:"addr"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Storage struct {
		// memory | postgres
		Driver          string        `yaml:"driver"`
		DSN             string        `yaml:"dsn"`
		MaxConns        int32         `yaml:"max_conns"`
		ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	} `yaml:"storage"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
		// RefreshTokens moves refresh token storage to Redis as well.
		RefreshTokens bool `yaml:"refresh_tokens"`
	} `yaml:"redis"`

	RateLimit struct {
		// Enabled needs redis.addr.
		Enabled bool          `yaml:"enabled"`
		Limit   int           `yaml:"limit"`
		Window  time.Duration `yaml:"window"`
	} `yaml:"rate_limit"`

	Secrets struct {
		Dir           string        `yaml:"dir"`
		EnvPrefix     string        `yaml:"env_prefix"`
		CacheTTL      time.Duration `yaml:"cache_ttl"`
		ClientKeyName string        `yaml:"client_key_name"`
		SealKeyName   string        `yaml:"seal_key_name"`
		// AllowUnauthenticated serves without the client key gate. Local use only.
		AllowUnauthenticated bool `yaml:"allow_unauthenticated"`
	} `yaml:"secrets"`

	Token struct {
		AccessTTL       time.Duration `yaml:"access_ttl"`
		RefreshTTL      time.Duration `yaml:"refresh_ttl"`
		SigningMethod   string        `yaml:"signing_method"`
		Issuer          string        `yaml:"issuer"`
		KeyID           string        `yaml:"key_id"`
		PrivateKeyName  string        `yaml:"private_key_name"`
		Leeway          time.Duration `yaml:"leeway"`
		DefaultAudience string        `yaml:"default_audience"`
		DefaultScope    string        `yaml:"default_scope"`
	} `yaml:"token"`

	MFA struct {
		Period        uint          `yaml:"period"`
		Skew          uint          `yaml:"skew"`
		Digits        int           `yaml:"digits"`
		RecoveryCount int           `yaml:"recovery_count"`
		LoginTxTTL    time.Duration `yaml:"login_tx_ttl"`
	} `yaml:"mfa"`

	Audit struct {
		Enabled    bool `yaml:"enabled"`
		BufferSize int  `yaml:"buffer_size"`
	} `yaml:"audit"`

	Metrics struct {
		Enabled bool `yaml:"enabled"`
		Latency bool `yaml:"latency"`
	} `yaml:"metrics"`
}

// Default returns a configuration that runs a development server on the
// in-memory stores.
func Default() *Config {
	engine := authkit.DefaultConfig()

	c := &Config{}
	c.App.Env = "dev"
	c.App.LogLevel = "info"
	c.App.Name = "authkit"
	c.Server.Addr = ":8080"
	c.Server.ReadTimeout = 10 * time.Second
	c.Server.WriteTimeout = 10 * time.Second
	c.Server.ShutdownTimeout = 15 * time.Second
	c.Storage.Driver = "memory"
	c.Redis.Prefix = "authkit"
	c.RateLimit.Limit = 10
	c.RateLimit.Window = time.Minute
	c.Secrets.EnvPrefix = "AUTHKIT_SECRET_"
	c.Secrets.CacheTTL = 5 * time.Minute
	c.Secrets.ClientKeyName = "client-key"
	c.Token.AccessTTL = engine.Token.AccessTTL
	c.Token.RefreshTTL = engine.Refresh.TTL
	c.Token.SigningMethod = string(engine.Token.SigningMethod)
	c.Token.Issuer = engine.Token.Issuer
	c.Token.KeyID = engine.Token.KeyID
	c.Token.PrivateKeyName = engine.Token.PrivateKeyName
	c.Token.Leeway = engine.Token.Leeway
	c.MFA.Period = engine.MFA.Period
	c.MFA.Skew = engine.MFA.Skew
	c.MFA.Digits = engine.MFA.Digits
	c.MFA.RecoveryCount = engine.Recovery.Count
	c.MFA.LoginTxTTL = engine.LoginTx.TTL
	c.Audit.BufferSize = engine.Audit.BufferSize
	c.Metrics.Enabled = engine.Metrics.Enabled
	return c
}

// Load reads path over Default. An empty path skips the file. dotenv names an
// optional .env file loaded before the overrides; variables already set in
// the process win over it.
func Load(path, dotenv string) (*Config, error) {
	if dotenv != "" {
		if err := godotenv.Load(dotenv); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", dotenv, err)
		}
	}

	c := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if err := c.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks service-level settings and the derived engine config.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "memory":
	case "postgres":
		if c.Storage.DSN == "" {
			return errors.New("storage.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Redis.RefreshTokens && c.Redis.Addr == "" {
		return errors.New("redis.refresh_tokens needs redis.addr")
	}
	if c.RateLimit.Enabled {
		if c.Redis.Addr == "" {
			return errors.New("rate_limit.enabled needs redis.addr")
		}
		if c.RateLimit.Limit < 1 || c.RateLimit.Window <= 0 {
			return errors.New("rate_limit needs limit >= 1 and a positive window")
		}
	}
	if strings.TrimSpace(c.Secrets.ClientKeyName) == "" && !c.Secrets.AllowUnauthenticated {
		return errors.New("secrets.client_key_name is required unless secrets.allow_unauthenticated is set")
	}
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	engine := c.Engine()
	return engine.Validate()
}

// Engine converts to the library configuration.
func (c *Config) Engine() authkit.Config {
	cfg := authkit.DefaultConfig()
	cfg.Token.AccessTTL = c.Token.AccessTTL
	cfg.Token.SigningMethod = jwt.SigningMethod(strings.ToLower(c.Token.SigningMethod))
	cfg.Token.Issuer = c.Token.Issuer
	cfg.Token.KeyID = c.Token.KeyID
	cfg.Token.PrivateKeyName = c.Token.PrivateKeyName
	cfg.Token.Leeway = c.Token.Leeway
	cfg.Token.DefaultAudience = c.Token.DefaultAudience
	cfg.Token.DefaultScope = c.Token.DefaultScope
	cfg.Refresh.TTL = c.Token.RefreshTTL
	cfg.MFA.Period = c.MFA.Period
	cfg.MFA.Skew = c.MFA.Skew
	cfg.MFA.Digits = c.MFA.Digits
	cfg.Recovery.Count = c.MFA.RecoveryCount
	cfg.LoginTx.TTL = c.MFA.LoginTxTTL
	cfg.Audit.Enabled = c.Audit.Enabled
	cfg.Audit.BufferSize = c.Audit.BufferSize
	cfg.Metrics.Enabled = c.Metrics.Enabled
	cfg.Metrics.EnableLatencyHistograms = c.Metrics.Latency
	return cfg
}

// ---- env helpers ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(envPrefix + key)
	return v, v != ""
}

func getEnvInt(key string) (int, bool, error) {
	s, ok := getEnvStr(key)
	if !ok {
		return 0, false, nil
	}
	i, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, false, fmt.Errorf("%s%s: %w", envPrefix, key, err)
	}
	return i, true, nil
}

func getEnvBool(key string) (bool, bool, error) {
	s, ok := getEnvStr(key)
	if !ok {
		return false, false, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return false, false, fmt.Errorf("%s%s: %w", envPrefix, key, err)
	}
	return b, true, nil
}

func getEnvDur(key string) (time.Duration, bool, error) {
	s, ok := getEnvStr(key)
	if !ok {
		return 0, false, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return 0, false, fmt.Errorf("%s%s: %w", envPrefix, key, err)
	}
	return d, true, nil
}

func (c *Config) applyEnvOverrides() error {
	strs := map[string]*string{
		"ENV":              &c.App.Env,
		"LOG_LEVEL":        &c.App.LogLevel,
		"SERVER_ADDR":      &c.Server.Addr,
		"STORAGE_DRIVER":   &c.Storage.Driver,
		"STORAGE_DSN":      &c.Storage.DSN,
		"REDIS_ADDR":       &c.Redis.Addr,
		"REDIS_PASSWORD":   &c.Redis.Password,
		"REDIS_PREFIX":     &c.Redis.Prefix,
		"SECRETS_DIR":      &c.Secrets.Dir,
		"CLIENT_KEY_NAME":  &c.Secrets.ClientKeyName,
		"SEAL_KEY_NAME":    &c.Secrets.SealKeyName,
		"SIGNING_METHOD":   &c.Token.SigningMethod,
		"ISSUER":           &c.Token.Issuer,
		"KEY_ID":           &c.Token.KeyID,
		"PRIVATE_KEY_NAME": &c.Token.PrivateKeyName,
		"DEFAULT_AUDIENCE": &c.Token.DefaultAudience,
		"DEFAULT_SCOPE":    &c.Token.DefaultScope,
	}
	for key, dst := range strs {
		if v, ok := getEnvStr(key); ok {
			*dst = v
		}
	}

	durs := map[string]*time.Duration{
		"ACCESS_TTL":   &c.Token.AccessTTL,
		"REFRESH_TTL":  &c.Token.RefreshTTL,
		"LOGIN_TX_TTL": &c.MFA.LoginTxTTL,
		"SECRETS_TTL":  &c.Secrets.CacheTTL,
		"RATE_WINDOW":  &c.RateLimit.Window,
	}
	for key, dst := range durs {
		v, ok, err := getEnvDur(key)
		if err != nil {
			return err
		}
		if ok {
			*dst = v
		}
	}

	bools := map[string]*bool{
		"AUDIT_ENABLED":         &c.Audit.Enabled,
		"METRICS_ENABLED":       &c.Metrics.Enabled,
		"REDIS_REFRESH_TOKENS":  &c.Redis.RefreshTokens,
		"RATE_LIMIT_ENABLED":    &c.RateLimit.Enabled,
		"ALLOW_UNAUTHENTICATED": &c.Secrets.AllowUnauthenticated,
	}
	for key, dst := range bools {
		v, ok, err := getEnvBool(key)
		if err != nil {
			return err
		}
		if ok {
			*dst = v
		}
	}

	if v, ok, err := getEnvInt("REDIS_DB"); err != nil {
		return err
	} else if ok {
		c.Redis.DB = v
	}
	if v, ok, err := getEnvInt("RECOVERY_COUNT"); err != nil {
		return err
	} else if ok {
		c.MFA.RecoveryCount = v
	}
	if v, ok, err := getEnvInt("RATE_LIMIT"); err != nil {
		return err
	} else if ok {
		c.RateLimit.Limit = v
	}
	return nil
}
