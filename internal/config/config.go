package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Persistence selects the GameStore implementation.
type Persistence string

const (
	PersistenceStorage Persistence = "storage"
	PersistenceSQL     Persistence = "sql"
)

// Runtime env keys read by Load.
const (
	EnvConfigPath         = "truco_config_path"
	EnvPersistence        = "truco_persistence"
	EnvAutoFinish         = "truco_auto_finish"
	EnvNotify             = "truco_notify"
	EnvLinkSecret         = "truco_link_secret"
	EnvLinkIssuer         = "truco_link_issuer"
	EnvLinkTTLSeconds     = "truco_link_ttl_sec"
	EnvLinkValidateDevice = "truco_link_validate_device"
	EnvNATSURL            = "truco_nats_url"
	EnvNATSSubject        = "truco_nats_subject"
)

type LinkConfig struct {
	// Secret signs invite links; links are disabled when empty.
	Secret         string `json:"secret"`
	Issuer         string `json:"issuer"`
	TTLSeconds     int    `json:"ttl_seconds"`
	ValidateDevice bool   `json:"validate_device"`
}

// TTL returns the link lifetime.
func (l LinkConfig) TTL() time.Duration {
	return time.Duration(l.TTLSeconds) * time.Second
}

type NATSConfig struct {
	// URL of the NATS server; event fan-out is disabled when empty.
	URL     string `json:"url"`
	Subject string `json:"subject"`
}

// Config is the module configuration, built once at start-up.
type Config struct {
	Persistence Persistence `json:"persistence"`
	AutoFinish  bool        `json:"auto_finish"`
	// Notify sends game events to players as in-app notifications.
	Notify bool       `json:"notify"`
	Link   LinkConfig `json:"link"`
	NATS   NATSConfig `json:"nats"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Persistence: PersistenceStorage,
		AutoFinish:  true,
		Notify:      true,
		Link: LinkConfig{
			Issuer:         "truco",
			TTLSeconds:     7 * 24 * 3600,
			ValidateDevice: true,
		},
		NATS: NATSConfig{
			Subject: "truco.events",
		},
	}
}

// Load builds the configuration from defaults, the JSON file at path (if
// any) and then env, in that order. env is the Nakama runtime environment.
func Load(path string, env map[string]string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = env[EnvConfigPath]
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	if err := cfg.applyEnv(env); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects unusable settings.
func (c Config) Validate() error {
	var errs []error
	switch c.Persistence {
	case PersistenceStorage, PersistenceSQL:
	default:
		errs = append(errs, fmt.Errorf("unknown persistence %q", c.Persistence))
	}
	if c.Link.TTLSeconds <= 0 {
		errs = append(errs, fmt.Errorf("link ttl must be positive, got %d", c.Link.TTLSeconds))
	}
	if c.Link.Secret != "" && c.Link.Issuer == "" {
		errs = append(errs, errors.New("link issuer is required when a secret is set"))
	}
	if c.NATS.URL != "" && c.NATS.Subject == "" {
		errs = append(errs, errors.New("nats subject is required when a url is set"))
	}
	return errors.Join(errs...)
}

func (c *Config) applyEnv(env map[string]string) error {
	if v, ok := env[EnvPersistence]; ok && v != "" {
		c.Persistence = Persistence(v)
	}
	if v, ok := env[EnvLinkSecret]; ok {
		c.Link.Secret = v
	}
	if v, ok := env[EnvLinkIssuer]; ok && v != "" {
		c.Link.Issuer = v
	}
	if v, ok := env[EnvNATSURL]; ok {
		c.NATS.URL = v
	}
	if v, ok := env[EnvNATSSubject]; ok && v != "" {
		c.NATS.Subject = v
	}

	bools := []struct {
		key string
		dst *bool
	}{
		{EnvAutoFinish, &c.AutoFinish},
		{EnvNotify, &c.Notify},
		{EnvLinkValidateDevice, &c.Link.ValidateDevice},
	}
	for _, b := range bools {
		v, ok := env[b.key]
		if !ok || v == "" {
			continue
		}
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", b.key, err)
		}
		*b.dst = parsed
	}

	if v, ok := env[EnvLinkTTLSeconds]; ok && v != "" {
		ttl, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvLinkTTLSeconds, err)
		}
		c.Link.TTLSeconds = ttl
	}
	return nil
}
