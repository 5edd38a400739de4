package di

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-supply-cache/cache"
	"github.com/goliatone/go-supply-cache/entitycache"
	"github.com/goliatone/go-supply-cache/projects"
	"github.com/goliatone/go-supply-cache/querycache"
	"github.com/goliatone/go-supply-cache/retry"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// EntityConfig sizes the projects entity cache.
type EntityConfig struct {
	TTL        time.Duration `toml:"ttl" yaml:"ttl"`
	OfflineTTL time.Duration `toml:"offline_ttl" yaml:"offline_ttl"`
	MaxRetries int           `toml:"max_retries" yaml:"max_retries"`
}

// Validate checks the entity cache settings.
func (c EntityConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.TTL, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.OfflineTTL, validation.Required, validation.Min(c.TTL)),
		validation.Field(&c.MaxRetries, validation.Required, validation.Min(1)),
	)
}

// Config is everything the container wires.
type Config struct {
	Store    cache.StoreConfig   `toml:"store" yaml:"store"`
	Retry    retry.Config        `toml:"retry" yaml:"retry"`
	Breaker  retry.BreakerConfig `toml:"breaker" yaml:"breaker"`
	Query    querycache.Config   `toml:"query" yaml:"query"`
	Entity   EntityConfig        `toml:"entity" yaml:"entity"`
	Projects projects.Config     `toml:"projects" yaml:"projects"`

	// RulesFile names a YAML rule set added on top of the default rules.
	RulesFile string `toml:"rules_file" yaml:"rules_file"`
}

// DefaultConfig returns the defaults of every component.
func DefaultConfig() Config {
	return Config{
		Store:   cache.DefaultStoreConfig(),
		Retry:   retry.DefaultConfig(),
		Breaker: retry.DefaultBreakerConfig(),
		Query:   querycache.DefaultConfig(),
		Entity: EntityConfig{
			TTL:        entitycache.DefaultTTL,
			OfflineTTL: entitycache.DefaultOfflineTTL,
			MaxRetries: entitycache.DefaultMaxRetries,
		},
		Projects: projects.DefaultConfig(),
	}
}

// Validate checks every section and returns the first failure.
func (c Config) Validate() error {
	if err := c.Store.Validate(); err != nil {
		return err
	}
	if err := c.Retry.Validate(); err != nil {
		return err
	}
	if err := c.Query.Validate(); err != nil {
		return err
	}
	if err := c.Projects.Validate(); err != nil {
		return err
	}

	err := goerrors.ValidateWithOzzo(func() error {
		if err := validation.ValidateStruct(&c, validation.Field(&c.Entity)); err != nil {
			return err
		}
		b := c.Breaker
		return validation.ValidateStruct(&b,
			validation.Field(&b.FailureThreshold, validation.Min(0)),
			validation.Field(&b.ResetTimeout, validation.Min(time.Duration(0))),
			validation.Field(&b.MonitoringPeriod, validation.Min(time.Duration(0))),
		)
	}, "invalid container configuration")
	if err != nil {
		return err
	}
	return nil
}

// LoadConfig reads a TOML (.toml) or YAML (.yaml, .yml) file over DefaultConfig and
// validates the result. Unknown keys are rejected.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, goerrors.Wrap(err, goerrors.CategoryBadInput, "read config file").
			WithTextCode("CONFIG_UNREADABLE")
	}

	cfg := DefaultConfig()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		err = decodeTOML(data, &cfg)
	case ".yaml", ".yml":
		err = decodeYAML(data, &cfg)
	default:
		return Config{}, goerrors.New("unsupported config format "+ext, goerrors.CategoryBadInput).
			WithTextCode("CONFIG_FORMAT")
	}
	if err != nil {
		return Config{}, goerrors.Wrap(err, goerrors.CategoryBadInput, "decode config file").
			WithTextCode("CONFIG_INVALID")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// decodeTOML reads the document into a generic tree and hands it to the YAML decoder, so
// both formats share one set of field rules: unknown keys are rejected and durations are
// written as "250ms" or as integer nanoseconds.
func decodeTOML(data []byte, cfg *Config) error {
	var tree map[string]any
	if err := toml.Unmarshal(data, &tree); err != nil {
		return err
	}
	if len(tree) == 0 {
		return nil
	}
	normalized, err := yaml.Marshal(tree)
	if err != nil {
		return err
	}
	return decodeYAML(normalized, cfg)
}
