/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package orchestrator

import (
	"fmt"
	"time"

	"github.com/acronis/go-apiorch/config"
	"github.com/acronis/go-apiorch/gate"
	"github.com/acronis/go-apiorch/retry"
	"github.com/acronis/go-apiorch/stats"
)

const cfgDefaultKeyPrefix = "orchestrator"

// Default configuration values.
const (
	DefaultCacheTTL             = 60 * time.Second
	DefaultCacheMaxEntries      = 10000
	DefaultCacheCleanupInterval = 30 * time.Second
	DefaultTenantParam          = "tenant"
)

const (
	cfgKeyGateMaxConcurrent    = "gate.maxConcurrent"
	cfgKeyGateStrict           = "gate.strict"
	cfgKeyCacheTTL             = "cache.ttl"
	cfgKeyCacheMaxEntries      = "cache.maxEntries"
	cfgKeyCacheCleanupInterval = "cache.cleanupInterval"
	cfgKeyRetryMaxAttempts     = "retry.maxAttempts"
	cfgKeyRetryBaseDelay       = "retry.baseDelay"
	cfgKeyRetryMaxDelay        = "retry.maxDelay"
	cfgKeyRetryRetryTransient  = "retry.retryTransient"
	cfgKeyRetryHonorRetryAfter = "retry.honorRetryAfter"
	cfgKeyStatsWindow          = "stats.window"
	cfgKeyStatsMaxEvents       = "stats.maxEvents"
	cfgKeyTenantParam          = "tenantParam"
	cfgKeyCoalesceMutations    = "coalesceMutations"
)

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// GateConfig represents configuration of the concurrency gate.
type GateConfig struct {
	// MaxConcurrent is the maximum number of simultaneously executing backend calls.
	MaxConcurrent int `mapstructure:"maxConcurrent" yaml:"maxConcurrent" json:"maxConcurrent"`
	// Strict makes a repeated permit release panic. Intended for debug builds and tests.
	Strict bool `mapstructure:"strict" yaml:"strict" json:"strict"`
}

// CacheConfig represents configuration of the response cache.
type CacheConfig struct {
	TTL             config.TimeDuration `mapstructure:"ttl" yaml:"ttl" json:"ttl"`
	MaxEntries      int                 `mapstructure:"maxEntries" yaml:"maxEntries" json:"maxEntries"`
	CleanupInterval config.TimeDuration `mapstructure:"cleanupInterval" yaml:"cleanupInterval" json:"cleanupInterval"`
}

// RetryConfig represents configuration of retries of rate-limited calls.
type RetryConfig struct {
	MaxAttempts     int                 `mapstructure:"maxAttempts" yaml:"maxAttempts" json:"maxAttempts"`
	BaseDelay       config.TimeDuration `mapstructure:"baseDelay" yaml:"baseDelay" json:"baseDelay"`
	MaxDelay        config.TimeDuration `mapstructure:"maxDelay" yaml:"maxDelay" json:"maxDelay"`
	RetryTransient  bool                `mapstructure:"retryTransient" yaml:"retryTransient" json:"retryTransient"`
	HonorRetryAfter bool                `mapstructure:"honorRetryAfter" yaml:"honorRetryAfter" json:"honorRetryAfter"`
}

// StatsConfig represents configuration of the statistics recorder.
type StatsConfig struct {
	Window    config.TimeDuration `mapstructure:"window" yaml:"window" json:"window"`
	MaxEvents int                 `mapstructure:"maxEvents" yaml:"maxEvents" json:"maxEvents"`
}

// Config represents the orchestrator configuration.
type Config struct {
	Gate  GateConfig  `mapstructure:"gate" yaml:"gate" json:"gate"`
	Cache CacheConfig `mapstructure:"cache" yaml:"cache" json:"cache"`
	Retry RetryConfig `mapstructure:"retry" yaml:"retry" json:"retry"`
	Stats StatsConfig `mapstructure:"stats" yaml:"stats" json:"stats"`

	// TenantParam is the request parameter holding the tenant scope.
	TenantParam string `mapstructure:"tenantParam" yaml:"tenantParam" json:"tenantParam"`
	// CoalesceMutations makes identical concurrent create/update/delete calls share one backend call.
	CoalesceMutations bool `mapstructure:"coalesceMutations" yaml:"coalesceMutations" json:"coalesceMutations"`

	keyPrefix string
}

// NewConfig creates an empty Config that reads its keys under keyPrefix ("orchestrator" if empty).
func NewConfig(keyPrefix string) *Config {
	return &Config{keyPrefix: keyPrefix}
}

// NewDefaultConfig creates a Config with default values.
func NewDefaultConfig() *Config {
	return &Config{
		Gate: GateConfig{MaxConcurrent: gate.DefaultMaxConcurrent},
		Cache: CacheConfig{
			TTL:             config.TimeDuration(DefaultCacheTTL),
			MaxEntries:      DefaultCacheMaxEntries,
			CleanupInterval: config.TimeDuration(DefaultCacheCleanupInterval),
		},
		Retry: RetryConfig{
			MaxAttempts: retry.DefaultMaxAttempts,
			BaseDelay:   config.TimeDuration(retry.DefaultBaseDelay),
			MaxDelay:    config.TimeDuration(retry.DefaultMaxDelay),
		},
		Stats: StatsConfig{
			Window:    config.TimeDuration(stats.DefaultWindow),
			MaxEvents: stats.DefaultMaxEvents,
		},
		TenantParam: DefaultTenantParam,
	}
}

// KeyPrefix implements config.KeyPrefixProvider.
func (c *Config) KeyPrefix() string {
	if c.keyPrefix == "" {
		return cfgDefaultKeyPrefix
	}
	return c.keyPrefix
}

// SetProviderDefaults implements config.Config.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyGateMaxConcurrent, gate.DefaultMaxConcurrent)
	dp.SetDefault(cfgKeyCacheTTL, DefaultCacheTTL.String())
	dp.SetDefault(cfgKeyCacheMaxEntries, DefaultCacheMaxEntries)
	dp.SetDefault(cfgKeyCacheCleanupInterval, DefaultCacheCleanupInterval.String())
	dp.SetDefault(cfgKeyRetryMaxAttempts, retry.DefaultMaxAttempts)
	dp.SetDefault(cfgKeyRetryBaseDelay, retry.DefaultBaseDelay.String())
	dp.SetDefault(cfgKeyRetryMaxDelay, retry.DefaultMaxDelay.String())
	dp.SetDefault(cfgKeyStatsWindow, stats.DefaultWindow.String())
	dp.SetDefault(cfgKeyStatsMaxEvents, stats.DefaultMaxEvents)
	dp.SetDefault(cfgKeyTenantParam, DefaultTenantParam)
}

// Set implements config.Config.
func (c *Config) Set(dp config.DataProvider) error {
	if err := c.setGate(dp); err != nil {
		return err
	}
	if err := c.setCache(dp); err != nil {
		return err
	}
	if err := c.setRetry(dp); err != nil {
		return err
	}
	if err := c.setStats(dp); err != nil {
		return err
	}

	var err error
	if c.TenantParam, err = dp.GetString(cfgKeyTenantParam); err != nil {
		return err
	}
	if c.CoalesceMutations, err = dp.GetBool(cfgKeyCoalesceMutations); err != nil {
		return err
	}
	return nil
}

func (c *Config) setGate(dp config.DataProvider) error {
	var err error
	if c.Gate.MaxConcurrent, err = dp.GetInt(cfgKeyGateMaxConcurrent); err != nil {
		return err
	}
	if c.Gate.MaxConcurrent <= 0 {
		return dp.WrapKeyErr(cfgKeyGateMaxConcurrent, fmt.Errorf("must be positive"))
	}
	if c.Gate.Strict, err = dp.GetBool(cfgKeyGateStrict); err != nil {
		return err
	}
	return nil
}

func (c *Config) setCache(dp config.DataProvider) error {
	var err error
	if c.Cache.TTL, err = getPositiveDuration(dp, cfgKeyCacheTTL); err != nil {
		return err
	}
	if c.Cache.MaxEntries, err = dp.GetInt(cfgKeyCacheMaxEntries); err != nil {
		return err
	}
	if c.Cache.MaxEntries <= 0 {
		return dp.WrapKeyErr(cfgKeyCacheMaxEntries, fmt.Errorf("must be positive"))
	}
	if c.Cache.CleanupInterval, err = getPositiveDuration(dp, cfgKeyCacheCleanupInterval); err != nil {
		return err
	}
	return nil
}

func (c *Config) setRetry(dp config.DataProvider) error {
	var err error
	if c.Retry.MaxAttempts, err = dp.GetInt(cfgKeyRetryMaxAttempts); err != nil {
		return err
	}
	if c.Retry.MaxAttempts < 0 {
		return dp.WrapKeyErr(cfgKeyRetryMaxAttempts, fmt.Errorf("must not be negative"))
	}
	if c.Retry.BaseDelay, err = getPositiveDuration(dp, cfgKeyRetryBaseDelay); err != nil {
		return err
	}
	if c.Retry.MaxDelay, err = getPositiveDuration(dp, cfgKeyRetryMaxDelay); err != nil {
		return err
	}
	if c.Retry.MaxDelay < c.Retry.BaseDelay {
		return dp.WrapKeyErr(cfgKeyRetryMaxDelay, fmt.Errorf("must not be less than %s", cfgKeyRetryBaseDelay))
	}
	if c.Retry.RetryTransient, err = dp.GetBool(cfgKeyRetryRetryTransient); err != nil {
		return err
	}
	if c.Retry.HonorRetryAfter, err = dp.GetBool(cfgKeyRetryHonorRetryAfter); err != nil {
		return err
	}
	return nil
}

func (c *Config) setStats(dp config.DataProvider) error {
	var err error
	if c.Stats.Window, err = getPositiveDuration(dp, cfgKeyStatsWindow); err != nil {
		return err
	}
	if c.Stats.MaxEvents, err = dp.GetInt(cfgKeyStatsMaxEvents); err != nil {
		return err
	}
	if c.Stats.MaxEvents <= 0 {
		return dp.WrapKeyErr(cfgKeyStatsMaxEvents, fmt.Errorf("must be positive"))
	}
	return nil
}

// RetryPolicy builds the retry policy described by the configuration.
func (c *Config) RetryPolicy() retry.BackendPolicy {
	return retry.BackendPolicy{
		BaseDelay:       c.Retry.BaseDelay.Duration(),
		MaxDelay:        c.Retry.MaxDelay.Duration(),
		MaxAttempts:     c.Retry.MaxAttempts,
		RetryTransient:  c.Retry.RetryTransient,
		HonorRetryAfter: c.Retry.HonorRetryAfter,
	}
}

func getPositiveDuration(dp config.DataProvider, key string) (config.TimeDuration, error) {
	d, err := dp.GetDuration(key)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, dp.WrapKeyErr(key, fmt.Errorf("must be positive"))
	}
	return config.TimeDuration(d), nil
}
