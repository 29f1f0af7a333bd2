/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/acronis/go-apiorch/config"
)

const cfgDefaultKeyPrefix = "backend"

// Default configuration values.
const (
	DefaultTimeout                    = 10 * time.Second
	DefaultRateLimitsLimit            = 100
	DefaultRateLimitsBurst            = 1
	DefaultRateLimitsWaitTimeout      = 15 * time.Second
	DefaultLoggerSlowRequestThreshold = time.Second
	DefaultDNSDialTimeout             = 2 * time.Second
)

const (
	cfgKeyBaseURL                    = "baseURL"
	cfgKeyTimeout                    = "timeout"
	cfgKeyDNSServers                 = "dnsServers"
	cfgKeyRateLimitsEnabled          = "rateLimits.enabled"
	cfgKeyRateLimitsLimit            = "rateLimits.limit"
	cfgKeyRateLimitsBurst            = "rateLimits.burst"
	cfgKeyRateLimitsWaitTimeout      = "rateLimits.waitTimeout"
	cfgKeyLoggerEnabled              = "logger.enabled"
	cfgKeyLoggerMode                 = "logger.mode"
	cfgKeyLoggerSlowRequestThreshold = "logger.slowRequestThreshold"
	cfgKeyMetricsEnabled             = "metrics.enabled"
)

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// RateLimitsConfig represents configuration of client-side rate limiting.
type RateLimitsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	// Limit is the number of requests per second.
	Limit       int                 `mapstructure:"limit" yaml:"limit" json:"limit"`
	Burst       int                 `mapstructure:"burst" yaml:"burst" json:"burst"`
	WaitTimeout config.TimeDuration `mapstructure:"waitTimeout" yaml:"waitTimeout" json:"waitTimeout"`
}

// TransportOpts returns options for RateLimitingRoundTripper.
func (c *RateLimitsConfig) TransportOpts() RateLimitingRoundTripperOpts {
	return RateLimitingRoundTripperOpts{Burst: c.Burst, WaitTimeout: c.WaitTimeout.Duration()}
}

// LoggerConfig represents configuration of request logging.
type LoggerConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	// Mode is one of: none, all, failed.
	Mode                 LoggingMode         `mapstructure:"mode" yaml:"mode" json:"mode"`
	SlowRequestThreshold config.TimeDuration `mapstructure:"slowRequestThreshold" yaml:"slowRequestThreshold" json:"slowRequestThreshold"`
}

// TransportOpts returns options for LoggingRoundTripper.
func (c *LoggerConfig) TransportOpts() LoggingRoundTripperOpts {
	return LoggingRoundTripperOpts{Mode: c.Mode, SlowRequestThreshold: c.SlowRequestThreshold.Duration()}
}

// MetricsConfig represents configuration of request metrics.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
}

// Config represents configuration of the HTTP backend client.
type Config struct {
	// BaseURL is the root of the REST API, e.g. "https://backend.local/api/v1".
	BaseURL string `mapstructure:"baseURL" yaml:"baseURL" json:"baseURL"`
	// Timeout limits a single physical request including reading the response body.
	Timeout config.TimeDuration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
	// DNSServers ("host:port") resolve the backend host in turn instead of the system resolver.
	DNSServers []string         `mapstructure:"dnsServers" yaml:"dnsServers" json:"dnsServers"`
	RateLimits RateLimitsConfig `mapstructure:"rateLimits" yaml:"rateLimits" json:"rateLimits"`
	Logger     LoggerConfig     `mapstructure:"logger" yaml:"logger" json:"logger"`
	Metrics    MetricsConfig    `mapstructure:"metrics" yaml:"metrics" json:"metrics"`

	keyPrefix string
}

// NewConfig creates an empty Config that reads its keys under keyPrefix ("backend" if empty).
func NewConfig(keyPrefix string) *Config {
	return &Config{keyPrefix: keyPrefix}
}

// NewDefaultConfig creates a Config with default values for the given base URL.
func NewDefaultConfig(baseURL string) *Config {
	return &Config{
		BaseURL: baseURL,
		Timeout: config.TimeDuration(DefaultTimeout),
		RateLimits: RateLimitsConfig{
			Limit:       DefaultRateLimitsLimit,
			Burst:       DefaultRateLimitsBurst,
			WaitTimeout: config.TimeDuration(DefaultRateLimitsWaitTimeout),
		},
		Logger: LoggerConfig{
			Mode:                 LoggingModeFailed,
			SlowRequestThreshold: config.TimeDuration(DefaultLoggerSlowRequestThreshold),
		},
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
	dp.SetDefault(cfgKeyTimeout, DefaultTimeout.String())
	dp.SetDefault(cfgKeyRateLimitsLimit, DefaultRateLimitsLimit)
	dp.SetDefault(cfgKeyRateLimitsBurst, DefaultRateLimitsBurst)
	dp.SetDefault(cfgKeyRateLimitsWaitTimeout, DefaultRateLimitsWaitTimeout.String())
	dp.SetDefault(cfgKeyLoggerMode, string(LoggingModeFailed))
	dp.SetDefault(cfgKeyLoggerSlowRequestThreshold, DefaultLoggerSlowRequestThreshold.String())
}

// Set implements config.Config.
func (c *Config) Set(dp config.DataProvider) error {
	var err error
	if c.BaseURL, err = dp.GetString(cfgKeyBaseURL); err != nil {
		return err
	}
	if c.BaseURL == "" {
		return dp.WrapKeyErr(cfgKeyBaseURL, fmt.Errorf("must not be empty"))
	}
	if u, parseErr := url.Parse(c.BaseURL); parseErr != nil || u.Scheme == "" || u.Host == "" {
		return dp.WrapKeyErr(cfgKeyBaseURL, fmt.Errorf("must be an absolute URL"))
	}

	timeout, err := dp.GetDuration(cfgKeyTimeout)
	if err != nil {
		return err
	}
	if timeout < 0 {
		return dp.WrapKeyErr(cfgKeyTimeout, fmt.Errorf("must not be negative"))
	}
	c.Timeout = config.TimeDuration(timeout)

	if err = c.setDNSServers(dp); err != nil {
		return err
	}
	if err = c.setRateLimits(dp); err != nil {
		return err
	}
	if err = c.setLogger(dp); err != nil {
		return err
	}
	if c.Metrics.Enabled, err = dp.GetBool(cfgKeyMetricsEnabled); err != nil {
		return err
	}
	return nil
}

func (c *Config) setDNSServers(dp config.DataProvider) error {
	val := dp.Get(cfgKeyDNSServers)
	if val == nil {
		c.DNSServers = nil
		return nil
	}
	servers, err := cast.ToStringSliceE(val)
	if err != nil {
		return dp.WrapKeyErr(cfgKeyDNSServers, err)
	}
	for _, addr := range servers {
		if _, _, splitErr := net.SplitHostPort(addr); splitErr != nil {
			return dp.WrapKeyErr(cfgKeyDNSServers, fmt.Errorf("%q must be in host:port form", addr))
		}
	}
	if len(servers) != 0 {
		c.DNSServers = servers
	}
	return nil
}

func (c *Config) setRateLimits(dp config.DataProvider) error {
	var err error
	if c.RateLimits.Enabled, err = dp.GetBool(cfgKeyRateLimitsEnabled); err != nil {
		return err
	}
	if c.RateLimits.Limit, err = dp.GetInt(cfgKeyRateLimitsLimit); err != nil {
		return err
	}
	if c.RateLimits.Limit <= 0 {
		return dp.WrapKeyErr(cfgKeyRateLimitsLimit, fmt.Errorf("must be positive"))
	}
	if c.RateLimits.Burst, err = dp.GetInt(cfgKeyRateLimitsBurst); err != nil {
		return err
	}
	if c.RateLimits.Burst < 0 {
		return dp.WrapKeyErr(cfgKeyRateLimitsBurst, fmt.Errorf("must not be negative"))
	}
	waitTimeout, err := dp.GetDuration(cfgKeyRateLimitsWaitTimeout)
	if err != nil {
		return err
	}
	if waitTimeout < 0 {
		return dp.WrapKeyErr(cfgKeyRateLimitsWaitTimeout, fmt.Errorf("must not be negative"))
	}
	c.RateLimits.WaitTimeout = config.TimeDuration(waitTimeout)
	return nil
}

func (c *Config) setLogger(dp config.DataProvider) error {
	var err error
	if c.Logger.Enabled, err = dp.GetBool(cfgKeyLoggerEnabled); err != nil {
		return err
	}
	mode, err := dp.GetStringFromSet(cfgKeyLoggerMode,
		[]string{string(LoggingModeNone), string(LoggingModeAll), string(LoggingModeFailed)}, true)
	if err != nil {
		return err
	}
	c.Logger.Mode = LoggingMode(strings.ToLower(mode))
	threshold, err := dp.GetDuration(cfgKeyLoggerSlowRequestThreshold)
	if err != nil {
		return err
	}
	if threshold < 0 {
		return dp.WrapKeyErr(cfgKeyLoggerSlowRequestThreshold, fmt.Errorf("must not be negative"))
	}
	c.Logger.SlowRequestThreshold = config.TimeDuration(threshold)
	return nil
}
