/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package monitor

import (
	"fmt"
	"time"

	"github.com/acronis/go-apiorch/config"
)

const cfgDefaultKeyPrefix = "monitor"

// Default configuration values.
const (
	DefaultAddress            = ":8090"
	DefaultShutdownTimeout    = 5 * time.Second
	DefaultMaxRequestBodySize = config.BytesCount(64 * 1024)
)

const (
	cfgKeyAddress            = "address"
	cfgKeyShutdownTimeout    = "shutdownTimeout"
	cfgKeyMaxRequestBodySize = "maxRequestBodySize"
	cfgKeyProfilingEnabled   = "profilingEnabled"
)

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// Config represents configuration of the monitoring server.
type Config struct {
	Address         string              `mapstructure:"address" yaml:"address" json:"address"`
	ShutdownTimeout config.TimeDuration `mapstructure:"shutdownTimeout" yaml:"shutdownTimeout" json:"shutdownTimeout"`
	// MaxRequestBodySize limits bodies of POST requests, e.g. "64K".
	MaxRequestBodySize config.BytesCount `mapstructure:"maxRequestBodySize" yaml:"maxRequestBodySize" json:"maxRequestBodySize"`
	// ProfilingEnabled mounts pprof handlers under /debug.
	ProfilingEnabled bool `mapstructure:"profilingEnabled" yaml:"profilingEnabled" json:"profilingEnabled"`

	keyPrefix string
}

// NewConfig creates an empty Config that reads its keys under keyPrefix ("monitor" if empty).
func NewConfig(keyPrefix string) *Config {
	return &Config{keyPrefix: keyPrefix}
}

// NewDefaultConfig creates a Config with default values.
func NewDefaultConfig() *Config {
	return &Config{
		Address:            DefaultAddress,
		ShutdownTimeout:    config.TimeDuration(DefaultShutdownTimeout),
		MaxRequestBodySize: DefaultMaxRequestBodySize,
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
	dp.SetDefault(cfgKeyAddress, DefaultAddress)
	dp.SetDefault(cfgKeyShutdownTimeout, DefaultShutdownTimeout.String())
	dp.SetDefault(cfgKeyMaxRequestBodySize, DefaultMaxRequestBodySize.String())
}

// Set implements config.Config.
func (c *Config) Set(dp config.DataProvider) error {
	var err error
	if c.Address, err = dp.GetString(cfgKeyAddress); err != nil {
		return err
	}
	if c.Address == "" {
		return dp.WrapKeyErr(cfgKeyAddress, fmt.Errorf("must not be empty"))
	}

	shutdownTimeout, err := dp.GetDuration(cfgKeyShutdownTimeout)
	if err != nil {
		return err
	}
	if shutdownTimeout <= 0 {
		return dp.WrapKeyErr(cfgKeyShutdownTimeout, fmt.Errorf("must be positive"))
	}
	c.ShutdownTimeout = config.TimeDuration(shutdownTimeout)

	if c.MaxRequestBodySize, err = dp.GetBytesCount(cfgKeyMaxRequestBodySize); err != nil {
		return err
	}
	if c.MaxRequestBodySize == 0 {
		return dp.WrapKeyErr(cfgKeyMaxRequestBodySize, fmt.Errorf("must be positive"))
	}

	if c.ProfilingEnabled, err = dp.GetBool(cfgKeyProfilingEnabled); err != nil {
		return err
	}
	return nil
}
