/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package config

// Config is implemented by every configuration section that can be populated by Loader.
type Config interface {
	SetProviderDefaults(dp DataProvider)
	Set(dp DataProvider) error
}

// KeyPrefixProvider is implemented by sections whose keys live under a common prefix
// (e.g. "orchestrator" for "orchestrator.gate.maxConcurrent").
type KeyPrefixProvider interface {
	KeyPrefix() string
}

// PrefixedDataProvider returns dp scoped to cfg's key prefix if cfg declares one.
func PrefixedDataProvider(dp DataProvider, cfg interface{}) DataProvider {
	if kp, ok := cfg.(KeyPrefixProvider); ok && kp.KeyPrefix() != "" {
		return NewKeyPrefixedDataProvider(dp, kp.KeyPrefix())
	}
	return dp
}
