package config

import "time"

// CacheConfig configures the shared namespaced cache layer. When the
// backing server is unreachable, operations degrade to misses/no-ops
// rather than failing the caller.
type CacheConfig struct {
	Addr       string                        `yaml:"addr"`
	Password   string                        `yaml:"password"`
	DB         int                           `yaml:"db"`
	DefaultTTL time.Duration                 `yaml:"default_ttl"`
	Namespaces map[string]CacheNamespaceConfig `yaml:"namespaces"`
}

// CacheNamespaceConfig overrides the default TTL for one namespace.
type CacheNamespaceConfig struct {
	TTL time.Duration `yaml:"ttl"`
}
