// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package config

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// PathEnvVar overrides the config file location.
const PathEnvVar = "WAYFINDER_CONFIG"

// EnvPrefix prefixes every environment override. Nested keys use a double
// underscore: WAYFINDER_SEARCH__CACHE_TTL sets search.cache_ttl.
const EnvPrefix = "WAYFINDER_"

// DefaultPaths lists the config files searched, in order, when no path is given.
var DefaultPaths = []string{
	"wayfinder.yaml",
	"wayfinder.yml",
}

// Config holds the engine's tuning parameters.
type Config struct {
	// OntologyPath points at an optional YAML file overriding the built-in ontology.
	OntologyPath string `koanf:"ontology_path"`

	Search  SearchConfig  `koanf:"search"`
	Compose ComposeConfig `koanf:"compose"`
	Breaker BreakerConfig `koanf:"breaker"`
	Session SessionConfig `koanf:"session"`
}

// SearchConfig tunes candidate retrieval.
type SearchConfig struct {
	CacheTTL         time.Duration `koanf:"cache_ttl" validate:"gte=0"`
	CacheSize        int           `koanf:"cache_size" validate:"gte=1"`
	TimeBucket       time.Duration `koanf:"time_bucket" validate:"gt=0"`
	LookupTimeout    time.Duration `koanf:"lookup_timeout" validate:"gt=0"`
	SoftRadiusKm     float64       `koanf:"soft_radius_km" validate:"gt=0"`
	DefaultLimit     int           `koanf:"default_limit" validate:"gte=1,lte=1000"`
	FallbackPoolSize int           `koanf:"fallback_pool_size" validate:"gte=1"`
}

// ComposeConfig tunes rail composition.
type ComposeConfig struct {
	RequestTimeout   time.Duration `koanf:"request_timeout" validate:"gt=0"`
	CacheTTL         time.Duration `koanf:"cache_ttl" validate:"gte=0"`
	CacheSize        int           `koanf:"cache_size" validate:"gte=1"`
	RailSize         int           `koanf:"rail_size" validate:"gte=1,lte=12"`
	CandidateLimit   int           `koanf:"candidate_limit" validate:"gte=1"`
	BroadenFactor    float64       `koanf:"broaden_factor" validate:"gte=1"`
	MMRLambda        float64       `koanf:"mmr_lambda" validate:"gte=0,lte=1"`
	QualityThreshold float64       `koanf:"quality_threshold" validate:"gte=0,lte=1"`
	PoolSize         int           `koanf:"pool_size" validate:"gte=1"`
}

// BreakerConfig tunes the circuit breaker guarding the place store.
type BreakerConfig struct {
	Enabled          bool          `koanf:"enabled"`
	MaxRequests      uint32        `koanf:"max_requests" validate:"gte=1"`
	Interval         time.Duration `koanf:"interval" validate:"gte=0"`
	Timeout          time.Duration `koanf:"timeout" validate:"gt=0"`
	FailureThreshold uint32        `koanf:"failure_threshold" validate:"gte=1"`
}

// SessionConfig tunes session personalization.
type SessionConfig struct {
	Enabled   bool    `koanf:"enabled"`
	PoolSize  int     `koanf:"pool_size" validate:"gte=1"`
	SeenLimit int     `koanf:"seen_limit" validate:"gte=1"`
	VibeDecay float64 `koanf:"vibe_decay" validate:"gt=0,lte=1"`
	VibeBump  float64 `koanf:"vibe_bump" validate:"gte=0,lte=1"`
}

// Default returns the built-in configuration.
func Default() *Config {
	poolSize := runtime.NumCPU()
	if poolSize < 2 {
		poolSize = 2
	}
	return &Config{
		Search: SearchConfig{
			CacheTTL:         2 * time.Minute,
			CacheSize:        2048,
			TimeBucket:       5 * time.Minute,
			LookupTimeout:    800 * time.Millisecond,
			SoftRadiusKm:     5,
			DefaultLimit:     60,
			FallbackPoolSize: 200,
		},
		Compose: ComposeConfig{
			RequestTimeout:   3 * time.Second,
			CacheTTL:         5 * time.Minute,
			CacheSize:        512,
			RailSize:         12,
			CandidateLimit:   60,
			BroadenFactor:    3,
			MMRLambda:        0.7,
			QualityThreshold: 0.7,
			PoolSize:         poolSize,
		},
		Breaker: BreakerConfig{
			Enabled:          true,
			MaxRequests:      1,
			Interval:         time.Minute,
			Timeout:          30 * time.Second,
			FailureThreshold: 5,
		},
		Session: SessionConfig{
			Enabled:   true,
			PoolSize:  2,
			SeenLimit: 200,
			VibeDecay: 0.9,
			VibeBump:  0.2,
		},
	}
}

// Load layers the built-in defaults, an optional YAML file and WAYFINDER_*
// environment variables, then validates the result.
// An empty path searches PathEnvVar and DefaultPaths; a missing file is not an error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks every field against its constraints.
func (c *Config) Validate() error {
	return ValidateStruct(c)
}

func findConfigFile() string {
	if p := os.Getenv(PathEnvVar); p != "" {
		return p
	}
	for _, p := range DefaultPaths {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}

// envTransform maps WAYFINDER_SEARCH__CACHE_TTL to search.cache_ttl.
// WAYFINDER_CONFIG names the file itself and is skipped.
func envTransform(key string) string {
	if key == PathEnvVar {
		return ""
	}
	key = strings.TrimPrefix(key, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(key), "__", ".")
}
