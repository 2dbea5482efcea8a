package genroute

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the static orchestration configuration: the model profiles, the
// fallback chain per task category, and the per-tier quota limits. Loaded
// once at process start and read-only afterwards.
type Config struct {
	// PolicyVersion names the current model-selection policy. It is mixed
	// into every cache fingerprint so that changing chains or profiles
	// naturally retires stale cache entries.
	PolicyVersion string `yaml:"policy_version"`

	// CacheTTLSeconds is the default lifetime of cache entries written by
	// the orchestrator. Zero means the built-in default of one hour.
	CacheTTLSeconds int `yaml:"cache_ttl_seconds"`

	Profiles []ModelProfile      `yaml:"profiles"`
	Chains   map[string][]string `yaml:"chains"`

	// Tiers maps a tier name to its daily allowance. Callers maps a caller
	// id to its tier; callers not listed fall back to DefaultTier.
	Tiers       map[string]TierLimits `yaml:"tiers"`
	Callers     map[string]string     `yaml:"callers"`
	DefaultTier string                `yaml:"default_tier"`
}

// ModelProfile identifies one (provider, model) pair together with its
// price table and capabilities. Immutable configuration.
type ModelProfile struct {
	ID              string   `yaml:"id"`
	Provider        string   `yaml:"provider"`
	Model           string   `yaml:"model"`
	PriceIn1K       float64  `yaml:"price_in_1k"`
	PriceOut1K      float64  `yaml:"price_out_1k"`
	MaxOutputTokens int      `yaml:"max_output_tokens"`
	Capabilities    []string `yaml:"capabilities"`
}

// Serves reports whether the profile's capability tags include the given
// task category.
func (p ModelProfile) Serves(category string) bool {
	for _, c := range p.Capabilities {
		if c == category {
			return true
		}
	}
	return false
}

// TierLimits is one tier's rolling daily allowance.
type TierLimits struct {
	DailyCalls int64   `yaml:"daily_calls"`
	DailyCost  float64 `yaml:"daily_cost"`
}

// TTL returns the configured cache lifetime, defaulting to one hour.
func (c Config) TTL() time.Duration {
	if c.CacheTTLSeconds <= 0 {
		return time.Hour
	}
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// LoadConfig reads and parses a YAML config file.
// Environment variables in the format ${VAR} are expanded before parsing.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("genroute: read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("genroute: parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks the config for required fields and consistency.
func (c Config) Validate() error {
	if c.PolicyVersion == "" {
		return fmt.Errorf("genroute: config: policy_version is required")
	}
	if len(c.Profiles) == 0 {
		return fmt.Errorf("genroute: config: at least one model profile is required")
	}

	ids := make(map[string]bool, len(c.Profiles))
	for i, p := range c.Profiles {
		if p.ID == "" {
			return fmt.Errorf("genroute: config: profile[%d]: id is required", i)
		}
		if ids[p.ID] {
			return fmt.Errorf("genroute: config: duplicate profile id %q", p.ID)
		}
		ids[p.ID] = true

		if p.Provider == "" {
			return fmt.Errorf("genroute: config: profile[%d] (%s): provider is required", i, p.ID)
		}
		if p.Model == "" {
			return fmt.Errorf("genroute: config: profile[%d] (%s): model is required", i, p.ID)
		}
		if p.PriceIn1K < 0 || p.PriceOut1K < 0 {
			return fmt.Errorf("genroute: config: profile[%d] (%s): prices must be non-negative", i, p.ID)
		}
		if p.MaxOutputTokens <= 0 {
			return fmt.Errorf("genroute: config: profile[%d] (%s): max_output_tokens must be positive", i, p.ID)
		}
	}

	if len(c.Chains) == 0 {
		return fmt.Errorf("genroute: config: at least one fallback chain is required")
	}
	for category, chain := range c.Chains {
		if len(chain) == 0 {
			return fmt.Errorf("genroute: config: chain %q must not be empty", category)
		}
		seen := make(map[string]bool, len(chain))
		for _, id := range chain {
			if !ids[id] {
				return fmt.Errorf("genroute: config: chain %q references unknown profile %q", category, id)
			}
			if seen[id] {
				return fmt.Errorf("genroute: config: chain %q lists profile %q twice", category, id)
			}
			seen[id] = true

			if p, ok := c.profileByID(id); ok && !p.Serves(category) {
				return fmt.Errorf("genroute: config: chain %q includes profile %q which does not serve that category", category, id)
			}
		}
	}

	for name, limits := range c.Tiers {
		if limits.DailyCalls < 0 || limits.DailyCost < 0 {
			return fmt.Errorf("genroute: config: tier %q: limits must be non-negative", name)
		}
	}
	if c.DefaultTier != "" {
		if _, ok := c.Tiers[c.DefaultTier]; !ok {
			return fmt.Errorf("genroute: config: default_tier %q is not a configured tier", c.DefaultTier)
		}
	}
	for caller, tier := range c.Callers {
		if _, ok := c.Tiers[tier]; !ok {
			return fmt.Errorf("genroute: config: caller %q references unknown tier %q", caller, tier)
		}
	}

	return nil
}

func (c Config) profileByID(id string) (ModelProfile, bool) {
	for _, p := range c.Profiles {
		if p.ID == id {
			return p, true
		}
	}
	return ModelProfile{}, false
}
