package genroute

import "fmt"

// boundProfile pairs a model profile with the adapter that serves its
// provider. Chains are bound once at construction so Generate never
// consults the adapter map at request time.
type boundProfile struct {
	Profile ModelProfile
	Adapter ProviderAdapter
}

// buildChains resolves every configured chain into ordered bound profiles.
// Order is taken verbatim from the config; it is never re-sorted.
func buildChains(cfg Config, adapters map[string]ProviderAdapter) (map[string][]boundProfile, error) {
	if len(adapters) == 0 {
		return nil, ErrNoAdapters
	}

	chains := make(map[string][]boundProfile, len(cfg.Chains))
	for category, ids := range cfg.Chains {
		bound := make([]boundProfile, 0, len(ids))
		for _, id := range ids {
			profile, ok := cfg.profileByID(id)
			if !ok {
				return nil, fmt.Errorf("genroute: chain %q references unknown profile %q", category, id)
			}
			adapter, ok := adapters[profile.Provider]
			if !ok {
				return nil, fmt.Errorf("genroute: chain %q profile %q needs provider %q: no adapter registered", category, id, profile.Provider)
			}
			bound = append(bound, boundProfile{Profile: profile, Adapter: adapter})
		}
		chains[category] = bound
	}
	return chains, nil
}
