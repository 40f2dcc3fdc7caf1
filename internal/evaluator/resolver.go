package evaluator

import (
	"fmt"
	"strings"

	"price-feed-observer/internal/checks"
)

// Resolver merges the global per-check-type configuration with the
// optional per-symbol override. Lookups are case-insensitive because
// the configuration layer lowercases nested keys.
type Resolver struct {
	global    map[string]checks.Config
	overrides map[string]map[string]checks.Config
}

// NewResolver builds a resolver from the raw `checks` configuration
// tree: `global.<CheckType>.{...}` plus `<symbol>.<CheckType>.{...}`.
func NewResolver(raw map[string]any) (*Resolver, error) {
	r := &Resolver{
		global:    make(map[string]checks.Config),
		overrides: make(map[string]map[string]checks.Config),
	}

	for key, value := range raw {
		tree, ok := value.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("checks.%s: expected a mapping, got %T", key, value)
		}

		entries := make(map[string]checks.Config, len(tree))
		for name, body := range tree {
			entry, ok := body.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("checks.%s.%s: expected a mapping, got %T", key, name, body)
			}
			entries[strings.ToLower(name)] = checks.Config(entry)
		}

		if strings.EqualFold(key, "global") {
			r.global = entries
		} else {
			r.overrides[strings.ToLower(key)] = entries
		}
	}

	return r, nil
}

// Resolve returns the merged configuration for a check type and
// symbol. The per-symbol entry is merged shallowly over the global one.
func (r *Resolver) Resolve(checkName, symbol string) (checks.Config, bool) {
	base, ok := r.global[strings.ToLower(checkName)]
	if !ok {
		return nil, false
	}

	merged := make(checks.Config, len(base))
	for k, v := range base {
		merged[k] = v
	}

	if override, ok := r.overrides[strings.ToLower(symbol)]; ok {
		if entry, ok := override[strings.ToLower(checkName)]; ok {
			for k, v := range entry {
				merged[k] = v
			}
		}
	}

	return merged, true
}

// Validate confirms that every enabled check type carries the threshold
// keys it needs. Called once at startup; a violation is fatal there
// rather than on every cycle.
func (r *Resolver) Validate() error {
	names := make([]string, 0, len(checks.PriceFeedChecks)+len(checks.PublisherChecks))
	for _, entry := range checks.PriceFeedChecks {
		names = append(names, entry.Name)
	}
	for _, entry := range checks.PublisherChecks {
		names = append(names, entry.Name)
	}

	for _, name := range names {
		cfg, ok := r.global[strings.ToLower(name)]
		if !ok {
			return fmt.Errorf("checks.global.%s: missing configuration entry", name)
		}
		if !cfg.Enabled() {
			continue
		}
		for _, key := range checks.RequiredKeys[name] {
			if !cfg.Has(key) {
				return fmt.Errorf("checks.global.%s: missing required key %q", name, key)
			}
		}
	}

	return nil
}
