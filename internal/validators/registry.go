package validators

import (
	"context"
	"fmt"
	"strings"

	"lecca.io/oasys-watchtower/internal/config"
	"lecca.io/oasys-watchtower/internal/logger"
)

// Lister discovers validators on chain.
type Lister interface {
	ListValidators(ctx context.Context) ([]Address, error)
}

// Registry yields the validator set for a cycle: the configured list when
// present, otherwise whatever the staking contract reports.
type Registry struct {
	configured []string
	lister     Lister
}

func NewRegistry(cfg config.ChainConfig, lister Lister) *Registry {
	return &Registry{
		configured: cfg.Validators,
		lister:     lister,
	}
}

// Addresses parses and de-duplicates the configured list. Any malformed entry
// is a configuration error and fails the whole call.
func (r *Registry) Addresses(ctx context.Context) ([]Address, error) {
	if len(r.configured) > 0 {
		return parseConfigured(r.configured)
	}

	if r.lister == nil {
		return nil, config.ErrNoValidators
	}

	logger.Warn("REGISTRY", "No validators configured, falling back to contract list lookup")
	addrs, err := r.lister.ListValidators(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrNoValidators, err)
	}
	return dedupe(addrs), nil
}

func parseConfigured(raw []string) ([]Address, error) {
	var (
		out     []Address
		invalid []string
	)
	for _, s := range raw {
		a, err := ParseAddress(s)
		if err != nil {
			invalid = append(invalid, s)
			continue
		}
		out = append(out, a)
	}
	if len(invalid) > 0 {
		return nil, fmt.Errorf("invalid validator addresses in config: %s", strings.Join(invalid, ", "))
	}
	return dedupe(out), nil
}

func dedupe(addrs []Address) []Address {
	seen := make(map[Address]bool, len(addrs))
	out := make([]Address, 0, len(addrs))
	for _, a := range addrs {
		if seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	return out
}
