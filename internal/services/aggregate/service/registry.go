package service

import (
	archdom "statskeep/internal/services/archive/domain"
)

// Registry maps plugin names to their aggregation entry points
type Registry struct {
	core  archdom.Aggregator
	extra map[string]archdom.Aggregator
}

// NewRegistry builds the bundled plugin set for one aggregate service
func NewRegistry(s *Svc) *Registry {
	return &Registry{
		core: visitsSummary{src: s.Totals()},
		extra: map[string]archdom.Aggregator{
			referrersPlugin: referrers{repo: s.Repo},
		},
	}
}

// For returns the aggregators to run for the requested plugin set.
// The core aggregator always runs first so every archive carries its
// visit counters; unknown plugin names are skipped
func (r *Registry) For(plugins []string) []archdom.Aggregator {
	out := []archdom.Aggregator{r.core}
	seen := map[string]bool{r.core.Plugin(): true}
	for _, p := range plugins {
		if seen[p] {
			continue
		}
		seen[p] = true
		if agg, ok := r.extra[p]; ok {
			out = append(out, agg)
		}
	}
	return out
}
