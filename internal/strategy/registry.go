package strategy

import (
	"sort"

	"github.com/JezreelBuenconsejo/web-scraper/internal/scrape"
)

// Registry routes a job type to exactly one registered strategy.
type Registry struct {
	byType map[string]scrape.Strategy
}

// NewRegistry builds a Registry from the provided strategies. Later
// registrations with a duplicate source replace earlier ones.
func NewRegistry(strategies ...scrape.Strategy) *Registry {
	byType := make(map[string]scrape.Strategy, len(strategies))
	for _, s := range strategies {
		byType[s.Source()] = s
	}
	return &Registry{byType: byType}
}

// Lookup returns the strategy for a job type, or an UnknownJobTypeError.
func (r *Registry) Lookup(jobType string) (scrape.Strategy, error) {
	s, ok := r.byType[jobType]
	if !ok {
		return nil, &scrape.UnknownJobTypeError{Type: jobType}
	}
	return s, nil
}

// Types lists the registered job types in stable order.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.byType))
	for t := range r.byType {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
