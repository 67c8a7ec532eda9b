package specialist

import (
	"fmt"
	"slices"
	"strings"

	"github.com/structa/switchboard/internal/qa"
)

// Registry maps stable domain keys to specialist agents. New domains
// register without the router changing; routing is a pure function of the
// classification and the registered key set.
type Registry struct {
	agents     map[string]Agent
	byProduct  map[string]string
	defaultKey string
}

// NewRegistry creates an empty registry whose Route falls back to
// defaultKey when no product was detected.
func NewRegistry(defaultKey string) *Registry {
	return &Registry{
		agents:     make(map[string]Agent),
		byProduct:  make(map[string]string),
		defaultKey: defaultKey,
	}
}

// Register adds an agent under key, optionally bound to a product name for
// routing. Registering an existing key replaces it.
func (r *Registry) Register(key, product string, agent Agent) {
	r.agents[key] = agent
	if product != "" {
		r.byProduct[strings.ToLower(product)] = key
	}
}

// Lookup returns the agent registered under key.
func (r *Registry) Lookup(key string) (Agent, error) {
	a, ok := r.agents[key]
	if !ok {
		return nil, fmt.Errorf("no specialist registered for %q", key)
	}
	return a, nil
}

// Route deterministically selects the specialists for a classification:
// one per detected product, the default specialist when no product was
// detected, and never duplicates. The returned keys are sorted so fan-out
// order is stable.
func (r *Registry) Route(c qa.Classification) []string {
	var keys []string
	for _, product := range c.Products {
		if key, ok := r.byProduct[strings.ToLower(product)]; ok {
			keys = append(keys, key)
		}
	}

	if len(keys) == 0 {
		return []string{r.defaultKey}
	}

	slices.Sort(keys)
	return slices.Compact(keys)
}
