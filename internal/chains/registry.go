// internal/chains/registry.go
package chains

import (
	"fmt"
	"sort"
	"sync"

	"crypto-collector/internal/domain"
)

// Registry maps each enabled chain to its address deriver
type Registry struct {
	derivers map[domain.Chain]domain.ChainDeriver
	mu       sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{
		derivers: make(map[domain.Chain]domain.ChainDeriver),
	}
}

// Register adds a deriver, replacing any previous one for the same chain
func (r *Registry) Register(deriver domain.ChainDeriver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.derivers[deriver.Chain()] = deriver
}

// Get retrieves the deriver of a chain
func (r *Registry) Get(chain domain.Chain) (domain.ChainDeriver, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	deriver, ok := r.derivers[chain]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedChain, chain)
	}

	return deriver, nil
}

// Derive is a convenience for Get(chain).Derive(index)
func (r *Registry) Derive(chain domain.Chain, index uint32) (*domain.DerivedAccount, error) {
	deriver, err := r.Get(chain)
	if err != nil {
		return nil, err
	}
	return deriver.Derive(index)
}

// List returns registered chains in display order
func (r *Registry) List() []domain.Chain {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order := make(map[domain.Chain]int, len(domain.AllChains))
	for i, c := range domain.AllChains {
		order[c] = i
	}

	chains := make([]domain.Chain, 0, len(r.derivers))
	for chain := range r.derivers {
		chains = append(chains, chain)
	}
	sort.Slice(chains, func(i, j int) bool { return order[chains[i]] < order[chains[j]] })

	return chains
}
