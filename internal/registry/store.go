package registry

import (
	"sort"
	"sync"

	"github.com/pratik-mahalle/complyflow/internal/adapters"
	"github.com/pratik-mahalle/complyflow/internal/domain/adapter"
	"github.com/pratik-mahalle/complyflow/internal/pkg/logger"
)

// Store holds one registry per tenant. Lookups are read-mostly; creation
// and removal of a tenant entry take the write lock.
type Store struct {
	configs adapter.ConfigRepository
	catalog *adapters.Catalog
	deps    adapters.Deps
	opts    Options
	log     *logger.Logger

	mu         sync.RWMutex
	registries map[string]*Registry
}

// NewStore creates an empty registry store
func NewStore(configs adapter.ConfigRepository, catalog *adapters.Catalog, deps adapters.Deps, opts Options, log *logger.Logger) *Store {
	if catalog == nil {
		catalog = adapters.NewCatalog()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Store{
		configs:    configs,
		catalog:    catalog,
		deps:       deps,
		opts:       opts,
		log:        log,
		registries: make(map[string]*Registry),
	}
}

// GetOrCreate returns the registry of a tenant, creating an uninitialized one
func (s *Store) GetOrCreate(tenantID string) *Registry {
	s.mu.RLock()
	r, ok := s.registries[tenantID]
	s.mu.RUnlock()
	if ok {
		return r
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.registries[tenantID]; ok {
		return r
	}
	r = New(tenantID, s.configs, s.catalog, s.deps, s.opts, s.log)
	s.registries[tenantID] = r
	return r
}

// Get returns the registry of a tenant if one exists
func (s *Store) Get(tenantID string) (*Registry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.registries[tenantID]
	return r, ok
}

// Clear drops the registry of a tenant; the next GetOrCreate starts fresh
func (s *Store) Clear(tenantID string) bool {
	s.mu.Lock()
	r, ok := s.registries[tenantID]
	delete(s.registries, tenantID)
	s.mu.Unlock()
	if ok {
		r.Close()
	}
	return ok
}

// ClearAll drops every registry
func (s *Store) ClearAll() {
	s.mu.Lock()
	old := s.registries
	s.registries = make(map[string]*Registry)
	s.mu.Unlock()
	for _, r := range old {
		r.Close()
	}
}

// Tenants lists tenants with a registry, sorted
func (s *Store) Tenants() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.registries))
	for id := range s.registries {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
