package adapters

import (
	"sort"
	"sync"

	"github.com/pratik-mahalle/complyflow/internal/domain/adapter"
	"github.com/pratik-mahalle/complyflow/internal/pkg/errors"
)

// Constructor builds an adapter from its configuration
type Constructor func(cfg adapter.Config, deps Deps) (adapter.Adapter, error)

// Implementation names
const (
	ImplGenericScanner   = "generic_scanner"
	ImplGenericSIEM      = "generic_siem"
	ImplGenericIdP       = "generic_idp"
	ImplGenericTicketing = "generic_ticketing"
	ImplAWS              = "aws"
	ImplGCP              = "gcp"
	ImplAzure            = "azure"
)

type kindEntry struct {
	defaultImpl string
	impls       map[string]Constructor
}

// Catalog is the closed table of adapter kinds and their implementations
type Catalog struct {
	mu    sync.RWMutex
	kinds map[adapter.Kind]*kindEntry
}

// NewCatalog returns a catalog holding every built-in implementation
func NewCatalog() *Catalog {
	c := &Catalog{kinds: make(map[adapter.Kind]*kindEntry)}
	c.Register(adapter.KindVulnerabilityScanner, ImplGenericScanner, newRESTAdapter(scannerProfile), true)
	c.Register(adapter.KindVulnerabilityScanner, ImplNVD, newNVDAdapter, false)
	c.Register(adapter.KindSIEM, ImplGenericSIEM, newRESTAdapter(siemProfile), true)
	c.Register(adapter.KindIdentityProvider, ImplGenericIdP, newRESTAdapter(identityProfile), true)
	c.Register(adapter.KindTicketing, ImplGenericTicketing, newRESTAdapter(ticketingProfile), true)
	c.Register(adapter.KindCloudProvider, ImplAWS, newAWSAdapter, true)
	c.Register(adapter.KindCloudProvider, ImplGCP, newGCPAdapter, false)
	c.Register(adapter.KindCloudProvider, ImplAzure, newAzureAdapter, false)
	return c
}

// Register binds an implementation to a kind. The first implementation of a
// kind, or one registered with asDefault, serves configs without an override.
func (c *Catalog) Register(kind adapter.Kind, impl string, ctor Constructor, asDefault bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.kinds[kind]
	if !ok {
		e = &kindEntry{impls: make(map[string]Constructor)}
		c.kinds[kind] = e
	}
	e.impls[impl] = ctor
	if asDefault || e.defaultImpl == "" {
		e.defaultImpl = impl
	}
}

// Resolve picks the constructor for a config: the metadata implementation
// override when present, the default of the kind otherwise.
func (c *Catalog) Resolve(cfg adapter.Config) (string, Constructor, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.kinds[cfg.Kind]
	if !ok {
		return "", nil, errors.UnknownAdapterKind(string(cfg.Kind), "")
	}
	impl := cfg.Implementation()
	if impl == "" {
		impl = e.defaultImpl
	}
	ctor, ok := e.impls[impl]
	if !ok {
		return "", nil, errors.UnknownAdapterKind(string(cfg.Kind), impl)
	}
	return impl, ctor, nil
}

// Build resolves and constructs an adapter
func (c *Catalog) Build(cfg adapter.Config, deps Deps) (adapter.Adapter, error) {
	_, ctor, err := c.Resolve(cfg)
	if err != nil {
		return nil, err
	}
	return ctor(cfg, deps)
}

// Implementations lists the implementations of a kind, default first
func (c *Catalog) Implementations(kind adapter.Kind) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.kinds[kind]
	if !ok {
		return nil
	}
	var rest []string
	for name := range e.impls {
		if name != e.defaultImpl {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append([]string{e.defaultImpl}, rest...)
}
