package appctx

import (
	"sync"

	"github.com/roach88/derive/internal/observable"
)

// DefaultKey is the key a host registers its bundle under.
const DefaultKey = "__derive__"

// Provider is a keyed registry of bundles.
//
// It replaces ambient context lookup: the host provides a bundle once and
// consumers look it up explicitly. A lookup before the bundle was provided
// fails with a MISSING_SOURCE error and is not retried.
//
// Provider is safe for concurrent use.
type Provider struct {
	mu      sync.RWMutex
	bundles map[string]*Bundle
}

// NewProvider creates an empty registry.
func NewProvider() *Provider {
	return &Provider{bundles: make(map[string]*Bundle)}
}

// Provide registers b under key, replacing any earlier bundle.
// The bundle must be complete.
func (p *Provider) Provide(key string, b *Bundle) error {
	if err := b.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bundles[key] = b
	return nil
}

// Lookup returns the bundle registered under key.
func (p *Provider) Lookup(key string) (*Bundle, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	b, ok := p.bundles[key]
	if !ok {
		return nil, observable.NewMissingSourceError(key, "no bundle provided for key")
	}
	return b, nil
}
