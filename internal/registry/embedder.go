// Package registry is the embedder registry (spec.md §1 supplemented
// feature), grounded directly on
// original_source/src/rag2f/core/optimus_prime/optimus_prime.py: a thin,
// per-core-instance map from id to Embedder with an idempotent-registration
// policy and a configuration-driven default lookup.
package registry

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"

	fluxerrors "github.com/fluxrag/fluxrag/internal/errors"
)

// Vector is an embedding result, matching
// original_source/src/rag2f/core/protocols/embedder.py's `Vector = list[float]`.
type Vector []float64

// Embedder is the structural contract embedding providers implement
// (protocols/embedder.py's `Embedder` protocol).
type Embedder interface {
	Size() int
	GetEmbedding(text string, normalize bool) (Vector, error)
}

// DefaultSource resolves the configured default embedder id; satisfied by
// *spock.Config without importing it here (avoids a dependency cycle since
// spock is the ambient config layer every package may consume, not the
// reverse).
type DefaultSource interface {
	EmbedderDefault() string
}

// EmbedderRegistry manages the embedder registry for one core instance
// (OptimusPrime's role: "Each RAG2F instance has its own OptimusPrime
// instance to maintain isolated embedder registry state").
type EmbedderRegistry struct {
	mu       sync.RWMutex
	byKey    map[string]Embedder
	defaults DefaultSource
}

// NewEmbedderRegistry returns an empty registry. defaults may be nil, in
// which case GetDefault only succeeds when exactly one embedder is
// registered.
func NewEmbedderRegistry(defaults DefaultSource) *EmbedderRegistry {
	return &EmbedderRegistry{byKey: map[string]Embedder{}, defaults: defaults}
}

// Register adds embedder under key. Re-registering the same instance under
// the same key is a no-op that logs a warning ("override policy: do not
// allow overriding existing embedders; idempotency: allow registering the
// same instance twice"); a different instance under a used key fails.
func (r *EmbedderRegistry) Register(key string, embedder Embedder) error {
	if strings.TrimSpace(key) == "" {
		return fluxerrors.NewInvalidShape("key", "embedder key must not be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byKey[key]; ok {
		if existing == embedder {
			log.Printf("registry: embedder %q already registered with the same instance; skipping", key)
			return nil
		}
		return fluxerrors.NewInvalidShape("key", fmt.Sprintf("override not allowed for already registered embedder %q", key))
	}
	r.byKey[key] = embedder
	return nil
}

// Get returns the embedder registered under key, or nil if absent.
func (r *EmbedderRegistry) Get(key string) Embedder {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byKey[key]
}

// Has reports whether key is registered.
func (r *EmbedderRegistry) Has(key string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byKey[key]
	return ok
}

// ListKeys returns every registered key.
func (r *EmbedderRegistry) ListKeys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.byKey))
	for k := range r.byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Unregister removes key, reporting whether it was present.
func (r *EmbedderRegistry) Unregister(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byKey[key]; !ok {
		return false
	}
	delete(r.byKey, key)
	return true
}

// GetDefault resolves the default embedder the way get_default does: error
// if empty, fall back to the only entry with a warning if the configured
// default doesn't match, require an explicit configured default once more
// than one embedder is registered.
func (r *EmbedderRegistry) GetDefault() (Embedder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.byKey) == 0 {
		return nil, fluxerrors.NewPluginNotFound("<no embedders registered>")
	}

	normalized := r.resolveDefaultKey()

	if len(r.byKey) == 1 {
		for key, embedder := range r.byKey {
			if normalized != "" && normalized != key {
				log.Printf("registry: configured default embedder %q not found; using only registered embedder %q instead", normalized, key)
			}
			return embedder, nil
		}
	}

	if normalized == "" {
		return nil, fluxerrors.NewInvalidShape("embedder_default", "multiple embedders registered but no default configured")
	}

	embedder, ok := r.byKey[normalized]
	if !ok {
		return nil, fluxerrors.NewPluginNotFound(normalized)
	}
	return embedder, nil
}

func (r *EmbedderRegistry) resolveDefaultKey() string {
	if r.defaults == nil {
		return ""
	}
	return strings.TrimSpace(r.defaults.EmbedderDefault())
}
