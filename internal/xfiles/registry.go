package xfiles

import (
	"log"
	"sync"

	fluxerrors "github.com/fluxrag/fluxrag/internal/errors"
	"github.com/fluxrag/fluxrag/internal/result"
)

// Repository is the minimum contract a repository plugin implements
// (spec.md §3 "BaseRepository: Minimum CRUD + capabilities + native escape
// hatches"); only the surface the registry and validator need to see.
type Repository interface {
	ID() string
	Purpose() string
	Capabilities() Capabilities
}

// Registry is the repository plugin manager (xfiles.py's XFiles class):
// register, get-by-id, list-by-purpose.
type Registry struct {
	mu    sync.RWMutex
	byID  map[string]Repository
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byID: map[string]Repository{}}
}

// Register adds repo under its own id. Re-registering the same instance
// under a used id is a no-op that logs a warning and returns success
// (code=duplicate); registering a different instance under the same id
// fails with code=already_exists (spec.md §8 scenario 6, as adapted to the
// repository registry).
func (r *Registry) Register(repo Repository) result.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byID[repo.ID()]; ok {
		if existing == repo {
			log.Printf("xfiles: repository %q already registered, ignoring duplicate registration", repo.ID())
			return result.Success(&result.Detail{Code: result.CodeDuplicate, Message: "repository already registered"}, nil)
		}
		return result.FailCode(result.CodeAlreadyExists, "a different repository is already registered under id "+repo.ID())
	}
	r.byID[repo.ID()] = repo
	return result.Success(nil, nil)
}

// Get resolves a repository by id.
func (r *Registry) Get(id string) (Repository, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	repo, ok := r.byID[id]
	if !ok {
		return nil, fluxerrors.NewPluginNotFound(id)
	}
	return repo, nil
}

// ByPurpose returns every registered repository declaring purpose.
func (r *Registry) ByPurpose(purpose string) []Repository {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Repository
	for _, repo := range r.byID {
		if repo.Purpose() == purpose {
			out = append(out, repo)
		}
	}
	return out
}
