package narrow

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	DefaultDialogueTTL  = 30 * time.Minute
	DefaultMaxDialogues = 1024
)

// ErrDialogueNotFound is returned for unknown or expired dialogue ids.
var ErrDialogueNotFound = errors.New("dialogue not found")

type registryEntry struct {
	mu       sync.Mutex
	dialogue *Dialogue
}

// Registry keeps active dialogues by id. Entries expire after the TTL and the least
// recently used entry is evicted at capacity.
type Registry struct {
	cache *expirable.LRU[string, *registryEntry]
}

// NewRegistry creates a Registry.
func NewRegistry(maxDialogues int, ttl time.Duration) *Registry {
	if maxDialogues <= 0 {
		maxDialogues = DefaultMaxDialogues
	}
	if ttl <= 0 {
		ttl = DefaultDialogueTTL
	}
	return &Registry{cache: expirable.NewLRU[string, *registryEntry](maxDialogues, nil, ttl)}
}

// Add assigns d a new id and stores it.
func (r *Registry) Add(d *Dialogue) string {
	d.id = uuid.NewString()
	r.cache.Add(d.id, &registryEntry{dialogue: d})
	return d.id
}

// Do runs fn on the dialogue with the given id while holding that dialogue's lock.
func (r *Registry) Do(id string, fn func(*Dialogue) error) error {
	entry, ok := r.cache.Get(id)
	if !ok {
		return ErrDialogueNotFound
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return fn(entry.dialogue)
}

// Remove deletes a dialogue. It reports whether the id was present.
func (r *Registry) Remove(id string) bool {
	return r.cache.Remove(id)
}

// Len returns the number of live dialogues.
func (r *Registry) Len() int {
	return r.cache.Len()
}
