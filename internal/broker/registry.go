package broker

import (
	"sort"
	"sync"

	"github.com/Iron-Ham/lockstep/internal/errors"
	"github.com/Iron-Ham/lockstep/internal/signal"
)

// registry maps worker ids to the writer of their connection.
type registry struct {
	mu      sync.RWMutex
	entries map[signal.WorkerID]*signal.Writer
}

func newRegistry() *registry {
	return &registry{entries: make(map[signal.WorkerID]*signal.Writer)}
}

// register claims id for w. It fails if the id is already held.
func (r *registry) register(id signal.WorkerID, w *signal.Writer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[id]; ok {
		return errors.NewRegistryError("register connection", errors.ErrAlreadyRegistered).WithWorkerID(int(id))
	}
	r.entries[id] = w
	return nil
}

// unregister releases id only if it is still held by w, so a late close of a
// rejected duplicate never evicts the legitimate holder.
func (r *registry) unregister(id signal.WorkerID, w *signal.Writer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.entries[id] == w {
		delete(r.entries, id)
	}
}

func (r *registry) lookup(id signal.WorkerID) (*signal.Writer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	w, ok := r.entries[id]
	if !ok {
		return nil, errors.NewRegistryError("lookup connection", errors.ErrNotRegistered).WithWorkerID(int(id))
	}
	return w, nil
}

func (r *registry) ids() []signal.WorkerID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]signal.WorkerID, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
