// Package presence is the single source of truth for which logical users
// are currently reachable and through which connection.
package presence

import (
	"sort"
	"sync"
	"time"
)

type Entry struct {
	Identity string
	Handle   string
	JoinedAt time.Time
}

// Registry is a bidirectional identity<->handle map. Both directions are
// mutated under one mutex so they can never disagree. A later Join for the
// same identity supersedes the earlier handle (reconnect replaces a stale
// session); a Leave only takes effect while its handle is still canonical.
type Registry struct {
	mu         sync.Mutex
	byIdentity map[string]Entry
	byHandle   map[string]string
}

func New() *Registry {
	return &Registry{
		byIdentity: make(map[string]Entry),
		byHandle:   make(map[string]string),
	}
}

// Join registers handle as the canonical connection for identity,
// atomically displacing any previous handle. The displaced connection is
// not closed here; it simply stops receiving routed traffic.
func (r *Registry) Join(identity, handle string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.byIdentity[identity]; ok && prev.Handle != handle {
		delete(r.byHandle, prev.Handle)
	}
	r.byIdentity[identity] = Entry{Identity: identity, Handle: handle, JoinedAt: time.Now()}
	r.byHandle[handle] = identity
}

// Leave removes the handle's entry if and only if it is still the
// registered handle for its identity, and returns the identity it freed.
// A stale disconnect racing a rejoin finds its reverse entry already
// gone and is a no-op.
func (r *Registry) Leave(handle string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	identity, ok := r.byHandle[handle]
	if !ok {
		return "", false
	}
	delete(r.byHandle, handle)
	if cur, ok := r.byIdentity[identity]; ok && cur.Handle == handle {
		delete(r.byIdentity, identity)
		return identity, true
	}
	return "", false
}

// Resolve returns the live handle for an identity, if any.
func (r *Registry) Resolve(identity string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byIdentity[identity]
	return e.Handle, ok
}

// Snapshot returns the online identities, sorted, for presence broadcasts.
// Handles are deliberately not included; they mean nothing to clients.
func (r *Registry) Snapshot() []string {
	r.mu.Lock()
	ids := make([]string, 0, len(r.byIdentity))
	for id := range r.byIdentity {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	sort.Strings(ids)
	return ids
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byIdentity)
}
