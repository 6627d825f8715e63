package app

import (
	"context"
	"sync"

	"github.com/dkeye/peercall/internal/core"
	"github.com/dkeye/peercall/internal/domain"
	"github.com/rs/zerolog/log"
)

type connEntry struct {
	Conn   core.SignalConnection
	Cancel context.CancelFunc
	// identities this connection has exchanged an invite with
	peers map[domain.Identity]struct{}
}

// Registry is the live identity -> connection table. Entries live exactly
// as long as the connection they describe.
type Registry struct {
	mu    sync.RWMutex
	conns map[domain.Identity]*connEntry
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[domain.Identity]*connEntry),
	}
}

func (r *Registry) Bind(id domain.Identity, conn core.SignalConnection, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[id] = &connEntry{
		Conn:   conn,
		Cancel: cancel,
		peers:  make(map[domain.Identity]struct{}),
	}
	log.Info().Str("module", "app.registry").Str("identity", string(id)).Msg("bound connection")
}

// Unbind removes id and returns the identities it was paired with.
func (r *Registry) Unbind(id domain.Identity) ([]domain.Identity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[id]
	if !ok {
		return nil, false
	}
	delete(r.conns, id)
	peers := make([]domain.Identity, 0, len(e.peers))
	for p := range e.peers {
		peers = append(peers, p)
		if other, ok := r.conns[p]; ok {
			delete(other.peers, id)
		}
	}
	log.Info().Str("module", "app.registry").Str("identity", string(id)).Int("peers", len(peers)).Msg("unbound connection")
	return peers, true
}

func (r *Registry) Get(id domain.Identity) (core.SignalConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.conns[id]; ok {
		return e.Conn, true
	}
	return nil, false
}

type regSnap struct {
	ID   domain.Identity
	Conn core.SignalConnection
}

// Others returns every live connection except id.
func (r *Registry) Others(id domain.Identity) []regSnap {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]regSnap, 0, len(r.conns))
	for other, e := range r.conns {
		if other == id {
			continue
		}
		out = append(out, regSnap{ID: other, Conn: e.Conn})
	}
	return out
}

// Pair records that a and b are negotiating a call. Both must be live.
func (r *Registry) Pair(a, b domain.Identity) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	ea, ok := r.conns[a]
	if !ok {
		return false
	}
	eb, ok := r.conns[b]
	if !ok {
		return false
	}
	ea.peers[b] = struct{}{}
	eb.peers[a] = struct{}{}
	return true
}

func (r *Registry) Unpair(a, b domain.Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.conns[a]; ok {
		delete(e.peers, b)
	}
	if e, ok := r.conns[b]; ok {
		delete(e.peers, a)
	}
}

func (r *Registry) PeersOf(id domain.Identity) []domain.Identity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[id]
	if !ok {
		return nil
	}
	out := make([]domain.Identity, 0, len(e.peers))
	for p := range e.peers {
		out = append(out, p)
	}
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Cancel stops the pumps of id's connection. The read pump then runs the
// normal disconnect path.
func (r *Registry) Cancel(id domain.Identity) bool {
	r.mu.RLock()
	e, ok := r.conns[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("identity", string(id)).Msg("canceled connection")
	return true
}
