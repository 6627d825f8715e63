// Package relay routes signaling envelopes between live connections.
//
// The relay keeps no call state of its own beyond the identity table held
// by app.Registry. Envelopes addressed to an identity that is not live are
// dropped without telling the sender.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dkeye/peercall/internal/app"
	"github.com/dkeye/peercall/internal/core"
	"github.com/dkeye/peercall/internal/domain"
	"github.com/rs/zerolog/log"
)

// Scope selects who hears about a disconnect.
type Scope int

const (
	// ScopeBroadcast notifies every other live connection.
	ScopeBroadcast Scope = iota
	// ScopePaired notifies only identities that exchanged an invite with
	// the disconnecting one.
	ScopePaired
)

func ParseScope(s string) (Scope, error) {
	switch s {
	case "", "broadcast":
		return ScopeBroadcast, nil
	case "paired":
		return ScopePaired, nil
	}
	return ScopeBroadcast, fmt.Errorf("unknown disconnect scope %q", s)
}

type Relay struct {
	Registry *app.Registry
	Policy   app.Policy
	Limiter  *app.RateLimiter
	Scope    Scope
}

// Connect assigns a fresh identity to conn and tells conn (and only conn)
// about it.
func (r *Relay) Connect(conn core.SignalConnection, cancel context.CancelFunc) domain.Identity {
	id := domain.NewIdentity()
	// assigned is queued before the connection becomes reachable, so it is
	// always the first frame.
	r.send(id, conn, domain.Assigned(id))
	r.Registry.Bind(id, conn, cancel)
	log.Info().Str("module", "relay").Str("identity", string(id)).Msg("connected")
	return id
}

// Handle dispatches one envelope received from the connection of from.
func (r *Relay) Handle(from domain.Identity, env domain.Envelope) {
	switch env.Type {
	case domain.TypeInvite:
		r.Invite(from, env)
	case domain.TypeAccept:
		r.Accept(from, env)
	case domain.TypeTerminate:
		r.Terminate(from, env)
	default:
		log.Warn().Str("module", "relay").Str("identity", string(from)).Str("type", string(env.Type)).Msg("unknown envelope")
	}
}

// Disconnect forgets id and notifies the other connections that it left.
// Calling it twice for the same identity is a no-op.
func (r *Relay) Disconnect(id domain.Identity) {
	peers, ok := r.Registry.Unbind(id)
	if !ok {
		return
	}
	r.Limiter.Forget(id)

	notice := domain.Ended(id)
	switch r.Scope {
	case ScopePaired:
		for _, p := range peers {
			r.deliver(p, notice)
		}
	default:
		for _, snap := range r.Registry.Others(id) {
			r.send(snap.ID, snap.Conn, notice)
		}
	}
	log.Info().Str("module", "relay").Str("identity", string(id)).Msg("disconnected")
}

// deliver sends env to id if it is live. It reports whether the envelope
// was queued.
func (r *Relay) deliver(id domain.Identity, env domain.Envelope) bool {
	if _, err := domain.ParseIdentity(string(id)); err != nil {
		log.Debug().Err(err).Str("module", "relay").Str("type", string(env.Type)).Msg("bad target, dropped")
		return false
	}
	conn, ok := r.Registry.Get(id)
	if !ok {
		log.Debug().Str("module", "relay").Str("target", string(id)).Str("type", string(env.Type)).Msg("target not live, dropped")
		return false
	}
	return r.send(id, conn, env)
}

func (r *Relay) send(id domain.Identity, conn core.SignalConnection, env domain.Envelope) bool {
	b, err := json.Marshal(env)
	if err != nil {
		log.Error().Err(err).Str("module", "relay").Msg("marshal envelope")
		return false
	}
	err = conn.TrySend(b)
	if err == nil {
		return true
	}
	log.Warn().Err(err).Str("module", "relay").Str("target", string(id)).Str("type", string(env.Type)).Msg("send failed")
	if errors.Is(err, core.ErrBackpressure) && r.Policy != nil {
		if r.Policy.OnBackpressure(id) == app.DisconnectPeer {
			r.Registry.Cancel(id)
		}
	}
	return false
}
