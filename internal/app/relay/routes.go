package relay

import (
	"github.com/dkeye/peercall/internal/domain"
	"github.com/rs/zerolog/log"
)

// Invite forwards the offer and caller identity to the callee unchanged.
// A missing caller is filled in with the sender's identity.
func (r *Relay) Invite(from domain.Identity, env domain.Envelope) {
	if !r.Limiter.Allow(from) {
		log.Warn().Str("module", "relay").Str("identity", string(from)).Msg("invite rate limited, dropped")
		return
	}
	caller := env.Caller
	if caller == "" {
		caller = from
	}
	if r.deliver(env.Callee, domain.Incoming(caller, env.Offer)) {
		r.Registry.Pair(from, env.Callee)
		log.Info().Str("module", "relay").Str("from", string(from)).Str("callee", string(env.Callee)).Msg("invite forwarded")
	}
}

func (r *Relay) Accept(from domain.Identity, env domain.Envelope) {
	if r.deliver(env.Target, domain.Accepted(from, env.Answer)) {
		r.Registry.Pair(from, env.Target)
		log.Info().Str("module", "relay").Str("from", string(from)).Str("target", string(env.Target)).Msg("accept forwarded")
	}
}

func (r *Relay) Terminate(from domain.Identity, env domain.Envelope) {
	r.Registry.Unpair(from, env.Target)
	if r.deliver(env.Target, domain.Ended(from)) {
		log.Info().Str("module", "relay").Str("from", string(from)).Str("target", string(env.Target)).Msg("terminate forwarded")
	}
}
