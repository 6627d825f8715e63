package call

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dkeye/peercall/internal/domain"
	"github.com/pion/webrtc/v4"
)

var errEmptySDP = errors.New("session description without sdp")

func (c *Controller) run(ctx context.Context) {
	envs := c.ch.Envelopes()
	for {
		select {
		case <-ctx.Done():
			c.Close()
			return
		case env, ok := <-envs:
			if !ok {
				c.relayLost()
				return
			}
			c.handle(ctx, env)
		}
	}
}

func (c *Controller) handle(ctx context.Context, env domain.Envelope) {
	switch env.Type {
	case domain.TypeAssigned:
		c.onAssigned(env.Identity)
	case domain.TypeIncoming:
		c.onIncoming(ctx, env)
	case domain.TypeAccepted:
		c.onAccepted(env)
	case domain.TypeEnded:
		c.onEnded(env)
	case domain.TypePong:
	default:
		c.logger.Debug().Str("type", string(env.Type)).Msg("unhandled envelope")
	}
}

func (c *Controller) onAssigned(id domain.Identity) {
	c.mu.Lock()
	c.local = id
	c.mu.Unlock()
	c.logger.Info().Str("identity", string(id)).Msg("identity assigned")
	c.readyOnce.Do(func() { close(c.ready) })
}

func (c *Controller) onIncoming(ctx context.Context, env domain.Envelope) {
	caller := env.Caller
	if caller == "" {
		c.logger.Warn().Msg("incoming call without caller")
		return
	}

	c.mu.Lock()
	if c.stream == nil || c.stream.IsReleased() {
		c.mu.Unlock()
		c.logger.Warn().Str("caller", string(caller)).Msg("incoming call rejected: stream not available")
		c.reject(caller)
		return
	}
	next, err := transition(c.phase, evInvited)
	if err != nil {
		phase := c.phase
		c.mu.Unlock()
		c.logger.Info().Str("caller", string(caller)).Str("phase", phase.String()).Msg("busy, rejecting incoming call")
		c.reject(caller)
		return
	}
	c.phase = next
	c.remote = caller
	c.pendingOffer = env.Offer
	c.gen++
	cb, mode := c.onIncomingCall, c.answerMode
	c.mu.Unlock()

	c.logger.Info().Str("caller", string(caller)).Msg("incoming call")
	if cb != nil {
		cb(caller)
	}
	if mode == AnswerAuto {
		if err := c.Accept(ctx); err != nil {
			c.logger.Error().Err(err).Str("caller", string(caller)).Msg("auto accept")
		}
	}
}

func (c *Controller) reject(caller domain.Identity) {
	if err := c.ch.Send(domain.Terminate(caller)); err != nil {
		c.logger.Warn().Err(err).Str("caller", string(caller)).Msg("reject not sent")
	}
}

func (c *Controller) onAccepted(env domain.Envelope) {
	c.mu.Lock()
	if c.phase != Inviting || c.peer == nil || (env.From != "" && env.From != c.remote) {
		phase := c.phase
		c.mu.Unlock()
		c.logger.Debug().Str("from", string(env.From)).Str("phase", phase.String()).Msg("ignoring accepted")
		return
	}
	gen, peer, remote := c.gen, c.peer, c.remote
	c.mu.Unlock()

	answer, err := decodeDescription(env.Answer, webrtc.SDPTypeAnswer)
	if err == nil {
		err = peer.ApplyAnswer(answer)
	}
	if err != nil {
		c.logger.Error().Err(err).Str("remote", string(remote)).Msg("apply answer")
		c.endSession(gen, ReasonFailure, true)
		return
	}

	c.mu.Lock()
	if c.gen != gen || c.phase != Inviting {
		c.mu.Unlock()
		return
	}
	c.phase, _ = transition(c.phase, evAnswered)
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	cb := c.onCallAccepted
	c.mu.Unlock()

	c.logger.Info().Str("remote", string(remote)).Msg("call answered")
	if cb != nil {
		cb(remote)
	}
}

// onEnded only ends the call when the message comes from the current remote.
// Relays that broadcast disconnects send it without regard to pairing.
func (c *Controller) onEnded(env domain.Envelope) {
	c.mu.Lock()
	if c.phase == Idle || (env.From != "" && env.From != c.remote) {
		c.mu.Unlock()
		return
	}
	gen := c.gen
	c.mu.Unlock()
	c.endSession(gen, ReasonRemote, false)
}

func (c *Controller) relayLost() {
	c.logger.Warn().Msg("relay connection lost")
	c.mu.Lock()
	gen, phase := c.gen, c.phase
	c.mu.Unlock()
	if phase != Idle {
		c.endSession(gen, ReasonRelayLost, false)
	}
}

func decodeDescription(raw json.RawMessage, want webrtc.SDPType) (webrtc.SessionDescription, error) {
	var d domain.SessionDescription
	if err := json.Unmarshal(raw, &d); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("decode %s: %w", want, err)
	}
	if d.SDP == "" {
		return webrtc.SessionDescription{}, errEmptySDP
	}
	typ := webrtc.NewSDPType(d.Type)
	if d.Type == "" {
		typ = want
	}
	if typ != want {
		return webrtc.SessionDescription{}, fmt.Errorf("expected %s, got %q", want, d.Type)
	}
	return webrtc.SessionDescription{Type: typ, SDP: d.SDP}, nil
}

func encodeDescription(desc *webrtc.SessionDescription) (json.RawMessage, error) {
	if desc == nil {
		return nil, errEmptySDP
	}
	return json.Marshal(domain.SessionDescription{Type: desc.Type.String(), SDP: desc.SDP})
}
