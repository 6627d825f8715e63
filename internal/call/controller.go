// Package call drives one side of a 1:1 call: it owns the local media, the
// peer connection and the phase of the call, and talks to the relay
// through an injected Channel.
package call

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/peercall/internal/core"
	"github.com/dkeye/peercall/internal/domain"
	"github.com/dkeye/peercall/internal/media"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrNoMedia   = errors.New("local media not available")
	ErrNoRemote  = errors.New("remote identity required")
	ErrCallEnded = errors.New("call ended during negotiation")
)

// Channel is the signaling connection to the relay.
type Channel interface {
	Send(domain.Envelope) error
	// Envelopes is closed when the relay connection ends.
	Envelopes() <-chan domain.Envelope
}

// PeerFactory creates the peer connection for a call with remote.
type PeerFactory func(remote domain.Identity) (core.MediaConnection, error)

type Config struct {
	Channel Channel
	Devices media.Devices
	NewPeer PeerFactory

	AnswerMode AnswerMode
	// InviteTimeout ends an unanswered invite. Zero waits forever.
	InviteTimeout time.Duration
}

type Controller struct {
	ch            Channel
	devices       media.Devices
	newPeer       PeerFactory
	answerMode    AnswerMode
	inviteTimeout time.Duration
	logger        zerolog.Logger

	ready     chan struct{}
	readyOnce sync.Once

	mu           sync.Mutex
	local        domain.Identity
	remote       domain.Identity
	phase        Phase
	gen          uint64
	stream       *media.LocalStream
	peer         core.MediaConnection
	pendingOffer []byte
	timer        *time.Timer
	closed       bool

	onIncomingCall func(caller domain.Identity)
	onCallAccepted func(remote domain.Identity)
	onCallEnded    func(remote domain.Identity, reason EndReason)
	onRemoteTrack  func(remote domain.Identity, track *webrtc.TrackRemote)
	onMediaError   func(err error)
}

func New(cfg Config) *Controller {
	return &Controller{
		ch:            cfg.Channel,
		devices:       cfg.Devices,
		newPeer:       cfg.NewPeer,
		answerMode:    cfg.AnswerMode,
		inviteTimeout: cfg.InviteTimeout,
		logger:        log.With().Str("module", "call").Logger(),
		ready:         make(chan struct{}),
	}
}

// OnIncomingCall is invoked with the caller's identity when an invite arrives.
func (c *Controller) OnIncomingCall(fn func(caller domain.Identity)) {
	c.mu.Lock()
	c.onIncomingCall = fn
	c.mu.Unlock()
}

// OnCallAccepted is invoked when the call becomes Active: on the calling
// side when the answer arrives, on the called side once Accept succeeds.
func (c *Controller) OnCallAccepted(fn func(remote domain.Identity)) {
	c.mu.Lock()
	c.onCallAccepted = fn
	c.mu.Unlock()
}

// OnCallEnded is invoked on every termination, local or remote.
func (c *Controller) OnCallEnded(fn func(remote domain.Identity, reason EndReason)) {
	c.mu.Lock()
	c.onCallEnded = fn
	c.mu.Unlock()
}

func (c *Controller) OnRemoteTrack(fn func(remote domain.Identity, track *webrtc.TrackRemote)) {
	c.mu.Lock()
	c.onRemoteTrack = fn
	c.mu.Unlock()
}

// OnMediaError reports a failed media acquisition to the user.
func (c *Controller) OnMediaError(fn func(err error)) {
	c.mu.Lock()
	c.onMediaError = fn
	c.mu.Unlock()
}

// Start begins consuming relay envelopes and acquires local media. A media
// failure is reported through OnMediaError and returned; the controller
// keeps running in Idle and does not retry.
func (c *Controller) Start(ctx context.Context) error {
	go c.run(ctx)
	return c.AcquireMedia(ctx)
}

// AcquireMedia is a no-op while a stream is held.
func (c *Controller) AcquireMedia(ctx context.Context) error {
	c.mu.Lock()
	if c.stream != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	stream, err := c.devices.Acquire(ctx)
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to access media devices")
		c.mu.Lock()
		cb := c.onMediaError
		c.mu.Unlock()
		if cb != nil {
			cb(err)
		}
		return fmt.Errorf("%w: %w", ErrNoMedia, err)
	}

	c.mu.Lock()
	if c.stream != nil || c.closed {
		c.mu.Unlock()
		stream.Release()
		return nil
	}
	c.stream = stream
	c.mu.Unlock()
	return nil
}

// Ready is closed once the relay has assigned this controller an identity.
func (c *Controller) Ready() <-chan struct{} { return c.ready }

// LocalIdentity is empty until the relay has assigned one.
func (c *Controller) LocalIdentity() domain.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.local
}

func (c *Controller) RemoteIdentity() domain.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remote
}

func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

func (c *Controller) LocalStream() *media.LocalStream {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stream
}

// ToggleMicrophone flips every local audio track and returns whether audio
// is now enabled. The device is not re-acquired.
func (c *Controller) ToggleMicrophone() bool {
	stream := c.LocalStream()
	if stream == nil {
		return false
	}
	on := stream.ToggleAudio()
	c.logger.Info().Bool("enabled", on).Msg("microphone toggled")
	return on
}

// ToggleCamera flips every local video track and returns whether video is
// now enabled.
func (c *Controller) ToggleCamera() bool {
	stream := c.LocalStream()
	if stream == nil {
		return false
	}
	on := stream.ToggleVideo()
	c.logger.Info().Bool("enabled", on).Msg("camera toggled")
	return on
}

// PlaceCall offers a call to remote. It returns once the invite has been
// handed to the relay; the answer arrives asynchronously.
func (c *Controller) PlaceCall(ctx context.Context, remote domain.Identity) error {
	if remote == "" {
		c.logger.Warn().Msg("place call: remote identity not set")
		return ErrNoRemote
	}

	c.mu.Lock()
	if c.stream == nil || c.stream.IsReleased() {
		c.mu.Unlock()
		c.logger.Warn().Str("remote", string(remote)).Msg("place call: stream not available")
		return ErrNoMedia
	}
	next, err := transition(c.phase, evPlace)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.phase = next
	c.remote = remote
	c.gen++
	gen, local, stream := c.gen, c.local, c.stream
	c.mu.Unlock()

	c.logger.Info().Str("remote", string(remote)).Msg("placing call")

	peer, err := c.preparePeer(gen, remote, stream)
	if err != nil {
		c.endSession(gen, ReasonFailure, false)
		return err
	}
	offer, err := peer.CreateOffer(ctx)
	if err != nil {
		c.endSession(gen, ReasonFailure, false)
		peer.Close()
		return fmt.Errorf("create offer: %w", err)
	}
	payload, err := encodeDescription(offer)
	if err != nil {
		c.endSession(gen, ReasonFailure, false)
		peer.Close()
		return err
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		peer.Close()
		return ErrCallEnded
	}
	c.peer = peer
	if c.inviteTimeout > 0 {
		c.timer = time.AfterFunc(c.inviteTimeout, func() { c.inviteExpired(gen) })
	}
	c.mu.Unlock()

	if err := c.ch.Send(domain.Invite(remote, local, payload)); err != nil {
		c.logger.Error().Err(err).Str("remote", string(remote)).Msg("send invite")
		c.endSession(gen, ReasonRelayLost, false)
		return fmt.Errorf("send invite: %w", err)
	}
	return nil
}

// Accept answers the ringing call. With AnswerAuto it runs as soon as the
// invite arrives.
func (c *Controller) Accept(ctx context.Context) error {
	c.mu.Lock()
	if c.phase != Ringing {
		phase := c.phase
		c.mu.Unlock()
		return fmt.Errorf("%w: accept on %s", ErrInvalidTransition, phase)
	}
	gen, remote, stream, rawOffer := c.gen, c.remote, c.stream, c.pendingOffer
	c.mu.Unlock()

	offer, err := decodeDescription(rawOffer, webrtc.SDPTypeOffer)
	if err != nil {
		c.logger.Error().Err(err).Str("remote", string(remote)).Msg("bad offer")
		c.endSession(gen, ReasonFailure, true)
		return err
	}

	peer, err := c.preparePeer(gen, remote, stream)
	if err != nil {
		c.endSession(gen, ReasonFailure, true)
		return err
	}
	answer, err := peer.ApplyOfferAndCreateAnswer(ctx, offer)
	if err != nil {
		c.endSession(gen, ReasonFailure, true)
		peer.Close()
		return fmt.Errorf("answer offer: %w", err)
	}
	payload, err := encodeDescription(answer)
	if err != nil {
		c.endSession(gen, ReasonFailure, true)
		peer.Close()
		return err
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		peer.Close()
		return ErrCallEnded
	}
	next, err := transition(c.phase, evAccept)
	if err != nil {
		c.mu.Unlock()
		peer.Close()
		return err
	}
	c.phase = next
	c.peer = peer
	c.pendingOffer = nil
	cb := c.onCallAccepted
	c.mu.Unlock()

	if err := c.ch.Send(domain.Accept(remote, payload)); err != nil {
		c.logger.Error().Err(err).Str("remote", string(remote)).Msg("send accept")
		c.endSession(gen, ReasonRelayLost, false)
		return fmt.Errorf("send accept: %w", err)
	}
	c.logger.Info().Str("remote", string(remote)).Msg("call accepted")
	if cb != nil {
		cb(remote)
	}
	return nil
}

// Decline rejects the ringing call and tells the caller.
func (c *Controller) Decline() error {
	c.mu.Lock()
	if c.phase != Ringing {
		phase := c.phase
		c.mu.Unlock()
		return fmt.Errorf("%w: decline on %s", ErrInvalidTransition, phase)
	}
	gen := c.gen
	c.mu.Unlock()
	c.endSession(gen, ReasonDeclined, true)
	return nil
}

// EndCall hangs up. It is safe in every phase. Local media is kept; use
// Close to release it as well.
func (c *Controller) EndCall() {
	c.mu.Lock()
	if c.phase == Idle {
		c.mu.Unlock()
		return
	}
	gen := c.gen
	c.mu.Unlock()
	c.endSession(gen, ReasonHangup, true)
}

// Close ends any call and releases the local media stream.
func (c *Controller) Close() {
	c.EndCall()
	c.mu.Lock()
	c.closed = true
	stream := c.stream
	c.stream = nil
	c.mu.Unlock()
	if stream != nil {
		stream.Release()
	}
}

func (c *Controller) preparePeer(gen uint64, remote domain.Identity, stream *media.LocalStream) (core.MediaConnection, error) {
	if stream == nil || stream.IsReleased() {
		return nil, ErrNoMedia
	}
	peer, err := c.newPeer(remote)
	if err != nil {
		return nil, fmt.Errorf("new peer: %w", err)
	}
	peer.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		c.mu.Lock()
		cb := c.onRemoteTrack
		current := c.gen == gen
		c.mu.Unlock()
		if cb != nil && current {
			cb(remote, track)
		}
	})
	for _, tr := range stream.Tracks() {
		if _, err := peer.AddLocalTrack(tr.Local()); err != nil {
			peer.Close()
			return nil, fmt.Errorf("add %s track: %w", tr.Kind(), err)
		}
	}
	peer.OnClosed(func() {
		c.endSession(gen, ReasonFailure, true)
	})
	return peer, nil
}

func (c *Controller) inviteExpired(gen uint64) {
	c.mu.Lock()
	stillInviting := c.gen == gen && c.phase == Inviting
	c.mu.Unlock()
	if !stillInviting {
		return
	}
	c.logger.Warn().Dur("timeout", c.inviteTimeout).Msg("invite unanswered")
	c.endSessionIn(gen, Inviting, ReasonTimeout, true)
}

func (c *Controller) endSession(gen uint64, reason EndReason, notify bool) bool {
	return c.endSessionIn(gen, -1, reason, notify)
}

// endSessionIn tears down the session numbered gen, if it is still current
// and (when only >= 0) still in phase only. All resources of the session
// are released on the way back to Idle.
func (c *Controller) endSessionIn(gen uint64, only Phase, reason EndReason, notify bool) bool {
	c.mu.Lock()
	if c.gen != gen || c.phase == Idle || (only >= 0 && c.phase != only) {
		c.mu.Unlock()
		return false
	}
	next, _ := transition(c.phase, evEnd)
	remote, peer := c.remote, c.peer
	c.phase = next
	c.remote = ""
	c.peer = nil
	c.pendingOffer = nil
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	cb := c.onCallEnded
	c.mu.Unlock()

	if notify && remote != "" {
		if err := c.ch.Send(domain.Terminate(remote)); err != nil {
			c.logger.Warn().Err(err).Str("remote", string(remote)).Msg("terminate not sent")
		}
	}
	if peer != nil {
		peer.Close()
	}
	c.logger.Info().Str("remote", string(remote)).Str("reason", reason.String()).Msg("call ended")
	if cb != nil {
		cb(remote, reason)
	}
	return true
}
