package media

import (
	"errors"
	"sync/atomic"

	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
)

var ErrTrackStopped = errors.New("track stopped")

type TrackState int32

const (
	TrackStateLive TrackState = iota
	TrackStateMuted
	TrackStateStopped
)

func (s TrackState) String() string {
	switch s {
	case TrackStateLive:
		return "live"
	case TrackStateMuted:
		return "muted"
	case TrackStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Track is one local capture track. Muting only gates sample writes; the
// underlying device stays acquired until Stop.
type Track struct {
	local *webrtc.TrackLocalStaticSample
	kind  webrtc.RTPCodecType
	state atomic.Int32 // Zero by default (TrackStateLive)
}

func NewTrack(kind webrtc.RTPCodecType, local *webrtc.TrackLocalStaticSample) *Track {
	return &Track{local: local, kind: kind}
}

func (t *Track) Kind() webrtc.RTPCodecType { return t.kind }

// Local is what gets attached to a peer connection.
func (t *Track) Local() webrtc.TrackLocal { return t.local }

func (t *Track) State() TrackState {
	return TrackState(t.state.Load())
}

func (t *Track) Enabled() bool {
	return t.State() == TrackStateLive
}

// SetEnabled flips between live and muted. A stopped track stays stopped.
func (t *Track) SetEnabled(enabled bool) {
	want := int32(TrackStateMuted)
	if enabled {
		want = int32(TrackStateLive)
	}
	for {
		cur := t.state.Load()
		if cur == int32(TrackStateStopped) {
			return
		}
		if t.state.CompareAndSwap(cur, want) {
			return
		}
	}
}

func (t *Track) Stop() {
	t.state.Store(int32(TrackStateStopped))
}

// WriteSample forwards s to bound peer connections while the track is
// live and silently discards it while muted.
func (t *Track) WriteSample(s pionmedia.Sample) error {
	switch t.State() {
	case TrackStateStopped:
		return ErrTrackStopped
	case TrackStateMuted:
		return nil
	}
	return t.local.WriteSample(s)
}
