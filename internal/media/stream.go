package media

import (
	"sync"

	"github.com/pion/webrtc/v4"
)

// LocalStream is the exclusively owned set of local capture tracks.
type LocalStream struct {
	id     string
	tracks []*Track

	releaseOnce sync.Once
	release     func()
	released    chan struct{}
}

// NewLocalStream wraps tracks; release frees the capture source and runs
// once, on the first Release.
func NewLocalStream(id string, tracks []*Track, release func()) *LocalStream {
	return &LocalStream{
		id:       id,
		tracks:   tracks,
		release:  release,
		released: make(chan struct{}),
	}
}

func (s *LocalStream) ID() string { return s.id }

func (s *LocalStream) Tracks() []*Track {
	out := make([]*Track, len(s.tracks))
	copy(out, s.tracks)
	return out
}

func (s *LocalStream) AudioTracks() []*Track { return s.byKind(webrtc.RTPCodecTypeAudio) }
func (s *LocalStream) VideoTracks() []*Track { return s.byKind(webrtc.RTPCodecTypeVideo) }

func (s *LocalStream) byKind(kind webrtc.RTPCodecType) []*Track {
	var out []*Track
	for _, t := range s.tracks {
		if t.Kind() == kind {
			out = append(out, t)
		}
	}
	return out
}

// ToggleAudio flips every audio track and returns the new enabled state.
func (s *LocalStream) ToggleAudio() bool { return toggle(s.AudioTracks()) }

// ToggleVideo flips every video track and returns the new enabled state.
func (s *LocalStream) ToggleVideo() bool { return toggle(s.VideoTracks()) }

func toggle(tracks []*Track) bool {
	if len(tracks) == 0 {
		return false
	}
	enabled := !tracks[0].Enabled()
	for _, t := range tracks {
		t.SetEnabled(enabled)
	}
	return enabled
}

// Release stops every track and frees the device.
func (s *LocalStream) Release() {
	s.releaseOnce.Do(func() {
		for _, t := range s.tracks {
			t.Stop()
		}
		if s.release != nil {
			s.release()
		}
		close(s.released)
	})
}

// Released is closed once the stream has been released.
func (s *LocalStream) Released() <-chan struct{} {
	return s.released
}

func (s *LocalStream) IsReleased() bool {
	select {
	case <-s.released:
		return true
	default:
		return false
	}
}
