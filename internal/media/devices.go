package media

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog/log"
)

// ErrPermissionDenied is what a Devices implementation returns when the
// user or OS refuses camera/microphone access.
var ErrPermissionDenied = errors.New("media permission denied")

// Devices acquires local capture.
type Devices interface {
	Acquire(ctx context.Context) (*LocalStream, error)
}

const (
	audioFrame = 20 * time.Millisecond
	videoFrame = 33 * time.Millisecond
)

// Opus TOC byte plus two bytes: a single 20ms silence frame.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// SyntheticDevices produces an Opus audio track and a VP8 video track fed
// with placeholder frames. It stands in for a camera and microphone on
// headless peers.
type SyntheticDevices struct {
	// Deny makes Acquire fail with ErrPermissionDenied.
	Deny bool
	// NoPump skips the sample goroutines.
	NoPump bool
}

func (d SyntheticDevices) Acquire(ctx context.Context) (*LocalStream, error) {
	if d.Deny {
		return nil, ErrPermissionDenied
	}
	streamID := "peercall-" + uuid.NewString()

	audio, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio", streamID)
	if err != nil {
		return nil, fmt.Errorf("new audio track: %w", err)
	}
	video, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
		"video", streamID)
	if err != nil {
		return nil, fmt.Errorf("new video track: %w", err)
	}

	audioTrack := NewTrack(webrtc.RTPCodecTypeAudio, audio)
	videoTrack := NewTrack(webrtc.RTPCodecTypeVideo, video)

	pumpCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if !d.NoPump {
		go pump(pumpCtx, audioTrack, audioFrame, func() []byte { return opusSilence })
		go pump(pumpCtx, videoTrack, videoFrame, placeholderVP8)
	}

	log.Info().Str("module", "media").Str("stream", streamID).Msg("local media acquired")
	return NewLocalStream(streamID, []*Track{audioTrack, videoTrack}, func() {
		cancel()
		log.Info().Str("module", "media").Str("stream", streamID).Msg("local media released")
	}), nil
}

// placeholderVP8 is a VP8 payload header for a key frame followed by an
// empty partition; decoders drop it but it still produces RTP.
func placeholderVP8() []byte {
	return []byte{0x10, 0x02, 0x00, 0x9d, 0x01, 0x2a, 0x10, 0x00, 0x10, 0x00}
}

func pump(ctx context.Context, t *Track, every time.Duration, frame func() []byte) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := t.WriteSample(pionmedia.Sample{Data: frame(), Duration: every})
			if errors.Is(err, ErrTrackStopped) {
				return
			}
			if err != nil {
				log.Debug().Err(err).Str("module", "media").Str("kind", t.Kind().String()).Msg("write sample")
			}
		}
	}
}
