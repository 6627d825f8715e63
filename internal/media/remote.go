package media

import (
	"context"
	"errors"
	"io"
	"sync/atomic"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

// RemoteStream counts what arrives on the remote tracks of the current call.
type RemoteStream struct {
	packets atomic.Uint64
	bytes   atomic.Uint64
	tracks  atomic.Int32
	epoch   atomic.Uint64

	// Sink, when set, sees every packet. It runs on the track's read loop.
	Sink func(kind webrtc.RTPCodecType, pkt *rtp.Packet)
}

type RemoteStats struct {
	Tracks  int
	Packets uint64
	Bytes   uint64
}

// rtpSource is the part of *webrtc.TrackRemote the read loop needs.
type rtpSource interface {
	Kind() webrtc.RTPCodecType
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

func (s *RemoteStream) Stats() RemoteStats {
	return RemoteStats{
		Tracks:  int(s.tracks.Load()),
		Packets: s.packets.Load(),
		Bytes:   s.bytes.Load(),
	}
}

// Reset zeroes the counters at the end of a call. Loops attached before
// Reset stop counting and exit on their next packet.
func (s *RemoteStream) Reset() {
	s.epoch.Add(1)
	s.tracks.Store(0)
	s.packets.Store(0)
	s.bytes.Store(0)
}

// Attach reads track until it ends, ctx is done or the stream is Reset.
func (s *RemoteStream) Attach(ctx context.Context, track *webrtc.TrackRemote, logger *zerolog.Logger) {
	s.attach(ctx, track, logger)
}

func (s *RemoteStream) attach(ctx context.Context, src rtpSource, logger *zerolog.Logger) {
	epoch := s.epoch.Load()
	s.tracks.Add(1)
	go s.loop(ctx, src, epoch, logger)
}

func (s *RemoteStream) loop(ctx context.Context, src rtpSource, epoch uint64, logger *zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			logger.Debug().Msg("remote track ctx done")
			return
		default:
		}
		pkt, _, err := src.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Debug().Err(err).Msg("remote track read error, stopping")
			}
			return
		}
		if s.epoch.Load() != epoch {
			logger.Debug().Msg("remote stream reset, detaching")
			return
		}
		s.packets.Add(1)
		s.bytes.Add(uint64(len(pkt.Payload)))
		if s.Sink != nil {
			s.Sink(src.Kind(), pkt)
		}
	}
}
