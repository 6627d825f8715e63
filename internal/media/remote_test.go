package media

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

type chanSource struct {
	kind webrtc.RTPCodecType
	pkts chan *rtp.Packet
}

func (c *chanSource) Kind() webrtc.RTPCodecType { return c.kind }

func (c *chanSource) ReadRTP() (*rtp.Packet, interceptor.Attributes, error) {
	pkt, ok := <-c.pkts
	if !ok {
		return nil, nil, io.EOF
	}
	return pkt, nil, nil
}

func waitStats(t *testing.T, s *RemoteStream, want RemoteStats) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.Stats() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("stats %+v, want %+v", s.Stats(), want)
}

func TestRemoteStream_CountsAndSink(t *testing.T) {
	s := &RemoteStream{}
	sunk := make(chan webrtc.RTPCodecType, 4)
	s.Sink = func(kind webrtc.RTPCodecType, _ *rtp.Packet) { sunk <- kind }
	logger := zerolog.Nop()

	src := &chanSource{kind: webrtc.RTPCodecTypeAudio, pkts: make(chan *rtp.Packet, 4)}
	s.attach(context.Background(), src, &logger)
	src.pkts <- &rtp.Packet{Payload: []byte{1, 2, 3}}
	src.pkts <- &rtp.Packet{Payload: []byte{4}}
	close(src.pkts)

	waitStats(t, s, RemoteStats{Tracks: 1, Packets: 2, Bytes: 4})
	if kind := <-sunk; kind != webrtc.RTPCodecTypeAudio {
		t.Fatalf("sink saw %s", kind)
	}
}

func TestRemoteStream_ResetStartsFreshForNextCall(t *testing.T) {
	s := &RemoteStream{}
	logger := zerolog.Nop()

	first := &chanSource{kind: webrtc.RTPCodecTypeVideo, pkts: make(chan *rtp.Packet, 4)}
	s.attach(context.Background(), first, &logger)
	first.pkts <- &rtp.Packet{Payload: make([]byte, 10)}
	waitStats(t, s, RemoteStats{Tracks: 1, Packets: 1, Bytes: 10})

	s.Reset()
	if st := s.Stats(); st != (RemoteStats{}) {
		t.Fatalf("reset left %+v", st)
	}

	// A straggler from the previous call must not be counted.
	first.pkts <- &rtp.Packet{Payload: make([]byte, 10)}

	second := &chanSource{kind: webrtc.RTPCodecTypeAudio, pkts: make(chan *rtp.Packet, 4)}
	s.attach(context.Background(), second, &logger)
	second.pkts <- &rtp.Packet{Payload: make([]byte, 3)}
	waitStats(t, s, RemoteStats{Tracks: 1, Packets: 1, Bytes: 3})

	time.Sleep(20 * time.Millisecond)
	if st := s.Stats(); st != (RemoteStats{Tracks: 1, Packets: 1, Bytes: 3}) {
		t.Fatalf("previous call leaked into stats: %+v", st)
	}
}
