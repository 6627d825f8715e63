package rtc

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/peercall/internal/media"
	"github.com/pion/logging"
	"github.com/pion/transport/v4/vnet"
	"github.com/pion/webrtc/v4"
)

func newVNetPair(t *testing.T) (*webrtc.API, *webrtc.API) {
	t.Helper()
	router, err := vnet.NewRouter(&vnet.RouterConfig{
		CIDR:          "10.0.0.0/24",
		LoggerFactory: logging.NewDefaultLoggerFactory(),
	})
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	t.Cleanup(func() { _ = router.Stop() })

	netA, err := vnet.NewNet(&vnet.NetConfig{StaticIPs: []string{"10.0.0.1"}})
	if err != nil {
		t.Fatalf("new net A: %v", err)
	}
	netB, err := vnet.NewNet(&vnet.NetConfig{StaticIPs: []string{"10.0.0.2"}})
	if err != nil {
		t.Fatalf("new net B: %v", err)
	}
	if err := router.AddNet(netA); err != nil {
		t.Fatalf("add net A: %v", err)
	}
	if err := router.AddNet(netB); err != nil {
		t.Fatalf("add net B: %v", err)
	}
	if err := router.Start(); err != nil {
		t.Fatalf("start router: %v", err)
	}

	apiA, err := NewAPI(func(se *webrtc.SettingEngine) { se.SetNet(netA) })
	if err != nil {
		t.Fatalf("api A: %v", err)
	}
	apiB, err := NewAPI(func(se *webrtc.SettingEngine) { se.SetNet(netB) })
	if err != nil {
		t.Fatalf("api B: %v", err)
	}
	return apiA, apiB
}

func TestConnection_OfferAnswerDeliversRemoteTracks(t *testing.T) {
	apiA, apiB := newVNetPair(t)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	caller, err := NewConnection(apiA, webrtc.Configuration{}, "callee")
	if err != nil {
		t.Fatalf("caller: %v", err)
	}
	t.Cleanup(caller.Close)
	callee, err := NewConnection(apiB, webrtc.Configuration{}, "caller")
	if err != nil {
		t.Fatalf("callee: %v", err)
	}
	t.Cleanup(callee.Close)

	stream, err := media.SyntheticDevices{}.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	t.Cleanup(stream.Release)
	for _, tr := range stream.Tracks() {
		if _, err := caller.AddLocalTrack(tr.Local()); err != nil {
			t.Fatalf("add track: %v", err)
		}
	}

	gotTrack := make(chan webrtc.RTPCodecType, 2)
	callee.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		gotTrack <- track.Kind()
	})

	offer, err := caller.CreateOffer(ctx)
	if err != nil {
		t.Fatalf("create offer: %v", err)
	}
	if offer.Type != webrtc.SDPTypeOffer || offer.SDP == "" {
		t.Fatalf("unexpected offer %+v", offer)
	}

	answer, err := callee.ApplyOfferAndCreateAnswer(ctx, *offer)
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if err := caller.ApplyAnswer(*answer); err != nil {
		t.Fatalf("apply answer: %v", err)
	}

	select {
	case kind := <-gotTrack:
		if kind != webrtc.RTPCodecTypeAudio && kind != webrtc.RTPCodecTypeVideo {
			t.Fatalf("unexpected track kind %s", kind)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for remote track")
	}
}

func TestConnection_CloseFiresOnClosedOnce(t *testing.T) {
	api, err := NewAPI()
	if err != nil {
		t.Fatalf("NewAPI: %v", err)
	}
	c, err := NewConnection(api, webrtc.Configuration{}, "peer")
	if err != nil {
		t.Fatalf("NewConnection: %v", err)
	}

	var mu sync.Mutex
	calls := 0
	c.OnClosed(func() {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	c.Close()
	c.Close()

	if !c.IsClosed() {
		t.Fatal("expected closed")
	}
	// State change callbacks may still be in flight.
	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Fatalf("OnClosed fired %d times", calls)
	}
	if err := c.ApplyAnswer(webrtc.SessionDescription{}); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestDefaultWebRTCConfig(t *testing.T) {
	if cfg := DefaultWebRTCConfig(nil); len(cfg.ICEServers) != 0 {
		t.Fatalf("expected no ICE servers, got %v", cfg.ICEServers)
	}
	cfg := DefaultWebRTCConfig([]string{"stun:stun.example:3478"})
	if len(cfg.ICEServers) != 1 || cfg.ICEServers[0].URLs[0] != "stun:stun.example:3478" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}
