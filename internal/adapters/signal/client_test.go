package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/peercall/internal/app"
	"github.com/dkeye/peercall/internal/app/relay"
	"github.com/dkeye/peercall/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

func startRelay(t *testing.T) string {
	t.Helper()
	gin.SetMode(gin.TestMode)

	r := &relay.Relay{Registry: app.NewRegistry(), Policy: app.SimplePolicy{}}
	ctrl := NewSignalWSController(r, Options{AllowedOrigins: []string{"*"}, WriteWait: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	engine := gin.New()
	engine.GET("/socket", func(c *gin.Context) { ctrl.HandleSignal(ctx, c) })
	ts := httptest.NewServer(engine)
	t.Cleanup(func() {
		cancel()
		ts.Close()
	})
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/socket"
}

func next(t *testing.T, c *ClientConn) domain.Envelope {
	t.Helper()
	select {
	case env, ok := <-c.Envelopes():
		if !ok {
			t.Fatal("envelope channel closed")
		}
		return env
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for envelope")
	}
	return domain.Envelope{}
}

func dialClient(t *testing.T, url string) (*ClientConn, domain.Identity) {
	t.Helper()
	c, err := Dial(context.Background(), url, Options{})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(c.Close)
	env := next(t, c)
	if env.Type != domain.TypeAssigned {
		t.Fatalf("expected assigned, got %+v", env)
	}
	return c, env.Identity
}

func TestClientConn_InviteAcceptRoundTrip(t *testing.T) {
	url := startRelay(t)
	a, idA := dialClient(t, url)
	b, idB := dialClient(t, url)

	offer := json.RawMessage(`{"type":"offer","sdp":"o"}`)
	if err := a.Send(domain.Invite(idB, idA, offer)); err != nil {
		t.Fatalf("send invite: %v", err)
	}
	in := next(t, b)
	if in.Type != domain.TypeIncoming || in.Caller != idA || string(in.Offer) != string(offer) {
		t.Fatalf("unexpected incoming %+v", in)
	}

	if err := b.Send(domain.Accept(idA, json.RawMessage(`{"type":"answer","sdp":"r"}`))); err != nil {
		t.Fatalf("send accept: %v", err)
	}
	if acc := next(t, a); acc.Type != domain.TypeAccepted || acc.From != idB {
		t.Fatalf("unexpected accepted %+v", acc)
	}
}

func TestClientConn_CloseNotifiesOthersAndEndsStream(t *testing.T) {
	url := startRelay(t)
	a, idA := dialClient(t, url)
	b, _ := dialClient(t, url)

	a.Close()

	if env := next(t, b); env.Type != domain.TypeEnded || env.From != idA {
		t.Fatalf("expected ended from %s, got %+v", idA, env)
	}

	select {
	case <-a.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("closed client never finished")
	}
	if err := a.Send(domain.Terminate(idA)); err == nil {
		t.Fatal("send after close must fail")
	}
}

func TestClientConn_DoneWaitsForBothPumpsOnRelayLoss(t *testing.T) {
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = ws.Close()
	}))
	t.Cleanup(srv.Close)

	c, err := Dial(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http"), Options{WriteWait: time.Second})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("client never finished after relay closed")
	}
	if _, ok := <-c.Envelopes(); ok {
		t.Fatal("envelopes still open after Done")
	}
	if err := c.Send(domain.Pong()); err == nil {
		t.Fatal("send after relay loss must fail")
	}
}

func TestOriginAllowed(t *testing.T) {
	if !OriginAllowed([]string{"*"}, "https://any.example") {
		t.Fatal("wildcard must allow any origin")
	}
	if OriginAllowed([]string{"https://a.example"}, "https://b.example") {
		t.Fatal("unlisted origin must be rejected")
	}
	if OriginAllowed(nil, "https://a.example") {
		t.Fatal("empty list must reject")
	}
}
