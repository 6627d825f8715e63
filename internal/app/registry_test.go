package app

import (
	"testing"

	"github.com/dkeye/peercall/internal/core"
	"github.com/dkeye/peercall/internal/domain"
)

type nopConn struct{}

func (nopConn) TrySend(core.Frame) error { return nil }
func (nopConn) Close()                   {}

func TestRegistry_BindGetUnbind(t *testing.T) {
	r := NewRegistry()
	r.Bind("a", nopConn{}, nil)

	if _, ok := r.Get("a"); !ok {
		t.Fatal("expected a to be live")
	}
	if r.Count() != 1 {
		t.Fatalf("expected count 1, got %d", r.Count())
	}
	if _, ok := r.Unbind("a"); !ok {
		t.Fatal("expected unbind to report a live entry")
	}
	if _, ok := r.Get("a"); ok {
		t.Fatal("a still live after unbind")
	}
	if _, ok := r.Unbind("a"); ok {
		t.Fatal("second unbind should report nothing removed")
	}
}

func TestRegistry_OthersExcludesSelf(t *testing.T) {
	r := NewRegistry()
	for _, id := range []domain.Identity{"a", "b", "c"} {
		r.Bind(id, nopConn{}, nil)
	}
	others := r.Others("a")
	if len(others) != 2 {
		t.Fatalf("expected 2 others, got %d", len(others))
	}
	for _, snap := range others {
		if snap.ID == "a" {
			t.Fatal("Others returned the excluded identity")
		}
	}
}

func TestRegistry_PairingIsSymmetricAndClearedOnUnbind(t *testing.T) {
	r := NewRegistry()
	r.Bind("a", nopConn{}, nil)
	r.Bind("b", nopConn{}, nil)

	if r.Pair("a", "ghost") {
		t.Fatal("pairing with a non-live identity must fail")
	}
	if !r.Pair("a", "b") {
		t.Fatal("expected pair to succeed")
	}
	if p := r.PeersOf("b"); len(p) != 1 || p[0] != "a" {
		t.Fatalf("expected b paired with a, got %v", p)
	}

	peers, _ := r.Unbind("a")
	if len(peers) != 1 || peers[0] != "b" {
		t.Fatalf("expected unbind to report peer b, got %v", peers)
	}
	if p := r.PeersOf("b"); len(p) != 0 {
		t.Fatalf("b still paired after a left: %v", p)
	}
}

func TestRegistry_Unpair(t *testing.T) {
	r := NewRegistry()
	r.Bind("a", nopConn{}, nil)
	r.Bind("b", nopConn{}, nil)
	r.Pair("a", "b")
	r.Unpair("b", "a")
	if len(r.PeersOf("a"))+len(r.PeersOf("b")) != 0 {
		t.Fatal("expected pairing removed on both sides")
	}
}

func TestRegistry_Cancel(t *testing.T) {
	r := NewRegistry()
	called := false
	r.Bind("a", nopConn{}, func() { called = true })
	if !r.Cancel("a") || !called {
		t.Fatal("expected cancel func to run")
	}
	if r.Cancel("missing") {
		t.Fatal("cancel of unknown identity should report false")
	}
}
