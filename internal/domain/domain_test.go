package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestNewIdentity_Unique(t *testing.T) {
	seen := make(map[Identity]bool)
	for i := 0; i < 100; i++ {
		id := NewIdentity()
		if id == "" || seen[id] {
			t.Fatalf("identity %q empty or reused", id)
		}
		seen[id] = true
	}
}

func TestParseIdentity(t *testing.T) {
	if _, err := ParseIdentity(""); !errors.Is(err, ErrIdentityEmpty) {
		t.Fatalf("expected ErrIdentityEmpty, got %v", err)
	}
	if _, err := ParseIdentity(strings.Repeat("x", MaxIdentityLen+1)); !errors.Is(err, ErrIdentityTooLong) {
		t.Fatalf("expected ErrIdentityTooLong, got %v", err)
	}
	id, err := ParseIdentity(string(NewIdentity()))
	if err != nil || id == "" {
		t.Fatalf("generated identity rejected: %v", err)
	}
}

func TestEnvelope_OfferForwardedVerbatim(t *testing.T) {
	raw := `{"type":"invite","callee":"b","caller":"a","offer":{"type":"offer","sdp":"v=0\r\n","x-extra":[1,2]}}`
	var in Envelope
	if err := json.Unmarshal([]byte(raw), &in); err != nil {
		t.Fatal(err)
	}
	out, err := json.Marshal(Incoming(in.Caller, in.Offer))
	if err != nil {
		t.Fatal(err)
	}
	want := `{"type":"incoming","caller":"a","offer":{"type":"offer","sdp":"v=0\r\n","x-extra":[1,2]}}`
	if string(out) != want {
		t.Fatalf("got  %s\nwant %s", out, want)
	}
}

func TestEnvelope_OmitsUnsetFields(t *testing.T) {
	b, err := json.Marshal(Ended("a"))
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"type":"ended","from":"a"}` {
		t.Fatalf("unexpected wire form %s", b)
	}
	b, _ = json.Marshal(Pong())
	if string(b) != `{"type":"pong"}` {
		t.Fatalf("unexpected wire form %s", b)
	}
}
