package main

import (
	"context"
	"errors"
	"testing"
)

func TestWaitReady(t *testing.T) {
	ready := make(chan struct{})
	close(ready)
	if err := waitReady(context.Background(), ready, nil); err != nil {
		t.Fatalf("ready: %v", err)
	}

	relayDone := make(chan struct{})
	close(relayDone)
	if err := waitReady(context.Background(), make(chan struct{}), relayDone); !errors.Is(err, errRelayClosed) {
		t.Fatalf("expected errRelayClosed, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := waitReady(ctx, make(chan struct{}), make(chan struct{})); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
