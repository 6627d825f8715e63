package app

import (
	"fmt"

	"github.com/dkeye/peercall/internal/domain"
)

type BackpressureAction int

const (
	DropMessage BackpressureAction = iota
	DisconnectPeer
)

func (a BackpressureAction) String() string {
	switch a {
	case DropMessage:
		return "drop"
	case DisconnectPeer:
		return "disconnect"
	default:
		return fmt.Sprintf("BackpressureAction(%d)", int(a))
	}
}

func ParseBackpressureAction(s string) (BackpressureAction, error) {
	switch s {
	case "", "drop":
		return DropMessage, nil
	case "disconnect":
		return DisconnectPeer, nil
	}
	return DropMessage, fmt.Errorf("unknown backpressure action %q", s)
}

// Policy decides what happens to a connection whose outbound queue is full.
type Policy interface {
	OnBackpressure(id domain.Identity) BackpressureAction
}

type SimplePolicy struct {
	Action BackpressureAction
}

func (p SimplePolicy) OnBackpressure(domain.Identity) BackpressureAction {
	return p.Action
}
