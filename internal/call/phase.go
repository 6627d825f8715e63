package call

import (
	"errors"
	"fmt"
)

var ErrInvalidTransition = errors.New("invalid call transition")

type Phase int

const (
	Idle Phase = iota
	Inviting
	Ringing
	Active
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Inviting:
		return "inviting"
	case Ringing:
		return "ringing"
	case Active:
		return "active"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

type event int

const (
	evPlace    event = iota // local user starts a call
	evInvited               // remote invite arrived
	evAccept                // local side answers an invite
	evAnswered              // remote answer arrived
	evEnd                   // hang-up, remote end, decline, timeout or failure
)

func (e event) String() string {
	switch e {
	case evPlace:
		return "place"
	case evInvited:
		return "invited"
	case evAccept:
		return "accept"
	case evAnswered:
		return "answered"
	case evEnd:
		return "end"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

// transition is the only place phases change.
func transition(from Phase, ev event) (Phase, error) {
	switch {
	case ev == evEnd:
		return Idle, nil
	case from == Idle && ev == evPlace:
		return Inviting, nil
	case from == Idle && ev == evInvited:
		return Ringing, nil
	case from == Ringing && ev == evAccept:
		return Active, nil
	case from == Inviting && ev == evAnswered:
		return Active, nil
	}
	return from, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, ev, from)
}
