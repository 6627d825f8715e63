package call

import (
	"fmt"
	"strings"
)

// AnswerMode decides what happens when an invite arrives.
type AnswerMode int

const (
	// AnswerAuto accepts every invite as soon as it arrives.
	AnswerAuto AnswerMode = iota
	// AnswerManual rings until Accept or Decline is called.
	AnswerManual
)

func (m AnswerMode) String() string {
	if m == AnswerManual {
		return "manual"
	}
	return "auto"
}

func ParseAnswerMode(s string) (AnswerMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return AnswerAuto, nil
	case "manual":
		return AnswerManual, nil
	}
	return AnswerAuto, fmt.Errorf("unknown answer mode %q", s)
}

// EndReason tells OnCallEnded why the call went back to Idle.
type EndReason int

const (
	ReasonHangup    EndReason = iota // local EndCall
	ReasonRemote                     // peer sent ended
	ReasonDeclined                   // local Decline
	ReasonTimeout                    // invite unanswered
	ReasonFailure                    // negotiation or transport failure
	ReasonRelayLost                  // relay connection closed
)

func (r EndReason) String() string {
	switch r {
	case ReasonHangup:
		return "hangup"
	case ReasonRemote:
		return "remote"
	case ReasonDeclined:
		return "declined"
	case ReasonTimeout:
		return "timeout"
	case ReasonFailure:
		return "failure"
	case ReasonRelayLost:
		return "relay_lost"
	default:
		return fmt.Sprintf("EndReason(%d)", int(r))
	}
}
