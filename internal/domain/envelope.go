package domain

import "encoding/json"

// MessageType is the "type" discriminator of every signaling frame.
type MessageType string

// Client -> relay.
const (
	TypeInvite    MessageType = "invite"
	TypeAccept    MessageType = "accept"
	TypeTerminate MessageType = "terminate"
	TypePing      MessageType = "ping"
)

// Relay -> client.
const (
	TypeAssigned MessageType = "assigned"
	TypeIncoming MessageType = "incoming"
	TypeAccepted MessageType = "accepted"
	TypeEnded    MessageType = "ended"
	TypePong     MessageType = "pong"
)

// Envelope is the single wire shape for all signaling frames. Only the
// fields relevant to Type are set.
//
// Offer and Answer stay raw so the relay forwards them byte for byte.
type Envelope struct {
	Type MessageType `json:"type"`

	Identity Identity `json:"identity,omitempty"`
	Callee   Identity `json:"callee,omitempty"`
	Caller   Identity `json:"caller,omitempty"`
	Target   Identity `json:"target,omitempty"`
	From     Identity `json:"from,omitempty"`

	Offer  json.RawMessage `json:"offer,omitempty"`
	Answer json.RawMessage `json:"answer,omitempty"`
}

// SessionDescription is the offer/answer payload carried inside an
// Envelope. ICE candidates are bundled in SDP since trickle is off.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

func Assigned(id Identity) Envelope {
	return Envelope{Type: TypeAssigned, Identity: id}
}

func Invite(callee, caller Identity, offer json.RawMessage) Envelope {
	return Envelope{Type: TypeInvite, Callee: callee, Caller: caller, Offer: offer}
}

func Accept(target Identity, answer json.RawMessage) Envelope {
	return Envelope{Type: TypeAccept, Target: target, Answer: answer}
}

func Terminate(target Identity) Envelope {
	return Envelope{Type: TypeTerminate, Target: target}
}

func Incoming(caller Identity, offer json.RawMessage) Envelope {
	return Envelope{Type: TypeIncoming, Caller: caller, Offer: offer}
}

func Accepted(from Identity, answer json.RawMessage) Envelope {
	return Envelope{Type: TypeAccepted, From: from, Answer: answer}
}

// Ended is the termination notice. from may be empty when the origin
// is unknown.
func Ended(from Identity) Envelope {
	return Envelope{Type: TypeEnded, From: from}
}

func Pong() Envelope { return Envelope{Type: TypePong} }
