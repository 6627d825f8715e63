// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"

	"github.com/google/uuid"
)

const MaxIdentityLen = 64

var (
	ErrIdentityEmpty   = errors.New("identity empty")
	ErrIdentityTooLong = errors.New("identity too long")
)

// Identity addresses one live relay connection. It is never reused
// after the connection closes.
type Identity string

// NewIdentity returns a fresh identity for a new connection.
func NewIdentity() Identity {
	return Identity(uuid.NewString())
}

// ParseIdentity validates an identity supplied by a peer.
func ParseIdentity(s string) (Identity, error) {
	if len(s) == 0 {
		return "", ErrIdentityEmpty
	}
	if len(s) > MaxIdentityLen {
		return "", ErrIdentityTooLong
	}
	return Identity(s), nil
}

func (id Identity) String() string { return string(id) }
