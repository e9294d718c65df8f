// Package domain contains entities without logic, just meta-data.
package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const MaxDisplayNameLen = 36

var (
	ErrDisplayNameEmpty   = errors.New("display name empty")
	ErrDisplayNameTooLong = errors.New("display name too long")
)

// Identity is the stable subject carried by the bearer credential.
// One identity may hold at most one live session, system-wide.
type Identity string

// SessionID is the identity plus a random connection nonce, so a reconnect
// from the same identity yields a distinguishable session.
type SessionID string

func NewSessionID(id Identity) SessionID {
	return SessionID(fmt.Sprintf("%s#%s", id, uuid.NewString()))
}

// Member is one user's participation meta on a channel.
// The client-side mute flag never reaches the server; it only suppresses
// playback locally and must not affect arbitration.
type Member struct {
	Identity    Identity
	DisplayName string
}

// NewMember avoids raw literals in adapters and keeps construction obvious.
func NewMember(identity Identity, displayName string) (*Member, error) {
	if len(displayName) == 0 {
		return nil, ErrDisplayNameEmpty
	}
	if len(displayName) > MaxDisplayNameLen {
		return nil, ErrDisplayNameTooLong
	}
	return &Member{Identity: identity, DisplayName: displayName}, nil
}
