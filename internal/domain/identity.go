// Package domain contains entities without logic, just meta-data.
package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// GuestPrefix namespaces guest identities so they can never collide
// with a member id (member ids are UUIDs and contain no colon).
const GuestPrefix = "guest:"

const MaxDisplayNameLen = 36

// Identity uniquely names a connected participant: either a persistent
// member id or an ephemeral guest id.
type Identity string

func (id Identity) IsGuest() bool {
	return strings.HasPrefix(string(id), GuestPrefix)
}

// GuestIdentity derives a stable, namespaced identity from a guest token.
// The token itself is a secret and must never appear on the wire, so the
// identity is a truncated digest of it. The same token always maps to the
// same identity, which keeps reconnects from multiplying participants.
func GuestIdentity(token string) Identity {
	sum := sha256.Sum256([]byte(token))
	return Identity(GuestPrefix + hex.EncodeToString(sum[:])[:16])
}
