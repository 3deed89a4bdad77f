// Package ident generates room codes and participant identifiers from a
// cryptographically strong random source. The generators perform no
// uniqueness checks; collision handling belongs to the registry.
package ident

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

// roomCodeLen is the length of a shareable room code.
const roomCodeLen = 6

// NewRoomCode returns a 6-character uppercase room code derived from
// 3 bytes of crypto/rand, hex-encoded.
func NewRoomCode() string {
	b := make([]byte, roomCodeLen/2)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand failing means the process is unusable anyway.
		panic(err)
	}
	return strings.ToUpper(hex.EncodeToString(b))
}

// NewParticipantID returns a 16-character lowercase hex identifier derived
// from 8 bytes of crypto/rand. Uniqueness is only required within a single
// room's participant table.
func NewParticipantID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}

// IsRoomCode reports whether s, uppercased, is a well-formed room code:
// exactly 6 characters drawn from [A-Z0-9].
func IsRoomCode(s string) bool {
	if len(s) != roomCodeLen {
		return false
	}
	for _, c := range strings.ToUpper(s) {
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}

// Normalize uppercases a requested room identifier so that joins are
// case-insensitive.
func Normalize(s string) string {
	return strings.ToUpper(s)
}
