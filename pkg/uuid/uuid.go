// Package uuid provides UUID v7 generation.
// UUID v7 is sortable by timestamp, which keeps freshly created turn and row
// ids in insertion order and makes collisions between concurrently created
// ids practically impossible (74 random bits per millisecond).
package uuid

import (
	"crypto/rand"
	"fmt"
	"time"
)

// UUID represents a UUID v7 identifier.
type UUID [16]byte

// NewV7 generates a new UUID v7.
// Layout (draft-ietf-uuidrev-rfc4122bis):
//   - 48 bits: UNIX timestamp in milliseconds
//   - 4 bits:  version (0111)
//   - 12 bits: random
//   - 2 bits:  variant (10)
//   - 62 bits: random
func NewV7() UUID {
	now := time.Now().UnixMilli()

	var uuid UUID

	// Timestamp (48 bits, ms precision) — bytes 0-5
	uuid[0] = byte(now >> 40)
	uuid[1] = byte(now >> 32)
	uuid[2] = byte(now >> 24)
	uuid[3] = byte(now >> 16)
	uuid[4] = byte(now >> 8)
	uuid[5] = byte(now)

	// Bytes 6-15 start fully random, then version and variant bits are fixed.
	// crypto/rand.Read on the platform sources never fails in practice; a
	// failure here means the process cannot continue safely anyway.
	if _, err := rand.Read(uuid[6:]); err != nil {
		panic(fmt.Sprintf("uuid: crypto/rand unavailable: %v", err))
	}

	uuid[6] = 0x70 | (uuid[6] & 0x0f) // version 7
	uuid[7] = 0x80 | (uuid[7] & 0x3f) // RFC 4122 variant

	return uuid
}

// String returns the UUID in standard form: xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx
func (u UUID) String() string {
	return fmt.Sprintf("%08x-%04x-%04x-%04x-%012x",
		u[0:4],
		u[4:6],
		u[6:8],
		u[8:10],
		u[10:16],
	)
}
