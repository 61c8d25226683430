// Package id generates trade record identifiers.
package id

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// Supported schemes.
const (
	SchemeUUID = "uuid"
	SchemeULID = "ulid"
)

// Generator returns a fresh, never reused identifier.
type Generator func() string

// NewGenerator returns the generator for scheme ("" means uuid).
func NewGenerator(scheme string) (Generator, error) {
	switch scheme {
	case "", SchemeUUID:
		return UUID, nil
	case SchemeULID:
		return NewULID(), nil
	}
	return nil, fmt.Errorf("id: unknown scheme %q", scheme)
}

// UUID returns a random v4 UUID string.
func UUID() string {
	return uuid.New().String()
}

// NewULID returns a generator of monotonic ULIDs: IDs generated within the
// same millisecond remain lexicographically increasing.
func NewULID() Generator {
	return newULID(func() io.Reader {
		var seed int64
		_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		return ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)
	})
}

// newULID draws entropy from a monotonic source made by entropy. When the
// source fails (monotonic overflow within one millisecond) it is replaced and
// the id retried once; a second failure falls back to a UUID.
func newULID(entropy func() io.Reader) Generator {
	var (
		mu   sync.Mutex
		mono = entropy()
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()

		now := ulid.Timestamp(time.Now().UTC())
		id, err := ulid.New(now, mono)
		if err != nil {
			mono = entropy()
			id, err = ulid.New(now, mono)
		}
		if err != nil {
			slog.Warn("ulid generation failed, using uuid", "err", err)
			return UUID()
		}
		return id.String()
	}
}
