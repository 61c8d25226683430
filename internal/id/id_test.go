package id

import (
	"crypto/rand"
	"errors"
	"io"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGenerator_UUID(t *testing.T) {
	gen, err := NewGenerator("")
	require.NoError(t, err)

	a, b := gen(), gen()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}

func TestNewGenerator_ULIDMonotonic(t *testing.T) {
	gen, err := NewGenerator(SchemeULID)
	require.NoError(t, err)

	prev := gen()
	for i := 0; i < 1000; i++ {
		next := gen()
		assert.Len(t, next, 26)
		assert.Greater(t, next, prev)
		prev = next
	}
}

func TestNewGenerator_Unknown(t *testing.T) {
	_, err := NewGenerator("snowflake")
	assert.Error(t, err)
}

func TestULID_ReplacesFailedEntropy(t *testing.T) {
	calls := 0
	gen := newULID(func() io.Reader {
		calls++
		if calls == 1 {
			return iotest.ErrReader(errors.New("exhausted"))
		}
		return rand.Reader
	})

	assert.NotPanics(t, func() {
		assert.Len(t, gen(), 26)
	})
	assert.Equal(t, 2, calls)
}

func TestULID_FallsBackToUUID(t *testing.T) {
	gen := newULID(func() io.Reader {
		return iotest.ErrReader(errors.New("exhausted"))
	})

	var got string
	assert.NotPanics(t, func() { got = gen() })
	assert.Len(t, got, 36)
}
