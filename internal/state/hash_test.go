package state

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func inputMirror(key string) bool {
	return strings.HasPrefix(key, "input_")
}

func TestHashStateIgnoresVolatileKeys(t *testing.T) {
	base := Object{
		"gold": Int(10),
		"hp":   Int(40),
	}
	withMirrors := Object{
		"gold":          Int(10),
		"hp":            Int(40),
		"input_held":    Int(3),
		"input_pressed": Int(1),
	}

	h1, err := HashState(base, inputMirror)
	require.NoError(t, err)
	h2, err := HashState(withMirrors, inputMirror)
	require.NoError(t, err)

	assert.Equal(t, h1, h2, "states equal modulo volatile keys must hash identically")
}

func TestHashStateSensitivity(t *testing.T) {
	a := Object{"gold": Int(10)}
	b := Object{"gold": Int(11)}

	ha, err := HashState(a, nil)
	require.NoError(t, err)
	hb, err := HashState(b, nil)
	require.NoError(t, err)

	assert.NotEqual(t, ha, hb)
}

func TestHashStateMatchesCanonicalBytes(t *testing.T) {
	st := Object{"b": Int(2), "a": Int(1), "input_held": Int(7)}

	canonical, err := Canonicalize(st, inputMirror)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1,"b":2}`, string(canonical))

	h, err := HashState(st, inputMirror)
	require.NoError(t, err)
	assert.Equal(t, HashBytes(canonical), h)
}

func TestCanonicalizeDoesNotMutateInput(t *testing.T) {
	st := Object{"keep": Int(1), "input_held": Int(2)}
	_, err := Canonicalize(st, inputMirror)
	require.NoError(t, err)
	assert.Contains(t, st, "input_held")
}

func TestParseHashRoundTrip(t *testing.T) {
	h := HashBytes([]byte("deterministic"))
	parsed, err := ParseHash(h.String())
	require.NoError(t, err)
	assert.Equal(t, h, parsed)

	_, err = ParseHash("abcd")
	assert.Error(t, err)
	_, err = ParseHash("zz")
	assert.Error(t, err)
}

func TestHashWithDomainSeparation(t *testing.T) {
	data := []byte("payload")
	assert.NotEqual(t, HashWithDomain(DomainEntry, data), HashWithDomain(DomainTape, data))
	assert.NotEqual(t, HashWithDomain(DomainEntry, data), HashBytes(data))
}
