package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/geoul/internal/state"
)

func sampleTape() *Tape {
	return &Tape{
		RegistryID:   "keys/kr-std",
		RegistryHash: state.HashBytes([]byte("registry")),
		MadiHz:       60,
		Records: []TapeRecord{
			{Madi: 0, Pressed: 0b01, Released: 0},
			{Madi: 1, Pressed: 0b10, Released: 0b01},
			{Madi: 2, Pressed: 0, Released: 0b10},
		},
	}
}

func TestTapeRoundTrip(t *testing.T) {
	tape := sampleTape()
	encoded := EncodeTape(tape)
	decoded, err := DecodeTape(encoded)
	require.NoError(t, err)
	assert.Equal(t, tape, decoded)
	assert.Equal(t, encoded, EncodeTape(decoded))
}

func TestLoadTape(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input.tape")
	require.NoError(t, os.WriteFile(path, EncodeTape(sampleTape()), 0o644))

	tape, err := LoadTape(path)
	require.NoError(t, err)
	assert.Len(t, tape.Records, 3)

	_, err = LoadTape(filepath.Join(t.TempDir(), "missing.tape"))
	assert.Error(t, err)
}

func TestDecodeTapeNonContiguous(t *testing.T) {
	tape := sampleTape()
	tape.Records[1].Madi = 5
	_, err := DecodeTape(EncodeTape(tape))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "contiguous")
}

func TestDecodeTapeBadMagicAndVersion(t *testing.T) {
	encoded := EncodeTape(sampleTape())

	bad := append([]byte{}, encoded...)
	bad[0] = 'x'
	_, err := DecodeTape(bad)
	assert.Error(t, err)

	bad = append([]byte{}, encoded...)
	bad[len(TapeMagic)] = 0xFF // version
	_, err = DecodeTape(bad)
	assert.Error(t, err)
}

func TestDecodeTapeTrailing(t *testing.T) {
	_, err := DecodeTape(append(EncodeTape(sampleTape()), 0x01))
	assert.Error(t, err)
}

func TestSynthesizeHeldEvolution(t *testing.T) {
	tape := sampleTape()
	snaps := tape.Synthesize(10, 0xABCD, 0b100)

	require.Len(t, snaps, 3)
	// held starts at 0b100 and folds in each record's pressed/released.
	assert.Equal(t, uint64(10), snaps[0].Madi)
	assert.Equal(t, uint16(0b101), snaps[0].Held)
	assert.Equal(t, uint16(0b110), snaps[1].Held)
	assert.Equal(t, uint16(0b100), snaps[2].Held)
	for _, s := range snaps {
		assert.Equal(t, uint64(0xABCD), s.RNGSeed)
	}
}
