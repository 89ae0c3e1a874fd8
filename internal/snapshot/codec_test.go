package snapshot

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSnapshot() *Snapshot {
	return &Snapshot{
		Madi:     42,
		Held:     0b0000_0101,
		Pressed:  0b0000_0001,
		Released: 0b0000_1000,
		RNGSeed:  0xDEADBEEFCAFE1234,
		Events: []NetEvent{
			{Sender: "peer-a", Seq: 1, OrderKey: "000001/peer-a", Payload: `{"move":"L"}`},
			{Sender: "peer-b", Seq: 7, OrderKey: "000002/peer-b", Payload: ""},
		},
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		snap *Snapshot
	}{
		{"zero value", &Snapshot{}},
		{"no events", &Snapshot{Madi: 9, Held: 0xFFFF, RNGSeed: 1}},
		{"with events", sampleSnapshot()},
		{"unicode payload", &Snapshot{Events: []NetEvent{{Sender: "서버", OrderKey: "키", Payload: "안녕"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded := tt.snap.Encode()
			decoded, err := Decode(encoded)
			require.NoError(t, err)
			assert.Equal(t, tt.snap, decoded)

			// Byte-level law: re-encoding the decoded value reproduces
			// the original bytes exactly.
			assert.Equal(t, encoded, decoded.Encode())
		})
	}
}

func TestDecodeBadMagic(t *testing.T) {
	encoded := sampleSnapshot().Encode()
	encoded[0] = 'X'
	_, err := Decode(encoded)
	require.Error(t, err)
	var fe *FormatError
	assert.ErrorAs(t, err, &fe)
}

func TestDecodeTruncated(t *testing.T) {
	encoded := sampleSnapshot().Encode()
	for _, cut := range []int{0, 5, len(Magic), len(Magic) + 3, len(encoded) - 1} {
		_, err := Decode(encoded[:cut])
		assert.Error(t, err, "cut at %d", cut)
	}
}

func TestDecodeTrailingBytes(t *testing.T) {
	encoded := append(sampleSnapshot().Encode(), 0x00)
	_, err := Decode(encoded)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trailing")
}

func TestDecodeOverclaimingLength(t *testing.T) {
	snap := &Snapshot{Events: []NetEvent{{Sender: "ab", OrderKey: "k", Payload: "p"}}}
	encoded := snap.Encode()

	// The sender length prefix sits right after the fixed fields and the
	// event count. Inflate it past the end of the buffer.
	lenOff := len(Magic) + 8 + 2 + 2 + 2 + 8 + 4
	binary.LittleEndian.PutUint32(encoded[lenOff:], 1<<30)
	_, err := Decode(encoded)
	assert.Error(t, err)
}

func TestDecodeOverclaimingEventCount(t *testing.T) {
	encoded := (&Snapshot{}).Encode()
	countOff := len(Magic) + 8 + 2 + 2 + 2 + 8
	binary.LittleEndian.PutUint32(encoded[countOff:], 1<<31)
	_, err := Decode(encoded)
	assert.Error(t, err)
}

func TestDecodeInvalidUTF8(t *testing.T) {
	snap := &Snapshot{Events: []NetEvent{{Sender: "ok", OrderKey: "k", Payload: "pp"}}}
	encoded := snap.Encode()
	// Corrupt the payload bytes (last 2 bytes of the buffer).
	encoded[len(encoded)-1] = 0xFF
	encoded[len(encoded)-2] = 0xC0
	_, err := Decode(encoded)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UTF-8")
}
