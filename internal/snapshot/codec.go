package snapshot

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf8"
)

// Magic is the leading tag of every encoded snapshot.
const Magic = "DDN_SAM_V1\n"

// FormatError reports malformed snapshot or tape bytes. Format errors are
// fatal and non-retryable.
type FormatError struct {
	Msg string
}

func (e *FormatError) Error() string {
	return "snapshot format: " + e.Msg
}

func formatErrorf(format string, args ...any) error {
	return &FormatError{Msg: fmt.Sprintf(format, args...)}
}

// NetEvent is one ordered network event recorded within a tick.
type NetEvent struct {
	Sender   string // sending peer id
	Seq      uint64 // monotonic per-sender sequence number
	OrderKey string // total-order key assigned by the network layer
	Payload  string // opaque event payload
}

// Snapshot is the recorded input for one tick.
type Snapshot struct {
	Madi     uint64 // tick index
	Held     uint16 // key-state bitmask: keys currently down
	Pressed  uint16 // keys that went down this tick
	Released uint16 // keys that went up this tick
	RNGSeed  uint64
	Events   []NetEvent
}

// Encode serializes the snapshot. Encoding is total: every Snapshot value
// has exactly one byte representation.
func (s *Snapshot) Encode() []byte {
	var buf bytes.Buffer
	buf.WriteString(Magic)

	var scratch [8]byte
	putU64 := func(v uint64) {
		binary.LittleEndian.PutUint64(scratch[:8], v)
		buf.Write(scratch[:8])
	}
	putU32 := func(v uint32) {
		binary.LittleEndian.PutUint32(scratch[:4], v)
		buf.Write(scratch[:4])
	}
	putU16 := func(v uint16) {
		binary.LittleEndian.PutUint16(scratch[:2], v)
		buf.Write(scratch[:2])
	}
	putString := func(v string) {
		putU32(uint32(len(v)))
		buf.WriteString(v)
	}

	putU64(s.Madi)
	putU16(s.Held)
	putU16(s.Pressed)
	putU16(s.Released)
	putU64(s.RNGSeed)
	putU32(uint32(len(s.Events)))

	for _, ev := range s.Events {
		putString(ev.Sender)
		putU64(ev.Seq)
		putString(ev.OrderKey)
		putString(ev.Payload)
	}

	return buf.Bytes()
}

// Decode parses an encoded snapshot. It fails if the magic does not
// match, any length prefix claims more bytes than remain, a string is not
// valid UTF-8, or bytes are left over after the last field (no padding).
func Decode(data []byte) (*Snapshot, error) {
	r := &byteReader{data: data}

	magic, err := r.bytes(len(Magic), "magic")
	if err != nil {
		return nil, err
	}
	if string(magic) != Magic {
		return nil, formatErrorf("bad magic %q", string(magic))
	}

	s := &Snapshot{}
	if s.Madi, err = r.u64("madi"); err != nil {
		return nil, err
	}
	if s.Held, err = r.u16("held"); err != nil {
		return nil, err
	}
	if s.Pressed, err = r.u16("pressed"); err != nil {
		return nil, err
	}
	if s.Released, err = r.u16("released"); err != nil {
		return nil, err
	}
	if s.RNGSeed, err = r.u64("rng_seed"); err != nil {
		return nil, err
	}

	count, err := r.u32("event_count")
	if err != nil {
		return nil, err
	}
	// Each event takes at least 20 bytes (three empty strings + seq), so
	// a count claiming more than the remaining bytes cannot be satisfied.
	if uint64(count) > uint64(r.remaining())/20 {
		return nil, formatErrorf("event_count %d exceeds remaining bytes", count)
	}
	if count > 0 {
		s.Events = make([]NetEvent, 0, count)
	}
	for i := uint32(0); i < count; i++ {
		var ev NetEvent
		if ev.Sender, err = r.str(fmt.Sprintf("event[%d].sender", i)); err != nil {
			return nil, err
		}
		if ev.Seq, err = r.u64(fmt.Sprintf("event[%d].seq", i)); err != nil {
			return nil, err
		}
		if ev.OrderKey, err = r.str(fmt.Sprintf("event[%d].order_key", i)); err != nil {
			return nil, err
		}
		if ev.Payload, err = r.str(fmt.Sprintf("event[%d].payload", i)); err != nil {
			return nil, err
		}
		s.Events = append(s.Events, ev)
	}

	if r.remaining() != 0 {
		return nil, formatErrorf("%d trailing bytes after last field", r.remaining())
	}
	return s, nil
}

// byteReader consumes little-endian fields from a byte slice, failing on
// any read past the end.
type byteReader struct {
	data []byte
	off  int
}

func (r *byteReader) remaining() int {
	return len(r.data) - r.off
}

func (r *byteReader) bytes(n int, field string) ([]byte, error) {
	if n < 0 || r.remaining() < n {
		return nil, formatErrorf("truncated reading %s: need %d bytes, have %d", field, n, r.remaining())
	}
	out := r.data[r.off : r.off+n]
	r.off += n
	return out, nil
}

func (r *byteReader) u16(field string) (uint16, error) {
	b, err := r.bytes(2, field)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *byteReader) u32(field string) (uint32, error) {
	b, err := r.bytes(4, field)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *byteReader) u64(field string) (uint64, error) {
	b, err := r.bytes(8, field)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *byteReader) str(field string) (string, error) {
	n, err := r.u32(field + " length")
	if err != nil {
		return "", err
	}
	if uint64(n) > math.MaxInt32 || int(n) > r.remaining() {
		return "", formatErrorf("%s claims %d bytes, %d remain", field, n, r.remaining())
	}
	b, err := r.bytes(int(n), field)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", formatErrorf("%s is not valid UTF-8", field)
	}
	return string(b), nil
}
