package snapshot

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/roach88/geoul/internal/state"
)

// Input tape wire constants.
const (
	TapeMagic   = "DDNTAPE\n"
	TapeVersion = 1

	// tapeMaskLen is the only accepted record mask length: pressed(u16)
	// followed by released(u16).
	tapeMaskLen = 4
)

// TapeRecord is one tick of externally recorded input.
type TapeRecord struct {
	Madi     uint32
	Pressed  uint16
	Released uint16
}

// Tape is a decoded input tape: an ordered, contiguous-from-zero sequence
// of per-tick key masks, used to feed branch replay.
type Tape struct {
	RegistryID   string
	RegistryHash state.Hash
	MadiHz       uint32
	Records      []TapeRecord
}

// EncodeTape serializes a tape. The inverse of DecodeTape; mostly used by
// tests and the branch tooling to author tapes.
func EncodeTape(t *Tape) []byte {
	size := len(TapeMagic) + 2 + 4 + len(t.RegistryID) + state.HashSize + 4 + 4 +
		len(t.Records)*(4+4+tapeMaskLen)
	out := make([]byte, 0, size)
	out = append(out, TapeMagic...)
	out = binary.LittleEndian.AppendUint16(out, TapeVersion)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(t.RegistryID)))
	out = append(out, t.RegistryID...)
	out = append(out, t.RegistryHash[:]...)
	out = binary.LittleEndian.AppendUint32(out, t.MadiHz)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(t.Records)))

	for _, rec := range t.Records {
		out = binary.LittleEndian.AppendUint32(out, rec.Madi)
		out = binary.LittleEndian.AppendUint32(out, tapeMaskLen)
		out = binary.LittleEndian.AppendUint16(out, rec.Pressed)
		out = binary.LittleEndian.AppendUint16(out, rec.Released)
	}
	return out
}

// DecodeTape parses an input tape. Records must be contiguous from madi 0.
func DecodeTape(data []byte) (*Tape, error) {
	r := &byteReader{data: data}

	magic, err := r.bytes(len(TapeMagic), "tape magic")
	if err != nil {
		return nil, err
	}
	if string(magic) != TapeMagic {
		return nil, formatErrorf("bad tape magic %q", string(magic))
	}

	version, err := r.u16("tape version")
	if err != nil {
		return nil, err
	}
	if version != TapeVersion {
		return nil, formatErrorf("unsupported tape version %d", version)
	}

	t := &Tape{}
	if t.RegistryID, err = r.str("registry_id"); err != nil {
		return nil, err
	}
	hashBytes, err := r.bytes(state.HashSize, "registry_hash")
	if err != nil {
		return nil, err
	}
	copy(t.RegistryHash[:], hashBytes)
	if t.MadiHz, err = r.u32("madi_hz"); err != nil {
		return nil, err
	}

	count, err := r.u32("record_count")
	if err != nil {
		return nil, err
	}
	// 12 bytes per record at minimum.
	if uint64(count) > uint64(r.remaining())/12 {
		return nil, formatErrorf("record_count %d exceeds remaining bytes", count)
	}

	if count > 0 {
		t.Records = make([]TapeRecord, 0, count)
	}
	for i := uint32(0); i < count; i++ {
		var rec TapeRecord
		if rec.Madi, err = r.u32(fmt.Sprintf("record[%d].madi", i)); err != nil {
			return nil, err
		}
		if rec.Madi != i {
			return nil, formatErrorf("record[%d] has madi %d, tape must be contiguous from 0", i, rec.Madi)
		}
		maskLen, err := r.u32(fmt.Sprintf("record[%d].mask_len", i))
		if err != nil {
			return nil, err
		}
		if maskLen != tapeMaskLen {
			return nil, formatErrorf("record[%d] mask_len %d, want %d", i, maskLen, tapeMaskLen)
		}
		if rec.Pressed, err = r.u16(fmt.Sprintf("record[%d].pressed", i)); err != nil {
			return nil, err
		}
		if rec.Released, err = r.u16(fmt.Sprintf("record[%d].released", i)); err != nil {
			return nil, err
		}
		t.Records = append(t.Records, rec)
	}

	if r.remaining() != 0 {
		return nil, formatErrorf("%d trailing bytes after last tape record", r.remaining())
	}
	return t, nil
}

// LoadTape reads and decodes a tape file.
func LoadTape(path string) (*Tape, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tape %s: %w", path, err)
	}
	return DecodeTape(data)
}

// Synthesize converts tape records into snapshots continuing an existing
// timeline. firstMadi is the tick of the first synthetic snapshot, seed
// the RNG seed inherited from the base log's first frame, and held the
// held-key state of the branch-point frame. Held state evolves
// cumulatively: held' = (held | pressed) &^ released.
func (t *Tape) Synthesize(firstMadi uint64, seed uint64, held uint16) []*Snapshot {
	out := make([]*Snapshot, 0, len(t.Records))
	for i, rec := range t.Records {
		held = (held | rec.Pressed) &^ rec.Released
		out = append(out, &Snapshot{
			Madi:     firstMadi + uint64(i),
			Held:     held,
			Pressed:  rec.Pressed,
			Released: rec.Released,
			RNGSeed:  seed,
		})
	}
	return out
}
