package bundle

import (
	"encoding/binary"
	"fmt"

	"github.com/roach88/geoul/internal/state"
)

// On-disk names and layout constants.
const (
	LogFileName      = "audit.ddni"
	IndexFileName    = "audit.idx"
	ManifestFileName = "manifest.detjson"
	CheckpointDir    = "checkpoints"

	// FileMagic opens every audit log.
	FileMagic = "DDNI"

	// FormatVersion is the current log format version.
	FormatVersion uint16 = 1

	// DefaultCheckpointStride is the tick interval between full-state
	// checkpoint files when the caller does not choose one.
	DefaultCheckpointStride uint64 = 256

	headerSize      = 32
	frameHeaderSize = 60

	// stagingSuffix marks an in-progress bundle directory. Finish renames
	// it away; anything still carrying the suffix is incomplete.
	stagingSuffix = ".partial"
)

// TraceTier selects how much auxiliary trace data each frame carries,
// trading log size for replay/debug fidelity.
type TraceTier uint32

const (
	TraceOff   TraceTier = 0
	TracePatch TraceTier = 1
	TraceAlrim TraceTier = 2
	TraceFull  TraceTier = 3
)

func (t TraceTier) String() string {
	switch t {
	case TraceOff:
		return "off"
	case TracePatch:
		return "patch"
	case TraceAlrim:
		return "alrim"
	case TraceFull:
		return "full"
	default:
		return fmt.Sprintf("tier(%d)", uint32(t))
	}
}

// ParseTraceTier maps a tier name back to its value.
func ParseTraceTier(s string) (TraceTier, error) {
	switch s {
	case "off":
		return TraceOff, nil
	case "patch":
		return TracePatch, nil
	case "alrim":
		return TraceAlrim, nil
	case "full":
		return TraceFull, nil
	default:
		return 0, fmt.Errorf("unknown trace tier %q", s)
	}
}

// Header is the fixed-size metadata written once at file start. Immutable
// for the life of one log.
type Header struct {
	StartedAt    uint64
	DetTier      uint32
	NumBackend   uint32
	TraceTier    TraceTier
	CommitPolicy uint32
}

// encode renders the 32-byte on-disk header:
// MAGIC(4) VERSION(u16) RESERVED(u16) started_at(u64) det_tier(u32)
// num_backend(u32) trace_tier(u32) commit_policy(u32).
func (h *Header) encode() []byte {
	out := make([]byte, 0, headerSize)
	out = append(out, FileMagic...)
	out = binary.LittleEndian.AppendUint16(out, FormatVersion)
	out = binary.LittleEndian.AppendUint16(out, 0) // reserved, must be zero
	out = binary.LittleEndian.AppendUint64(out, h.StartedAt)
	out = binary.LittleEndian.AppendUint32(out, h.DetTier)
	out = binary.LittleEndian.AppendUint32(out, h.NumBackend)
	out = binary.LittleEndian.AppendUint32(out, uint32(h.TraceTier))
	out = binary.LittleEndian.AppendUint32(out, h.CommitPolicy)
	return out
}

func decodeHeader(data []byte) (*Header, error) {
	if len(data) < headerSize {
		return nil, newError(ErrCodeFormat, "log header truncated: %d bytes, want %d", len(data), headerSize)
	}
	if string(data[:4]) != FileMagic {
		return nil, newError(ErrCodeFormat, "bad log magic %q", string(data[:4]))
	}
	version := binary.LittleEndian.Uint16(data[4:6])
	if version != FormatVersion {
		return nil, newError(ErrCodeFormat, "unsupported log version %d", version)
	}
	return &Header{
		StartedAt:    binary.LittleEndian.Uint64(data[8:16]),
		DetTier:      binary.LittleEndian.Uint32(data[16:20]),
		NumBackend:   binary.LittleEndian.Uint32(data[20:24]),
		TraceTier:    TraceTier(binary.LittleEndian.Uint32(data[24:28])),
		CommitPolicy: binary.LittleEndian.Uint32(data[28:32]),
	}, nil
}

// FrameHeader is the fixed-size per-tick record preceding each frame's
// payload bytes.
type FrameHeader struct {
	Madi        uint64
	StateHash   state.Hash
	SnapshotLen uint32
	PatchLen    uint32
	AlrimLen    uint32
	FullLen     uint32
}

// PayloadLen is the total byte length of the frame's payload blobs.
func (fh *FrameHeader) PayloadLen() uint64 {
	return uint64(fh.SnapshotLen) + uint64(fh.PatchLen) + uint64(fh.AlrimLen) + uint64(fh.FullLen)
}

func (fh *FrameHeader) encode() []byte {
	out := make([]byte, 0, frameHeaderSize)
	out = binary.LittleEndian.AppendUint64(out, fh.Madi)
	out = append(out, fh.StateHash[:]...)
	out = binary.LittleEndian.AppendUint32(out, fh.SnapshotLen)
	out = binary.LittleEndian.AppendUint32(out, fh.PatchLen)
	out = binary.LittleEndian.AppendUint32(out, fh.AlrimLen)
	out = binary.LittleEndian.AppendUint32(out, fh.FullLen)
	out = binary.LittleEndian.AppendUint32(out, 0) // reserved, must be zero
	return out
}

func decodeFrameHeader(data []byte) (*FrameHeader, error) {
	if len(data) < frameHeaderSize {
		return nil, newError(ErrCodeFormat, "frame header truncated: %d bytes, want %d", len(data), frameHeaderSize)
	}
	fh := &FrameHeader{
		Madi:        binary.LittleEndian.Uint64(data[0:8]),
		SnapshotLen: binary.LittleEndian.Uint32(data[40:44]),
		PatchLen:    binary.LittleEndian.Uint32(data[44:48]),
		AlrimLen:    binary.LittleEndian.Uint32(data[48:52]),
		FullLen:     binary.LittleEndian.Uint32(data[52:56]),
	}
	copy(fh.StateHash[:], data[8:40])
	if reserved := binary.LittleEndian.Uint32(data[56:60]); reserved != 0 {
		return nil, newError(ErrCodeFormat, "frame reserved field is %d, must be zero", reserved)
	}
	return fh, nil
}

// TraceBlobs carries a frame's optional trace payloads. Present blobs are
// written after the snapshot in patch, alrim, full order.
type TraceBlobs struct {
	Patch []byte
	Alrim []byte
	Full  []byte
}

// Frame is a fully materialized per-tick record.
type Frame struct {
	FrameHeader
	Snapshot []byte
	Traces   TraceBlobs
}

// CheckpointFileName returns the file name of the checkpoint for a tick,
// e.g. "cp_000256.detbin".
func CheckpointFileName(madi uint64) string {
	return fmt.Sprintf("cp_%06d.detbin", madi)
}
