package bundle

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"lukechampine.com/blake3"

	"github.com/roach88/geoul/internal/snapshot"
	"github.com/roach88/geoul/internal/state"
)

// Reader provides O(1) random access to a finished bundle. The log is
// immutable, so any number of Readers may work on the same directory
// concurrently; a single Reader is also safe for concurrent reads since
// all file access goes through ReadAt.
type Reader struct {
	dir      string
	file     *os.File
	header   Header
	manifest *Manifest
	offsets  []uint64
	logSize  uint64
}

// Open validates a bundle directory and loads its offset index into
// memory. Directories without a manifest (never finished, or mid-crash
// staging leftovers) are rejected.
func Open(dir string) (*Reader, error) {
	manifest, err := LoadManifest(dir)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(filepath.Join(dir, LogFileName))
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}

	r := &Reader{dir: dir, file: file, manifest: manifest}
	if err := r.init(); err != nil {
		file.Close()
		return nil, err
	}
	return r, nil
}

func (r *Reader) init() error {
	headerBytes := make([]byte, headerSize)
	if _, err := io.ReadFull(io.NewSectionReader(r.file, 0, headerSize), headerBytes); err != nil {
		return wrapError(ErrCodeFormat, err, "read log header")
	}
	header, err := decodeHeader(headerBytes)
	if err != nil {
		return err
	}
	r.header = *header

	info, err := r.file.Stat()
	if err != nil {
		return fmt.Errorf("stat log: %w", err)
	}
	r.logSize = uint64(info.Size())

	indexBytes, err := os.ReadFile(filepath.Join(r.dir, IndexFileName))
	if err != nil {
		return fmt.Errorf("read index: %w", err)
	}
	if len(indexBytes)%8 != 0 {
		return newError(ErrCodeFormat, "index length %d is not a multiple of 8", len(indexBytes))
	}

	count := len(indexBytes) / 8
	if uint64(count) != r.manifest.FrameCount {
		return newError(ErrCodeConsistency, "index has %d offsets, manifest declares %d frames",
			count, r.manifest.FrameCount)
	}

	r.offsets = make([]uint64, count)
	for i := 0; i < count; i++ {
		off := binary.LittleEndian.Uint64(indexBytes[i*8:])
		if off < headerSize || off+frameHeaderSize > r.logSize {
			return newError(ErrCodeFormat, "offset %d of frame %d is outside the log", off, i)
		}
		r.offsets[i] = off
	}
	return nil
}

// Close releases the log file handle.
func (r *Reader) Close() error {
	return r.file.Close()
}

// Dir returns the bundle directory.
func (r *Reader) Dir() string {
	return r.dir
}

// Header returns the log header.
func (r *Reader) Header() Header {
	return r.header
}

// Manifest returns the bundle manifest.
func (r *Reader) Manifest() *Manifest {
	return r.manifest
}

// FrameCount returns the number of recorded frames.
func (r *Reader) FrameCount() uint64 {
	return uint64(len(r.offsets))
}

// ReadFrameHeader reads just the fixed-size header of one frame. O(1),
// no payload bytes touched.
func (r *Reader) ReadFrameHeader(madi uint64) (*FrameHeader, error) {
	if madi >= r.FrameCount() {
		return nil, newError(ErrCodeRange, "madi %d outside [0, %d)", madi, r.FrameCount())
	}

	buf := make([]byte, frameHeaderSize)
	if _, err := r.file.ReadAt(buf, int64(r.offsets[madi])); err != nil {
		return nil, wrapError(ErrCodeFormat, err, "read frame %d header", madi)
	}
	fh, err := decodeFrameHeader(buf)
	if err != nil {
		return nil, err
	}
	if fh.Madi != madi {
		return nil, newError(ErrCodeConsistency, "frame at position %d carries madi %d", madi, fh.Madi)
	}
	return fh, nil
}

// ReadFrame reads one frame's header plus all its payload blobs.
func (r *Reader) ReadFrame(madi uint64) (*Frame, error) {
	fh, err := r.ReadFrameHeader(madi)
	if err != nil {
		return nil, err
	}

	payloadOff := r.offsets[madi] + frameHeaderSize
	if payloadOff+fh.PayloadLen() > r.logSize {
		return nil, newError(ErrCodeFormat, "frame %d payload (%d bytes) extends past end of log", madi, fh.PayloadLen())
	}

	payload := make([]byte, fh.PayloadLen())
	if _, err := r.file.ReadAt(payload, int64(payloadOff)); err != nil {
		return nil, wrapError(ErrCodeFormat, err, "read frame %d payload", madi)
	}

	frame := &Frame{FrameHeader: *fh}
	frame.Snapshot, payload = payload[:fh.SnapshotLen], payload[fh.SnapshotLen:]
	frame.Traces.Patch, payload = payload[:fh.PatchLen], payload[fh.PatchLen:]
	frame.Traces.Alrim, payload = payload[:fh.AlrimLen], payload[fh.AlrimLen:]
	frame.Traces.Full = payload[:fh.FullLen]
	return frame, nil
}

// ReadSnapshot reads and decodes the recorded input snapshot of one
// frame, verifying its own madi agrees with the frame's.
func (r *Reader) ReadSnapshot(madi uint64) (*snapshot.Snapshot, error) {
	frame, err := r.ReadFrame(madi)
	if err != nil {
		return nil, err
	}
	snap, err := snapshot.Decode(frame.Snapshot)
	if err != nil {
		return nil, wrapError(ErrCodeFormat, err, "frame %d snapshot", madi)
	}
	if snap.Madi != madi {
		return nil, newError(ErrCodeConsistency, "snapshot madi %d disagrees with frame madi %d", snap.Madi, madi)
	}
	return snap, nil
}

// LoadCheckpoint reads the raw canonical state bytes checkpointed at the
// given tick. Fails if the tick was not on a stride boundary.
func (r *Reader) LoadCheckpoint(madi uint64) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(r.dir, CheckpointDir, CheckpointFileName(madi)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, newError(ErrCodeRange, "no checkpoint at madi %d", madi)
		}
		return nil, fmt.Errorf("read checkpoint %d: %w", madi, err)
	}
	return data, nil
}

// Verify recomputes the whole-log hash over the exact file bytes and
// compares it against the manifest. This is the cheap end-to-end
// integrity check backing `geoul verify`.
func Verify(dir string) error {
	manifest, err := LoadManifest(dir)
	if err != nil {
		return err
	}

	file, err := os.Open(filepath.Join(dir, LogFileName))
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	defer file.Close()

	h := blake3.New(state.HashSize, nil)
	if _, err := io.Copy(h, file); err != nil {
		return fmt.Errorf("hash log: %w", err)
	}
	var got state.Hash
	copy(got[:], h.Sum(nil))

	want, err := state.ParseHash(manifest.AuditHash)
	if err != nil {
		return wrapError(ErrCodeFormat, err, "manifest audit_hash")
	}
	if got != want {
		return newError(ErrCodeVerify, "audit hash mismatch: log hashes to %s, manifest says %s", got, want)
	}
	return nil
}
