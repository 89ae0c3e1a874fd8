package bundle

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"lukechampine.com/blake3"

	"github.com/roach88/geoul/internal/snapshot"
	"github.com/roach88/geoul/internal/state"
)

const (
	bundleDirPerm  = 0o755
	bundleFilePerm = 0o644
	writerBufSize  = 64 * 1024
)

// Summary reports the outcome of one completed recording session.
type Summary struct {
	Dir        string
	RunID      string
	StartMadi  uint64
	EndMadi    uint64 // exclusive
	FrameCount uint64
	ByteSize   uint64
	AuditHash  state.Hash
}

// Writer records one audit bundle. It exclusively owns the open log file
// and the running whole-log hash; it is not safe for concurrent use and
// never needs to be, since the tick loop driving it is single-threaded.
//
// Output is staged in "<dir>.partial" and renamed to dir by Finish. A
// crash mid-recording leaves only the staging directory behind, which no
// reader will accept.
type Writer struct {
	dir     string // final directory
	staging string
	file    *os.File
	buf     *bufio.Writer
	logHash *blake3.Hasher

	header      Header
	stride      uint64
	toolchainID string
	runID       string

	nextMadi uint64
	offsets  []uint64
	size     uint64

	entryFile string
	entryHash state.Hash
	hasEntry  bool

	finished bool
	logger   *slog.Logger
}

// Create opens a new bundle for recording. It refuses to touch an
// existing bundle directory or a stale staging directory: overwriting an
// audit log in place is never what the caller wants. The header is
// written immediately and seeds the running whole-log hash.
func Create(dir string, header Header, stride uint64, toolchainID string) (*Writer, error) {
	if stride == 0 {
		stride = DefaultCheckpointStride
	}

	if _, err := os.Stat(dir); err == nil {
		return nil, fmt.Errorf("bundle directory %s already exists", dir)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("stat %s: %w", dir, err)
	}

	staging := dir + stagingSuffix
	if err := os.MkdirAll(filepath.Dir(dir), bundleDirPerm); err != nil {
		return nil, fmt.Errorf("create parent of %s: %w", dir, err)
	}
	if err := os.Mkdir(staging, bundleDirPerm); err != nil {
		return nil, fmt.Errorf("create staging directory: %w", err)
	}
	if err := os.Mkdir(filepath.Join(staging, CheckpointDir), bundleDirPerm); err != nil {
		return nil, fmt.Errorf("create checkpoint directory: %w", err)
	}

	file, err := os.OpenFile(filepath.Join(staging, LogFileName),
		os.O_WRONLY|os.O_CREATE|os.O_EXCL, bundleFilePerm)
	if err != nil {
		return nil, fmt.Errorf("create log file: %w", err)
	}

	runID, err := uuid.NewV7()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("generate run id: %w", err)
	}

	w := &Writer{
		dir:         dir,
		staging:     staging,
		file:        file,
		buf:         bufio.NewWriterSize(file, writerBufSize),
		logHash:     blake3.New(state.HashSize, nil),
		header:      header,
		stride:      stride,
		toolchainID: toolchainID,
		runID:       runID.String(),
		logger:      slog.Default(),
	}

	w.write(header.encode())
	return w, nil
}

// SetLogger replaces the writer's logger. Defaults to slog.Default().
func (w *Writer) SetLogger(logger *slog.Logger) {
	if logger != nil {
		w.logger = logger
	}
}

// SetEntry records which source program produced this log. Carried into
// the manifest; optional.
func (w *Writer) SetEntry(fileName string, contentHash state.Hash) {
	w.entryFile = fileName
	w.entryHash = contentHash
	w.hasEntry = true
}

// RunID returns the UUIDv7 stamped into this bundle's manifest.
func (w *Writer) RunID() string {
	return w.runID
}

// write appends bytes to the log through the buffer while feeding the
// running hash. The hash therefore covers header and frames in exact
// write order.
func (w *Writer) write(data []byte) {
	// bufio.Writer and blake3.Hasher writes cannot fail short of the
	// underlying file failing, which Flush surfaces in Finish.
	w.buf.Write(data)
	w.logHash.Write(data)
	w.size += uint64(len(data))
}

// RecordFrame appends one frame. Frames must arrive in strictly
// increasing madi order starting at 0; the writer does not reorder or
// buffer out-of-order frames. stateBytes is the canonical state encoding
// for the tick (volatile keys already stripped); its blake3 fingerprint
// becomes the frame's state hash. At stride boundaries the canonical
// state is also dumped to a checkpoint file.
func (w *Writer) RecordFrame(madi uint64, snapshotBytes, stateBytes []byte, traces TraceBlobs) error {
	if w.finished {
		return fmt.Errorf("writer already finished")
	}
	if madi != w.nextMadi {
		return newError(ErrCodeConsistency, "frame madi %d out of order, want %d", madi, w.nextMadi)
	}

	// The snapshot's own madi must agree with the frame's.
	snap, err := snapshot.Decode(snapshotBytes)
	if err != nil {
		return wrapError(ErrCodeFormat, err, "frame %d snapshot", madi)
	}
	if snap.Madi != madi {
		return newError(ErrCodeConsistency, "snapshot madi %d disagrees with frame madi %d", snap.Madi, madi)
	}

	for _, blob := range [][]byte{snapshotBytes, traces.Patch, traces.Alrim, traces.Full} {
		if uint64(len(blob)) > math.MaxUint32 {
			return newError(ErrCodeConsistency, "frame %d blob length %d overflows u32", madi, len(blob))
		}
	}

	fh := FrameHeader{
		Madi:        madi,
		StateHash:   state.HashBytes(stateBytes),
		SnapshotLen: uint32(len(snapshotBytes)),
		PatchLen:    uint32(len(traces.Patch)),
		AlrimLen:    uint32(len(traces.Alrim)),
		FullLen:     uint32(len(traces.Full)),
	}

	w.offsets = append(w.offsets, w.size)
	w.write(fh.encode())
	w.write(snapshotBytes)
	w.write(traces.Patch)
	w.write(traces.Alrim)
	w.write(traces.Full)
	w.nextMadi++

	if madi%w.stride == 0 {
		cpPath := filepath.Join(w.staging, CheckpointDir, CheckpointFileName(madi))
		if err := os.WriteFile(cpPath, stateBytes, bundleFilePerm); err != nil {
			return fmt.Errorf("write checkpoint at madi %d: %w", madi, err)
		}
	}
	return nil
}

// Finish flushes the log, finalizes the whole-log hash, writes the offset
// index and the manifest, and renames the staging directory into place.
// After Finish returns the bundle is immutable.
func (w *Writer) Finish() (*Summary, error) {
	if w.finished {
		return nil, fmt.Errorf("writer already finished")
	}
	w.finished = true

	if err := w.buf.Flush(); err != nil {
		w.file.Close()
		return nil, fmt.Errorf("flush log: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		w.file.Close()
		return nil, fmt.Errorf("sync log: %w", err)
	}
	if err := w.file.Close(); err != nil {
		return nil, fmt.Errorf("close log: %w", err)
	}

	var auditHash state.Hash
	copy(auditHash[:], w.logHash.Sum(nil))

	if err := w.writeIndex(); err != nil {
		return nil, err
	}

	m := &Manifest{
		Kind:             ManifestKind,
		Version:          FormatVersion,
		StartedAt:        w.header.StartedAt,
		DetTier:          w.header.DetTier,
		NumBackend:       w.header.NumBackend,
		TraceTier:        w.header.TraceTier.String(),
		CommitPolicy:     w.header.CommitPolicy,
		CheckpointStride: w.stride,
		StartMadi:        0,
		EndMadi:          w.nextMadi,
		FrameCount:       w.nextMadi,
		ByteSize:         w.size,
		AuditHash:        auditHash.String(),
		RunID:            w.runID,
		ToolchainID:      w.toolchainID,
	}
	if w.hasEntry {
		m.EntryFile = w.entryFile
		m.EntryHash = w.entryHash.String()
	}

	data, err := m.encode()
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(w.staging, ManifestFileName), data, bundleFilePerm); err != nil {
		return nil, fmt.Errorf("write manifest: %w", err)
	}

	if err := os.Rename(w.staging, w.dir); err != nil {
		return nil, fmt.Errorf("finalize bundle: %w", err)
	}

	w.logger.Info("bundle finished",
		"dir", w.dir,
		"run_id", w.runID,
		"frames", w.nextMadi,
		"bytes", w.size,
		"audit_hash", auditHash.String())

	return &Summary{
		Dir:        w.dir,
		RunID:      w.runID,
		StartMadi:  0,
		EndMadi:    w.nextMadi,
		FrameCount: w.nextMadi,
		ByteSize:   w.size,
		AuditHash:  auditHash,
	}, nil
}

// Abort discards an unfinished recording, removing the staging directory.
// Calling Abort after Finish is a no-op.
func (w *Writer) Abort() error {
	if w.finished {
		return nil
	}
	w.finished = true
	w.file.Close()
	if err := os.RemoveAll(w.staging); err != nil {
		return fmt.Errorf("remove staging directory: %w", err)
	}
	return nil
}

func (w *Writer) writeIndex() error {
	out := make([]byte, 0, len(w.offsets)*8)
	for _, off := range w.offsets {
		out = binary.LittleEndian.AppendUint64(out, off)
	}
	if err := os.WriteFile(filepath.Join(w.staging, IndexFileName), out, bundleFilePerm); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	return nil
}
