// Package bundle implements the geoul audit log on disk.
//
// A bundle is one directory holding a complete recording:
//
//	audit.ddni        append-only log: header, then one frame per tick
//	audit.idx         one u64 byte-offset per frame (write order)
//	checkpoints/      full canonical state dumps at stride boundaries
//	manifest.detjson  summary written once on Finish
//
// The Writer exclusively owns the log file handle and the running
// whole-log hash for the duration of one recording session. Output is
// staged in a ".partial" sibling directory and renamed into place by
// Finish, so a directory without a manifest is never a valid bundle and
// readers refuse it. Once Finish returns, the bytes are immutable and any
// number of Readers may open them concurrently without coordination.
//
// All integers on disk are little-endian. Frame madi values are strictly
// increasing from 0 with no gaps; the frame at logical position i always
// carries madi i.
package bundle
