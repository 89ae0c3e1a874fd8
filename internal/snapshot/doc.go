// Package snapshot implements the deterministic input-snapshot codec.
//
// An input snapshot is the unit of record in an audit log: one tick's
// recorded input (key-state masks, the tick's RNG seed, and an ordered
// list of network events). Encoding is total and deterministic; decoding
// rejects bad magic, over-claiming lengths, non-UTF-8 strings, and
// trailing bytes. The round-trip law holds in both directions:
// Decode(Encode(s)) == s and Encode(Decode(b)) == b.
//
// The package also decodes input tape files, the externally recorded key
// sequences fed to branch replay.
//
// All integers are little-endian on the wire.
package snapshot
