// Package state provides the deterministic state value model for geoul.
//
// Replay correctness rests on one property: encoding a state object is a
// pure function of its logical value. No map iteration order, no locale
// formatting, no floats. The canonical encoding ("detjson") follows
// RFC 8785: keys sorted by UTF-16 code units, NFC-normalized strings, no
// HTML escaping.
//
// Key design constraints:
//   - NO float types anywhere - use Int (int64) for numbers
//   - NO null values - absence is expressed by omitting the key
//   - Volatile keys (raw input mirrors) are stripped before hashing so
//     they never affect the audit trail
//   - Fingerprints are blake3-256 over the canonical bytes
package state
