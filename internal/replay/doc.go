// Package replay drives a program against recorded audit bundles.
//
// The core never interprets program semantics. It requires exactly one
// contract from the evaluator collaborator: run N ticks, calling
// BeforeTick before each tick (so recorded or synthetic input can be
// spliced into the state) and OnTick after it (so hashes and values can
// be captured). Hook errors propagate through Run's return value and
// abort the remaining ticks immediately; there is no hidden error side
// channel.
//
// The tick loop is strictly single-threaded and synchronous: tick t+1
// cannot start before tick t's OnTick returns, because state is causally
// dependent. Cancellation via context is honored only at whole-tick
// boundaries.
//
// On top of the driver contract the package implements the three replay
// tools: Query/Backtrace (point-in-time inspection), Branch (fork a new
// timeline with prefix-equivalence proof), and the snapshot injection
// convention they share.
package replay
