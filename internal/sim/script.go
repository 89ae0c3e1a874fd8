package sim

import (
	"fmt"

	"github.com/roach88/geoul/internal/snapshot"
)

// Script generates a deterministic input script of n snapshots from a
// seed: pseudorandom key masks with correct held/pressed/released
// bookkeeping and the occasional net event. The same (n, seed) always
// yields the same script, so recordings made from it replay bit-exact.
func Script(n int, seed uint64) []*snapshot.Snapshot {
	snaps := make([]*snapshot.Snapshot, 0, n)
	var held uint16
	var netSeq uint64

	for i := 0; i < n; i++ {
		r := splitmix64(seed + uint64(i))
		want := uint16(r & 0x3F) // next desired key set
		pressed := want &^ held
		released := held &^ want
		held = want

		snap := &snapshot.Snapshot{
			Madi:     uint64(i),
			Held:     held,
			Pressed:  pressed,
			Released: released,
			RNGSeed:  seed,
		}

		if r%5 == 0 {
			netSeq++
			snap.Events = []snapshot.NetEvent{{
				Sender:   "peer-0",
				Seq:      netSeq,
				OrderKey: fmt.Sprintf("%06d/peer-0", i),
				Payload:  fmt.Sprintf(`{"cmd":%d}`, r%97),
			}}
		}
		snaps = append(snaps, snap)
	}
	return snaps
}
