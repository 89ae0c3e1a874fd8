package replay

import (
	"context"
	"strings"

	"github.com/roach88/geoul/internal/snapshot"
	"github.com/roach88/geoul/internal/state"
)

// Hooks are the two callbacks the driver threads through a program run.
type Hooks struct {
	// BeforeTick is called once per tick, before the tick executes, so
	// the driver can splice recorded or synthetic input into the state.
	// A non-nil error aborts the run.
	BeforeTick func(madi uint64, st state.Object) error

	// OnTick is called after the tick completes with the post-tick
	// state. requested is true for the final tick of the run. A non-nil
	// error aborts the run.
	OnTick func(madi uint64, st state.Object, requested bool) error
}

// Program is the narrow contract the replay core requires from the
// evaluator collaborator: run the program for a number of ticks, calling
// the hooks around each one. Madi starts at 0 on a fresh program. Every
// replay operation needs a fresh program (zero ticks executed); reusing
// an advanced program is a caller bug.
type Program interface {
	Run(ctx context.Context, ticks uint64, hooks Hooks) error
}

// State keys the driver splices recorded input into. The input_* mirrors
// exist only for the evaluator's benefit and are volatile: DefaultVolatile
// strips them so they never reach the audit hash. The RNG seed and any
// unconsumed net events are real state and do get hashed.
const (
	KeyInputHeld     = "input_held"
	KeyInputPressed  = "input_pressed"
	KeyInputReleased = "input_released"
	KeyRNGSeed       = "rng_seed"
	KeyNetEvents     = "net_events"
)

// DefaultVolatile is the standard volatile-key predicate: raw input-state
// mirrors are excluded from the audit trail.
func DefaultVolatile(key string) bool {
	return strings.HasPrefix(key, "input_")
}

// InjectSnapshot splices one tick's recorded input into the state object,
// following the key convention above.
func InjectSnapshot(st state.Object, snap *snapshot.Snapshot) {
	st[KeyInputHeld] = state.Int(int64(snap.Held))
	st[KeyInputPressed] = state.Int(int64(snap.Pressed))
	st[KeyInputReleased] = state.Int(int64(snap.Released))
	st[KeyRNGSeed] = state.Int(int64(snap.RNGSeed))

	events := make(state.Array, 0, len(snap.Events))
	for _, ev := range snap.Events {
		events = append(events, state.Object{
			"sender":    state.String(ev.Sender),
			"seq":       state.Int(int64(ev.Seq)),
			"order_key": state.String(ev.OrderKey),
			"payload":   state.String(ev.Payload),
		})
	}
	st[KeyNetEvents] = events
}
