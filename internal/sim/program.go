package sim

import (
	"context"
	"fmt"

	"github.com/roach88/geoul/internal/replay"
	"github.com/roach88/geoul/internal/state"
)

// Key mask bits the program responds to.
const (
	KeyRight  uint16 = 1 << 0
	KeyLeft   uint16 = 1 << 1
	KeyUp     uint16 = 1 << 2
	KeyDown   uint16 = 1 << 3
	KeyGather uint16 = 1 << 4
	KeyFight  uint16 = 1 << 5
)

// Program is the demo evaluator. Not safe for concurrent use; every
// replay operation takes a fresh instance.
type Program struct {
	st   state.Object
	madi uint64
}

// New returns a fresh program at tick 0 with the initial state.
func New() *Program {
	return &Program{
		st: state.Object{
			"gold":  state.Int(100),
			"hp":    state.Int(50),
			"pos_x": state.Int(0),
			"pos_y": state.Int(0),
			"inbox": state.Int(0),
			"luck":  state.Int(0),
		},
	}
}

// Volatile is the volatile-key predicate matching this program's use of
// the input mirror convention.
func Volatile(key string) bool {
	return replay.DefaultVolatile(key)
}

// Run implements replay.Program.
func (p *Program) Run(ctx context.Context, ticks uint64, hooks replay.Hooks) error {
	for i := uint64(0); i < ticks; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if hooks.BeforeTick != nil {
			if err := hooks.BeforeTick(p.madi, p.st); err != nil {
				return fmt.Errorf("before_tick at madi %d: %w", p.madi, err)
			}
		}

		p.tick()

		if hooks.OnTick != nil {
			if err := hooks.OnTick(p.madi, p.st, i == ticks-1); err != nil {
				return fmt.Errorf("on_tick at madi %d: %w", p.madi, err)
			}
		}
		p.madi++
	}
	return nil
}

func (p *Program) tick() {
	held := p.maskKey(replay.KeyInputHeld)
	pressed := p.maskKey(replay.KeyInputPressed)
	seed := uint64(p.intKey(replay.KeyRNGSeed, 0))

	// Luck for this tick is derived from the recorded seed and the tick
	// index alone, so replays land on the identical value.
	luck := int64(splitmix64(seed^p.madi) % 10)
	p.st["luck"] = state.Int(luck)

	x := p.intKey("pos_x", 0)
	y := p.intKey("pos_y", 0)
	if held&KeyRight != 0 {
		x++
	}
	if held&KeyLeft != 0 {
		x--
	}
	if held&KeyUp != 0 {
		y++
	}
	if held&KeyDown != 0 {
		y--
	}
	p.st["pos_x"] = state.Int(x)
	p.st["pos_y"] = state.Int(y)

	gold := p.intKey("gold", 0)
	if pressed&KeyGather != 0 {
		gold += 5 + luck
	}

	hp := p.intKey("hp", 0)
	if pressed&KeyFight != 0 {
		hp -= 7
		gold += 2 * luck
	}
	if hp < 50 && p.madi%4 == 0 {
		hp++
	}
	p.st["hp"] = state.Int(hp)

	// Consume the tick's net events: count them, remember the latest
	// payload, and credit gold per payload byte so event content shows
	// up in the audit hash.
	if events, ok := p.st[replay.KeyNetEvents].(state.Array); ok {
		inbox := p.intKey("inbox", 0)
		for _, ev := range events {
			obj, ok := ev.(state.Object)
			if !ok {
				continue
			}
			inbox++
			if payload, ok := obj["payload"].(state.String); ok && payload != "" {
				p.st["last_msg"] = payload
				gold += int64(len(payload))
			}
		}
		p.st["inbox"] = state.Int(inbox)
		delete(p.st, replay.KeyNetEvents)
	}

	p.st["gold"] = state.Int(gold)
	p.st["madi"] = state.Int(int64(p.madi))
}

func (p *Program) intKey(key string, def int64) int64 {
	if v, ok := p.st[key].(state.Int); ok {
		return int64(v)
	}
	return def
}

func (p *Program) maskKey(key string) uint16 {
	return uint16(p.intKey(key, 0))
}

// splitmix64 is the standard 64-bit mix used for seed-derived values.
func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}
