package sim

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/geoul/internal/replay"
	"github.com/roach88/geoul/internal/state"
)

func runTicks(t *testing.T, p *Program, inputs []*stateInput) []state.Hash {
	t.Helper()
	var hashes []state.Hash
	err := p.Run(context.Background(), uint64(len(inputs)), replay.Hooks{
		BeforeTick: func(madi uint64, st state.Object) error {
			inputs[madi].apply(st)
			return nil
		},
		OnTick: func(madi uint64, st state.Object, requested bool) error {
			h, err := state.HashState(st, Volatile)
			if err != nil {
				return err
			}
			hashes = append(hashes, h)
			return nil
		},
	})
	require.NoError(t, err)
	return hashes
}

type stateInput struct {
	held, pressed uint16
	seed          uint64
}

func (in *stateInput) apply(st state.Object) {
	st[replay.KeyInputHeld] = state.Int(int64(in.held))
	st[replay.KeyInputPressed] = state.Int(int64(in.pressed))
	st[replay.KeyInputReleased] = state.Int(0)
	st[replay.KeyRNGSeed] = state.Int(int64(in.seed))
}

func TestProgramIsDeterministic(t *testing.T) {
	inputs := []*stateInput{
		{held: KeyRight, seed: 99},
		{held: KeyRight | KeyUp, pressed: KeyGather, seed: 99},
		{pressed: KeyFight, seed: 99},
	}

	h1 := runTicks(t, New(), inputs)
	h2 := runTicks(t, New(), inputs)
	assert.Equal(t, h1, h2, "identical input must produce identical hashes")
}

func TestProgramInputSensitivity(t *testing.T) {
	a := runTicks(t, New(), []*stateInput{{held: KeyRight, seed: 1}})
	b := runTicks(t, New(), []*stateInput{{held: KeyLeft, seed: 1}})
	assert.NotEqual(t, a, b)

	c := runTicks(t, New(), []*stateInput{{held: KeyRight, seed: 2}})
	// Seed feeds luck, which only reaches hashed state via gather/fight;
	// the luck key itself is hashed, so the seed must matter.
	assert.NotEqual(t, a, c)
}

func TestProgramVolatileMirrorsStripped(t *testing.T) {
	p := New()
	err := p.Run(context.Background(), 1, replay.Hooks{
		BeforeTick: func(madi uint64, st state.Object) error {
			(&stateInput{held: KeyRight, seed: 5}).apply(st)
			return nil
		},
		OnTick: func(madi uint64, st state.Object, requested bool) error {
			canonical, err := state.Canonicalize(st, Volatile)
			if err != nil {
				return err
			}
			assert.NotContains(t, string(canonical), "input_held")
			return nil
		},
	})
	require.NoError(t, err)
}

func TestProgramHookErrorAborts(t *testing.T) {
	boom := errors.New("boom")
	p := New()
	calls := 0
	err := p.Run(context.Background(), 10, replay.Hooks{
		OnTick: func(madi uint64, st state.Object, requested bool) error {
			calls++
			if madi == 2 {
				return boom
			}
			return nil
		},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls, "no ticks run after the failing hook")
}

func TestProgramRequestedFlag(t *testing.T) {
	p := New()
	var flags []bool
	err := p.Run(context.Background(), 3, replay.Hooks{
		OnTick: func(madi uint64, st state.Object, requested bool) error {
			flags = append(flags, requested)
			return nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []bool{false, false, true}, flags)
}

func TestProgramContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := New()
	err := p.Run(ctx, 100, replay.Hooks{
		OnTick: func(madi uint64, st state.Object, requested bool) error {
			if madi == 4 {
				cancel()
			}
			return nil
		},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScriptDeterministic(t *testing.T) {
	a := Script(20, 7)
	b := Script(20, 7)
	require.Equal(t, a, b)

	c := Script(20, 8)
	assert.NotEqual(t, a, c)

	// Mask bookkeeping: pressed/released must be consistent with held.
	var held uint16
	for _, s := range a {
		assert.Equal(t, (held|s.Pressed)&^s.Released, s.Held, "madi %d", s.Madi)
		held = s.Held
	}
}
