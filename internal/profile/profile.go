// Package profile loads recording profiles written in CUE. A profile
// fixes the knobs a recording run needs (checkpoint stride, trace tier,
// determinism tier) and is validated against an embedded schema before
// any field is read.
package profile

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/geoul/internal/bundle"
)

//go:embed schema.cue
var schemaCUE string

// Profile is a validated recording profile with all defaults applied.
type Profile struct {
	Name             string
	CheckpointStride uint64
	TraceTier        bundle.TraceTier
	DetTier          uint32
	NumBackend       uint32
	CommitPolicy     uint32
}

// Default returns the profile a run gets when no CUE file is supplied.
func Default() *Profile {
	return &Profile{
		Name:             "default",
		CheckpointStride: bundle.DefaultCheckpointStride,
		TraceTier:        bundle.TraceFull,
		DetTier:          1,
		NumBackend:       1,
		CommitPolicy:     0,
	}
}

// Header builds the log header a recording made under this profile
// starts with.
func (p *Profile) Header(startedAt uint64) bundle.Header {
	return bundle.Header{
		StartedAt:    startedAt,
		DetTier:      p.DetTier,
		NumBackend:   p.NumBackend,
		TraceTier:    p.TraceTier,
		CommitPolicy: p.CommitPolicy,
	}
}

// Error is a profile load failure with source position when CUE can
// provide one.
type Error struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Load reads and validates a profile file.
func Load(path string) (*Profile, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	return Parse(string(src), path)
}

// Parse compiles profile source against the embedded schema. filename is
// used for error positions only.
func Parse(src, filename string) (*Profile, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("internal schema: %w", err)
	}

	v := ctx.CompileString(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	unified := schema.Unify(v)
	if err := unified.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if err := unified.Validate(cue.Concrete(false)); err != nil {
		return nil, formatCUEError(err)
	}

	pv := unified.LookupPath(cue.ParsePath("profile"))
	if !pv.Exists() {
		return nil, &Error{Field: "profile", Message: "profile block is required"}
	}
	if err := pv.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	return decodeProfile(pv)
}

func decodeProfile(v cue.Value) (*Profile, error) {
	p := &Profile{}

	name, err := v.LookupPath(cue.ParsePath("name")).String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	p.Name = name

	stride, err := v.LookupPath(cue.ParsePath("checkpoint_stride")).Uint64()
	if err != nil {
		return nil, formatCUEError(err)
	}
	p.CheckpointStride = stride

	tierStr, err := v.LookupPath(cue.ParsePath("trace_tier")).String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	tier, err := bundle.ParseTraceTier(tierStr)
	if err != nil {
		return nil, &Error{Field: "trace_tier", Message: err.Error(), Pos: v.Pos()}
	}
	p.TraceTier = tier

	for _, f := range []struct {
		path string
		dst  *uint32
	}{
		{"det_tier", &p.DetTier},
		{"num_backend", &p.NumBackend},
		{"commit_policy", &p.CommitPolicy},
	} {
		n, err := v.LookupPath(cue.ParsePath(f.path)).Uint64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		if n > 1<<32-1 {
			return nil, &Error{Field: f.path, Message: "value does not fit in 32 bits", Pos: v.Pos()}
		}
		*f.dst = uint32(n)
	}

	return p, nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &Error{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
