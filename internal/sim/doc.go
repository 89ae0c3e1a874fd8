// Package sim is a small deterministic tick program implementing the
// replay driver contract. It stands in for the real language evaluator:
// the replay core only ever sees the Program interface, and every test,
// harness scenario, and CLI demo recording in this repository drives this
// evaluator.
//
// The program is a toy resource game: movement keys shift a position,
// a gather key earns gold scaled by seed-derived luck, net events land in
// an inbox. All of it is a pure function of the injected input snapshots,
// which is the property everything downstream relies on.
package sim
