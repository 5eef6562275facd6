// Package engine implements the stage progression state machine.
//
// A contest is N ordered stages. Stage s can be played once stage s-1 is
// solved and the administrator has not disabled it. Stages in the
// configured two-step range need two answers; the first only marks the
// stage as awaiting its second.
//
// ARCHITECTURE:
//
// Single lock, ordered side effects:
// Every public method takes the engine mutex, so state changes are totally
// ordered. A solve runs these steps in order:
//  1. add to the solved set and persist locally (synchronous)
//  2. dispatch the solve record write (detached, FIFO dispatcher)
//  3. move the pointer to the lowest unsolved stage
//  4. render, then schedule the deferred leaderboard refresh
//
// Solving an already solved stage skips 1 through 3.
//
// The answer validator is called without the lock. If the viewed stage
// changed while it ran, the verdict is discarded (Outcome.Stale).
//
// Pointer corrections from outside (sign-in merge, admin toggles) go
// through EnsureAtNextUnsolved, which only ever moves forward from a stage
// the player cannot use.
package engine
