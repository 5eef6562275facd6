// Package harness runs contest scenarios end to end.
//
// A scenario wires a real session (engine, reconciler, recorder, gate,
// admin console) over an in-memory contest store and drives it with player
// and administrator actions. Every run is deterministic, so traces can be
// compared against golden files.
//
// # Scenario Format
//
//	name: two_step_stage
//	description: "What this scenario validates"
//	contest: |            # optional inline CUE, default contest otherwise
//	  contest: { total: 6, ... }
//	setup:
//	  user: {id: u-1, email: player@example.com}
//	  signed_in: true
//	  local_solved: [1, 2]
//	  remote_solved: [2, 3]
//	  disabled: [3]
//	flow:
//	  - invoke: submit
//	    args: {answer: istanbul}
//	    expect:
//	      case: ok
//	      result: {outcome: solved, current_stage: 2}
//	assertions:
//	  - type: trace_count
//	    action: log_solve
//	    count: 1
//	  - type: final_state
//	    table: stage
//	    where: {stage: 3}
//	    expect: {status: admin-disabled}
//
// # Actions
//
// sign_in, sign_out, submit, solve, select, admin_toggle, admin_bulk,
// gate_reload, status and leaderboard. Each produces an invocation event,
// a log_solve record event for every solve write it caused, and a
// completion whose result carries the engine and session state.
//
// # Final State Tables
//
//   - engine: current_stage, solved, first_solved, complete, next, summary
//   - stage (where.stage): status, solved, first_solved, unlocked, admin_disabled
//   - solves (where.user_id, default setup.user): count, stages
//   - session: view, history, signed_in, email
package harness
