// Package engine implements the supervision engine: the program record
// store, the lifecycle state machine, start/stop/restart, the monitor tick,
// and hot reconfiguration (reread/update), per spec.md §3-§4.
package engine

// ProgramState is the tagged state of a program's runtime record
// (spec.md §3 "Untyped mapping for program runtime state" redesign note).
// There is no UNKNOWN member: the engine reaps every child it spawns
// itself via exec.Cmd.Wait, so a RUNNING record whose child was reaped by
// someone else never occurs (see SPEC_FULL.md §9 Open Question
// resolution).
type ProgramState int

const (
	Stopped ProgramState = iota
	Starting
	Running
	Exited
)

func (s ProgramState) String() string {
	switch s {
	case Stopped:
		return "STOPPED"
	case Starting:
		return "STARTING"
	case Running:
		return "RUNNING"
	case Exited:
		return "EXITED"
	default:
		return "UNKNOWN"
	}
}
