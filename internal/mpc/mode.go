package mpc

// Mode is the controller state.
//
//	Initializing -> Running | Degraded   first update
//	Running <-> Degraded                 per update, on solve success/failure
//	any -> Finished                      run ends
type Mode int

const (
	Initializing Mode = iota
	Running
	Degraded
	Finished
)

func (m Mode) String() string {
	switch m {
	case Initializing:
		return "INITIALIZING"
	case Running:
		return "RUNNING"
	case Degraded:
		return "DEGRADED"
	case Finished:
		return "FINISHED"
	default:
		return "UNKNOWN"
	}
}
