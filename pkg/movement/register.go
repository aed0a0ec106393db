package movement

// Source identifies who last wrote the register.
type Source int

const (
	SourceBoot Source = iota
	SourcePresence
	SourceCommand
)

// String returns the source name for logs.
func (s Source) String() string {
	switch s {
	case SourcePresence:
		return "presence"
	case SourceCommand:
		return "command"
	default:
		return "boot"
	}
}

// Register is the single shared movement state.
// It must only be used from the control loop goroutine.
type Register struct {
	state  State
	source Source
	writes uint64
}

// NewRegister returns a register in the power-up state (Idle).
func NewRegister() *Register {
	return &Register{}
}

// State returns the current movement state.
func (r *Register) State() State {
	return r.state
}

// LastSource returns who performed the most recent write.
func (r *Register) LastSource() Source {
	return r.source
}

// Writes returns the number of writes since power-up.
func (r *Register) Writes() uint64 {
	return r.writes
}

// Set overwrites the state unconditionally. Invalid values collapse to Idle
// so the register always holds one of the five named states.
func (r *Register) Set(s State, from Source) {
	if !s.Valid() {
		s = Idle
	}
	r.state = s
	r.source = from
	r.writes++
}
