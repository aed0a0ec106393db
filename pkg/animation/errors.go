package animation

import "errors"

// Configuration errors. They are reported at startup; the engine refuses to
// run rather than produce undefined motion.
var (
	ErrNoActuators        = errors.New("animation: no actuators configured")
	ErrInvalidChannel     = errors.New("animation: invalid channel")
	ErrDuplicateChannel   = errors.New("animation: duplicate channel")
	ErrInvalidRange       = errors.New("animation: invalid angle range")
	ErrInvalidSpeed       = errors.New("animation: invalid speed")
	ErrInvalidPhase       = errors.New("animation: phase offset outside [0, 2π)")
	ErrInvalidCalibration = errors.New("animation: invalid servo calibration")
	ErrMissingProfile     = errors.New("animation: missing profile")

	// ErrWrapUnsafe means a leaf could advance a full cycle or more in one
	// tick, which the single-subtraction wrap cannot keep inside [0, 2π).
	ErrWrapUnsafe = errors.New("animation: phase step of 2π or more per tick")
)
