package vm

// Limits bounds a Runner's execution resources (SPEC_FULL.md's
// configuration surface, in the spirit of the teacher's
// NewVirtualMachine(debug bool, files ...string) constructor-with-flags
// shape). The zero value imposes no bound on either field; flowc wires
// these to pflag flags on `flowc run` rather than an env var or config
// file, since the teacher's own RunProgram reads GOGC directly rather
// than through a config layer either.
type Limits struct {
	MaxRegisters    int
	MaxInstructions int64
}

// Option configures a Runner at construction time.
type Option func(*Runner)

// WithMaxRegisters rejects a handler whose compiled register file is
// larger than n instead of running it (Run returns errTooManyRegisters).
func WithMaxRegisters(n int) Option {
	return func(r *Runner) { r.limits.MaxRegisters = n }
}

// WithMaxInstructions traps execution instead of running more than n
// instructions (Run returns errInstructionLimit), a coarse backstop against a
// runaway handler independent of maxCallDepth's sibling-call-cycle guard.
func WithMaxInstructions(n int64) Option {
	return func(r *Runner) { r.limits.MaxInstructions = n }
}

// WithRequestID stamps the Runner with a caller-supplied correlation id
// (typically a freshly minted google/uuid) for log/trace output.
func WithRequestID(id string) Option {
	return func(r *Runner) { r.RequestID = id }
}
