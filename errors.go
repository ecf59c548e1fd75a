package spark

import "errors"

// Sentinel error kinds, per the four error categories the codecs and
// builder distinguish. Package-level errors are wrapped with
// github.com/pkg/errors (errors.Wrap/Wrapf) to attach positional context
// ("which field", "which byte offset", "which format") without losing the
// ability to test against one of these four kinds with errors.Is.
var (
	// ErrMalformed indicates the input bytes don't describe a valid
	// instance of the format: bad magic, wrong version, truncated stream,
	// invalid header, or an SH-coefficient count outside {0, 9, 24, 45}.
	ErrMalformed = errors.New("spark: malformed input")

	// ErrUnsupported indicates a structurally valid input that exercises
	// a compression level, quaternion encoding, or property type this
	// implementation does not decode.
	ErrUnsupported = errors.New("spark: unsupported feature")

	// ErrInconsistentState indicates a receiver was driven out of the
	// order its contract requires, e.g. set_child_count was called without
	// a matching set_child_start before finish.
	ErrInconsistentState = errors.New("spark: inconsistent receiver state")

	// ErrResourceLimit indicates an input exceeded a hard resource bound,
	// e.g. a PLY header larger than the 64 KiB cap.
	ErrResourceLimit = errors.New("spark: resource limit exceeded")
)
