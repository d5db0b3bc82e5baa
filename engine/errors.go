package engine

import (
	"errors"

	"github.com/hashicorp/go-multierror"
	pkgerrors "github.com/pkg/errors"
)

// Sentinel errors for the failure kinds spec.md §7 enumerates as surfaced
// by the core itself (as opposed to an adapter's serial function, which
// reports its own failures — capacity exhausted, empty structure — via
// its sentinel return value, not an error).
var (
	// ErrInvalidConfig is returned by NewPBComb and NewPWFComb when
	// Config fails validation.
	ErrInvalidConfig = errors.New("engine: invalid configuration")

	// ErrInvalidThread is returned when a pid is outside [0, NThreads).
	ErrInvalidThread = errors.New("engine: thread id out of range")

	// ErrNoApplyFunc is returned when ApplyOp is called without ever
	// having been given a serial function for that call.
	ErrNoApplyFunc = errors.New("engine: apply function is nil")

	// ErrRegionInit wraps a failure to open or size the NVMM-backed
	// region at construction time — spec.md's "NVMM allocation
	// failure: fatal at init; cannot occur in steady-state".
	ErrRegionInit = errors.New("engine: failed to initialize persistent region")
)

// initError aggregates every validation/setup problem encountered while
// constructing an engine so the caller sees all of them at once, the way
// the teacher's config loader reports every bad field in a single error
// instead of failing fast on the first.
func initError(errs ...error) error {
	var merr *multierror.Error
	for _, e := range errs {
		if e != nil {
			merr = multierror.Append(merr, e)
		}
	}
	if merr == nil {
		return nil
	}
	return merr.ErrorOrNil()
}

// wrapf attaches call-site context to an internal error using pkg/errors,
// preserving the original for errors.Is/As checks by callers.
func wrapf(err error, msg string) error {
	if err == nil {
		return nil
	}
	return pkgerrors.Wrap(err, msg)
}
