package extension

import (
	"errors"
	"fmt"
)

// Loader errors.
var (
	// ErrConfigParse matches load failures caused by an unusable manifest.
	ErrConfigParse = errors.New("config parse error")

	// ErrModuleLoad matches load failures raised while fetching the main
	// module or one of its dependencies.
	ErrModuleLoad = errors.New("module load error")

	// ErrInitFailure matches every init hook failure: explicit failure,
	// timeout and thrown errors.
	ErrInitFailure = errors.New("init failure")

	// ErrCanceled matches loads abandoned because the caller's context ended.
	ErrCanceled = errors.New("load canceled")

	// ErrNotLoaded is returned when an extension is not in the loaded set.
	ErrNotLoaded = errors.New("extension is not loaded")

	// ErrInvalidTransition is returned for a backward or post-terminal state change.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrUnsupportedBaseURL is returned for base URLs that are not local directories.
	ErrUnsupportedBaseURL = errors.New("unsupported base URL")
)

// ErrorKind identifies why a load failed, independent of its message.
type ErrorKind int

// Error kinds.
const (
	KindConfigParse ErrorKind = iota + 1
	KindModuleLoad
	KindInitNoReason
	KindInitWithReason
	KindInitTimeout
	KindInitThrown
	KindCanceled
)

// String returns the name of the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindConfigParse:
		return "ConfigParseError"
	case KindModuleLoad:
		return "ModuleLoadError"
	case KindInitNoReason:
		return "InitFailure/NoReason"
	case KindInitWithReason:
		return "InitFailure/WithReason"
	case KindInitTimeout:
		return "InitFailure/Timeout"
	case KindInitThrown:
		return "InitFailure/Thrown"
	case KindCanceled:
		return "Canceled"
	default:
		return "Unknown"
	}
}

// IsInitFailure returns true for the init hook sub-kinds.
func (k ErrorKind) IsInitFailure() bool {
	return k >= KindInitNoReason && k <= KindInitThrown
}

// Error is the rejection value of a failed load. Its message is the
// diagnostic string reported for the failure.
type Error struct {
	Kind      ErrorKind
	Extension string
	Message   string
	Err       error
}

// Error implements error.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the kind sentinels.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrConfigParse:
		return e.Kind == KindConfigParse
	case ErrModuleLoad:
		return e.Kind == KindModuleLoad
	case ErrInitFailure:
		return e.Kind.IsInitFailure()
	case ErrCanceled:
		return e.Kind == KindCanceled
	}
	return false
}

// ModuleNotFoundError reports a module file that does not exist.
type ModuleNotFoundError struct {
	Module string
	Path   string
}

// Error implements error.
func (e *ModuleNotFoundError) Error() string {
	return "Module does not exist: " + e.Path
}

// ThrownError describes an error raised by extension code.
type ThrownError struct {
	Type    string
	Message string
}

// Error implements error.
func (e *ThrownError) Error() string {
	if e.Message == "" {
		return e.Type
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Failure is a value an init hook returns to signal failure without
// throwing. An empty Reason means the failure carries no reason.
type Failure struct {
	Reason string
}

// Fail returns a Failure with the given reason.
func Fail(reason string) Failure {
	return Failure{Reason: reason}
}

// Error lets a Failure travel as an error value.
func (f Failure) Error() string {
	if f.Reason == "" {
		return "failed"
	}
	return f.Reason
}
