package extension

// OutcomeKind classifies how an init hook ended.
type OutcomeKind int

// Init outcome kinds.
const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeFailureNoReason
	OutcomeFailureWithReason
	OutcomeTimeout
	OutcomeThrown
	OutcomeCanceled
)

// String returns a string representation of the outcome kind.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailureNoReason:
		return "failure"
	case OutcomeFailureWithReason:
		return "failure-with-reason"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeThrown:
		return "thrown"
	case OutcomeCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// InitOutcome is the classified result of running an init hook.
type InitOutcome struct {
	Kind OutcomeKind

	// Reason is the failure reason, or "Type: message" for thrown errors.
	Reason string

	// Err holds the thrown error or the cancellation cause.
	Err error
}

// Succeeded reports whether the hook completed successfully.
func (o InitOutcome) Succeeded() bool {
	return o.Kind == OutcomeSuccess
}
