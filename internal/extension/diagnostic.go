package extension

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// DiagnosticPrefix starts every load diagnostic.
const DiagnosticPrefix = "[Extension]"

// Diagnostic is the single report produced by a failed load.
type Diagnostic struct {
	Kind      ErrorKind
	Extension string
	BaseURL   string
	RequestID string
	Message   string
}

// Sink receives diagnostics. Implementations must be safe for concurrent use.
type Sink interface {
	Report(Diagnostic)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(Diagnostic)

// Report calls f(d).
func (f SinkFunc) Report(d Diagnostic) { f(d) }

// LogSink writes diagnostics to a zap logger at error level.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a sink over logger. A nil logger discards.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Report implements Sink.
func (s *LogSink) Report(d Diagnostic) {
	s.logger.Error(d.Message,
		zap.Stringer("kind", d.Kind),
		zap.String("extension", d.Extension),
		zap.String("base_url", d.BaseURL),
		zap.String("request_id", d.RequestID),
	)
}

// MemorySink collects diagnostics, mostly for tests and summaries.
type MemorySink struct {
	mu    sync.Mutex
	items []Diagnostic
}

// Report implements Sink.
func (s *MemorySink) Report(d Diagnostic) {
	s.mu.Lock()
	s.items = append(s.items, d)
	s.mu.Unlock()
}

// Diagnostics returns a copy of everything reported so far.
func (s *MemorySink) Diagnostics() []Diagnostic {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Diagnostic, len(s.items))
	copy(out, s.items)
	return out
}

// MultiSink fans a diagnostic out to several sinks.
func MultiSink(sinks ...Sink) Sink {
	return SinkFunc(func(d Diagnostic) {
		for _, s := range sinks {
			if s != nil {
				s.Report(d)
			}
		}
	})
}

// configError classifies a manifest read or parse failure.
func configError(desc Descriptor, err error) *Error {
	return &Error{
		Kind:      KindConfigParse,
		Extension: desc.Name,
		Message:   loadFailureMessage(desc, err.Error()),
		Err:       err,
	}
}

// moduleError classifies a failure raised while fetching modules.
func moduleError(desc Descriptor, err error) *Error {
	return &Error{
		Kind:      KindModuleLoad,
		Extension: desc.Name,
		Message:   loadFailureMessage(desc, err.Error()),
		Err:       err,
	}
}

// canceledError reports a load abandoned by the caller.
func canceledError(desc Descriptor, cause error) *Error {
	return &Error{
		Kind:      KindCanceled,
		Extension: desc.Name,
		Message:   fmt.Sprintf("%s Error -- load canceled for %s: %v", DiagnosticPrefix, desc.Name, cause),
		Err:       cause,
	}
}

// outcomeError maps an init outcome to its error, or nil on success.
func outcomeError(desc Descriptor, o InitOutcome) *Error {
	name := desc.Name
	e := &Error{Extension: name, Err: o.Err}
	switch o.Kind {
	case OutcomeSuccess:
		return nil
	case OutcomeFailureNoReason:
		e.Kind = KindInitNoReason
		e.Message = fmt.Sprintf("%s Error -- failed initExtension for %s", DiagnosticPrefix, name)
	case OutcomeFailureWithReason:
		e.Kind = KindInitWithReason
		e.Message = fmt.Sprintf("%s Error -- failed initExtension for %s: %s", DiagnosticPrefix, name, o.Reason)
	case OutcomeTimeout:
		e.Kind = KindInitTimeout
		e.Message = fmt.Sprintf("%s Error -- timeout during initExtension for %s", DiagnosticPrefix, name)
	case OutcomeThrown:
		e.Kind = KindInitThrown
		e.Message = fmt.Sprintf("%s Error -- error thrown during initExtension for %s: %s", DiagnosticPrefix, name, o.Reason)
	case OutcomeCanceled:
		return canceledError(desc, o.Err)
	default:
		e.Kind = KindInitThrown
		e.Message = fmt.Sprintf("%s Error -- error thrown during initExtension for %s: %s", DiagnosticPrefix, name, o.Kind)
	}
	return e
}

func loadFailureMessage(desc Descriptor, detail string) string {
	return fmt.Sprintf("%s failed to load %s (%s) - %s", DiagnosticPrefix, desc.Name, desc.BaseURL, detail)
}

// AsError extracts the load error from err.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
