package extension

// EventHandler handles loader events.
// Handlers must be non-blocking and should not call back into the Loader.
// Panics in handlers are recovered.
type EventHandler func(event Event)

// Event describes a change in the loaded set.
type Event struct {
	Type      EventType
	Extension string
	RequestID string
	Err       error
}

// EventType is the type of loader event.
type EventType int

const (
	// EventLoaded is emitted when an extension becomes ready.
	EventLoaded EventType = iota
	// EventFailed is emitted when a load fails.
	EventFailed
	// EventUnloaded is emitted when an extension is unloaded.
	EventUnloaded
	// EventReloaded is emitted when a watched extension is loaded again.
	EventReloaded
)

// String returns a string representation of the event type.
func (t EventType) String() string {
	switch t {
	case EventLoaded:
		return "loaded"
	case EventFailed:
		return "failed"
	case EventUnloaded:
		return "unloaded"
	case EventReloaded:
		return "reloaded"
	default:
		return "unknown"
	}
}

// Subscribe registers handler for loader events and returns a function that
// removes it.
func (l *Loader) Subscribe(handler EventHandler) func() {
	if handler == nil {
		return func() {}
	}

	l.mu.Lock()
	l.handlers = append(l.handlers, handler)
	index := len(l.handlers) - 1
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if index < len(l.handlers) {
			l.handlers[index] = nil
		}
	}
}

func (l *Loader) emit(event Event) {
	l.mu.RLock()
	handlers := make([]EventHandler, len(l.handlers))
	copy(handlers, l.handlers)
	l.mu.RUnlock()

	for _, handler := range handlers {
		if handler == nil {
			continue
		}
		func() {
			defer func() {
				_ = recover()
			}()
			handler(event)
		}()
	}
}
