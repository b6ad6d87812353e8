package extension

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultMainModule is the module id loaded when a descriptor names none.
const DefaultMainModule = "main"

// Descriptor identifies an extension to load.
type Descriptor struct {
	// Name is the extension's unique identifier, used in diagnostics.
	Name string `json:"name" yaml:"name" toml:"name"`

	// BaseURL is the directory holding the extension's modules, either a
	// plain path or a file:// URL.
	BaseURL string `json:"baseUrl" yaml:"baseUrl" toml:"baseUrl"`

	// MainModule is the module id to execute first. Defaults to "main".
	MainModule string `json:"main,omitempty" yaml:"main,omitempty" toml:"main,omitempty"`
}

func (d Descriptor) withDefaults() Descriptor {
	if d.MainModule == "" {
		d.MainModule = DefaultMainModule
	}
	return d
}

// Validate checks the descriptor has the fields a load needs.
func (d Descriptor) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("descriptor: name is required")
	}
	if d.BaseURL == "" {
		return fmt.Errorf("descriptor %s: baseUrl is required", d.Name)
	}
	return nil
}

// Transition records one state change of a request.
type Transition struct {
	State State
	At    time.Time
}

// LoadRequest tracks one attempt to load a descriptor.
type LoadRequest struct {
	ID         string
	Descriptor Descriptor

	// ManifestPath overrides the manifest location. Empty means
	// <baseDir>/requirejs-config.json.
	ManifestPath string

	mu      sync.Mutex
	state   State
	history []Transition
}

// RequestOption configures a LoadRequest.
type RequestOption func(*LoadRequest)

// WithManifest reads module configuration from path instead of the base directory.
func WithManifest(path string) RequestOption {
	return func(r *LoadRequest) {
		r.ManifestPath = path
	}
}

// WithRequestID sets the correlation id used in logs and diagnostics.
func WithRequestID(id string) RequestOption {
	return func(r *LoadRequest) {
		r.ID = id
	}
}

// NewLoadRequest creates an unstarted request for desc.
func NewLoadRequest(desc Descriptor, opts ...RequestOption) *LoadRequest {
	r := &LoadRequest{
		ID:         uuid.NewString(),
		Descriptor: desc.withDefaults(),
		state:      StateUnstarted,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.history = []Transition{{State: StateUnstarted, At: time.Now()}}
	return r
}

// State returns the current state.
func (r *LoadRequest) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// History returns every state the request has entered, in order.
func (r *LoadRequest) History() []Transition {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Transition, len(r.history))
	copy(out, r.history)
	return out
}

// advance moves the request to next, rejecting backward and post-terminal moves.
func (r *LoadRequest) advance(next State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.state.canAdvance(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.state, next)
	}
	r.state = next
	r.history = append(r.history, Transition{State: next, At: time.Now()})
	return nil
}
