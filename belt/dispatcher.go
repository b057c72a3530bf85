package belt

import "sync"

// SampleHandler consumes decoded samples.
type SampleHandler func(Sample)

// Dispatcher delivers each decoded sample to at most one registered handler.
// Registering a handler replaces the previous one; there is no fan-out.
type Dispatcher struct {
	mu      sync.RWMutex
	handler SampleHandler
}

// NewDispatcher creates a dispatcher with no handler registered.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// Register installs handler, replacing any previous one. A nil handler
// clears the slot.
func (d *Dispatcher) Register(handler SampleHandler) {
	d.mu.Lock()
	d.handler = handler
	d.mu.Unlock()
}

// Dispatch synchronously invokes the registered handler with s.
// No-op when no handler is registered.
func (d *Dispatcher) Dispatch(s Sample) {
	d.mu.RLock()
	handler := d.handler
	d.mu.RUnlock()

	if handler != nil {
		handler(s)
	}
}
