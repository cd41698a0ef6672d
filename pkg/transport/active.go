package transport

import "sync"

// Abortable is an in-flight request that can be cancelled from another goroutine.
type Abortable interface {
	Abort() error
}

// ActiveRequest holds at most one in-flight request. Set, Current and Abort
// are serialized by one mutex that is never held across network I/O.
// The zero value is ready to use.
type ActiveRequest struct {
	mu  sync.Mutex
	req Abortable
}

// Set records req as the active request. A previous request is superseded,
// not aborted.
func (a *ActiveRequest) Set(req Abortable) {
	a.mu.Lock()
	a.req = req
	a.mu.Unlock()
}

// Current returns the active request, or nil.
func (a *ActiveRequest) Current() Abortable {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.req
}

// Abort aborts the active request, if any, and clears the slot. The slot is
// cleared even when the abort itself fails. aborted is false when nothing
// was held.
func (a *ActiveRequest) Abort() (aborted bool, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.req == nil {
		return false, nil
	}
	err = a.req.Abort()
	a.req = nil
	return true, err
}
