package services

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"neocore/pkg/pluginapi"
)

var (
	ErrUnknownService   = errors.New("services: unknown service")
	ErrServiceCall      = errors.New("services: service call failed")
	ErrDuplicateService = errors.New("services: service already registered")
	ErrInvalidService   = errors.New("services: invalid service")
)

// CallError carries a service-defined failure verbatim.
type CallError struct {
	ServiceID string
	Method    string
	Err       error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("services: call %s %s: %v", e.ServiceID, e.Method, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

func (e *CallError) Is(target error) bool {
	return target == ErrServiceCall
}

// Entry pairs a service with the id it was registered under.
type Entry struct {
	ID      string
	Service pluginapi.Service
}

// Registry is the host-wide map of string-addressed services. Every
// mutation bumps Generation so consumers can cache derived state.
type Registry struct {
	mu         sync.RWMutex
	services   map[string]pluginapi.Service
	generation atomic.Uint64
}

// NewRegistry constructs an empty registry at generation 1.
func NewRegistry() *Registry {
	r := &Registry{services: make(map[string]pluginapi.Service)}
	r.generation.Store(1)
	return r
}

// Register adds a service. An id that is already taken is rejected.
func (r *Registry) Register(svc pluginapi.Service) error {
	id, err := serviceID(svc)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.services[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateService, id)
	}
	r.services[id] = svc
	r.generation.Add(1)
	return nil
}

// Replace registers a service, overwriting any previous holder of the id.
// It reports whether a previous service was replaced.
func (r *Registry) Replace(svc pluginapi.Service) (bool, error) {
	id, err := serviceID(svc)
	if err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, existed := r.services[id]
	r.services[id] = svc
	r.generation.Add(1)
	return existed, nil
}

// Unregister removes a service and reports whether it was present.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.services[id]; !ok {
		return false
	}
	delete(r.services, id)
	r.generation.Add(1)
	return true
}

func (r *Registry) Lookup(id string) (pluginapi.Service, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	svc, ok := r.services[id]
	return svc, ok
}

// Call invokes a service method. The registry lock is not held during the
// call, so a service may call back into the registry.
func (r *Registry) Call(id, method string, payload []byte) ([]byte, error) {
	svc, ok := r.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownService, id)
	}
	out, err := svc.Call(method, payload)
	if err != nil {
		return nil, &CallError{ServiceID: id, Method: method, Err: err}
	}
	return out, nil
}

// Describe returns the service's describe() document.
func (r *Registry) Describe(id string) (string, bool) {
	svc, ok := r.Lookup(id)
	if !ok {
		return "", false
	}
	return svc.Describe(), true
}

// IDs lists registered ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.services))
	for id := range r.services {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Snapshot copies the registry contents sorted by id, together with the
// generation they were observed at.
func (r *Registry) Snapshot() ([]Entry, uint64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := make([]Entry, 0, len(r.services))
	for id, svc := range r.services {
		entries = append(entries, Entry{ID: id, Service: svc})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return entries, r.generation.Load()
}

func (r *Registry) Generation() uint64 {
	return r.generation.Load()
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.services)
}

func serviceID(svc pluginapi.Service) (string, error) {
	if svc == nil {
		return "", fmt.Errorf("%w: nil service", ErrInvalidService)
	}
	id := svc.ID()
	if id == "" {
		return "", fmt.Errorf("%w: empty id", ErrInvalidService)
	}
	return id, nil
}
