// Package resources implements the typed registry modules use to publish and
// look up shared values without importing each other. Each Go type owns at
// most one slot; store a pointer or interface value to share a handle.
package resources

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
)

var (
	// ErrAlreadyExists indicates InsertOnce found an occupied slot.
	ErrAlreadyExists = errors.New("resources: resource already exists")
	// ErrResourceMissing indicates a required resource was never published.
	ErrResourceMissing = errors.New("resources: required resource missing")
)

// MissingError names the dependency a caller required.
type MissingError struct {
	Name string
	Type reflect.Type
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("resources: required resource missing: %s (%s)", e.Name, e.Type)
}

func (e *MissingError) Is(target error) bool {
	return target == ErrResourceMissing
}

// AlreadyExistsError names the type whose slot was occupied.
type AlreadyExistsError struct {
	Type reflect.Type
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("resources: resource already exists: %s", e.Type)
}

func (e *AlreadyExistsError) Is(target error) bool {
	return target == ErrAlreadyExists
}

// Registry maps a type identity to an owning slot. Individual operations
// are serialized; sequences of operations are not.
type Registry struct {
	mu    sync.RWMutex
	slots map[reflect.Type]any
}

// New constructs an empty registry.
func New() *Registry {
	return &Registry{slots: make(map[reflect.Type]any)}
}

func key[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// Insert stores value, replacing any previous value of type T.
func Insert[T any](r *Registry, value T) {
	slot := &value
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slots[key[T]()] = slot
}

// InsertOnce stores value only when no value of type T is present.
func InsertOnce[T any](r *Registry, value T) error {
	k := key[T]()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.slots[k]; exists {
		return &AlreadyExistsError{Type: k}
	}
	slot := &value
	r.slots[k] = slot
	return nil
}

// Get returns a copy of the stored value of type T.
func Get[T any](r *Registry) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	slot, ok := r.slots[key[T]()].(*T)
	if !ok {
		var zero T
		return zero, false
	}
	return *slot, true
}

// GetMut returns a pointer to the stored slot. The pointer stays valid until
// the value is replaced or removed; it must only be used on the engine
// goroutine within the call that obtained it.
func GetMut[T any](r *Registry) (*T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	slot, ok := r.slots[key[T]()].(*T)
	return slot, ok
}

// GetRequired is Get for mandatory dependencies.
func GetRequired[T any](r *Registry, name string) (T, error) {
	value, ok := Get[T](r)
	if !ok {
		return value, &MissingError{Name: name, Type: key[T]()}
	}
	return value, nil
}

// Contains reports whether a value of type T is present.
func Contains[T any](r *Registry) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.slots[key[T]()]
	return ok
}

// Remove transfers the value of type T out of the registry.
func Remove[T any](r *Registry) (T, bool) {
	k := key[T]()
	r.mu.Lock()
	defer r.mu.Unlock()
	slot, ok := r.slots[k].(*T)
	if !ok {
		var zero T
		return zero, false
	}
	delete(r.slots, k)
	return *slot, true
}

// TakeRequired is Remove for one-shot hand-offs that must succeed.
func TakeRequired[T any](r *Registry, name string) (T, error) {
	value, ok := Remove[T](r)
	if !ok {
		return value, &MissingError{Name: name, Type: key[T]()}
	}
	return value, nil
}

// Len reports the number of occupied slots.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.slots)
}

// TypeNames lists the occupied slots by type name, sorted.
func (r *Registry) TypeNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.slots))
	for k := range r.slots {
		names = append(names, k.String())
	}
	sort.Strings(names)
	return names
}
