package services

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownMethod is returned by MethodTable for unregistered methods.
var ErrUnknownMethod = errors.New("services: unknown method")

// Handler serves one method.
type Handler func(payload []byte) ([]byte, error)

// MethodTable is an in-process service assembled from handlers. Its
// description is regenerated from the table, so registering a method after
// the service is published shows up in the next Describe.
type MethodTable struct {
	id      string
	version int

	mu       sync.RWMutex
	methods  map[string]Handler
	docs     map[string]MethodDoc
	commands []CommandDoc
}

func NewMethodTable(id string, version int) *MethodTable {
	return &MethodTable{
		id:      id,
		version: version,
		methods: make(map[string]Handler),
		docs:    make(map[string]MethodDoc),
	}
}

// Handle registers a method with its documentation.
func (t *MethodTable) Handle(doc MethodDoc, h Handler) *MethodTable {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.methods[doc.Name] = h
	t.docs[doc.Name] = doc
	return t
}

// Command adds a console command to the description.
func (t *MethodTable) Command(cmd CommandDoc) *MethodTable {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.commands = append(t.commands, cmd)
	return t
}

func (t *MethodTable) ID() string { return t.id }

func (t *MethodTable) Describe() string {
	return t.Description().String()
}

// Description builds the document Describe returns.
func (t *MethodTable) Description() Description {
	t.mu.RLock()
	defer t.mu.RUnlock()
	desc := Description{ID: t.id, Version: t.version}
	names := make([]string, 0, len(t.docs))
	for name := range t.docs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		desc.Methods = append(desc.Methods, t.docs[name])
	}
	if len(t.commands) > 0 {
		desc.Console = &ConsoleSection{Commands: append([]CommandDoc(nil), t.commands...)}
	}
	return desc
}

func (t *MethodTable) Call(method string, payload []byte) ([]byte, error) {
	t.mu.RLock()
	h, ok := t.methods[method]
	t.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMethod, method)
	}
	return h(payload)
}
