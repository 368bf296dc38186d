package logging

import (
	"context"
	"strings"
	"time"
)

type EventType string

type Severity int

const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityWarn
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarn:
		return "warn"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// ParseSeverity maps a configuration string onto a Severity.
func ParseSeverity(raw string) (Severity, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return SeverityDebug, true
	case "info", "":
		return SeverityInfo, true
	case "warn", "warning":
		return SeverityWarn, true
	case "error":
		return SeverityError, true
	default:
		return SeverityInfo, false
	}
}

type SourceKind string

const (
	SourceKindUnknown SourceKind = "unknown"
	SourceKindEngine  SourceKind = "engine"
	SourceKindModule  SourceKind = "module"
	SourceKindPlugin  SourceKind = "plugin"
	SourceKindService SourceKind = "service"
	SourceKindConsole SourceKind = "console"
)

type Event struct {
	Type     EventType      `json:"type"`
	Frame    uint64         `json:"frame"`
	Time     time.Time      `json:"time"`
	Source   SourceRef      `json:"source"`
	Severity Severity       `json:"severity"`
	Category string         `json:"category,omitempty"`
	Message  string         `json:"message,omitempty"`
	Payload  any            `json:"payload,omitempty"`
	Extra    map[string]any `json:"extra,omitempty"`
}

type SourceRef struct {
	ID   string     `json:"id"`
	Kind SourceKind `json:"kind"`
}

// Engine, Module and Plugin build source references for the common emitters.
func Engine() SourceRef { return SourceRef{ID: "engine", Kind: SourceKindEngine} }

func Module(id string) SourceRef { return SourceRef{ID: id, Kind: SourceKindModule} }

func Plugin(id string) SourceRef { return SourceRef{ID: id, Kind: SourceKindPlugin} }

const (
	CategoryEngine    = "engine"
	CategoryLifecycle = "lifecycle"
	CategoryPlugins   = "plugins"
	CategoryScheduler = "scheduler"
	CategoryBus       = "bus"
	CategoryConsole   = "console"
	CategoryTelemetry = "telemetry"
)

type Publisher interface {
	Publish(ctx context.Context, event Event)
}

type PublisherFunc func(ctx context.Context, event Event)

func (f PublisherFunc) Publish(ctx context.Context, event Event) {
	if f == nil {
		return
	}
	f(ctx, event)
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Event) {}

func NopPublisher() Publisher {
	return nopPublisher{}
}

type fieldPublisher struct {
	next   Publisher
	fields map[string]any
}

func (p *fieldPublisher) Publish(ctx context.Context, event Event) {
	if p.next == nil {
		return
	}
	if len(p.fields) > 0 {
		event = cloneForFields(event)
		if event.Extra == nil {
			event.Extra = make(map[string]any, len(p.fields))
		}
		for k, v := range p.fields {
			if _, exists := event.Extra[k]; !exists {
				event.Extra[k] = v
			}
		}
	}
	p.next.Publish(ctx, event)
}

func cloneForFields(event Event) Event {
	cloned := event
	if event.Extra != nil {
		copied := make(map[string]any, len(event.Extra))
		for k, v := range event.Extra {
			copied[k] = v
		}
		cloned.Extra = copied
	}
	return cloned
}

func WithFields(p Publisher, fields map[string]any) Publisher {
	if p == nil {
		return NopPublisher()
	}
	if len(fields) == 0 {
		return p
	}
	copied := make(map[string]any, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	return &fieldPublisher{next: p, fields: copied}
}

func (e Event) WithExtra(key string, value any) Event {
	if e.Extra == nil {
		e.Extra = make(map[string]any, 1)
	}
	e.Extra[key] = value
	return e
}
