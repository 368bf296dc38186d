package plugins

import (
	"context"

	"neocore/logging"
)

const (
	// EventScan is emitted when a plugin directory scan begins.
	EventScan logging.EventType = "plugins.scan"
	// EventLoaded is emitted when a plugin passes init and joins the load order.
	EventLoaded logging.EventType = "plugins.loaded"
	// EventSkipped is emitted when a candidate library is rejected.
	EventSkipped logging.EventType = "plugins.skipped"
	// EventSummary is emitted at the end of a scan.
	EventSummary logging.EventType = "plugins.summary"
	// EventPhaseFailed is emitted when a lifecycle call on a plugin fails.
	EventPhaseFailed logging.EventType = "plugins.phase_failed"
	// EventLog carries messages a plugin sends through the host table.
	EventLog logging.EventType = "plugins.log"
)

// ScanPayload describes a directory scan.
type ScanPayload struct {
	Dir        string `json:"dir"`
	Candidates int    `json:"candidates"`
}

// LoadedPayload describes an accepted plugin.
type LoadedPayload struct {
	Path    string `json:"path"`
	Name    string `json:"name"`
	Version string `json:"version"`
}

// SkippedPayload describes a rejected candidate.
type SkippedPayload struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
	Error  string `json:"error,omitempty"`
}

// SummaryPayload totals a scan.
type SummaryPayload struct {
	Dir     string `json:"dir"`
	Loaded  int    `json:"loaded"`
	Skipped int    `json:"skipped"`
}

// PhaseFailedPayload names the failing lifecycle call.
type PhaseFailedPayload struct {
	Phase string `json:"phase"`
	Error string `json:"error"`
}

// Scan publishes the start of a directory scan.
func Scan(ctx context.Context, pub logging.Publisher, payload ScanPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventScan,
		Source:   logging.Engine(),
		Severity: logging.SeverityInfo,
		Category: logging.CategoryPlugins,
		Payload:  payload,
	})
}

// Loaded publishes an accepted plugin.
func Loaded(ctx context.Context, pub logging.Publisher, pluginID string, payload LoadedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventLoaded,
		Source:   logging.Plugin(pluginID),
		Severity: logging.SeverityInfo,
		Category: logging.CategoryPlugins,
		Payload:  payload,
	})
}

// Skipped publishes a rejected candidate. pluginID may be empty when the
// library never produced a module.
func Skipped(ctx context.Context, pub logging.Publisher, pluginID string, payload SkippedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventSkipped,
		Source:   logging.Plugin(pluginID),
		Severity: logging.SeverityWarn,
		Category: logging.CategoryPlugins,
		Message:  payload.Error,
		Payload:  payload,
	})
}

// Summary publishes scan totals.
func Summary(ctx context.Context, pub logging.Publisher, payload SummaryPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventSummary,
		Source:   logging.Engine(),
		Severity: logging.SeverityInfo,
		Category: logging.CategoryPlugins,
		Payload:  payload,
	})
}

// PhaseFailed publishes a plugin lifecycle failure.
func PhaseFailed(ctx context.Context, pub logging.Publisher, frame uint64, pluginID string, payload PhaseFailedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventPhaseFailed,
		Frame:    frame,
		Source:   logging.Plugin(pluginID),
		Severity: logging.SeverityError,
		Category: logging.CategoryPlugins,
		Message:  payload.Error,
		Payload:  payload,
	})
}

// Log publishes a free-form message from a plugin.
func Log(ctx context.Context, pub logging.Publisher, pluginID string, severity logging.Severity, message string) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventLog,
		Source:   logging.Plugin(pluginID),
		Severity: severity,
		Category: logging.CategoryPlugins,
		Message:  message,
	})
}
