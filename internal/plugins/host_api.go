package plugins

import (
	"context"

	"neocore/internal/services"
	"neocore/internal/telemetry"
	"neocore/logging"
	pluginlog "neocore/logging/plugins"
	"neocore/pkg/pluginapi"
)

// HostAPIOptions binds a host table to an explicit host context.
type HostAPIOptions struct {
	Host      *services.HostContext
	Publisher logging.Publisher
	Logger    telemetry.Logger
	// Source attributes plugin log lines. Defaults to "plugins".
	Source string
}

// NewHostAPI builds the callback table handed to plugins at Init.
func NewHostAPI(opts HostAPIOptions) pluginapi.HostAPIV1 {
	host := opts.Host
	if host == nil {
		host = services.NewHostContext(services.HostOptions{})
	}
	publisher := opts.Publisher
	if publisher == nil {
		publisher = logging.NopPublisher()
	}
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.WrapLogger(nil)
	}
	source := opts.Source
	if source == "" {
		source = "plugins"
	}
	ctx := context.Background()
	logAt := func(severity logging.Severity) func(string) {
		return func(message string) {
			logger.Printf("[%s] %s: %s", source, severity, message)
			pluginlog.Log(ctx, publisher, source, severity, message)
		}
	}

	return pluginapi.HostAPIV1{
		LogInfo:  logAt(logging.SeverityInfo),
		LogWarn:  logAt(logging.SeverityWarn),
		LogError: logAt(logging.SeverityError),
		RegisterService: func(svc pluginapi.Service) error {
			return host.Services().Register(svc)
		},
		CallService: func(serviceID, method string, payload []byte) ([]byte, error) {
			return host.Services().Call(serviceID, method, payload)
		},
		EmitEvent: func(topic string, payload []byte) error {
			return host.Events().Emit(topic, payload)
		},
		SubscribeEvents: func(sink pluginapi.EventSink) error {
			return host.Events().Subscribe(sink)
		},
		MonotonicTimeNS: host.MonotonicTimeNS,
		RequestExit:     host.RequestExit,
	}
}
