package app

import (
	"encoding/json"
	"fmt"
	"strings"

	telemetrymod "neocore/internal/modules/telemetry"
	"neocore/internal/services"
	"neocore/logging"
)

// HostServiceID names the service that reports on the host process. Its
// stats and plugins commands are discovered by the console.
const HostServiceID = "neocore.host"

func (a *App) hostService() *services.MethodTable {
	return services.NewMethodTable(HostServiceID, 1).
		Handle(services.MethodDoc{Name: "stats", Payload: "empty", Returns: "json frame, logging and telemetry counters"}, a.statsMethod).
		Handle(services.MethodDoc{Name: "plugins", Payload: "empty", Returns: "utf8 one plugin per line"}, a.pluginsMethod).
		Command(services.CommandDoc{Name: "stats", Help: "Show frame, logging and telemetry counters", Method: "stats", Payload: services.PayloadEmpty}).
		Command(services.CommandDoc{Name: "plugins", Help: "List loaded plugins", Method: "plugins", Payload: services.PayloadEmpty})
}

func (a *App) pluginsMethod([]byte) ([]byte, error) {
	if a.loader == nil {
		return []byte("plugins disabled"), nil
	}
	statuses := a.loader.Statuses()
	if len(statuses) == 0 {
		return []byte("no plugins loaded"), nil
	}
	lines := make([]string, 0, len(statuses))
	for _, s := range statuses {
		lines = append(lines, fmt.Sprintf("%s %s (%s) %s", s.Info.ID, s.Info.Version, s.State, s.Path))
	}
	return []byte(strings.Join(lines, "\n")), nil
}

func (a *App) statsMethod([]byte) ([]byte, error) {
	payload := struct {
		Instance string              `json:"instance"`
		Frame    uint64              `json:"frame"`
		Frames   telemetrymod.Stats  `json:"frames"`
		Logging  logging.RouterStats `json:"logging"`
		Metrics  map[string]uint64   `json:"metrics"`
	}{
		Instance: a.instanceID,
		Frame:    a.engine.FrameIndex(),
		Frames:   a.stats.Snapshot(),
		Logging:  a.router.Stats(),
		Metrics:  a.metrics.Snapshot(),
	}
	return json.MarshalIndent(payload, "", "  ")
}
