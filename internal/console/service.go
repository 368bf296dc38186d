package console

import (
	"encoding/json"
	"fmt"

	"neocore/internal/services"
)

// CommandServiceID is the id the console registers itself under.
const CommandServiceID = "engine.command"

const (
	MethodExec     = "command.exec"
	MethodList     = "command.list"
	MethodComplete = "command.complete"
	MethodRefresh  = "command.refresh"
)

type ListResponse struct {
	Commands []string `json:"commands"`
}

type CompleteResponse struct {
	Items []string `json:"items"`
}

type RefreshResponse struct {
	OK bool `json:"ok"`
}

// Service exposes a console through the service registry.
type Service struct {
	console *Console
}

func NewService(c *Console) *Service {
	return &Service{console: c}
}

func (s *Service) ID() string { return CommandServiceID }

func (s *Service) Describe() string {
	return services.Description{
		ID:      CommandServiceID,
		Version: 2,
		Methods: []services.MethodDoc{
			{Name: MethodExec, Payload: "utf8 line", Returns: "json ExecResponse"},
			{Name: MethodList, Payload: "empty", Returns: "json ListResponse"},
			{Name: MethodComplete, Payload: "utf8 prefix", Returns: "json CompleteResponse"},
			{Name: MethodRefresh, Payload: "empty", Returns: "json RefreshResponse"},
		},
	}.String()
}

func (s *Service) Call(method string, payload []byte) ([]byte, error) {
	switch method {
	case MethodExec:
		return json.Marshal(s.console.Exec(string(payload)))
	case MethodList:
		return json.Marshal(ListResponse{Commands: s.console.Commands()})
	case MethodComplete:
		return json.Marshal(CompleteResponse{Items: s.console.Complete(string(payload))})
	case MethodRefresh:
		s.console.Refresh()
		return json.Marshal(RefreshResponse{OK: true})
	default:
		return nil, fmt.Errorf("%w: %s", services.ErrUnknownMethod, method)
	}
}
