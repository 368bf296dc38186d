package app

import (
	"fmt"
	"os"
	"strings"

	"neocore/internal/engine"
	"neocore/logging"
)

// CommandKind names an operator command carried on the engine bus.
type CommandKind string

const (
	CommandLogLevel CommandKind = "loglevel"
	CommandExit     CommandKind = "exit"
	CommandEmit     CommandKind = "emit"
)

// Command is the engine bus event type of the host application. Any
// goroutine may send one; the operator module applies it on the engine
// goroutine.
type Command struct {
	Kind   CommandKind
	Arg    string
	Source string
}

const (
	operatorModuleID = "operator"

	// EventCommandApplied is published for every applied operator command.
	EventCommandApplied logging.EventType = "operator.command_applied"
)

type severitySetter interface {
	SetMinimumSeverity(logging.Severity)
}

// operatorModule owns the bus consumer side and turns platform signals
// into an exit request.
type operatorModule struct {
	router severitySetter
}

func (m *operatorModule) ID() string { return operatorModuleID }

func (m *operatorModule) Update(ctx *engine.Context[Command]) error {
	ctx.Bus().Drain(func(cmd Command) {
		m.apply(ctx, cmd)
	})
	return nil
}

func (m *operatorModule) OnExternalEvent(ctx *engine.Context[Command], ev any) error {
	switch event := ev.(type) {
	case os.Signal:
		ctx.Services().Logger.Printf("received %s, requesting exit", event)
		m.apply(ctx, Command{Kind: CommandExit, Source: "signal"})
	case Command:
		m.apply(ctx, event)
	}
	return nil
}

func (m *operatorModule) apply(ctx *engine.Context[Command], cmd Command) {
	var err error
	switch cmd.Kind {
	case CommandLogLevel:
		sev, ok := logging.ParseSeverity(cmd.Arg)
		if !ok {
			err = fmt.Errorf("unknown level %q", cmd.Arg)
			break
		}
		m.router.SetMinimumSeverity(sev)
	case CommandExit:
		ctx.RequestExit()
	case CommandEmit:
		topic, payload, _ := strings.Cut(cmd.Arg, " ")
		err = ctx.Events().Emit(topic, []byte(strings.TrimSpace(payload)))
	default:
		err = fmt.Errorf("unknown command kind %q", cmd.Kind)
	}

	event := logging.Event{
		Type:     EventCommandApplied,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryEngine,
		Message:  string(cmd.Kind),
		Payload:  map[string]string{"arg": cmd.Arg, "source": cmd.Source},
	}
	if err != nil {
		event.Severity = logging.SeverityWarn
		event.Extra = map[string]any{"error": err.Error()}
		ctx.Services().Logger.Printf("operator command %s failed: %v", cmd.Kind, err)
	}
	ctx.Publish(event)
}

