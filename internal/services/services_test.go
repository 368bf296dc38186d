package services

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"neocore/logging"
	"neocore/pkg/pluginapi"
)

type stubService struct {
	id   string
	desc string
	err  error
}

func (s *stubService) ID() string       { return s.id }
func (s *stubService) Describe() string { return s.desc }
func (s *stubService) Call(method string, payload []byte) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	return append([]byte(method+":"), payload...), nil
}

func TestGenerationStartsAtOneAndBumpsOnMutation(t *testing.T) {
	reg := NewRegistry()
	if got := reg.Generation(); got != 1 {
		t.Fatalf("expected initial generation 1, got %d", got)
	}
	if err := reg.Register(&stubService{id: "a"}); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if got := reg.Generation(); got != 2 {
		t.Fatalf("expected generation 2 after register, got %d", got)
	}
	if err := reg.Register(&stubService{id: "a"}); !errors.Is(err, ErrDuplicateService) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	if got := reg.Generation(); got != 2 {
		t.Fatalf("expected failed register to leave generation, got %d", got)
	}
	replaced, err := reg.Replace(&stubService{id: "a", desc: "v2"})
	if err != nil || !replaced {
		t.Fatalf("expected replace, got %v %v", replaced, err)
	}
	if !reg.Unregister("a") {
		t.Fatalf("expected unregister to find service")
	}
	if reg.Unregister("a") {
		t.Fatalf("expected second unregister to miss")
	}
	if got := reg.Generation(); got != 4 {
		t.Fatalf("expected generation 4, got %d", got)
	}
}

func TestRegisterRejectsInvalidServices(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(nil); !errors.Is(err, ErrInvalidService) {
		t.Fatalf("expected invalid service for nil, got %v", err)
	}
	if err := reg.Register(&stubService{}); !errors.Is(err, ErrInvalidService) {
		t.Fatalf("expected invalid service for empty id, got %v", err)
	}
}

func TestCallErrors(t *testing.T) {
	reg := NewRegistry()
	if _, err := reg.Call("missing", "m", nil); !errors.Is(err, ErrUnknownService) {
		t.Fatalf("expected ErrUnknownService, got %v", err)
	}

	boom := errors.New("boom")
	reg.Register(&stubService{id: "bad", err: boom})
	_, err := reg.Call("bad", "explode", nil)
	var callErr *CallError
	if !errors.As(err, &callErr) || callErr.Method != "explode" {
		t.Fatalf("expected CallError, got %v", err)
	}
	if !errors.Is(err, ErrServiceCall) || !errors.Is(err, boom) {
		t.Fatalf("expected error to match ErrServiceCall and the service error, got %v", err)
	}

	reg.Register(&stubService{id: "echo"})
	out, err := reg.Call("echo", "say", []byte("hi"))
	if err != nil || string(out) != "say:hi" {
		t.Fatalf("unexpected call result %q %v", out, err)
	}
}

func TestIDsAndSnapshotSorted(t *testing.T) {
	reg := NewRegistry()
	for _, id := range []string{"c", "a", "b"} {
		reg.Register(&stubService{id: id})
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, reg.IDs()); diff != "" {
		t.Fatalf("unexpected ids (-want +got):\n%s", diff)
	}
	entries, gen := reg.Snapshot()
	if gen != reg.Generation() || len(entries) != 3 || entries[0].ID != "a" {
		t.Fatalf("unexpected snapshot %v at %d", entries, gen)
	}
	if desc, ok := reg.Describe("b"); !ok || desc != "" {
		t.Fatalf("unexpected describe %q %v", desc, ok)
	}
}

func TestParseDescriptionAndNormalize(t *testing.T) {
	raw := `{"id":"assets","version":1,"methods":[{"name":"asset.list","payload":"empty","returns":"json"}],
		"console":{"commands":[
			{"name":"assets","method":"asset.list","payload":"empty"},
			{"name":"ls","kind":"alias","expand":"assets"},
			{"name":"odd","kind":"weird","method":"asset.list"},
			{"name":"","method":"x"},
			{"name":"broken","kind":"alias"}
		]}}`
	desc, err := ParseDescription(raw)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	var got []CommandDoc
	for _, cmd := range desc.Console.Commands {
		if normalized, ok := cmd.Normalize(desc.ID); ok {
			got = append(got, normalized)
		}
	}
	want := []CommandDoc{
		{Name: "assets", Help: "service call: assets asset.list", Kind: KindServiceCall, ServiceID: "assets", Method: "asset.list", Payload: PayloadEmpty},
		{Name: "ls", Help: "alias -> assets", Kind: KindAlias, Expand: "assets"},
		{Name: "odd", Help: "service call: assets asset.list", Kind: KindServiceCall, ServiceID: "assets", Method: "asset.list", Payload: PayloadRaw},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected commands (-want +got):\n%s", diff)
	}

	if _, err := ParseDescription("not json"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestMethodTable(t *testing.T) {
	table := NewMethodTable("engine.info", 1).
		Handle(MethodDoc{Name: "info.ping", Returns: "utf8"}, func([]byte) ([]byte, error) {
			return []byte("pong"), nil
		}).
		Command(CommandDoc{Name: "ping", Method: "info.ping", Payload: PayloadEmpty})

	out, err := table.Call("info.ping", nil)
	if err != nil || string(out) != "pong" {
		t.Fatalf("unexpected call result %q %v", out, err)
	}
	if _, err := table.Call("info.nope", nil); !errors.Is(err, ErrUnknownMethod) {
		t.Fatalf("expected ErrUnknownMethod, got %v", err)
	}
	desc, err := ParseDescription(table.Describe())
	if err != nil {
		t.Fatalf("describe did not round trip: %v", err)
	}
	if desc.ID != "engine.info" || len(desc.Methods) != 1 || desc.Console == nil || len(desc.Console.Commands) != 1 {
		t.Fatalf("unexpected description %+v", desc)
	}
}

func TestHubPumpDeliversInOrder(t *testing.T) {
	hub := NewHub(0, nil)
	var first, second []string
	hub.Subscribe(pluginapi.EventSinkFunc(func(topic string, payload []byte) {
		first = append(first, topic+"="+string(payload))
		if topic == "a" {
			hub.Emit("late", nil)
		}
	}))
	hub.Subscribe(pluginapi.EventSinkFunc(func(topic string, payload []byte) {
		second = append(second, topic)
	}))
	payload := []byte("1")
	hub.Emit("a", payload)
	payload[0] = 'x'
	hub.Emit("b", []byte("2"))

	if n := hub.Pump(); n != 2 {
		t.Fatalf("expected 2 events pumped, got %d", n)
	}
	if diff := cmp.Diff([]string{"a=1", "b=2"}, first); diff != "" {
		t.Fatalf("unexpected first sink events (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a", "b"}, second); diff != "" {
		t.Fatalf("unexpected second sink events (-want +got):\n%s", diff)
	}
	if hub.Pending() != 1 {
		t.Fatalf("expected event emitted during pump to wait, got %d", hub.Pending())
	}
}

func TestHubRecoversSinkPanicsAndBoundsQueue(t *testing.T) {
	var panicked []string
	hub := NewHub(1, func(topic string, recovered any) {
		panicked = append(panicked, topic)
	})
	delivered := 0
	hub.Subscribe(pluginapi.EventSinkFunc(func(string, []byte) { panic("sink") }))
	hub.Subscribe(pluginapi.EventSinkFunc(func(string, []byte) { delivered++ }))

	if err := hub.Emit("", nil); !errors.Is(err, ErrEmptyTopic) {
		t.Fatalf("expected ErrEmptyTopic, got %v", err)
	}
	if err := hub.Emit("one", nil); err != nil {
		t.Fatalf("emit failed: %v", err)
	}
	if err := hub.Emit("two", nil); !errors.Is(err, ErrEventsFull) {
		t.Fatalf("expected ErrEventsFull, got %v", err)
	}
	hub.Pump()
	if delivered != 1 || len(panicked) != 1 || hub.Dropped() != 1 {
		t.Fatalf("unexpected delivery delivered=%d panicked=%v dropped=%d", delivered, panicked, hub.Dropped())
	}
	hub.Close()
	if err := hub.Emit("after", nil); !errors.Is(err, ErrHubShutDown) {
		t.Fatalf("expected ErrHubShutDown, got %v", err)
	}
}

func TestHostContextClockAndExit(t *testing.T) {
	now := time.Unix(100, 0)
	host := NewHostContext(HostOptions{Clock: logging.ClockFunc(func() time.Time { return now })})
	if got := host.MonotonicTimeNS(); got != 0 {
		t.Fatalf("expected zero at origin, got %d", got)
	}
	now = now.Add(5 * time.Millisecond)
	if got := host.MonotonicTimeNS(); got != uint64(5*time.Millisecond) {
		t.Fatalf("expected 5ms, got %d", got)
	}
	now = now.Add(-time.Second)
	if got := host.MonotonicTimeNS(); got != uint64(5*time.Millisecond) {
		t.Fatalf("expected clock to hold after stepping back, got %d", got)
	}
	if host.ExitRequested() {
		t.Fatalf("expected exit flag clear")
	}
	host.RequestExit()
	if !host.ExitRequested() {
		t.Fatalf("expected exit flag set")
	}
}
