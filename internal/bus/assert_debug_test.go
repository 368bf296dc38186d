//go:build !release

package bus

import (
	"errors"
	"testing"
)

func TestSecondConsumerPanicsInDebugBuilds(t *testing.T) {
	var hooked *ViolationError
	b := New[int](Options{OnViolation: func(err *ViolationError, total uint64) {
		hooked = err
	}})
	b.Send(1)
	b.Consumer("physics").DrainInto(nil)

	defer func() {
		recovered := recover()
		err, ok := recovered.(*ViolationError)
		if !ok {
			t.Fatalf("expected *ViolationError panic, got %#v", recovered)
		}
		if !errors.Is(err, ErrSingleConsumerViolation) {
			t.Fatalf("expected ErrSingleConsumerViolation, got %v", err)
		}
		if err.Owner != "physics" || err.Intruder != "render" {
			t.Fatalf("unexpected violation: %+v", err)
		}
		if hooked == nil || b.Violations() != 1 {
			t.Fatalf("expected hook and counter before panic, got %v %d", hooked, b.Violations())
		}
	}()
	b.Consumer("render").TryRecv()
	t.Fatalf("expected second consumer to panic")
}
