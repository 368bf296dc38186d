package engine

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestSchedulerRunsDueTasksInOrder(t *testing.T) {
	s := NewScheduler(0, nil)
	var fired []string
	s.After(30*time.Millisecond, func() { fired = append(fired, "c") })
	s.After(10*time.Millisecond, func() { fired = append(fired, "a") })
	s.After(10*time.Millisecond, func() { fired = append(fired, "b") })

	if ran := s.Tick(5 * time.Millisecond); ran != 0 {
		t.Fatalf("expected nothing due, ran %d", ran)
	}
	if ran := s.Tick(30 * time.Millisecond); ran != 3 {
		t.Fatalf("expected 3 tasks, ran %d", ran)
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, fired); diff != "" {
		t.Fatalf("unexpected order (-want +got):\n%s", diff)
	}
	if s.Pending() != 0 {
		t.Fatalf("expected one-shot tasks to be gone, got %d", s.Pending())
	}
}

func TestSchedulerEveryAndCancel(t *testing.T) {
	s := NewScheduler(0, nil)
	count := 0
	id := s.Every(10*time.Millisecond, func() { count++ })
	for i := 0; i < 3; i++ {
		s.Tick(10 * time.Millisecond)
	}
	if count != 3 {
		t.Fatalf("expected 3 runs, got %d", count)
	}
	if !s.Cancel(id) {
		t.Fatalf("expected cancel to find task")
	}
	if s.Cancel(id) {
		t.Fatalf("expected second cancel to miss")
	}
	s.Tick(time.Second)
	if count != 3 {
		t.Fatalf("expected cancelled task to stop, got %d", count)
	}
}

func TestSchedulerTaskMayCancelItself(t *testing.T) {
	s := NewScheduler(0, nil)
	var id TaskID
	runs := 0
	id = s.Every(time.Millisecond, func() {
		runs++
		s.Cancel(id)
	})
	s.Tick(10 * time.Millisecond)
	if runs != 1 || s.Pending() != 0 {
		t.Fatalf("expected single run after self-cancel, got runs=%d pending=%d", runs, s.Pending())
	}
}

func TestSchedulerBudgetDefersExcessTasks(t *testing.T) {
	s := NewScheduler(2, nil)
	count := 0
	for i := 0; i < 5; i++ {
		s.After(0, func() { count++ })
	}
	if ran := s.Tick(0); ran != 2 {
		t.Fatalf("expected budget of 2, ran %d", ran)
	}
	s.Tick(0)
	s.Tick(0)
	if count != 5 {
		t.Fatalf("expected all tasks to run eventually, got %d", count)
	}
}

func TestSchedulerRecoversPanics(t *testing.T) {
	var panicked []TaskID
	s := NewScheduler(0, func(id TaskID, recovered any) { panicked = append(panicked, id) })
	id := s.After(0, func() { panic("task") })
	ran := false
	s.After(0, func() { ran = true })
	s.Tick(0)
	if diff := cmp.Diff([]TaskID{id}, panicked); diff != "" {
		t.Fatalf("unexpected panics (-want +got):\n%s", diff)
	}
	if !ran {
		t.Fatalf("expected later task to still run")
	}
	if s.After(0, nil) != 0 {
		t.Fatalf("expected nil task to be rejected")
	}
}
