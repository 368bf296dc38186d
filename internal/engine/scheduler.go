package engine

import (
	"container/heap"
	"sync"
	"time"
)

const (
	defaultTimerBudget = 64
	minTimerPeriod     = time.Millisecond
)

// TaskID identifies a scheduled task. Zero is never issued.
type TaskID uint64

// TaskPanicHandler observes a task that panicked.
type TaskPanicHandler func(id TaskID, recovered any)

// Scheduler runs deferred and repeating callbacks on the engine goroutine.
// Time advances only when the engine ticks it, so tasks follow frame time
// rather than wall time.
type Scheduler struct {
	mu      sync.Mutex
	now     time.Duration
	nextID  TaskID
	tasks   taskHeap
	byID    map[TaskID]*timerTask
	budget  int
	onPanic TaskPanicHandler
}

type timerTask struct {
	id       TaskID
	due      time.Duration
	period   time.Duration
	fn       func()
	index    int
	canceled bool
}

// NewScheduler constructs a scheduler that runs at most budget tasks per
// tick. Tasks over budget stay due and run on later ticks.
func NewScheduler(budget int, onPanic TaskPanicHandler) *Scheduler {
	if budget <= 0 {
		budget = defaultTimerBudget
	}
	return &Scheduler{
		byID:    make(map[TaskID]*timerTask),
		budget:  budget,
		onPanic: onPanic,
	}
}

// After runs fn once, delay from now.
func (s *Scheduler) After(delay time.Duration, fn func()) TaskID {
	return s.schedule(delay, 0, fn)
}

// Every runs fn repeatedly with the given period, first after one period.
func (s *Scheduler) Every(period time.Duration, fn func()) TaskID {
	if period < minTimerPeriod {
		period = minTimerPeriod
	}
	return s.schedule(period, period, fn)
}

func (s *Scheduler) schedule(delay, period time.Duration, fn func()) TaskID {
	if fn == nil {
		return 0
	}
	if delay < 0 {
		delay = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	task := &timerTask{id: s.nextID, due: s.now + delay, period: period, fn: fn}
	heap.Push(&s.tasks, task)
	s.byID[task.id] = task
	return task.id
}

// Cancel removes a task. It reports whether the task was still pending.
func (s *Scheduler) Cancel(id TaskID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.byID[id]
	if !ok {
		return false
	}
	task.canceled = true
	delete(s.byID, id)
	if task.index >= 0 {
		heap.Remove(&s.tasks, task.index)
	}
	return true
}

// Pending reports how many tasks are scheduled.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

// Now reports the scheduler's accumulated frame time.
func (s *Scheduler) Now() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// Tick advances time by dt and runs due tasks in due order, ties broken by
// scheduling order. It returns the number of tasks run.
func (s *Scheduler) Tick(dt time.Duration) int {
	if dt < 0 {
		dt = 0
	}
	s.mu.Lock()
	s.now += dt
	s.mu.Unlock()

	ran := 0
	for ran < s.budget {
		task := s.popDue()
		if task == nil {
			break
		}
		s.run(task)
		ran++
		s.reschedule(task)
	}
	return ran
}

func (s *Scheduler) popDue() *timerTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.tasks) == 0 || s.tasks[0].due > s.now {
		return nil
	}
	return heap.Pop(&s.tasks).(*timerTask)
}

func (s *Scheduler) run(task *timerTask) {
	defer func() {
		if r := recover(); r != nil && s.onPanic != nil {
			s.onPanic(task.id, r)
		}
	}()
	task.fn()
}

func (s *Scheduler) reschedule(task *timerTask) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if task.canceled {
		return
	}
	if task.period == 0 {
		delete(s.byID, task.id)
		return
	}
	task.due += task.period
	heap.Push(&s.tasks, task)
}

type taskHeap []*timerTask

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].due == h[j].due {
		return h[i].id < h[j].id
	}
	return h[i].due < h[j].due
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x any) {
	task := x.(*timerTask)
	task.index = len(*h)
	*h = append(*h, task)
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	task := old[n-1]
	old[n-1] = nil
	task.index = -1
	*h = old[:n-1]
	return task
}
