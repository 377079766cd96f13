// Package scheduler implements the Timer: the scheduled executor that
// drives the periodic order-book cleanup, usable by any component
// needing periodic or delayed callbacks (for example a repeating call
// to the message processor's Flush for autoflush).
package scheduler

import (
	"container/heap"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// TaskID identifies a scheduled task for Cancel/Reschedule.
type TaskID uint64

type task struct {
	id             TaskID
	name           string
	action         func()
	onException    func(error)
	due            time.Time
	repeatInterval time.Duration
	seq            uint64 // tie-break for equal due times
	cancelled      bool
	index          int // heap index
}

type taskHeap []*task

func (h taskHeap) Len() int { return len(h) }
func (h taskHeap) Less(i, j int) bool {
	if h[i].due.Equal(h[j].due) {
		return h[i].seq < h[j].seq
	}
	return h[i].due.Before(h[j].due)
}
func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *taskHeap) Push(x interface{}) {
	t := x.(*task)
	t.index = len(*h)
	*h = append(*h, t)
}
func (h *taskHeap) Pop() interface{} {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

// Timer is an absolute-time ordered scheduler with a worker pool.
// Ties in due time are broken by insertion order, never silently
// dropped as duplicates.
type Timer struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending taskHeap
	byID    map[TaskID]*task
	byName  map[string]*task // for ExecuteDelayed debounce
	nextID  TaskID
	nextSeq uint64

	stopping bool
	stopped  chan struct{}
	workers  int
	log      zerolog.Logger
}

func New(workers int, logger zerolog.Logger) *Timer {
	t := &Timer{
		byID:    make(map[TaskID]*task),
		byName:  make(map[string]*task),
		workers: workers,
		stopped: make(chan struct{}),
		log:     logger.With().Str("component", "timer").Logger(),
	}
	t.cond = sync.NewCond(&t.mu)
	return t
}

// Start launches the dispatcher plus the configured worker pool.
func (t *Timer) Start() {
	go t.dispatch()
}

// Schedule arranges for action to run after firstDelay, then every
// repeatInterval if non-zero.
func (t *Timer) Schedule(name string, action func(), firstDelay, repeatInterval time.Duration, onException func(error)) TaskID {
	return t.ScheduleAt(name, action, time.Now().Add(firstDelay), repeatInterval, onException)
}

// ScheduleAt arranges for action to run at absoluteTime.
func (t *Timer) ScheduleAt(name string, action func(), absoluteTime time.Time, repeatInterval time.Duration, onException func(error)) TaskID {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.nextID++
	t.nextSeq++
	tk := &task{
		id:             t.nextID,
		name:           name,
		action:         action,
		onException:    onException,
		due:            absoluteTime,
		repeatInterval: repeatInterval,
		seq:            t.nextSeq,
	}
	heap.Push(&t.pending, tk)
	t.byID[tk.id] = tk
	if name != "" {
		t.byName[name] = tk
	}
	t.cond.Broadcast()
	return tk.id
}

// Cancel marks a task cancelled; it will not fire again.
func (t *Timer) Cancel(id TaskID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if tk, ok := t.byID[id]; ok {
		tk.cancelled = true
		delete(t.byID, id)
		if t.byName[tk.name] == tk {
			delete(t.byName, tk.name)
		}
	}
}

// CancelAll cancels every pending task.
func (t *Timer) CancelAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, tk := range t.byID {
		tk.cancelled = true
	}
	t.byID = make(map[TaskID]*task)
	t.byName = make(map[string]*task)
	t.cond.Broadcast()
}

// Reschedule moves an existing task to newTime, optionally replacing
// its action/onException.
func (t *Timer) Reschedule(id TaskID, newTime time.Time, newAction func(), newOnException func(error)) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	tk, ok := t.byID[id]
	if !ok || tk.cancelled {
		return false
	}
	tk.due = newTime
	if newAction != nil {
		tk.action = newAction
	}
	if newOnException != nil {
		tk.onException = newOnException
	}
	heap.Fix(&t.pending, tk.index)
	t.cond.Broadcast()
	return true
}

// ExecuteDelayed debounces repeated calls sharing uniqueName: if a task
// with that name is still pending, its due time resets to now+delay;
// otherwise a new one-shot task is created.
func (t *Timer) ExecuteDelayed(uniqueName string, action func(), delay time.Duration) TaskID {
	t.mu.Lock()
	if tk, ok := t.byName[uniqueName]; ok && !tk.cancelled {
		tk.due = time.Now().Add(delay)
		tk.action = action
		heap.Fix(&t.pending, tk.index)
		t.cond.Broadcast()
		id := tk.id
		t.mu.Unlock()
		return id
	}
	t.mu.Unlock()
	return t.Schedule(uniqueName, action, delay, 0, nil)
}

// dispatch is the single scheduling loop: sleep until the next due
// task (or until woken by a schedule change), then hand ready tasks to
// a bounded worker pool.
func (t *Timer) dispatch() {
	sem := make(chan struct{}, t.workers)

	for {
		t.mu.Lock()
		for !t.stopping && t.pending.Len() == 0 {
			t.cond.Wait()
		}
		if t.stopping && t.pending.Len() == 0 {
			t.mu.Unlock()
			close(t.stopped)
			return
		}

		next := t.pending[0]
		wait := time.Until(next.due)
		if wait > 0 {
			t.mu.Unlock()
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-t.wakeSignal(wait):
				timer.Stop()
			}
			continue
		}

		tk := heap.Pop(&t.pending).(*task)
		delete(t.byID, tk.id)
		if t.byName[tk.name] == tk {
			delete(t.byName, tk.name)
		}
		t.mu.Unlock()

		if tk.cancelled {
			continue
		}

		sem <- struct{}{}
		go func(tk *task) {
			defer func() { <-sem }()
			t.run(tk)
		}(tk)

		if tk.repeatInterval > 0 {
			t.mu.Lock()
			if !tk.cancelled && !t.stopping {
				tk.due = tk.due.Add(tk.repeatInterval)
				t.nextSeq++
				tk.seq = t.nextSeq
				heap.Push(&t.pending, tk)
				t.byID[tk.id] = tk
				if tk.name != "" {
					t.byName[tk.name] = tk
				}
			}
			t.mu.Unlock()
		}
	}
}

// wakeSignal is a best-effort early-wake channel: Schedule/Reschedule
// broadcast on cond, but the dispatcher is parked on a time.Timer
// rather than the cond while waiting for a distant due time, so it
// polls at a bounded interval to notice earlier insertions promptly.
func (t *Timer) wakeSignal(_ time.Duration) <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		for range ticker.C {
			t.mu.Lock()
			empty := t.pending.Len() == 0
			var earlier bool
			if !empty {
				earlier = time.Until(t.pending[0].due) <= 0
			}
			t.mu.Unlock()
			if empty || earlier {
				close(ch)
				return
			}
		}
	}()
	return ch
}

func (t *Timer) run(tk *task) {
	defer func() {
		if r := recover(); r != nil && tk.onException != nil {
			if err, ok := r.(error); ok {
				tk.onException(err)
			} else {
				t.log.Error().Interface("panic", r).Str("task", tk.name).Msg("scheduled task panicked")
			}
		}
	}()
	tk.action()
}

// Stop signals the dispatcher to exit once the queue drains, and waits
// for it. Repeating tasks are not re-armed after Stop is called.
func (t *Timer) Stop() {
	t.mu.Lock()
	t.stopping = true
	t.cond.Broadcast()
	t.mu.Unlock()
	<-t.stopped
}
