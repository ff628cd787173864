package thread

import "sync"

/// Scheduler_t implements spec §4.4's single global FIFO run queue. Run
/// and yield are one synchronous handoff apart (Thread.resume/yield), so
/// at most one thread's kernel code executes at a time, matching the
/// spec's cooperative, uniprocessor model (spec §1 Non-goals: no SMP, no
/// preemptive timeslicing).
type Scheduler_t struct {
	mu   sync.Mutex
	cond *sync.Cond
	runq []*Thread
}

/// Sched is the kernel's single scheduler instance.
var Sched = newScheduler()

func newScheduler() *Scheduler_t {
	s := &Scheduler_t{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

/// Enqueue appends t to the run queue and wakes the scheduler loop if it
/// is idling on an empty queue.
func (s *Scheduler_t) Enqueue(t *Thread) {
	s.mu.Lock()
	s.runq = append(s.runq, t)
	s.cond.Signal()
	s.mu.Unlock()
}

// popNext blocks until the run queue is non-empty, then pops and returns
// its head (spec §4.4: FIFO order).
func (s *Scheduler_t) popNext() *Thread {
	s.mu.Lock()
	for len(s.runq) == 0 {
		s.cond.Wait()
	}
	t := s.runq[0]
	s.runq = s.runq[1:]
	s.mu.Unlock()
	return t
}

/// Boot runs the scheduler loop forever: pop the next runnable thread,
/// hand it the CPU, and wait for it to yield (block or exit) before
/// picking the next one. Call once from the kernel's bootstrap goroutine
/// after the first thread has been enqueued.
func (s *Scheduler_t) Boot() {
	for {
		t := s.popNext()
		t.resume <- struct{}{}
		<-t.yield
	}
}
