// timer/timer.go
package timer

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type TimerTask struct {
	Id        int64
	Lane      string
	Execute   time.Time
	Interval  time.Duration
	Callback  func()
	index     int
	cancelled bool
	queued    bool
}

type TimerQueue []*TimerTask

func (q TimerQueue) Len() int { return len(q) }

func (q TimerQueue) Less(i, j int) bool {
	return q[i].Execute.Before(q[j].Execute)
}

func (q TimerQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *TimerQueue) Push(x interface{}) {
	n := len(*q)
	task := x.(*TimerTask)
	task.index = n
	*q = append(*q, task)
}

func (q *TimerQueue) Pop() interface{} {
	old := *q
	n := len(old)
	task := old[n-1]
	old[n-1] = nil
	task.index = -1
	*q = old[0 : n-1]
	return task
}

// TimerManager 按时间顺序调度一次性和周期性任务。
// RunDue invokes callbacks inline on the calling goroutine. Run hands them to
// lane workers instead: callbacks sharing a lane run one at a time in due
// order, and different lanes never wait on each other. Callbacks never run
// while the manager's lock is held, so a callback may add or remove timers.
type TimerManager struct {
	clock      clockwork.Clock
	resolution time.Duration
	queue      TimerQueue
	tasks      map[int64]*TimerTask
	lanes      map[string]*lane
	mutex      sync.Mutex
	nextId     int64
}

// lane is the pending work of one lane. A worker goroutine exists while
// running is set and exits once pending drains.
type lane struct {
	pending []*TimerTask
	running bool
}

func NewTimerManager(clock clockwork.Clock, resolution time.Duration) *TimerManager {
	if resolution <= 0 {
		resolution = 25 * time.Millisecond
	}
	manager := &TimerManager{
		clock:      clock,
		resolution: resolution,
		queue:      make(TimerQueue, 0),
		tasks:      make(map[int64]*TimerTask),
		lanes:      make(map[string]*lane),
		nextId:     1,
	}
	heap.Init(&manager.queue)
	return manager
}

// AddTimer schedules callback after delay. A positive interval makes the task
// repeat until it is removed. Under Run each firing gets its own goroutine.
func (m *TimerManager) AddTimer(delay time.Duration, interval time.Duration, callback func()) int64 {
	return m.AddLaneTimer("", delay, interval, callback)
}

// AddLaneTimer is AddTimer with the task bound to a lane, so under Run its
// callbacks are serialized with every other task of that lane.
func (m *TimerManager) AddLaneTimer(laneName string, delay time.Duration, interval time.Duration, callback func()) int64 {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	task := &TimerTask{
		Id:       m.nextId,
		Lane:     laneName,
		Execute:  m.clock.Now().Add(delay),
		Interval: interval,
		Callback: callback,
	}
	m.nextId++

	heap.Push(&m.queue, task)
	m.tasks[task.Id] = task
	return task.Id
}

// RemoveTimer cancels a task. A task already popped for the current batch or
// waiting on its lane will not be invoked.
func (m *TimerManager) RemoveTimer(timerId int64) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	task, exists := m.tasks[timerId]
	if !exists {
		return
	}
	task.cancelled = true
	delete(m.tasks, timerId)
	if task.index >= 0 {
		heap.Remove(&m.queue, task.index)
	}
}

// Len returns the number of live tasks.
func (m *TimerManager) Len() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.tasks)
}

// RunDue invokes every task whose execution time has passed and returns how
// many callbacks ran.
func (m *TimerManager) RunDue() int {
	ran := 0
	for _, task := range m.popDue() {
		if m.claim(task) {
			task.Callback()
			ran++
		}
	}
	return ran
}

// Run drives the queue at the manager's resolution until ctx is cancelled,
// dispatching due callbacks to their lanes.
func (m *TimerManager) Run(ctx context.Context) {
	ticker := m.clock.NewTicker(m.resolution)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			m.dispatchDue()
		}
	}
}

func (m *TimerManager) popDue() []*TimerTask {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	now := m.clock.Now()
	var due []*TimerTask
	for m.queue.Len() > 0 {
		task := m.queue[0]
		if task.Execute.After(now) {
			break
		}

		heap.Pop(&m.queue)
		due = append(due, task)

		if task.Interval > 0 {
			// 保持节拍不漂移；落后太多时从当前时间重新计
			next := task.Execute.Add(task.Interval)
			if !next.After(now) {
				next = now.Add(task.Interval)
			}
			task.Execute = next
			heap.Push(&m.queue, task)
		}
	}
	return due
}

// claim reports whether task may run now. It retires one-shot tasks.
func (m *TimerManager) claim(task *TimerTask) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	task.queued = false
	if task.cancelled {
		return false
	}
	if task.Interval <= 0 {
		delete(m.tasks, task.Id)
	}
	return true
}

func (m *TimerManager) dispatchDue() {
	for _, task := range m.popDue() {
		if task.Lane == "" {
			go func(task *TimerTask) {
				if m.claim(task) {
					task.Callback()
				}
			}(task)
			continue
		}
		m.enqueue(task)
	}
}

func (m *TimerManager) enqueue(task *TimerTask) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	// 周期任务在车道里积压时只保留一份
	if task.queued || task.cancelled {
		return
	}
	task.queued = true

	l, ok := m.lanes[task.Lane]
	if !ok {
		l = &lane{}
		m.lanes[task.Lane] = l
	}
	l.pending = append(l.pending, task)
	if !l.running {
		l.running = true
		go m.drain(task.Lane, l)
	}
}

func (m *TimerManager) drain(name string, l *lane) {
	for {
		m.mutex.Lock()
		if len(l.pending) == 0 {
			l.running = false
			delete(m.lanes, name)
			m.mutex.Unlock()
			return
		}
		task := l.pending[0]
		l.pending[0] = nil
		l.pending = l.pending[1:]
		m.mutex.Unlock()

		if m.claim(task) {
			task.Callback()
		}
	}
}
