// Package schedulertest provides a hand-driven scheduler for tests.
package schedulertest

import (
	"sort"
	"sync"
	"time"

	"github.com/birdeye-sniper/sniper_service/pkg/scheduler"
)

type job struct {
	id        int
	delay     time.Duration
	task      func()
	periodic  bool
	cancelled bool
}

// Manual records scheduled callbacks and fires them only when asked
type Manual struct {
	mu     sync.Mutex
	nextID int
	jobs   []*job
}

// NewManual creates an empty manual scheduler
func NewManual() *Manual {
	return &Manual{}
}

func (m *Manual) After(d time.Duration, task func()) (scheduler.CancelFunc, error) {
	return m.add(d, task, false), nil
}

func (m *Manual) Every(d time.Duration, task func()) (scheduler.CancelFunc, error) {
	return m.add(d, task, true), nil
}

func (m *Manual) add(d time.Duration, task func(), periodic bool) scheduler.CancelFunc {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	j := &job{id: m.nextID, delay: d, task: task, periodic: periodic}
	m.jobs = append(m.jobs, j)

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		j.cancelled = true
	}
}

// Pending returns the number of live one-shot jobs
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, j := range m.jobs {
		if !j.cancelled && !j.periodic {
			n++
		}
	}
	return n
}

// PendingWithDelay returns the number of live one-shot jobs scheduled with delay d
func (m *Manual) PendingWithDelay(d time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, j := range m.jobs {
		if !j.cancelled && !j.periodic && j.delay == d {
			n++
		}
	}
	return n
}

// FireDelay runs every live one-shot job scheduled with delay d, in scheduling order.
// Returns how many ran.
func (m *Manual) FireDelay(d time.Duration) int {
	return m.fire(func(j *job) bool { return j.delay == d })
}

// FireAll runs every live one-shot job, shortest delay first
func (m *Manual) FireAll() int {
	return m.fire(func(*job) bool { return true })
}

func (m *Manual) fire(match func(*job) bool) int {
	m.mu.Lock()
	var due []*job
	for _, j := range m.jobs {
		if !j.cancelled && !j.periodic && match(j) {
			j.cancelled = true
			due = append(due, j)
		}
	}
	m.mu.Unlock()

	sort.SliceStable(due, func(a, b int) bool { return due[a].delay < due[b].delay })
	for _, j := range due {
		j.task()
	}
	return len(due)
}
