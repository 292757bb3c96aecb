package workflow

import (
	"sort"
	"sync"
	"time"
)

// DirtySignal tells the owner of a job that edits are waiting to be flushed.
// Keys name the parts of the job that changed since the previous signal.
type DirtySignal struct {
	JobID string
	Keys  []string
	Edits int
	Seq   uint64
}

// Timer is the part of *time.Timer the debouncer needs.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d, like time.AfterFunc.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Debouncer coalesces bursts of edits into one DirtySignal emitted once no
// edit has arrived for the configured delay. It never performs I/O itself;
// the callback decides how to flush.
type Debouncer struct {
	mu        sync.Mutex
	jobID     string
	delay     time.Duration
	afterFunc AfterFunc
	fire      func(DirtySignal)
	timer     Timer
	pending   map[string]struct{}
	edits     int
	seq       uint64
	stopped   bool
}

// NewDebouncer returns a debouncer that calls fire on its own goroutine after
// delay of quiet. A nil afterFunc uses time.AfterFunc.
func NewDebouncer(jobID string, delay time.Duration, fire func(DirtySignal), afterFunc AfterFunc) *Debouncer {
	if afterFunc == nil {
		afterFunc = realAfterFunc
	}
	return &Debouncer{
		jobID:     jobID,
		delay:     delay,
		afterFunc: afterFunc,
		fire:      fire,
		pending:   make(map[string]struct{}),
	}
}

// Mark records an edit to key and restarts the quiet period.
func (d *Debouncer) Mark(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.pending[key] = struct{}{}
	d.edits++
	if d.timer != nil {
		d.timer.Stop()
	}
	d.seq++
	seq := d.seq
	d.timer = d.afterFunc(d.delay, func() { d.emit(seq) })
}

// emit fires the signal unless a newer Mark or a Drain superseded the timer
// that called it.
func (d *Debouncer) emit(seq uint64) {
	d.mu.Lock()
	if d.stopped || seq != d.seq || len(d.pending) == 0 {
		d.mu.Unlock()
		return
	}
	sig := d.takeLocked()
	d.mu.Unlock()
	d.fire(sig)
}

// Drain cancels the pending timer and returns the keys marked since the last
// signal. Owners call it before an explicit flush so the same edits are not
// signalled twice.
func (d *Debouncer) Drain() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.seq++
	return d.takeLocked().Keys
}

// Pending reports whether edits are waiting for a signal.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending) > 0
}

// Stop cancels any pending signal and ignores later marks. Unflushed edits
// are discarded, matching an abandoned session.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = make(map[string]struct{})
	d.edits = 0
}

func (d *Debouncer) takeLocked() DirtySignal {
	keys := make([]string, 0, len(d.pending))
	for k := range d.pending {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	sig := DirtySignal{JobID: d.jobID, Keys: keys, Edits: d.edits, Seq: d.seq}
	d.pending = make(map[string]struct{})
	d.edits = 0
	d.timer = nil
	return sig
}
