// Package listing filters job postings for the browse views.
package listing

import (
	"strings"
	"sync"
	"time"

	"github.com/jobboard/apiserver/types"
)

// DefaultDelay is the pause after the last keystroke before a filter runs.
const DefaultDelay = 300 * time.Millisecond

// FilterByLocation keeps the postings whose location contains query,
// ignoring case and surrounding whitespace. An empty query keeps everything.
func FilterByLocation(jobs []types.JobPosting, query string) []types.JobPosting {
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return jobs
	}
	out := make([]types.JobPosting, 0, len(jobs))
	for _, job := range jobs {
		if strings.Contains(strings.ToLower(job.Location), needle) {
			out = append(out, job)
		}
	}
	return out
}

// Debouncer runs the most recently scheduled function once no newer call
// arrived for the configured delay.
type Debouncer struct {
	delay time.Duration

	mu    sync.Mutex
	timer *time.Timer
}

func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{delay: delay}
}

// Trigger cancels any pending run and schedules fn.
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, fn)
}

// Stop cancels the pending run, if any.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// LiveFilter re-filters a fixed set of postings as the query changes and
// reports each settled result.
type LiveFilter struct {
	jobs     []types.JobPosting
	onResult func(query string, jobs []types.JobPosting)
	debounce *Debouncer
}

// NewLiveFilter returns a LiveFilter over jobs. A non-positive delay uses DefaultDelay.
func NewLiveFilter(jobs []types.JobPosting, delay time.Duration, onResult func(query string, jobs []types.JobPosting)) *LiveFilter {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &LiveFilter{jobs: jobs, onResult: onResult, debounce: NewDebouncer(delay)}
}

// SetQuery schedules filtering for query. Clearing the query restores the
// full set.
func (f *LiveFilter) SetQuery(query string) {
	f.debounce.Trigger(func() {
		f.onResult(query, FilterByLocation(f.jobs, query))
	})
}

// Stop drops any pending filtering.
func (f *LiveFilter) Stop() {
	f.debounce.Stop()
}
