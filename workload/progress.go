package workload

import (
	"sync"
	"time"

	"github.com/rs/xid"
)

// Progress tracks a run of a script. The runner advances it and other
// goroutines may read it at any time.
type Progress struct {
	mu sync.Mutex

	id      string
	script  string
	start   time.Time
	total   int
	done    int
	current *Command
	failure string
}

// NewProgress creates a tracker for a script of total commands.
func NewProgress(script string, total int) *Progress {
	return &Progress{
		id:     xid.New().String(),
		script: script,
		start:  time.Now(),
		total:  total,
	}
}

// A ProgressReport is a snapshot of a Progress.
type ProgressReport struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	StartTime time.Time `json:"start_time"`
	Total     int       `json:"total"`
	Finished  int       `json:"finished"`
	Current   string    `json:"current,omitempty"`
	Failure   string    `json:"failure,omitempty"`
}

// Report returns the current state of the run.
func (p *Progress) Report() ProgressReport {
	p.mu.Lock()
	defer p.mu.Unlock()

	r := ProgressReport{
		ID:        p.id,
		Name:      p.script,
		StartTime: p.start,
		Total:     p.total,
		Finished:  p.done,
		Failure:   p.failure,
	}

	if p.current != nil {
		r.Current = p.current.String()
	}

	return r
}

// Done reports whether every command has finished or the run failed.
func (p *Progress) Done() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.done == p.total || p.failure != ""
}

func (p *Progress) begin(cmd Command) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current = &cmd
}

func (p *Progress) finish(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err != nil {
		p.failure = err.Error()
		return
	}

	p.current = nil
	p.done++
}
