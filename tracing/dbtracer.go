package tracing

import (
	"context"
	"sync"

	"github.com/sarchlab/pagesim/datarecording"
)

// EventTable is the table the DBTracer writes to.
const EventTable = "page_events"

// DBTracer is a tracer that stores events into a database.
type DBTracer struct {
	mu      sync.Mutex
	backend datarecording.DataRecorder
	count   int
}

// NewDBTracer creates the event table in the backend.
func NewDBTracer(backend datarecording.DataRecorder) *DBTracer {
	backend.CreateTable(EventTable, Event{})

	return &DBTracer{backend: backend}
}

// Trace buffers the event in the backend.
func (t *DBTracer) Trace(event Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.backend.InsertData(EventTable, event)
	t.count++
}

// Count returns the number of events written.
func (t *DBTracer) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.count
}

// Flush writes the buffered events.
func (t *DBTracer) Flush() {
	t.backend.Flush()
}

// QueryEvents reads recorded events back in sequence order. An empty kind
// matches every kind and a positive limit keeps only the first events. The
// returned total counts all matching events regardless of the limit.
func QueryEvents(
	ctx context.Context,
	reader *datarecording.Reader,
	kind string,
	limit int,
) (events []Event, total int, err error) {
	sel := datarecording.Selection{OrderBy: "Seq", Limit: limit}
	if kind != "" {
		sel.Match = map[string]any{"Kind": kind}
	}

	total, err = reader.Count(ctx, EventTable, sel)
	if err != nil {
		return nil, 0, err
	}

	events, err = datarecording.Select[Event](ctx, reader, EventTable, sel)
	if err != nil {
		return nil, 0, err
	}

	return events, total, nil
}
