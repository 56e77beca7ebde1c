package reconcile

import (
	"fmt"
	"sync"
	"time"

	"github.com/felixgeelhaar/statekit"
	"github.com/google/uuid"

	"github.com/gitplug/gitplug/internal/domain/state"
)

// BatchState is the lifecycle state of one batch run.
type BatchState string

const (
	// BatchIdle means the batch was created but not started.
	BatchIdle BatchState = "idle"
	// BatchFetching means the repository list is being fetched.
	BatchFetching BatchState = "fetching"
	// BatchProcessing means repositories are being reconciled one by one.
	BatchProcessing BatchState = "processing"
	// BatchCompleted means every item was processed.
	BatchCompleted BatchState = "completed"
	// BatchFailed means the batch aborted before finishing.
	BatchFailed BatchState = "failed"
)

// Event types for the batch state machine.
const (
	eventFetch    = "FETCH"
	eventFetched  = "FETCHED"
	eventComplete = "COMPLETE"
	eventFail     = "FAIL"
)

// batchContext is the statekit context type for a batch run.
type batchContext struct {
	Account string
}

// Summary is a snapshot of a finished (or aborted) batch.
type Summary struct {
	BatchID   string                    `json:"batch_id"`
	Account   string                    `json:"account"`
	State     BatchState                `json:"state"`
	Total     int                       `json:"total"`
	Processed int                       `json:"processed"`
	Counts    map[state.PluginState]int `json:"counts"`
	Degraded  bool                      `json:"degraded,omitempty"`
	Duration  time.Duration             `json:"duration"`
	Err       error                     `json:"-"`
}

// batch tracks one run of ProcessAccount through a small lifecycle machine.
// The machine keeps the run's phase honest; the counts live beside it under
// a plain mutex.
type batch struct {
	id      string
	account string
	interp  *statekit.Interpreter[batchContext]

	mu        sync.Mutex
	startedAt time.Time
	total     int
	processed int
	degraded  bool
	counts    map[state.PluginState]int
	failErr   error
}

func newBatch(account string) (*batch, error) {
	machine, err := statekit.NewMachine[batchContext]("repository-batch").
		WithInitial(statekit.StateID(BatchIdle)).
		WithContext(batchContext{Account: account}).
		State(statekit.StateID(BatchIdle)).
		On(eventFetch).Target(statekit.StateID(BatchFetching)).Done().
		State(statekit.StateID(BatchFetching)).
		On(eventFetched).Target(statekit.StateID(BatchProcessing)).
		On(eventFail).Target(statekit.StateID(BatchFailed)).Done().
		State(statekit.StateID(BatchProcessing)).
		On(eventComplete).Target(statekit.StateID(BatchCompleted)).
		On(eventFail).Target(statekit.StateID(BatchFailed)).Done().
		State(statekit.StateID(BatchCompleted)).Done().
		State(statekit.StateID(BatchFailed)).Done().
		Build()
	if err != nil {
		return nil, fmt.Errorf("build batch machine: %w", err)
	}

	interp := statekit.NewInterpreter(machine)
	interp.Start()

	return &batch{
		id:        uuid.NewString(),
		account:   account,
		interp:    interp,
		startedAt: time.Now(),
		counts:    make(map[state.PluginState]int),
	}, nil
}

func (b *batch) startFetch() {
	b.interp.Send(statekit.Event{Type: eventFetch})
}

func (b *batch) startProcessing(total int, degraded bool) {
	b.mu.Lock()
	b.total = total
	b.degraded = degraded
	b.mu.Unlock()
	b.interp.Send(statekit.Event{Type: eventFetched})
}

func (b *batch) recordItem(res ItemResult) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.processed++
	b.counts[res.State]++
}

func (b *batch) complete() {
	b.interp.Send(statekit.Event{Type: eventComplete})
}

func (b *batch) fail(err error) {
	b.mu.Lock()
	b.failErr = err
	b.mu.Unlock()
	b.interp.Send(statekit.Event{Type: eventFail})
}

func (b *batch) state() BatchState {
	return BatchState(b.interp.State().Value)
}

func (b *batch) stop() {
	b.interp.Stop()
}

func (b *batch) summary() *Summary {
	b.mu.Lock()
	defer b.mu.Unlock()
	counts := make(map[state.PluginState]int, len(b.counts))
	for k, v := range b.counts {
		counts[k] = v
	}
	return &Summary{
		BatchID:   b.id,
		Account:   b.account,
		State:     b.state(),
		Total:     b.total,
		Processed: b.processed,
		Counts:    counts,
		Degraded:  b.degraded,
		Duration:  time.Since(b.startedAt),
		Err:       b.failErr,
	}
}
