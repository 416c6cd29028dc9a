package debounce

import (
	"context"
	"sync"
	"time"

	"github.com/modelgate/credential-engine/internal/models"

	fiberlog "github.com/gofiber/fiber/v2/log"
)

// DefaultQuietPeriod is how long a burst of edits must stay quiet before the
// surviving validation call is dispatched.
const DefaultQuietPeriod = time.Second

// BeforeFunc is a synchronous guard over the current form values. Returning
// false means there is nothing to check (e.g. the field was left empty).
type BeforeFunc func(values map[string]any) bool

// RunFunc performs the remote validation call. Failures are returned as data
// in the result; a non-nil error means the transport itself failed.
type RunFunc func(ctx context.Context, values map[string]any) (*models.OperationResult, error)

// Debouncer turns a burst of field edits into at most one in-flight validation
// call per quiet period. Only the last call within the window survives; its
// snapshot of values is the one validated. A run that has already been
// dispatched is never cancelled - its result still lands (last-resolved-wins).
type Debouncer struct {
	quiet time.Duration

	mu         sync.Mutex
	pending    *time.Timer
	validating bool
	status     models.ValidatedStatusState
	onChange   func()
}

// New creates a Debouncer with the default 1-second quiet period.
func New() *Debouncer {
	return NewWithQuietPeriod(DefaultQuietPeriod)
}

// NewWithQuietPeriod creates a Debouncer with a custom quiet period.
func NewWithQuietPeriod(quiet time.Duration) *Debouncer {
	return &Debouncer{quiet: quiet}
}

// OnChange registers a hook invoked whenever validating or status changes.
func (d *Debouncer) OnChange(fn func()) {
	d.mu.Lock()
	d.onChange = fn
	d.mu.Unlock()
}

// Trigger records a new edit. Any not-yet-dispatched run is replaced so the
// latest snapshot of values wins. The guard runs synchronously; the run, if
// any, is dispatched after the quiet period on its own goroutine.
func (d *Debouncer) Trigger(ctx context.Context, values map[string]any, before BeforeFunc, run RunFunc) {
	d.mu.Lock()

	if d.pending != nil {
		d.pending.Stop()
		d.pending = nil
	}

	if before != nil && !before(values) {
		// Nothing to check: reset to the idle state.
		d.validating = false
		d.status = models.ValidatedStatusState{}
		d.unlockAndNotify()
		return
	}

	d.validating = true
	d.status = models.ValidatedStatusState{}

	if run == nil {
		// Waiting on a sibling control; stay in validating until a
		// later trigger supplies a run or clears the state.
		d.unlockAndNotify()
		return
	}

	var timer *time.Timer
	timer = time.AfterFunc(d.quiet, func() {
		d.execute(ctx, values, run, timer)
	})
	d.pending = timer
	d.unlockAndNotify()
}

// Stop cancels any not-yet-dispatched run. A run already dispatched still
// resolves and its result still lands.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	if d.pending != nil {
		d.pending.Stop()
		d.pending = nil
	}
	d.mu.Unlock()
}

// Validating reports whether a validation cycle is in progress.
func (d *Debouncer) Validating() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.validating
}

// Status returns the outcome of the most recent settled validation cycle.
func (d *Debouncer) Status() models.ValidatedStatusState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

func (d *Debouncer) execute(ctx context.Context, values map[string]any, run RunFunc, timer *time.Timer) {
	result, err := run(ctx, values)

	var status models.ValidatedStatusState
	switch {
	case err != nil:
		// Transport failure is still a data outcome for display.
		fiberlog.Debugf("Debouncer: validation transport failed: %v", err)
		status = models.ValidatedStatusState{Status: models.ValidatedStatusError, Message: err.Error()}
	case result.Success():
		status = models.ValidatedStatusState{Status: models.ValidatedStatusSuccess}
	default:
		status = models.ValidatedStatusState{Status: models.ValidatedStatusError, Message: result.Error}
	}

	d.mu.Lock()
	d.validating = false
	d.status = status
	// A window opened while this run was in flight owns d.pending now; only
	// clear it when it still refers to the timer that dispatched this run.
	if d.pending == timer {
		d.pending = nil
	}
	d.unlockAndNotify()
}

// unlockAndNotify releases the lock and fires the change hook outside of it.
func (d *Debouncer) unlockAndNotify() {
	fn := d.onChange
	d.mu.Unlock()
	if fn != nil {
		fn()
	}
}
