package dispatch

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/pathakanu/myJournal/internal/metrics"
	"github.com/pathakanu/myJournal/internal/model"
	"github.com/pathakanu/myJournal/internal/push"
)

// DefaultBatchSize bounds the number of simultaneous push channel calls.
const DefaultBatchSize = 5

// DefaultAttemptTimeout is how long one push channel call may take before it is abandoned.
const DefaultAttemptTimeout = 20 * time.Second

const rejectedReason = "push channel rejected the message"

// AttemptRecorder persists the outcome of a dispatch attempt.
type AttemptRecorder interface {
	RecordAttempt(ctx context.Context, id string, attempt model.Attempt) error
}

// Result is the outcome of one reminder in a dispatch run.
type Result struct {
	ReminderID string
	Sent       bool
	Exhausted  bool
	Err        error
}

// Summary aggregates a dispatch run.
type Summary struct {
	Attempted int
	Sent      int
	Failed    int
	Exhausted int
	// Skipped counts reminders left alone because an earlier send for them has not returned.
	Skipped int
}

// Dispatcher delivers eligible reminders through a push channel in fixed-size batches.
// Batches run one after another; members of a batch run concurrently and never
// affect each other's outcome.
//
// A reminder whose send is still running, including one abandoned after its
// deadline, is claimed and skipped by every other Dispatch call until the
// channel returns.
type Dispatcher struct {
	channel        push.Channel
	store          AttemptRecorder
	batchSize      int
	attemptTimeout time.Duration
	location       *time.Location
	now            func() time.Time
	metrics        metrics.Recorder
	logger         *log.Logger

	inflight sync.Map
}

// Option customises a Dispatcher.
type Option func(*Dispatcher)

// WithBatchSize lowers the batch size. Values outside 1..DefaultBatchSize are ignored.
func WithBatchSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 && n <= DefaultBatchSize {
			d.batchSize = n
		}
	}
}

// WithAttemptTimeout overrides DefaultAttemptTimeout.
func WithAttemptTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.attemptTimeout = timeout
		}
	}
}

// WithLocation sets the time zone used to render the remind time.
func WithLocation(loc *time.Location) Option {
	return func(d *Dispatcher) {
		if loc != nil {
			d.location = loc
		}
	}
}

// WithClock replaces time.Now for recorded attempt timestamps.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m metrics.Recorder) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// New creates a Dispatcher.
func New(channel push.Channel, store AttemptRecorder, logger *log.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		channel:        channel,
		store:          store,
		batchSize:      DefaultBatchSize,
		attemptTimeout: DefaultAttemptTimeout,
		location:       time.Local,
		now:            time.Now,
		metrics:        metrics.Prometheus{},
		logger:         logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch sends every reminder and returns per-reminder results in input order.
// It never returns an error: failures are recorded on the reminders themselves.
// Once ctx is done no further batch is started; the remaining reminders stay
// pending for the next run.
func (d *Dispatcher) Dispatch(ctx context.Context, reminders []model.Reminder) ([]Result, Summary) {
	var summary Summary
	claimed := make([]model.Reminder, 0, len(reminders))
	for _, r := range reminders {
		if _, busy := d.inflight.LoadOrStore(r.ID, struct{}{}); busy {
			summary.Skipped++
			d.logger.Printf("dispatch: reminder %s still has a send in flight, skipping", r.ID)
			continue
		}
		claimed = append(claimed, r)
	}

	results := make([]Result, 0, len(claimed))
	for start := 0; start < len(claimed); start += d.batchSize {
		if err := ctx.Err(); err != nil {
			for _, r := range claimed[start:] {
				d.inflight.Delete(r.ID)
			}
			d.logger.Printf("dispatch: %d reminders left for the next run: %v", len(claimed)-start, err)
			break
		}
		end := min(start+d.batchSize, len(claimed))
		for _, res := range d.dispatchBatch(ctx, claimed[start:end]) {
			summary.Attempted++
			if res.Sent {
				summary.Sent++
			} else {
				summary.Failed++
			}
			if res.Exhausted {
				summary.Exhausted++
			}
			results = append(results, res)
		}
	}
	return results, summary
}

func (d *Dispatcher) dispatchBatch(ctx context.Context, batch []model.Reminder) []Result {
	results := make([]Result, len(batch))
	var wg sync.WaitGroup
	for i := range batch {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = d.dispatchOne(ctx, batch[i])
		}()
	}
	wg.Wait()
	return results
}

func (d *Dispatcher) dispatchOne(ctx context.Context, reminder model.Reminder) (res Result) {
	res.ReminderID = reminder.ID
	abandoned := false
	defer func() {
		if !abandoned {
			d.inflight.Delete(reminder.ID)
		}
	}()
	defer func() {
		if p := recover(); p != nil {
			res.Sent = false
			res.Err = fmt.Errorf("dispatch panic: %v", p)
			d.logger.Printf("dispatch: reminder %s panicked: %v", reminder.ID, p)
		}
	}()

	msg := BuildMessage(reminder, d.location)
	started := time.Now()
	ok, err := d.send(ctx, reminder, msg, &abandoned)
	elapsed := time.Since(started).Seconds()

	attempt := model.Attempt{At: d.now()}
	switch {
	case err != nil:
		attempt.Error = err.Error()
		d.metrics.Dispatch(metrics.OutcomeError, elapsed)
		d.logger.Printf("dispatch: reminder %s (%s) failed: %v", reminder.ID, reminder.Title, err)
	case !ok:
		attempt.Error = rejectedReason
		d.metrics.Dispatch(metrics.OutcomeRejected, elapsed)
		d.logger.Printf("dispatch: reminder %s (%s) rejected by channel", reminder.ID, reminder.Title)
	default:
		attempt.Sent = true
		d.metrics.Dispatch(metrics.OutcomeSent, elapsed)
		d.logger.Printf("dispatch: reminder %s (%s) sent", reminder.ID, reminder.Title)
	}

	res.Sent = attempt.Sent
	if !attempt.Sent {
		res.Err = fmt.Errorf("reminder %s: %s", reminder.ID, attempt.Error)
	}

	// The outcome is persisted even when the run's context has expired.
	if err := d.store.RecordAttempt(context.WithoutCancel(ctx), reminder.ID, attempt); err != nil {
		d.logger.Printf("dispatch: record attempt for reminder %s: %v", reminder.ID, err)
		return res
	}

	if next, err := reminder.Apply(attempt); err == nil && next.SendStatus == model.SendFailed {
		res.Exhausted = true
		d.metrics.Exhausted()
		d.logger.Printf("dispatch: reminder %s failed permanently after %d attempts", reminder.ID, next.RetryCount)
	}
	return res
}

type sendOutcome struct {
	ok  bool
	err error
}

// send calls the channel under the attempt deadline, converting a panic into an
// ordinary failed attempt. When the deadline passes first the call is abandoned:
// abandoned is set and the reminder stays claimed until the channel returns.
func (d *Dispatcher) send(ctx context.Context, reminder model.Reminder, msg push.Message, abandoned *bool) (bool, error) {
	sendCtx, cancel := context.WithTimeout(ctx, d.attemptTimeout)
	defer cancel()

	done := make(chan sendOutcome, 1)
	go func() {
		var out sendOutcome
		defer func() {
			if p := recover(); p != nil {
				out = sendOutcome{err: fmt.Errorf("push channel panic: %v", p)}
			}
			done <- out
		}()
		out.ok, out.err = d.channel.Send(sendCtx, reminder.UserID, reminder.MessageID, msg)
	}()

	select {
	case out := <-done:
		return out.ok, out.err
	case <-sendCtx.Done():
		*abandoned = true
		go func() {
			<-done
			d.inflight.Delete(reminder.ID)
		}()
		return false, fmt.Errorf("push channel did not answer: %w", sendCtx.Err())
	}
}
