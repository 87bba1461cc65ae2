package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pathakanu/myJournal/internal/database"
	"github.com/pathakanu/myJournal/internal/dispatch"
	"github.com/pathakanu/myJournal/internal/model"
	"github.com/pathakanu/myJournal/internal/push"
	"github.com/pathakanu/myJournal/internal/retention"
	"github.com/pathakanu/myJournal/internal/store"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type nopMetrics struct{}

func (nopMetrics) Tick(string)              {}
func (nopMetrics) Dispatch(string, float64) {}
func (nopMetrics) Exhausted()               {}
func (nopMetrics) Cleaned(int64)            {}

var discard = log.New(io.Discard, "", 0)

type stubStore struct {
	find func(ctx context.Context, now time.Time) ([]model.Reminder, error)
}

func (s stubStore) FindEligible(ctx context.Context, now time.Time) ([]model.Reminder, error) {
	if s.find == nil {
		return nil, nil
	}
	return s.find(ctx, now)
}

type stubDispatcher struct {
	mu    sync.Mutex
	calls int
}

func (d *stubDispatcher) Dispatch(_ context.Context, reminders []model.Reminder) ([]dispatch.Result, dispatch.Summary) {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()
	return nil, dispatch.Summary{Attempted: len(reminders)}
}

type stubCleaner struct {
	mu   sync.Mutex
	runs int
}

func (c *stubCleaner) Run(context.Context, time.Time) int64 {
	c.mu.Lock()
	c.runs++
	c.mu.Unlock()
	return 0
}

type stubLocker struct {
	ok       bool
	err      error
	released int
}

func (l *stubLocker) TryLock(context.Context, string) (func(), bool, error) {
	if l.err != nil || !l.ok {
		return nil, false, l.err
	}
	return func() { l.released++ }, true, nil
}

func newStubScheduler(st Store, opts ...Option) (*Scheduler, *stubDispatcher, *stubCleaner) {
	d := &stubDispatcher{}
	c := &stubCleaner{}
	opts = append([]Option{WithMetrics(nopMetrics{}), WithLocation(time.UTC)}, opts...)
	return New(st, d, c, discard, opts...), d, c
}

func TestStartIsIdempotentAndStatusReportsNextFire(t *testing.T) {
	t.Parallel()
	s, _, _ := newStubScheduler(stubStore{})

	if st := s.Status(); st.Running || st.NextFireTime != nil {
		t.Fatalf("new scheduler should be stopped: %+v", st)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if n := len(s.cron.Entries()); n != 1 {
		t.Fatalf("entries = %d, want exactly one tick registration", n)
	}

	st := s.Status()
	if !st.Running || st.NextFireTime == nil {
		t.Fatalf("running scheduler should report next fire time: %+v", st)
	}
	now := time.Now()
	if !st.NextFireTime.After(now.Add(-time.Second)) || st.NextFireTime.After(now.Add(61*time.Second)) {
		t.Fatalf("next fire time %v is not within the next minute of %v", st.NextFireTime, now)
	}

	<-s.Stop().Done()
	if st := s.Status(); st.Running {
		t.Fatalf("stopped scheduler reports running")
	}
	select {
	case <-s.Stop().Done():
	case <-time.After(time.Second):
		t.Fatal("Stop on a stopped scheduler should return a done context")
	}
}

func TestStartFailureLeavesSchedulerStopped(t *testing.T) {
	t.Parallel()
	s, _, _ := newStubScheduler(stubStore{}, WithSpec("every now and then"))

	if err := s.Start(); err == nil {
		t.Fatal("expected invalid schedule to fail")
	}
	if st := s.Status(); st.Running {
		t.Fatalf("failed start must leave scheduler stopped: %+v", st)
	}
	if s.cron != nil {
		t.Fatal("failed start must not keep a cron engine")
	}
	if err := s.Start(); err == nil {
		t.Fatal("retrying start with the same schedule should fail again")
	}
}

func TestRunOnceSkipsCleanupWhenQueryFails(t *testing.T) {
	t.Parallel()
	s, d, c := newStubScheduler(stubStore{find: func(context.Context, time.Time) ([]model.Reminder, error) {
		return nil, errors.New("connection refused")
	}})

	if err := s.RunOnce(context.Background()); err == nil {
		t.Fatal("expected query error")
	}
	if d.calls != 0 || c.runs != 0 {
		t.Fatalf("dispatch=%d cleanup=%d, want neither", d.calls, c.runs)
	}
}

func TestRunOnceCleansUpWithoutDueReminders(t *testing.T) {
	t.Parallel()
	s, d, c := newStubScheduler(stubStore{})

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if d.calls != 0 || c.runs != 1 {
		t.Fatalf("dispatch=%d cleanup=%d, want 0 and 1", d.calls, c.runs)
	}
}

func TestRunOnceRecoversPanics(t *testing.T) {
	t.Parallel()
	var calls int
	s, _, c := newStubScheduler(stubStore{find: func(context.Context, time.Time) ([]model.Reminder, error) {
		calls++
		if calls == 1 {
			panic("corrupt row")
		}
		return nil, nil
	}})

	if err := s.RunOnce(context.Background()); err == nil {
		t.Fatal("expected the panic to surface as an error")
	}
	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("tick after panic: %v", err)
	}
	if c.runs != 1 {
		t.Fatalf("cleanup runs = %d, want 1", c.runs)
	}
}

func TestRunOnceIsBoundedByTickTimeout(t *testing.T) {
	t.Parallel()
	s, d, c := newStubScheduler(stubStore{find: func(ctx context.Context, _ time.Time) ([]model.Reminder, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}, WithTickTimeout(20*time.Millisecond))

	done := make(chan error, 1)
	go func() { done <- s.RunOnce(context.Background()) }()

	select {
	case err := <-done:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected deadline error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("tick ignored its deadline")
	}
	if d.calls != 0 || c.runs != 0 {
		t.Fatalf("dispatch=%d cleanup=%d, want neither", d.calls, c.runs)
	}
}

func TestRunOnceHonoursLock(t *testing.T) {
	t.Parallel()
	var finds int
	st := stubStore{find: func(context.Context, time.Time) ([]model.Reminder, error) {
		finds++
		return nil, nil
	}}

	held := &stubLocker{ok: false}
	s, _, _ := newStubScheduler(st, WithLocker(held))
	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce without lock: %v", err)
	}
	if finds != 0 {
		t.Fatal("tick must not run while another replica holds the lock")
	}

	free := &stubLocker{ok: true}
	s, _, _ = newStubScheduler(st, WithLocker(free))
	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce with lock: %v", err)
	}
	if finds != 1 || free.released != 1 {
		t.Fatalf("finds=%d released=%d, want 1 and 1", finds, free.released)
	}

	broken := &stubLocker{err: errors.New("redis down")}
	s, _, _ = newStubScheduler(st, WithLocker(broken))
	if err := s.RunOnce(context.Background()); err == nil {
		t.Fatal("expected lock error")
	}
}

// End-to-end: GORM store, real dispatcher and retention policy, fake push channel.

type recordingChannel struct {
	mu       sync.Mutex
	messages []push.Message
	fail     bool
}

func (c *recordingChannel) Send(_ context.Context, _, _ string, msg push.Message) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg)
	if c.fail {
		return false, errors.New("template expired")
	}
	return true, nil
}

func (c *recordingChannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

func newTestStore(t *testing.T) *store.GormStore {
	t.Helper()

	name := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared&_fk=1", name, time.Now().UnixNano())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite memory: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return store.NewGorm(db)
}

func newEndToEnd(t *testing.T, channel push.Channel) (*Scheduler, *store.GormStore) {
	t.Helper()
	st := newTestStore(t)
	d := dispatch.New(channel, st, discard, dispatch.WithLocation(time.UTC), dispatch.WithMetrics(nopMetrics{}))
	cleaner := retention.New(st, retention.DefaultWindow, discard).WithMetrics(nopMetrics{})
	return New(st, d, cleaner, discard, WithMetrics(nopMetrics{}), WithLocation(time.UTC)), st
}

func createDue(t *testing.T, st *store.GormStore, remindTime time.Time) *model.Reminder {
	t.Helper()
	r := &model.Reminder{
		UserID:             "openid-1",
		NoteID:             "note-1",
		Title:              "Dentist appointment",
		Content:            "Bring the insurance card",
		MessageID:          "tmpl",
		RemindTime:         remindTime,
		SubscriptionStatus: model.SubscriptionSubscribed,
		SendStatus:         model.SendPending,
	}
	if err := st.Create(context.Background(), r); err != nil {
		t.Fatalf("create reminder: %v", err)
	}
	return r
}

func TestTickDeliversDueReminder(t *testing.T) {
	t.Parallel()
	channel := &recordingChannel{}
	s, st := newEndToEnd(t, channel)
	remindTime := time.Now().Add(-time.Minute)
	r := createDue(t, st, remindTime)

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	if channel.count() != 1 {
		t.Fatalf("channel calls = %d, want 1", channel.count())
	}
	want := remindTime.In(time.UTC).Format("2006-01-02 15:04")
	if got := channel.messages[0].Time; got != want {
		t.Fatalf("time field = %q, want %q", got, want)
	}

	got, err := st.Get(context.Background(), r.ID, r.UserID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.SendStatus != model.SendSent || got.SentAt == nil {
		t.Fatalf("reminder should be sent: %+v", got)
	}

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("second RunOnce: %v", err)
	}
	if channel.count() != 1 {
		t.Fatalf("sent reminder was dispatched again (calls=%d)", channel.count())
	}
}

func TestTickStopsRetryingAfterThreeFailures(t *testing.T) {
	t.Parallel()
	channel := &recordingChannel{fail: true}
	s, st := newEndToEnd(t, channel)
	r := createDue(t, st, time.Now().Add(-time.Minute))

	for i := 0; i < 3; i++ {
		if err := s.RunOnce(context.Background()); err != nil {
			t.Fatalf("tick %d: %v", i+1, err)
		}
	}

	got, err := st.Get(context.Background(), r.ID, r.UserID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.SendStatus != model.SendFailed || got.RetryCount != model.MaxRetries {
		t.Fatalf("reminder should have failed permanently: %+v", got)
	}
	if got.LastError == "" {
		t.Fatal("lastError should describe the failure")
	}

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("fourth tick: %v", err)
	}
	if channel.count() != 3 {
		t.Fatalf("channel calls = %d, want 3", channel.count())
	}
}

func TestPendingSubscriptionIsNeverDispatched(t *testing.T) {
	t.Parallel()
	channel := &recordingChannel{}
	s, st := newEndToEnd(t, channel)

	for _, status := range []model.SubscriptionStatus{model.SubscriptionPending, model.SubscriptionCancelled} {
		r := &model.Reminder{
			UserID:             "openid-1",
			NoteID:             "note-1",
			Title:              "t",
			Content:            "c",
			MessageID:          "tmpl",
			RemindTime:         time.Now().Add(-48 * time.Hour),
			SubscriptionStatus: status,
		}
		if err := st.Create(context.Background(), r); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if channel.count() != 0 {
		t.Fatalf("channel calls = %d, want 0", channel.count())
	}
}

// blockingChannel hangs on its first call until release is closed.
type blockingChannel struct {
	recordingChannel
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (c *blockingChannel) Send(ctx context.Context, userID, templateID string, msg push.Message) (bool, error) {
	first := false
	c.once.Do(func() { first = true })
	if first {
		close(c.entered)
		<-c.release
	}
	return c.recordingChannel.Send(ctx, userID, templateID, msg)
}

func TestHungSendDoesNotBlockLaterTicks(t *testing.T) {
	t.Parallel()
	channel := &blockingChannel{entered: make(chan struct{}), release: make(chan struct{})}
	s, st := newEndToEnd(t, channel)
	stuck := createDue(t, st, time.Now().Add(-2*time.Minute))

	first := make(chan error, 1)
	go func() { first <- s.RunOnce(context.Background()) }()
	<-channel.entered

	later := createDue(t, st, time.Now().Add(-time.Minute))
	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("tick during a hung send: %v", err)
	}

	got, err := st.Get(context.Background(), later.ID, later.UserID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.SendStatus != model.SendSent {
		t.Fatalf("new due reminder should be delivered while another send hangs: %+v", got)
	}
	if n := channel.count(); n != 1 {
		t.Fatalf("completed channel calls = %d, want 1 (the hung reminder must not be resent)", n)
	}

	close(channel.release)
	if err := <-first; err != nil {
		t.Fatalf("first tick: %v", err)
	}
	got, err = st.Get(context.Background(), stuck.ID, stuck.UserID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.SendStatus != model.SendSent || got.RetryCount != 1 {
		t.Fatalf("hung reminder should be sent exactly once: %+v", got)
	}
}
