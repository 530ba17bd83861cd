package scheduler

import (
	"context"
	"errors"
	"homework-agent/internal/model"
	"strings"
	"sync"
	"testing"
	"time"
)

func requireEqual[K comparable](name string, expected K, actual K, t *testing.T) {
	t.Helper()
	if expected != actual {
		t.Fatalf("expected %s to be %v, instead got %v", name, expected, actual)
	}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(layout string) *fakeClock {
	now, err := time.ParseInLocation(timeLayout, layout, time.Local)
	if err != nil {
		panic(err)
	}
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(layout string) {
	now, err := time.ParseInLocation(timeLayout, layout, time.Local)
	if err != nil {
		panic(err)
	}
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

type fakeSender struct {
	mu      sync.Mutex
	calls   int
	fn      func(call int) (model.SendResult, error)
	invoked chan int
}

func newFakeSender(fn func(call int) (model.SendResult, error)) *fakeSender {
	return &fakeSender{fn: fn, invoked: make(chan int, 16)}
}

func (f *fakeSender) AutoSend(ctx context.Context) (model.SendResult, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	defer func() { f.invoked <- call }()
	if f.fn == nil {
		return model.SendResult{Message: "sent"}, nil
	}
	return f.fn(call)
}

func (f *fakeSender) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeRecorder struct {
	mu   sync.Mutex
	runs []model.RunRecord
}

func (f *fakeRecorder) RecordRun(ctx context.Context, run model.RunRecord) (model.RunId, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, run)
	return model.RunId(len(f.runs)), nil
}

func (f *fakeRecorder) Runs() []model.RunRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.RunRecord(nil), f.runs...)
}

type fakeNotifier struct {
	mu     sync.Mutex
	titles []string
}

func (f *fakeNotifier) Notify(title, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.titles = append(f.titles, title)
	return nil
}

func enabledConfig(weekday, friday string) model.Config {
	cfg := model.DefaultConfig()
	cfg.AutoSendEnabled = true
	cfg.WeekdaySendTime = weekday
	cfg.FridaySendTime = friday
	return cfg
}

func newTestScheduler(t *testing.T, sender AutoSender, clock *fakeClock, opts ...Option) *DailyScheduler {
	opts = append([]Option{WithClock(clock.Now), WithTickInterval(5 * time.Millisecond)}, opts...)
	s := New(sender, opts...)
	t.Cleanup(s.Shutdown)
	return s
}

func waitForCall(t *testing.T, sender *fakeSender) int {
	t.Helper()
	select {
	case call := <-sender.invoked:
		return call
	case <-time.After(2 * time.Second):
		t.Fatal("auto send was not invoked")
		return 0
	}
}

// 2025-01-01 is a Wednesday.
const (
	wednesdayMorning = "2025-01-01 08:00:00"
	wednesdayAtNine  = "2025-01-01 09:00:00"
	thursdayNoon     = "2025-01-02 12:00:00"
	thursdayAtNine   = "2025-01-02 09:00:00"
	fridayMorning    = "2025-01-03 08:00:00"
	fridayEvening    = "2025-01-03 16:00:00"
)

func TestDisabledConfigSchedulesNothing(t *testing.T) {
	s := newTestScheduler(t, newFakeSender(nil), newFakeClock(wednesdayMorning))

	if err := s.ApplyConfig(model.DefaultConfig()); err != nil {
		t.Fatal(err)
	}
	requireEqual("job count", 0, s.JobCount(), t)

	status := s.Status()
	requireEqual("next run", noRun, status.NextRun, t)
	requireEqual("scheduler running", false, status.SchedulerRunning, t)
	requireEqual("scheduled time", "", status.ScheduledTime, t)
}

func TestRepeatedApplyKeepsOneJob(t *testing.T) {
	s := newTestScheduler(t, newFakeSender(nil), newFakeClock(wednesdayMorning))

	for i := 0; i < 5; i++ {
		if err := s.ApplyConfig(enabledConfig("09:00", "15:00")); err != nil {
			t.Fatal(err)
		}
		requireEqual("job count", 1, s.JobCount(), t)
	}

	if err := s.ApplyConfig(model.DefaultConfig()); err != nil {
		t.Fatal(err)
	}
	requireEqual("job count after disable", 0, s.JobCount(), t)
}

func TestInvalidTimeClearsJob(t *testing.T) {
	s := newTestScheduler(t, newFakeSender(nil), newFakeClock(wednesdayMorning))
	if err := s.ApplyConfig(enabledConfig("09:00", "15:00")); err != nil {
		t.Fatal(err)
	}

	err := s.ApplyConfig(enabledConfig("25:00", "15:00"))
	if !errors.Is(err, model.ErrInvalidClock) {
		t.Fatalf("expected invalid clock error, got %v", err)
	}
	requireEqual("job count", 0, s.JobCount(), t)
}

func TestCurrentTimeFollowsWeekday(t *testing.T) {
	cases := []struct {
		name    string
		now     string
		want    string
		weekday string
	}{
		{"wednesday", wednesdayMorning, "09:00", "周三"},
		{"friday", fridayMorning, "15:00", "周五"},
		{"saturday", "2025-01-04 10:00:00", "09:00", "周六"},
		{"sunday", "2025-01-05 10:00:00", "09:00", "周日"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			s := newTestScheduler(t, newFakeSender(nil), newFakeClock(c.now))
			if err := s.ApplyConfig(enabledConfig("09:00", "15:00")); err != nil {
				t.Fatal(err)
			}

			fast := s.FastStatus()
			requireEqual("current time", c.want, fast.CurrentTime, t)
			requireEqual("scheduled time", c.want, fast.ScheduledTime, t)
			requireEqual("current weekday", c.weekday, fast.CurrentWeekday, t)
			requireEqual("next run", unknownRun, fast.NextRun, t)
			requireEqual("enabled", true, fast.AutoSendEnabled, t)

			full := s.Status()
			requireEqual("full current time", c.want, full.CurrentTime, t)
			requireEqual("weekday send time", "09:00", full.WeekdaySendTime, t)
			requireEqual("friday send time", "15:00", full.FridaySendTime, t)
		})
	}
}

func TestNextRunReevaluatesDayRule(t *testing.T) {
	clock := newFakeClock(thursdayNoon)
	s := newTestScheduler(t, newFakeSender(nil), clock)

	// Applied on Thursday after the weekday time: the next fire is Friday at the Friday time.
	if err := s.ApplyConfig(enabledConfig("09:00", "15:00")); err != nil {
		t.Fatal(err)
	}
	requireEqual("next run", "2025-01-03 15:00:00", s.Status().NextRun, t)

	s.Shutdown()
	clock.Set(fridayEvening)
	if err := s.ApplyConfig(enabledConfig("09:00", "15:00")); err != nil {
		t.Fatal(err)
	}
	requireEqual("next run after friday", "2025-01-04 09:00:00", s.Status().NextRun, t)
}

func TestLegacyTimeUsedWhenSplitTimesEmpty(t *testing.T) {
	s := newTestScheduler(t, newFakeSender(nil), newFakeClock(thursdayNoon))
	cfg := enabledConfig("", "")
	cfg.AutoSendTime = "07:30"
	if err := s.ApplyConfig(cfg); err != nil {
		t.Fatal(err)
	}
	requireEqual("next run", "2025-01-03 07:30:00", s.Status().NextRun, t)
}

func TestDueJobFiresOnce(t *testing.T) {
	clock := newFakeClock(wednesdayMorning)
	sender := newFakeSender(nil)
	recorder := &fakeRecorder{}
	notifier := &fakeNotifier{}
	s := newTestScheduler(t, sender, clock, WithRecorder(recorder), WithNotifier(notifier))

	if err := s.ApplyConfig(enabledConfig("09:00", "15:00")); err != nil {
		t.Fatal(err)
	}
	requireEqual("running", true, s.FastStatus().SchedulerRunning, t)

	clock.Set(wednesdayAtNine)
	waitForCall(t, sender)
	time.Sleep(50 * time.Millisecond)
	requireEqual("calls", 1, sender.Calls(), t)
	requireEqual("next run", "2025-01-02 09:00:00", s.Status().NextRun, t)

	s.Shutdown()
	runs := recorder.Runs()
	requireEqual("recorded runs", 1, len(runs), t)
	requireEqual("run success", true, runs[0].Success, t)
	requireEqual("run message", "sent", runs[0].Message, t)
	requireEqual("notifications", 1, len(notifier.titles), t)
}

func TestRebuildBeforeTickKeepsDueSend(t *testing.T) {
	clock := newFakeClock(wednesdayMorning)
	sender := newFakeSender(nil)
	s := newTestScheduler(t, sender, clock, WithTickInterval(time.Hour))
	if err := s.ApplyConfig(enabledConfig("09:00", "15:00")); err != nil {
		t.Fatal(err)
	}

	// The trigger passed but the loop has not ticked since 08:00.
	clock.Set("2025-01-01 09:00:01")
	if err := s.ApplyConfig(enabledConfig("09:00", "15:00")); err != nil {
		t.Fatal(err)
	}
	requireEqual("next run after rebuild", "2025-01-01 09:00:00", s.Status().NextRun, t)

	s.runDue()
	requireEqual("calls", 1, sender.Calls(), t)
	requireEqual("next run after send", "2025-01-02 09:00:00", s.Status().NextRun, t)

	t.Run("later time today stays today", func(t *testing.T) {
		if err := s.ApplyConfig(enabledConfig("10:00", "15:00")); err != nil {
			t.Fatal(err)
		}
		requireEqual("next run", "2025-01-01 10:00:00", s.Status().NextRun, t)
		s.runDue()
		requireEqual("calls", 1, sender.Calls(), t)
	})

	t.Run("stopped scheduler starts from now", func(t *testing.T) {
		s.Shutdown()
		clock.Set("2025-01-01 11:00:00")
		if err := s.ApplyConfig(enabledConfig("10:00", "15:00")); err != nil {
			t.Fatal(err)
		}
		requireEqual("next run", "2025-01-02 10:00:00", s.Status().NextRun, t)
	})
}

func TestFailingJobDoesNotStopLoop(t *testing.T) {
	clock := newFakeClock(wednesdayMorning)
	sender := newFakeSender(func(call int) (model.SendResult, error) {
		switch call {
		case 1:
			panic("boom")
		case 2:
			return model.SendResult{}, errors.New("delivery failed")
		}
		return model.SendResult{Message: "sent"}, nil
	})
	recorder := &fakeRecorder{}
	s := newTestScheduler(t, sender, clock, WithRecorder(recorder))
	if err := s.ApplyConfig(enabledConfig("09:00", "15:00")); err != nil {
		t.Fatal(err)
	}

	clock.Set(wednesdayAtNine)
	requireEqual("first call", 1, waitForCall(t, sender), t)
	clock.Set(thursdayAtNine)
	requireEqual("second call", 2, waitForCall(t, sender), t)
	clock.Set("2025-01-03 15:00:00")
	requireEqual("third call", 3, waitForCall(t, sender), t)

	s.Shutdown()
	runs := recorder.Runs()
	requireEqual("recorded runs", 3, len(runs), t)
	requireEqual("panic recorded as failure", false, runs[0].Success, t)
	if !strings.Contains(runs[0].Message, "panicked") {
		t.Fatalf("expected panic message, got %q", runs[0].Message)
	}
	requireEqual("error recorded", "delivery failed", runs[1].Message, t)
	requireEqual("recovered", true, runs[2].Success, t)
}

func TestStartIsIdempotent(t *testing.T) {
	s := newTestScheduler(t, newFakeSender(nil), newFakeClock(wednesdayMorning))
	s.Start()
	s.Start()
	requireEqual("loops", int32(1), s.loops.Load(), t)

	s.Shutdown()
	deadline := time.Now().Add(time.Second)
	for s.running() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	requireEqual("running after shutdown", false, s.running(), t)
	s.Shutdown()
}

func TestShutdownIsBounded(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	clock := newFakeClock(wednesdayMorning)
	sender := newFakeSender(func(call int) (model.SendResult, error) {
		<-release
		return model.SendResult{}, nil
	})
	s := New(sender,
		WithClock(clock.Now),
		WithTickInterval(5*time.Millisecond),
		WithJoinTimeout(50*time.Millisecond),
	)
	if err := s.ApplyConfig(enabledConfig("09:00", "15:00")); err != nil {
		t.Fatal(err)
	}
	clock.Set(wednesdayAtNine)

	deadline := time.Now().Add(2 * time.Second)
	for sender.Calls() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	requireEqual("send started", 1, sender.Calls(), t)

	// FastStatus must answer while the job is mid-send.
	requireEqual("fast status while sending", "09:00", s.FastStatus().CurrentTime, t)

	started := time.Now()
	s.Shutdown()
	if elapsed := time.Since(started); elapsed > time.Second {
		t.Fatalf("shutdown took %v, expected it to give up after the join timeout", elapsed)
	}
}
