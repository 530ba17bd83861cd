package scheduler

import (
	"context"
	"fmt"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
	"homework-agent/internal/model"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultTickInterval = time.Second
	defaultJoinTimeout  = 2 * time.Second
	defaultSendTimeout  = 2 * time.Minute

	timeLayout = "2006-01-02 15:04:05"
	noRun      = "None"
	unknownRun = "Unknown"
)

var weekdayNames = [...]string{"周日", "周一", "周二", "周三", "周四", "周五", "周六"}

type AutoSender interface {
	AutoSend(ctx context.Context) (model.SendResult, error)
}

type Notifier interface {
	Notify(title, message string) error
}

type RunRecorder interface {
	RecordRun(ctx context.Context, run model.RunRecord) (model.RunId, error)
}

// Status is the scheduler state reported to the control plane.
type Status struct {
	AutoSendEnabled  bool   `json:"auto_send_enabled"`
	SchedulerRunning bool   `json:"scheduler_running"`
	ScheduledTime    string `json:"scheduled_time"`
	CurrentTime      string `json:"current_time"`
	CurrentWeekday   string `json:"current_weekday"`
	WeekdaySendTime  string `json:"weekday_send_time"`
	FridaySendTime   string `json:"friday_send_time"`
	NextRun          string `json:"next_run"`
}

// dailyJob fires once a day, at fridayTime on Fridays and at weekdayTime on
// every other day.
type dailyJob struct {
	weekdayTime string
	fridayTime  string
	friday      cron.Schedule
	otherDays   cron.Schedule
	next        time.Time
}

func newDailyJob(weekdayTime, fridayTime string, now time.Time) (*dailyJob, error) {
	otherDays, err := daySchedule(weekdayTime, "0-4,6")
	if err != nil {
		return nil, fmt.Errorf("weekday send time: %w", err)
	}
	friday, err := daySchedule(fridayTime, "5")
	if err != nil {
		return nil, fmt.Errorf("friday send time: %w", err)
	}
	j := &dailyJob{weekdayTime: weekdayTime, fridayTime: fridayTime, friday: friday, otherDays: otherDays}
	j.next = j.nextAfter(now)
	return j, nil
}

func daySchedule(clock, days string) (cron.Schedule, error) {
	hour, minute, err := model.ParseClock(clock)
	if err != nil {
		return nil, err
	}
	return cron.ParseStandard(fmt.Sprintf("%d %d * * %s", minute, hour, days))
}

func (j *dailyJob) nextAfter(t time.Time) time.Time {
	a, b := j.friday.Next(t), j.otherDays.Next(t)
	if b.Before(a) {
		return b
	}
	return a
}

func (j *dailyJob) timeFor(day time.Weekday) string {
	if day == time.Friday {
		return j.fridayTime
	}
	return j.weekdayTime
}

// snapshot is published atomically so FastStatus never waits on the job lock.
type snapshot struct {
	config model.Config
	hasJob bool
}

type DailyScheduler struct {
	sender      AutoSender
	notifier    Notifier
	recorder    RunRecorder
	clock       func() time.Time
	tick        time.Duration
	joinTimeout time.Duration
	sendTimeout time.Duration

	mu  sync.Mutex
	job *dailyJob
	// lastTick is when the running loop last checked for a due job.
	lastTick time.Time

	snap    atomic.Pointer[snapshot]
	loops   atomic.Int32
	started sync.Mutex
	stop    chan struct{}
	done    chan struct{}
}

type Option func(*DailyScheduler)

func WithClock(clock func() time.Time) Option {
	return func(s *DailyScheduler) { s.clock = clock }
}

func WithTickInterval(d time.Duration) Option {
	return func(s *DailyScheduler) { s.tick = d }
}

func WithJoinTimeout(d time.Duration) Option {
	return func(s *DailyScheduler) { s.joinTimeout = d }
}

func WithSendTimeout(d time.Duration) Option {
	return func(s *DailyScheduler) { s.sendTimeout = d }
}

func WithNotifier(n Notifier) Option {
	return func(s *DailyScheduler) { s.notifier = n }
}

func WithRecorder(r RunRecorder) Option {
	return func(s *DailyScheduler) { s.recorder = r }
}

func New(sender AutoSender, opts ...Option) *DailyScheduler {
	s := &DailyScheduler{
		sender:      sender,
		clock:       time.Now,
		tick:        defaultTickInterval,
		joinTimeout: defaultJoinTimeout,
		sendTimeout: defaultSendTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.snap.Store(&snapshot{config: model.DefaultConfig()})
	return s
}

// ApplyConfig replaces the scheduled job with one built from cfg. The new job
// is fully built before it is swapped in. A disabled config or a bad send
// time leaves no job scheduled. Occurrences the running loop has not checked
// yet stay due, so a rebuild between a trigger and the next tick still fires.
func (s *DailyScheduler) ApplyConfig(cfg model.Config) error {
	var (
		job *dailyJob
		err error
	)
	if cfg.AutoSendEnabled {
		job, err = newDailyJob(cfg.EffectiveWeekdayTime(), cfg.EffectiveFridayTime(), s.checkedUntil())
	}

	s.mu.Lock()
	s.job = job
	s.snap.Store(&snapshot{config: cfg, hasJob: job != nil})
	s.mu.Unlock()

	if err != nil {
		log.WithFields(log.Fields{"error": err}).Error("Error scheduling daily send")
		return fmt.Errorf("failed scheduling daily send: %w", err)
	}
	if job == nil {
		log.Info("Daily send disabled, no job scheduled")
		return nil
	}

	log.WithFields(log.Fields{
		"weekday_time": job.weekdayTime,
		"friday_time":  job.fridayTime,
		"next_run":     job.next.Format(timeLayout),
	}).Info("Scheduled daily send")
	s.Start()
	return nil
}

// Start launches the tick loop unless it is already running.
func (s *DailyScheduler) Start() {
	s.started.Lock()
	defer s.started.Unlock()
	if s.stop != nil {
		return
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.mu.Lock()
	s.lastTick = s.clock()
	s.mu.Unlock()
	s.loops.Add(1)
	go s.loop(s.stop, s.done)
}

// Shutdown stops the tick loop and waits for it up to the join timeout. A
// send in progress is not interrupted.
func (s *DailyScheduler) Shutdown() {
	s.started.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.started.Unlock()
	if stop == nil {
		return
	}

	close(stop)
	select {
	case <-done:
		log.Info("Scheduler stopped")
	case <-time.After(s.joinTimeout):
		log.WithField("timeout", s.joinTimeout).Warn("Scheduler loop did not stop in time")
	}
}

// checkedUntil is the time up to which due occurrences have been handled: the
// loop's last check while it runs, now otherwise.
func (s *DailyScheduler) checkedUntil() time.Time {
	now := s.clock()
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running() || s.lastTick.IsZero() || s.lastTick.After(now) {
		return now
	}
	return s.lastTick
}

func (s *DailyScheduler) JobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.job == nil {
		return 0
	}
	return 1
}

func (s *DailyScheduler) running() bool {
	return s.loops.Load() > 0
}

// Status reports the full scheduler state, including the next fire time.
func (s *DailyScheduler) Status() Status {
	now := s.clock()
	s.mu.Lock()
	job := s.job
	nextRun := noRun
	if job != nil {
		nextRun = job.next.Format(timeLayout)
	}
	s.mu.Unlock()

	status := s.baseStatus(now, s.snap.Load())
	status.NextRun = nextRun
	return status
}

// FastStatus reports the cached scheduler state. It never blocks on the job
// lock, so it is safe to poll while a send is running.
func (s *DailyScheduler) FastStatus() Status {
	status := s.baseStatus(s.clock(), s.snap.Load())
	status.NextRun = unknownRun
	return status
}

func (s *DailyScheduler) baseStatus(now time.Time, snap *snapshot) Status {
	cfg := snap.config
	current := cfg.EffectiveWeekdayTime()
	if now.Weekday() == time.Friday {
		current = cfg.EffectiveFridayTime()
	}
	status := Status{
		AutoSendEnabled:  cfg.AutoSendEnabled,
		SchedulerRunning: s.running() && snap.hasJob,
		CurrentTime:      current,
		CurrentWeekday:   weekdayNames[now.Weekday()],
		WeekdaySendTime:  cfg.EffectiveWeekdayTime(),
		FridaySendTime:   cfg.EffectiveFridayTime(),
	}
	if snap.hasJob {
		status.ScheduledTime = current
	}
	return status
}

func (s *DailyScheduler) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer s.loops.Add(-1)
	for {
		select {
		case <-stop:
			return
		case <-time.After(s.tick):
			s.runDue()
		}
	}
}

func (s *DailyScheduler) runDue() {
	now := s.clock()
	s.mu.Lock()
	s.lastTick = now
	job := s.job
	if job == nil || now.Before(job.next) {
		s.mu.Unlock()
		return
	}
	scheduled := job.timeFor(job.next.Weekday())
	job.next = job.nextAfter(now)
	s.mu.Unlock()

	s.runJob(scheduled)
}

func (s *DailyScheduler) runJob(scheduled string) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("Daily send job panicked")
		}
	}()

	started := s.clock()
	result, err := s.send()
	finished := s.clock()
	timestamp := finished.Format(timeLayout)

	run := model.RunRecord{StartedAt: started, FinishedAt: finished, Success: err == nil, Message: result.Message}
	if err != nil {
		run.Message = err.Error()
		log.WithFields(log.Fields{
			"error":          err,
			"scheduled_time": scheduled,
			"timestamp":      timestamp,
		}).Error("Auto send failed")
	} else {
		log.WithFields(log.Fields{
			"result":         result.Message,
			"scheduled_time": scheduled,
			"timestamp":      timestamp,
		}).Info("Auto send finished")
	}

	s.record(run)
	s.notify(run, timestamp)
}

func (s *DailyScheduler) send() (result model.SendResult, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.sendTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("auto send panicked: %v", r)
		}
	}()
	return s.sender.AutoSend(ctx)
}

func (s *DailyScheduler) record(run model.RunRecord) {
	if s.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := s.recorder.RecordRun(ctx, run); err != nil {
		log.WithFields(log.Fields{"error": err}).Error("Error recording run")
	}
}

func (s *DailyScheduler) notify(run model.RunRecord, timestamp string) {
	if s.notifier == nil {
		return
	}
	title, message := "Homework sent", fmt.Sprintf("Homework was sent at %s", timestamp)
	if !run.Success {
		title, message = "Homework send failed", fmt.Sprintf("Homework send failed: %s", run.Message)
	}
	if err := s.notifier.Notify(title, message); err != nil {
		log.WithFields(log.Fields{"error": err}).Debug("Failed showing send notification")
	}
}
