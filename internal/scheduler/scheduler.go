package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/lif3time-secr3t-c0de/Meeting-Memory/internal/config"
	"github.com/lif3time-secr3t-c0de/Meeting-Memory/internal/intake"
	"github.com/lif3time-secr3t-c0de/Meeting-Memory/internal/reminder"
)

// ReminderRunner runs the reminder cadence for a date.
type ReminderRunner interface {
	Run(ctx context.Context, target civil.Date, dryRun bool) (*reminder.Report, error)
	Today() civil.Date
	Location() *time.Location
}

// MailboxPoller ingests new transcripts from a mailbox.
type MailboxPoller interface {
	PollMailbox(ctx context.Context, src intake.Source) (int, error)
}

// Scheduler manages the daily reminder run and the mailbox poll
type Scheduler struct {
	cron         *cron.Cron
	reminderID   cron.EntryID
	intakeID     cron.EntryID
	reminderCfg  config.ReminderConfig
	intakeCfg    config.IntakeConfig
	engine       ReminderRunner
	poller       MailboxPoller
	source       intake.Source
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	isRunning    bool
	mu           sync.RWMutex
	lastReport   *reminder.Report
	lastReportMu sync.Mutex
}

// New creates a new scheduler. poller and source may be nil when mailbox
// intake is disabled.
func New(reminderCfg config.ReminderConfig, intakeCfg config.IntakeConfig, engine ReminderRunner, poller MailboxPoller, source intake.Source) *Scheduler {
	return &Scheduler{
		reminderCfg: reminderCfg,
		intakeCfg:   intakeCfg,
		engine:      engine,
		poller:      poller,
		source:      source,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("scheduler is already running")
	}

	c := cron.New(cron.WithSeconds(), cron.WithLocation(s.engine.Location()))

	reminderID, err := c.AddFunc(s.reminderCfg.Cron, s.runReminders)
	if err != nil {
		return fmt.Errorf("failed to add reminder job: %w", err)
	}

	var intakeID cron.EntryID
	if s.intakeCfg.Enabled && s.poller != nil && s.source != nil {
		schedule := fmt.Sprintf("0 */%d * * * *", s.intakeCfg.IntervalMinutes)
		intakeID, err = c.AddFunc(schedule, s.pollMailbox)
		if err != nil {
			return fmt.Errorf("failed to add intake job: %w", err)
		}
	}

	// A stopped run cancels its context, so every start gets a fresh one.
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.cron = c
	s.reminderID = reminderID
	s.intakeID = intakeID
	s.cron.Start()
	s.isRunning = true

	logrus.Infof("Scheduler started with reminder schedule %q in %s", s.reminderCfg.Cron, s.engine.Location())
	if intakeID != 0 {
		logrus.Infof("Mailbox intake every %d minutes", s.intakeCfg.IntervalMinutes)
	}
	return nil
}

// Stop stops the scheduler
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return nil
	}

	s.cancel()
	ctx := s.cron.Stop()

	select {
	case <-ctx.Done():
		logrus.Info("Scheduler stopped gracefully")
	case <-time.After(30 * time.Second):
		logrus.Warn("Scheduler stop timeout, forcing shutdown")
	}

	s.isRunning = false
	return nil
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

func (s *Scheduler) jobContext() context.Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

func (s *Scheduler) runReminders() {
	if _, err := s.RunOnce(s.jobContext(), s.engine.Today(), false); err != nil {
		logrus.Errorf("Scheduled reminder run failed: %v", err)
	}
}

func (s *Scheduler) pollMailbox() {
	s.wg.Add(1)
	defer s.wg.Done()

	created, err := s.poller.PollMailbox(s.jobContext(), s.source)
	if err != nil {
		logrus.Errorf("Mailbox intake failed: %v", err)
		return
	}
	if created > 0 {
		logrus.Infof("Mailbox intake created %d meetings", created)
	}
}

// RunOnce runs the reminder engine for target (for manual triggering)
func (s *Scheduler) RunOnce(ctx context.Context, target civil.Date, dryRun bool) (*reminder.Report, error) {
	s.wg.Add(1)
	defer s.wg.Done()

	logrus.Infof("Running reminders for %s", target)
	report, err := s.engine.Run(ctx, target, dryRun)
	if err != nil {
		return nil, err
	}

	s.lastReportMu.Lock()
	s.lastReport = report
	s.lastReportMu.Unlock()
	return report, nil
}

// Today returns the current date in the reminder timezone
func (s *Scheduler) Today() civil.Date {
	return s.engine.Today()
}

// LastReport returns the report of the most recent run, if any
func (s *Scheduler) LastReport() *reminder.Report {
	s.lastReportMu.Lock()
	defer s.lastReportMu.Unlock()
	return s.lastReport
}

// GetNextRun returns the time of the next scheduled reminder run
func (s *Scheduler) GetNextRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.isRunning {
		return time.Time{}
	}
	return s.cron.Entry(s.reminderID).Next
}

// GetLastRun returns the time of the last scheduled reminder run
func (s *Scheduler) GetLastRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.isRunning {
		return time.Time{}
	}
	return s.cron.Entry(s.reminderID).Prev
}

// Wait waits for running jobs to finish
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
