package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"zvit_agent/internal/domain/group"
)

// SyncFirer checks connectivity and runs registered sync handlers.
type SyncFirer interface {
	Fire(ctx context.Context) ([]string, error)
}

// DueChecker shows reminders for groups whose report is due at now.
type DueChecker interface {
	CheckDue(ctx context.Context, now time.Time) (int, error)
}

type GroupRefresher interface {
	RefreshGroups(ctx context.Context) ([]group.Group, error)
}

type Specs struct {
	Sync          string // e.g. "@every 30s"
	ReminderCheck string // e.g. "* * * * *" (every minute)
	GroupsRefresh string // e.g. "*/15 * * * *"
}

type AgentScheduler struct {
	cronEngine *cron.Cron
	syncer     SyncFirer
	due        DueChecker
	groups     GroupRefresher
	logger     *logrus.Entry
	specs      Specs
	now        func() time.Time
}

func NewAgentScheduler(
	syncer SyncFirer,
	due DueChecker,
	groups GroupRefresher,
	logger *logrus.Entry,
	specs Specs,
) *AgentScheduler {
	return &AgentScheduler{
		cronEngine: cron.New(cron.WithLocation(time.Local)),
		syncer:     syncer,
		due:        due,
		groups:     groups,
		logger:     logger,
		specs:      specs,
		now:        time.Now,
	}
}

// Start registers the jobs and starts the cron engine. Jobs with an empty
// spec are not scheduled.
func (s *AgentScheduler) Start() error {
	s.logger.Info("Starting agent scheduler...")

	jobs := []struct {
		name string
		spec string
		run  func()
	}{
		{"sync", s.specs.Sync, s.runSync},
		{"reminder check", s.specs.ReminderCheck, s.runReminderCheck},
		{"groups refresh", s.specs.GroupsRefresh, s.runGroupsRefresh},
	}
	for _, job := range jobs {
		if job.spec == "" {
			s.logger.WithField("job", job.name).Info("Job disabled")
			continue
		}
		if _, err := s.cronEngine.AddFunc(job.spec, job.run); err != nil {
			return fmt.Errorf("could not add %s cron job (%q): %w", job.name, job.spec, err)
		}
	}

	s.cronEngine.Start()
	s.logger.Info("Agent scheduler started with jobs.")
	return nil
}

func (s *AgentScheduler) runSync() {
	if s.syncer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute) // Drains can replay many reports
	defer cancel()
	ran, err := s.syncer.Fire(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Error during background sync")
		return
	}
	if len(ran) > 0 {
		s.logger.WithField("tags", ran).Info("Background sync ran")
	}
}

func (s *AgentScheduler) runReminderCheck() {
	if s.due == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	shown, err := s.due.CheckDue(ctx, s.now())
	if err != nil {
		s.logger.WithError(err).Error("Error during scheduled reminder check")
		return
	}
	if shown > 0 {
		s.logger.WithField("shown", shown).Info("Scheduled report reminders shown")
	}
}

func (s *AgentScheduler) runGroupsRefresh() {
	if s.groups == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Minute)
	defer cancel()
	groups, err := s.groups.RefreshGroups(ctx)
	if err != nil {
		// Offline most of the time; the last stored list stays in use.
		s.logger.WithError(err).Warn("Could not refresh groups")
		return
	}
	s.logger.WithField("groups", len(groups)).Debug("Groups refreshed")
}

func (s *AgentScheduler) Stop() {
	s.logger.Info("Stopping agent scheduler...")
	ctx := s.cronEngine.Stop() // Stops the scheduler from adding new jobs, waits for running jobs.
	<-ctx.Done()
	s.logger.Info("Agent scheduler gracefully stopped.")
}
