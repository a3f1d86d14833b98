package alerting

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/gatekeeper/pkg/observability"
)

// Scheduler runs the alert checks on a cron schedule.
type Scheduler struct {
	cron    *cron.Cron
	alerter *Alerter
	logger  *observability.Logger
}

// NewScheduler wires the alerter into a cron runner. The schedule accepts
// standard cron expressions and the @every form.
func NewScheduler(alerter *Alerter, logger *observability.Logger, schedule string) (*Scheduler, error) {
	s := &Scheduler{
		cron:    cron.New(),
		alerter: alerter,
		logger:  logger,
	}

	_, err := s.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := s.alerter.CheckAllAlerts(ctx); err != nil {
			s.logger.WithError(err).Error("alert checks failed")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to schedule alert checks: %w", err)
	}

	return s, nil
}

// Start begins scheduled execution.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for a running check to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
