package workflow

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/bakery_backend/config"
	"bitbucket.org/mmdatafocus/bakery_backend/utils"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Scheduler owns the recurring materialization trigger. The schedule is an
// explicit configuration value with a registered/deregistered lifecycle, not
// a hidden process-wide default: Register validates at startup, Stop
// deregisters at shutdown.
type Scheduler struct {
	cron    *cron.Cron
	entryId cron.EntryID
}

// NewScheduler validates the cron expression and registers the daily
// materialization job. A malformed expression is a ConfigurationError and
// must abort startup.
func NewScheduler(spec string) (*Scheduler, error) {
	c := cron.New()
	s := &Scheduler{cron: c}

	entryId, err := c.AddFunc(spec, func() {
		RunScheduledMaterialization(context.Background())
	})
	if err != nil {
		return nil, &utils.ConfigurationError{
			Setting: config.EnvMaterializeSchedule,
			Reason:  "invalid cron expression " + spec + ": " + err.Error(),
		}
	}
	s.entryId = entryId
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop deregisters the trigger and waits for an in-flight run to finish.
func (s *Scheduler) Stop() {
	s.cron.Remove(s.entryId)
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
}

// RunScheduledMaterialization executes one run with the configured timeout.
// A second trigger while a run holds the run-date lease skips cleanly.
func RunScheduledMaterialization(ctx context.Context) {
	logger := config.GetLogger()

	runCtx, cancel := context.WithTimeout(ctx, config.MaterializeRunTimeout())
	defer cancel()

	started := time.Now()
	result, err := MaterializeStandingOrders(runCtx, started)
	if err != nil {
		if errors.Is(err, utils.ErrLockNotObtained) {
			logger.WithFields(logrus.Fields{
				"runDate": started.Format("2006-01-02"),
			}).Info("materialization already running for this date; skipping trigger")
			return
		}
		config.LogError(logger, "workflow", "RunScheduledMaterialization", "run aborted", started.Format(time.RFC3339), err)
		return
	}

	logger.WithFields(logrus.Fields{
		"correlationId": result.CorrelationId,
		"deliveryDate":  result.DeliveryDate.Format("2006-01-02"),
		"orders":        len(result.Outcomes),
		"materialized":  result.countByState(OutcomeMaterialized),
		"blackout":      result.countByState(OutcomeSkippedBlackout),
		"noNewLines":    result.countByState(OutcomeSkippedNoNewLines),
		"failed":        result.countByState(OutcomeFailed),
		"abandoned":     result.Abandoned,
		"elapsed":       time.Since(started).String(),
	}).Info("materialization run finished")
}
