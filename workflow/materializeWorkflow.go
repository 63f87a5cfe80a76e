package workflow

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/bakery_backend/config"
	"bitbucket.org/mmdatafocus/bakery_backend/models"
	"bitbucket.org/mmdatafocus/bakery_backend/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// OutcomeState is the terminal state of one standing order within a run.
type OutcomeState string

const (
	OutcomeMaterialized      OutcomeState = "Materialized"
	OutcomeSkippedBlackout   OutcomeState = "SkippedBlackout"
	OutcomeSkippedNoNewLines OutcomeState = "SkippedNoNewLines"
	OutcomeFailed            OutcomeState = "Failed"
)

// StandingOrderOutcome reports what happened to one standing order.
type StandingOrderOutcome struct {
	StandingOrderId int          `json:"standing_order_id"`
	TenantId        string       `json:"tenant_id"`
	CustomerId      int          `json:"customer_id"`
	State           OutcomeState `json:"state"`
	CartId          int          `json:"cart_id,omitempty"`
	AppendedCount   int          `json:"appended_count"`
	Error           string       `json:"error,omitempty"`
}

// RunResult is the assembled result of one materialization run.
type RunResult struct {
	CorrelationId string                  `json:"correlation_id"`
	DeliveryDate  time.Time               `json:"delivery_date"`
	WeekdayShort  string                  `json:"weekday_short"`
	Outcomes      []*StandingOrderOutcome `json:"outcomes"`
	Abandoned     bool                    `json:"abandoned"`
}

func (r *RunResult) countByState(state OutcomeState) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.State == state {
			n++
		}
	}
	return n
}

// MaterializeStandingOrders runs one materialization pass for the instant
// now. Standing orders are processed sequentially; a failing order is logged
// and the run continues. Safe to re-run for the same target date: already
// materialized lines are skipped and cart headers are never rewritten.
// Returns utils.ErrLockNotObtained when another run holds the run-date lease.
func MaterializeStandingOrders(ctx context.Context, now time.Time) (*RunResult, error) {
	logger := config.GetLogger()

	correlationId, ok := utils.GetCorrelationIdFromContext(ctx)
	if !ok || correlationId == "" {
		correlationId = uuid.NewString()
		ctx = utils.SetCorrelationIdInContext(ctx, correlationId)
	}
	// The candidate query spans tenants; every per-order query re-scopes by
	// the order's own tenant id explicitly.
	ctx = utils.SetSkipTenantScopeInContext(ctx, true)

	target := ResolveTarget(now)
	runDate := utils.TruncateToDate(now)

	lease, err := AcquireRunLease(ctx, runDate, config.MaterializeRunTimeout()+time.Minute)
	if err != nil {
		return nil, err
	}
	if lease != nil {
		defer func() {
			_ = lease.Release(config.GetRedisContext())
		}()
	}

	candidates, err := models.FindMaterializationCandidates(ctx, target.WeekdayShort)
	if err != nil {
		// Store unavailable at start is the one run-wide abort.
		return nil, err
	}

	run, err := models.CreateMaterializationRun(ctx, runDate, target.DeliveryDate, correlationId)
	if err != nil {
		return nil, err
	}
	run.CandidateCount = len(candidates)

	result := &RunResult{
		CorrelationId: correlationId,
		DeliveryDate:  target.DeliveryDate,
		WeekdayShort:  target.WeekdayShort,
	}

	// Blackout is evaluated per standing order's tenant, cached per run.
	blackoutByTenant := map[string]bool{}

	for _, order := range candidates {
		if ctx.Err() != nil {
			result.Abandoned = true
			logger.WithFields(logrus.Fields{
				"correlationId": correlationId,
				"processed":     len(result.Outcomes),
				"candidates":    len(candidates),
			}).Warn("materialization run abandoned; remaining orders roll over to the next run")
			break
		}

		outcome := materializeStandingOrder(ctx, target, order, blackoutByTenant)
		result.Outcomes = append(result.Outcomes, outcome)

		entry := logger.WithFields(logrus.Fields{
			"correlationId":   correlationId,
			"standingOrderId": outcome.StandingOrderId,
			"tenantId":        outcome.TenantId,
			"state":           outcome.State,
			"appended":        outcome.AppendedCount,
		})
		if outcome.State == OutcomeFailed {
			entry.Error(outcome.Error)
		} else {
			entry.Info("standing order processed")
		}
	}

	run.MaterializedCount = result.countByState(OutcomeMaterialized)
	run.SkippedBlackout = result.countByState(OutcomeSkippedBlackout)
	run.SkippedNoNewLines = result.countByState(OutcomeSkippedNoNewLines)
	run.FailedCount = result.countByState(OutcomeFailed)
	finishCtx, cancelFinish := detachedFinishContext(ctx, correlationId)
	defer cancelFinish()
	if err := run.Finish(finishCtx); err != nil {
		config.LogError(logger, "workflow", "MaterializeStandingOrders", "finalize run record", correlationId, err)
	}

	return result, nil
}

// detachedFinishContext returns the context to finalize the run record with.
// An abandoned run's context is already expired; finalizing with it would
// drop the record exactly when the run was cut short, so finalization
// detaches onto a fresh short-lived context keeping the correlation id.
func detachedFinishContext(ctx context.Context, correlationId string) (context.Context, context.CancelFunc) {
	if ctx.Err() == nil {
		return ctx, func() {}
	}
	fresh, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	fresh = utils.SetCorrelationIdInContext(fresh, correlationId)
	fresh = utils.SetSkipTenantScopeInContext(fresh, true)
	return fresh, cancel
}

// materializeStandingOrder walks one standing order through
// blackout check -> route resolve -> cart lookup/create -> merge.
// Any unhandled error or panic downgrades this order to Failed; the caller
// keeps going.
func materializeStandingOrder(ctx context.Context, target TargetDate, order *models.StandingOrder, blackoutByTenant map[string]bool) (outcome *StandingOrderOutcome) {
	outcome = &StandingOrderOutcome{
		StandingOrderId: order.ID,
		TenantId:        order.TenantId,
		CustomerId:      order.CustomerId,
	}
	defer func() {
		if r := recover(); r != nil {
			outcome.State = OutcomeFailed
			outcome.Error = fmt.Sprintf("panic: %v", r)
		}
	}()

	// Per-order queries run under the order's own tenant scope; the guard
	// plugin backs up the explicit tenant filters below.
	ctx = utils.SetTenantIdInContext(utils.SetSkipTenantScopeInContext(ctx, false), order.TenantId)

	blocked, known := blackoutByTenant[order.TenantId]
	if !known {
		var err error
		blocked, err = models.IsDeliveryBlocked(ctx, order.TenantId, target.DeliveryDate)
		if err != nil {
			outcome.State = OutcomeFailed
			outcome.Error = err.Error()
			return outcome
		}
		blackoutByTenant[order.TenantId] = blocked
	}
	if blocked {
		outcome.State = OutcomeSkippedBlackout
		return outcome
	}

	setting, ok := order.WeekdaySettingFor(target.WeekdayShort)
	if !ok || setting.Quantity <= 0 {
		// Candidate query already filters on this; purely defensive.
		outcome.State = OutcomeSkippedNoNewLines
		return outcome
	}

	route, err := models.ResolveDeliveryRoute(ctx, order.TenantId, order.CustomerId, order.CustomerAddressId, target.WeekdayLong)
	if err != nil {
		outcome.State = OutcomeFailed
		outcome.Error = err.Error()
		return outcome
	}

	key := models.CartKey{
		TenantId:          order.TenantId,
		CustomerId:        order.CustomerId,
		CustomerAddressId: order.CustomerAddressId,
		DeliveryDate:      target.DeliveryDate,
	}
	seed := models.CartSeed{
		OrderDate:           time.Now(),
		DeliveryType:        order.DeliveryType,
		Route:               route,
		DeliveryChargesType: setting.DeliveryChargesType,
	}

	// One transaction per standing order: cart upsert, line inserts and
	// aggregate write-back commit or roll back together, with the advisory
	// lock held for the whole merge.
	err = withCartMergeLock(config.GetDB(), key.String(), func(tx *gorm.DB) error {
		cart, _, err := models.GetOrCreateCart(ctx, tx, key, seed)
		if err != nil {
			return err
		}
		outcome.CartId = cart.ID

		appended, err := models.MergeCartItems(ctx, tx, cart, order.Items, target.WeekdayShort)
		if err != nil {
			return err
		}
		outcome.AppendedCount = appended
		return nil
	})
	if err != nil {
		outcome.State = OutcomeFailed
		outcome.Error = err.Error()
		return outcome
	}

	if outcome.AppendedCount == 0 {
		outcome.State = OutcomeSkippedNoNewLines
	} else {
		outcome.State = OutcomeMaterialized
	}
	return outcome
}
