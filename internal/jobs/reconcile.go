package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/casevend/kiosk-server-go/internal/config"
	apperrors "github.com/casevend/kiosk-server-go/internal/errors"
	"github.com/casevend/kiosk-server-go/internal/manufacturer"
	"github.com/casevend/kiosk-server-go/internal/model"
	"github.com/casevend/kiosk-server-go/internal/repository"
	"github.com/casevend/kiosk-server-go/internal/service"
)

// ReconcileJob polls the manufacturer's getPayStatus endpoint for sessions
// stuck at payment_pending, catching payments whose callback was lost.
// Results feed through the same idempotent correlator path as webhooks.
type ReconcileJob struct {
	sessions   repository.SessionRepository
	api        manufacturer.API
	correlator *service.WebhookCorrelator
	interval   time.Duration
	done       chan struct{}
}

func NewReconcileJob(
	sessions repository.SessionRepository,
	api manufacturer.API,
	correlator *service.WebhookCorrelator,
	interval time.Duration,
) *ReconcileJob {
	return &ReconcileJob{
		sessions:   sessions,
		api:        api,
		correlator: correlator,
		interval:   interval,
		done:       make(chan struct{}),
	}
}

func (j *ReconcileJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("reconcile job started")
}

func (j *ReconcileJob) Stop() {
	close(j.done)
	log.Info().Msg("reconcile job stopped")
}

func (j *ReconcileJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.reconcile()
		}
	}
}

func (j *ReconcileJob) reconcile() {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	j.reconcilePayments(ctx)
	j.verifyRecentOrders(ctx)
}

func (j *ReconcileJob) reconcilePayments(ctx context.Context) {
	cutoff := time.Now().Add(-config.ReconcileMinPendingAge)
	stale, err := j.sessions.FindStalePending(ctx, cutoff, config.ReconcileBatchSize)
	if err != nil {
		log.Error().Err(err).Msg("reconcile: failed to list stale pending sessions")
		return
	}
	if len(stale) == 0 {
		return
	}

	thirdIDs := make([]string, 0, len(stale))
	for _, s := range stale {
		if s.PayThirdID != nil {
			thirdIDs = append(thirdIDs, *s.PayThirdID)
		}
	}

	results, err := j.api.GetPayStatus(ctx, thirdIDs)
	if err != nil {
		log.Error().Err(err).Int("count", len(thirdIDs)).Msg("reconcile: getPayStatus failed")
		return
	}

	for _, result := range results {
		status := model.PayStatusFromWire(result.Status)
		if !status.Success() && !status.Failure() {
			continue
		}

		if _, err := j.correlator.OnPaymentStatus(ctx, result.ThirdID, result.Status); err != nil {
			// an expired or cancelled session will keep reporting here until
			// the cleanup sweep removes it; log and move on
			log.Warn().Err(err).
				Str("thirdId", result.ThirdID).
				Str("code", string(apperrors.GetCode(err))).
				Msg("reconcile: could not apply payment status")
			continue
		}
		log.Info().
			Str("thirdId", result.ThirdID).
			Str("payStatus", string(status)).
			Msg("reconcile: payment status applied")
	}
}

// verifyRecentOrders spot-checks orders finalized in the last lookback window
// against the manufacturer's getOrderStatus endpoint. The check is read-only;
// a failed or abnormal order on the manufacturer side means the machine never
// picked up a print job we already billed, which needs an operator.
func (j *ReconcileJob) verifyRecentOrders(ctx context.Context) {
	since := time.Now().Add(-config.ReconcileOrderLookback)
	recent, err := j.sessions.FindRecentOrders(ctx, since, config.ReconcileBatchSize)
	if err != nil {
		log.Error().Err(err).Msg("reconcile: failed to list recent orders")
		return
	}
	if len(recent) == 0 {
		return
	}

	thirdIDs := make([]string, 0, len(recent))
	for _, s := range recent {
		if s.OrderThirdID != nil {
			thirdIDs = append(thirdIDs, *s.OrderThirdID)
		}
	}
	if len(thirdIDs) == 0 {
		return
	}

	results, err := j.api.GetOrderStatus(ctx, thirdIDs)
	if err != nil {
		log.Error().Err(err).Int("count", len(thirdIDs)).Msg("reconcile: getOrderStatus failed")
		return
	}

	for _, result := range results {
		if !model.PayStatusFromWire(result.Status).Failure() {
			continue
		}
		log.Warn().
			Str("orderThirdId", result.ThirdID).
			Int("wireStatus", result.Status).
			Msg("reconcile: manufacturer reports order failed after local finalization")
	}
}
