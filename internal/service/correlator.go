package service

import (
	"context"
	"errors"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"github.com/casevend/kiosk-server-go/internal/audit"
	"github.com/casevend/kiosk-server-go/internal/config"
	apperrors "github.com/casevend/kiosk-server-go/internal/errors"
	"github.com/casevend/kiosk-server-go/internal/model"
	"github.com/casevend/kiosk-server-go/internal/repository"
)

var errNotYetVisible = errors.New("reservation not yet visible")

// WebhookCorrelator receives asynchronous payment-status callbacks and routes
// them to the owning session. The external system redelivers the same
// callback up to ten times, so every path here must stay safe under
// arbitrary repetition.
type WebhookCorrelator struct {
	sessions  repository.SessionRepository
	fallback  *FallbackResolver
	lifecycle *LifecycleManager
}

func NewWebhookCorrelator(
	sessions repository.SessionRepository,
	fallback *FallbackResolver,
	lifecycle *LifecycleManager,
) *WebhookCorrelator {
	return &WebhookCorrelator{
		sessions:  sessions,
		fallback:  fallback,
		lifecycle: lifecycle,
	}
}

// OnPaymentStatus correlates a callback to its session and applies the
// reported status. Unknown status codes and unresolvable correlation ids are
// surfaced as errors; the handler still acks so the remote stops retrying
// only on terminal outcomes.
func (c *WebhookCorrelator) OnPaymentStatus(ctx context.Context, thirdID string, wireStatus int) (*model.VendingSession, error) {
	status := model.PayStatusFromWire(wireStatus)

	audit.Log(ctx, audit.Event{
		Type:    audit.EventWebhookReceived,
		ThirdID: thirdID,
		Details: map[string]interface{}{"status": wireStatus, "payStatus": string(status)},
	})

	if thirdID == "" {
		return nil, apperrors.MissingRequired("third_id")
	}
	if status == model.PayStatusUnknown {
		return nil, apperrors.InvalidInput("status", "unknown payment status code")
	}

	session, err := c.resolve(ctx, thirdID)
	if err != nil {
		return nil, err
	}

	return c.lifecycle.ConfirmPayment(ctx, session.SessionID, thirdID, status)
}

// resolve finds the owning session by the embedded correlation id. The
// callback can beat the reservation commit, so the primary indexed lookup is
// retried briefly before the fallback mapping is consulted; only after both
// miss is the webhook declared unresolvable.
func (c *WebhookCorrelator) resolve(ctx context.Context, thirdID string) (*model.VendingSession, error) {
	var session *model.VendingSession

	policy := backoff.WithContext(
		backoff.WithMaxRetries(
			backoff.NewConstantBackOff(config.WebhookLookupInterval),
			config.WebhookLookupAttempts-1,
		),
		ctx,
	)
	err := backoff.Retry(func() error {
		found, err := c.sessions.FindByReservationID(ctx, thirdID)
		if err != nil {
			return backoff.Permanent(apperrors.Database(err))
		}
		if found == nil {
			return errNotYetVisible
		}
		session = found
		return nil
	}, policy)
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, errNotYetVisible) {
		return nil, err
	}

	sessionID, ok, err := c.fallback.ResolveByPaymentID(ctx, thirdID)
	if err != nil {
		return nil, err
	}
	if ok {
		found, err := c.sessions.FindByID(ctx, sessionID)
		if err != nil {
			return nil, apperrors.Database(err)
		}
		if found != nil {
			return found, nil
		}
	}

	log.Error().Str("thirdId", thirdID).Msg("payment callback could not be correlated to any session")
	audit.Log(ctx, audit.Event{
		Type:    audit.EventWebhookUnresolvable,
		ThirdID: thirdID,
	})
	return nil, apperrors.UnresolvableWebhook(thirdID)
}
