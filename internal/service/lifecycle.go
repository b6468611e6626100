package service

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/casevend/kiosk-server-go/internal/audit"
	"github.com/casevend/kiosk-server-go/internal/database"
	apperrors "github.com/casevend/kiosk-server-go/internal/errors"
	"github.com/casevend/kiosk-server-go/internal/ident"
	"github.com/casevend/kiosk-server-go/internal/model"
	"github.com/casevend/kiosk-server-go/internal/repository"
)

const (
	transitionRetries  = 3
	transitionRetryGap = 50 * time.Millisecond
)

var errVersionConflict = errors.New("session version conflict")

// Transactor is the slice of database.DB the services need; tests can supply
// a stub that runs the function against a nil transaction.
type Transactor interface {
	WithTx(ctx context.Context, fn database.TxFunc) error
}

// LifecycleManager owns every state transition of a vending session. Handlers
// and jobs never write session fields directly; they call these operations.
type LifecycleManager struct {
	db           Transactor
	sessions     repository.SessionRepository
	reservations *ReservationService
	finalizer    *OrderFinalizer
	gen          *ident.Generator
	defaultTTL   time.Duration
	now          func() time.Time
}

func NewLifecycleManager(
	db Transactor,
	sessions repository.SessionRepository,
	reservations *ReservationService,
	finalizer *OrderFinalizer,
	gen *ident.Generator,
	defaultTTL time.Duration,
) *LifecycleManager {
	return &LifecycleManager{
		db:           db,
		sessions:     sessions,
		reservations: reservations,
		finalizer:    finalizer,
		gen:          gen,
		defaultTTL:   defaultTTL,
		now:          time.Now,
	}
}

// CreateSession starts a new session in state active.
func (m *LifecycleManager) CreateSession(ctx context.Context, machineID string, deviceID *string, location string, ttl time.Duration) (*model.VendingSession, error) {
	if machineID == "" {
		return nil, apperrors.InvalidMachine()
	}
	if ttl <= 0 {
		ttl = m.defaultTTL
	}

	session, err := m.sessions.Create(ctx, model.CreateSessionParams{
		SessionID: m.gen.SessionID(machineID),
		MachineID: machineID,
		DeviceID:  deviceID,
		Location:  location,
		ExpiresAt: m.now().Add(ttl),
	})
	if err != nil {
		return nil, apperrors.Database(err)
	}

	log.Info().
		Str("sessionId", session.SessionID).
		Str("machineId", machineID).
		Time("expiresAt", session.ExpiresAt).
		Msg("session created")
	audit.Log(ctx, audit.Event{
		Type:      audit.EventSessionCreate,
		SessionID: session.SessionID,
		MachineID: machineID,
	})

	return session, nil
}

// RegisterUser records that the customer scanned the QR code.
func (m *LifecycleManager) RegisterUser(ctx context.Context, sessionID string) (*model.VendingSession, error) {
	return m.transition(ctx, sessionID, func(s *model.VendingSession) (int64, error) {
		return m.sessions.MarkRegistered(ctx, s.SessionID, s.Version)
	})
}

// SubmitOrderSummary sets the design summary once. Resubmitting identical
// content is a no-op; differing content is rejected so a late duplicate
// request can never swap the printed design.
func (m *LifecycleManager) SubmitOrderSummary(ctx context.Context, sessionID string, summary model.OrderSummary) (*model.VendingSession, error) {
	if summary.DesignRef == "" || summary.ModelID == "" || summary.ShellID == "" {
		return nil, apperrors.ValidationError("designRef, modelId and shellId are required")
	}

	session, err := m.loadForTransition(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.SummarySet() {
		if summary.Matches(session) {
			return session, nil
		}
		return nil, apperrors.SummaryAlreadySet()
	}

	rows, err := m.sessions.SetSummary(ctx, sessionID, session.Version, summary)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if rows == 0 {
		// lost a race; re-read and re-evaluate first-wins
		current, err := m.loadForTransition(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if current.SummarySet() {
			if summary.Matches(current) {
				return current, nil
			}
			return nil, apperrors.SummaryAlreadySet()
		}
		return nil, apperrors.Conflict("concurrent session update, retry submission")
	}

	return m.reload(ctx, sessionID)
}

// ReservePayment reserves a print slot with the manufacturer. Requires the
// summary to be set and no live reservation.
func (m *LifecycleManager) ReservePayment(ctx context.Context, sessionID string, amount decimal.Decimal, payType model.PayType) (*model.Reservation, error) {
	session, err := m.loadForTransition(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.SummarySet() {
		return nil, apperrors.SummaryMissing()
	}
	if session.HasActiveReservation() {
		return nil, apperrors.ReservationAlreadyExists()
	}
	if payType == model.PayTypeVending && session.DeviceID == nil {
		// vending payments need a routing device for stock/model queries
		return nil, apperrors.InvalidMachine()
	}

	return m.reservations.Reserve(ctx, session, amount, payType)
}

// ConfirmPayment is invoked by the webhook correlator (never by handlers)
// once the manufacturer reports a terminal payment status. It is idempotent:
// confirming an already-completed session returns the recorded result.
func (m *LifecycleManager) ConfirmPayment(ctx context.Context, sessionID, thirdID string, status model.PayStatus) (*model.VendingSession, error) {
	var confirmed *model.VendingSession
	err := m.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		repo := m.sessions.WithTx(tx)

		session, err := repo.FindByIDForUpdate(ctx, sessionID)
		if err != nil {
			return apperrors.Database(err)
		}
		if session == nil {
			return apperrors.SessionNotFound()
		}

		// Redelivered webhook after a terminal outcome is a no-op success.
		if session.Finalized() {
			confirmed = session
			return nil
		}
		if session.Status.Terminal() {
			return apperrors.SessionClosed()
		}
		if session.PayThirdID == nil || *session.PayThirdID != thirdID {
			return apperrors.Conflict("callback does not match the session's active reservation")
		}
		if session.ExpiredAt(m.now()) {
			// money may have moved for a session nobody is waiting on
			audit.Log(ctx, audit.Event{
				Type:      audit.EventSessionExpire,
				SessionID: sessionID,
				ThirdID:   thirdID,
				Details:   map[string]interface{}{"payStatus": string(status)},
			})
			return apperrors.SessionExpired()
		}

		switch {
		case status.Success():
			order, err := m.finalizer.Finalize(ctx, repo, session)
			if err != nil {
				return err
			}
			rows, err := repo.CompleteOrder(ctx, sessionID, session.Version, *order)
			if err != nil {
				return apperrors.Database(err)
			}
			if rows == 0 {
				return apperrors.Conflict("session changed while completing order")
			}
			audit.Log(ctx, audit.Event{
				Type:      audit.EventOrderFinalized,
				SessionID: sessionID,
				ThirdID:   order.ThirdID,
				Details:   map[string]interface{}{"queueNo": order.QueueNo},
			})
		case status.Failure():
			if _, err := repo.MarkReservationFailed(ctx, sessionID, session.Version); err != nil {
				return apperrors.Database(err)
			}
			audit.Log(ctx, audit.Event{
				Type:      audit.EventPaymentFailed,
				SessionID: sessionID,
				ThirdID:   thirdID,
				Details:   map[string]interface{}{"payStatus": string(status)},
			})
		default:
			// waiting/processing: nothing to record
			confirmed = session
			return nil
		}

		current, err := repo.FindByID(ctx, sessionID)
		if err != nil {
			return apperrors.Database(err)
		}
		confirmed = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return confirmed, nil
}

// CancelOrExpire terminates a session. Terminal sessions are left as they are.
func (m *LifecycleManager) CancelOrExpire(ctx context.Context, sessionID string) (*model.VendingSession, error) {
	session, err := m.reload(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status.Terminal() {
		return session, nil
	}

	rows, err := m.sessions.MarkCancelled(ctx, sessionID, session.Version)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if rows == 0 {
		return nil, apperrors.Conflict("concurrent session update, retry cancellation")
	}

	audit.Log(ctx, audit.Event{
		Type:      audit.EventSessionCancel,
		SessionID: sessionID,
		MachineID: session.MachineID,
	})
	return m.reload(ctx, sessionID)
}

// GetSession returns the read-only projection the clients poll. An overdue
// session that the sweep has not visited yet is already reported as expired.
func (m *LifecycleManager) GetSession(ctx context.Context, sessionID string) (*model.VendingSession, error) {
	session, err := m.reload(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.Status.Terminal() && session.Status != model.SessionStatusPaymentPending &&
		session.Status != model.SessionStatusPaymentCompleted && session.ExpiredAt(m.now()) {
		projected := *session
		projected.Status = model.SessionStatusExpired
		return &projected, nil
	}
	return session, nil
}

// transition applies a version-conditional update, retrying briefly when a
// concurrent writer bumped the version first.
func (m *LifecycleManager) transition(ctx context.Context, sessionID string, apply func(*model.VendingSession) (int64, error)) (*model.VendingSession, error) {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(transitionRetryGap), transitionRetries),
		ctx,
	)

	err := backoff.Retry(func() error {
		session, err := m.loadForTransition(ctx, sessionID)
		if err != nil {
			return backoff.Permanent(err)
		}
		rows, err := apply(session)
		if err != nil {
			return backoff.Permanent(apperrors.Database(err))
		}
		if rows == 0 {
			return errVersionConflict
		}
		return nil
	}, policy)
	if err != nil {
		if errors.Is(err, errVersionConflict) {
			return nil, apperrors.Conflict("concurrent session update")
		}
		return nil, err
	}

	return m.reload(ctx, sessionID)
}

func (m *LifecycleManager) loadForTransition(ctx context.Context, sessionID string) (*model.VendingSession, error) {
	session, err := m.reload(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status.Terminal() {
		return nil, apperrors.SessionClosed()
	}
	if session.ExpiredAt(m.now()) {
		return nil, apperrors.SessionExpired()
	}
	return session, nil
}

func (m *LifecycleManager) reload(ctx context.Context, sessionID string) (*model.VendingSession, error) {
	session, err := m.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if session == nil {
		return nil, apperrors.SessionNotFound()
	}
	return session, nil
}
