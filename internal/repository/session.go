package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/casevend/kiosk-server-go/internal/model"
)

// SessionRepository is the durable store for vending sessions. Mutating
// methods take the caller's last-seen version and report via rows-affected
// whether the conditional update won; a zero count means a concurrent writer
// got there first and the caller must re-read.
type SessionRepository interface {
	FindByID(ctx context.Context, id string) (*model.VendingSession, error)
	// FindByIDForUpdate takes a row lock; only meaningful inside a transaction.
	FindByIDForUpdate(ctx context.Context, id string) (*model.VendingSession, error)
	FindByReservationID(ctx context.Context, thirdID string) (*model.VendingSession, error)
	FindStalePending(ctx context.Context, olderThan time.Time, limit int) ([]model.VendingSession, error)
	FindRecentOrders(ctx context.Context, since time.Time, limit int) ([]model.VendingSession, error)
	Create(ctx context.Context, params model.CreateSessionParams) (*model.VendingSession, error)
	ReservationIDTaken(ctx context.Context, thirdID string) (bool, error)

	MarkRegistered(ctx context.Context, id string, version int) (int64, error)
	SetSummary(ctx context.Context, id string, version int, summary model.OrderSummary) (int64, error)
	SetReservation(ctx context.Context, id string, version int, thirdID string, amount decimal.Decimal, externalPayID string, payType model.PayType) (int64, error)
	MarkReservationFailed(ctx context.Context, id string, version int) (int64, error)
	CompleteOrder(ctx context.Context, id string, version int, order model.FinalOrder) (int64, error)
	MarkCancelled(ctx context.Context, id string, version int) (int64, error)

	ExpireOverdue(ctx context.Context) (int64, error)
	DeleteTerminal(ctx context.Context, olderThan time.Time) (int64, error)

	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) SessionRepository
}

// sessionDB is an interface satisfied by both *sqlx.DB and *sqlx.Tx
type sessionDB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type sessionRepo struct {
	db sessionDB
}

func NewSessionRepository(db *sqlx.DB) SessionRepository {
	return &sessionRepo{db: db}
}

func (r *sessionRepo) WithTx(tx *sqlx.Tx) SessionRepository {
	return &sessionRepo{db: tx}
}

func (r *sessionRepo) FindByID(ctx context.Context, id string) (*model.VendingSession, error) {
	var session model.VendingSession
	err := r.db.GetContext(ctx, &session, `
		SELECT * FROM vending_sessions WHERE session_id = $1
	`, id)
	return HandleNotFound(&session, err)
}

func (r *sessionRepo) FindByIDForUpdate(ctx context.Context, id string) (*model.VendingSession, error) {
	var session model.VendingSession
	err := r.db.GetContext(ctx, &session, `
		SELECT * FROM vending_sessions WHERE session_id = $1 FOR UPDATE
	`, id)
	return HandleNotFound(&session, err)
}

func (r *sessionRepo) FindByReservationID(ctx context.Context, thirdID string) (*model.VendingSession, error) {
	var session model.VendingSession
	err := r.db.GetContext(ctx, &session, `
		SELECT * FROM vending_sessions WHERE pay_third_id = $1
	`, thirdID)
	return HandleNotFound(&session, err)
}

func (r *sessionRepo) FindStalePending(ctx context.Context, olderThan time.Time, limit int) ([]model.VendingSession, error) {
	var sessions []model.VendingSession
	err := r.db.SelectContext(ctx, &sessions, `
		SELECT * FROM vending_sessions
		WHERE status = 'payment_pending'
		AND reservation_status = 'reserved'
		AND last_activity_at < $1
		ORDER BY last_activity_at
		LIMIT $2
	`, olderThan, limit)
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *sessionRepo) FindRecentOrders(ctx context.Context, since time.Time, limit int) ([]model.VendingSession, error) {
	var sessions []model.VendingSession
	err := r.db.SelectContext(ctx, &sessions, `
		SELECT * FROM vending_sessions
		WHERE status = 'payment_completed'
		AND order_third_id IS NOT NULL
		AND last_activity_at >= $1
		ORDER BY last_activity_at DESC
		LIMIT $2
	`, since, limit)
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *sessionRepo) Create(ctx context.Context, params model.CreateSessionParams) (*model.VendingSession, error) {
	var session model.VendingSession
	err := r.db.GetContext(ctx, &session, `
		INSERT INTO vending_sessions (session_id, machine_id, device_id, location, status, user_progress, expires_at)
		VALUES ($1, $2, $3, $4, 'active', 'started', $5)
		RETURNING *
	`, params.SessionID, params.MachineID, params.DeviceID, params.Location, params.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepo) ReservationIDTaken(ctx context.Context, thirdID string) (bool, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM vending_sessions WHERE pay_third_id = $1 OR order_third_id = $1
	`, thirdID)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *sessionRepo) MarkRegistered(ctx context.Context, id string, version int) (int64, error) {
	return r.exec(ctx, `
		UPDATE vending_sessions SET
			user_progress = 'qr_scanned',
			version = version + 1,
			last_activity_at = NOW(),
			updated_at = NOW()
		WHERE session_id = $1 AND version = $2
	`, id, version)
}

func (r *sessionRepo) SetSummary(ctx context.Context, id string, version int, summary model.OrderSummary) (int64, error) {
	return r.exec(ctx, `
		UPDATE vending_sessions SET
			status = 'designing',
			user_progress = 'design_complete',
			design_ref = $3,
			model_id = $4,
			shell_id = $5,
			brand_id = $6,
			version = version + 1,
			last_activity_at = NOW(),
			updated_at = NOW()
		WHERE session_id = $1 AND version = $2 AND model_id IS NULL
	`, id, version, summary.DesignRef, summary.ModelID, summary.ShellID, summary.BrandID)
}

func (r *sessionRepo) SetReservation(ctx context.Context, id string, version int, thirdID string, amount decimal.Decimal, externalPayID string, payType model.PayType) (int64, error) {
	return r.exec(ctx, `
		UPDATE vending_sessions SET
			status = 'payment_pending',
			user_progress = 'payment_reached',
			pay_third_id = $3,
			pay_amount = $4,
			external_pay_id = $5,
			pay_type = $6,
			reservation_status = 'reserved',
			expires_at = GREATEST(expires_at, NOW() + INTERVAL '15 minutes'),
			version = version + 1,
			last_activity_at = NOW(),
			updated_at = NOW()
		WHERE session_id = $1 AND version = $2
	`, id, version, thirdID, amount, externalPayID, payType)
}

func (r *sessionRepo) MarkReservationFailed(ctx context.Context, id string, version int) (int64, error) {
	return r.exec(ctx, `
		UPDATE vending_sessions SET
			reservation_status = 'failed',
			version = version + 1,
			last_activity_at = NOW(),
			updated_at = NOW()
		WHERE session_id = $1 AND version = $2 AND reservation_status = 'reserved'
	`, id, version)
}

func (r *sessionRepo) CompleteOrder(ctx context.Context, id string, version int, order model.FinalOrder) (int64, error) {
	return r.exec(ctx, `
		UPDATE vending_sessions SET
			status = 'payment_completed',
			user_progress = 'order_submitted',
			reservation_status = 'paid',
			order_third_id = $3,
			external_order_id = $4,
			queue_no = $5,
			order_status = $6,
			version = version + 1,
			last_activity_at = NOW(),
			updated_at = NOW()
		WHERE session_id = $1 AND version = $2 AND status = 'payment_pending'
	`, id, version, order.ThirdID, order.ExternalOrderID, order.QueueNo, order.Status)
}

func (r *sessionRepo) MarkCancelled(ctx context.Context, id string, version int) (int64, error) {
	return r.exec(ctx, `
		UPDATE vending_sessions SET
			status = 'cancelled',
			version = version + 1,
			updated_at = NOW()
		WHERE session_id = $1 AND version = $2 AND status NOT IN ('expired', 'cancelled')
	`, id, version)
}

func (r *sessionRepo) ExpireOverdue(ctx context.Context) (int64, error) {
	return r.exec(ctx, `
		UPDATE vending_sessions SET
			status = 'expired',
			version = version + 1,
			updated_at = NOW()
		WHERE expires_at < NOW()
		AND status IN ('active', 'designing')
	`)
}

func (r *sessionRepo) DeleteTerminal(ctx context.Context, olderThan time.Time) (int64, error) {
	return r.exec(ctx, `
		DELETE FROM vending_sessions
		WHERE status IN ('expired', 'cancelled')
		AND updated_at < $1
	`, olderThan)
}

func (r *sessionRepo) exec(ctx context.Context, query string, args ...interface{}) (int64, error) {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
