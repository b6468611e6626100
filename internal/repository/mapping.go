package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/casevend/kiosk-server-go/internal/model"
)

// PaymentMappingRepository is the secondary index from reservation correlation
// id to session id, written at reservation time and read only when the
// primary session lookup misses.
type PaymentMappingRepository interface {
	Insert(ctx context.Context, thirdID, sessionID string) error
	FindByThirdID(ctx context.Context, thirdID string) (*model.PaymentMapping, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) PaymentMappingRepository
}

type mappingRepo struct {
	db sessionDB
}

func NewPaymentMappingRepository(db *sqlx.DB) PaymentMappingRepository {
	return &mappingRepo{db: db}
}

func (r *mappingRepo) WithTx(tx *sqlx.Tx) PaymentMappingRepository {
	return &mappingRepo{db: tx}
}

func (r *mappingRepo) Insert(ctx context.Context, thirdID, sessionID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payment_mappings (third_id, session_id)
		VALUES ($1, $2)
	`, thirdID, sessionID)
	return err
}

func (r *mappingRepo) FindByThirdID(ctx context.Context, thirdID string) (*model.PaymentMapping, error) {
	var mapping model.PaymentMapping
	err := r.db.GetContext(ctx, &mapping, `
		SELECT * FROM payment_mappings WHERE third_id = $1
	`, thirdID)
	return HandleNotFound(&mapping, err)
}

func (r *mappingRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM payment_mappings WHERE created_at < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
