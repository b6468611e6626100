package service

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/casevend/kiosk-server-go/internal/audit"
	apperrors "github.com/casevend/kiosk-server-go/internal/errors"
	"github.com/casevend/kiosk-server-go/internal/ident"
	"github.com/casevend/kiosk-server-go/internal/manufacturer"
	"github.com/casevend/kiosk-server-go/internal/model"
	"github.com/casevend/kiosk-server-go/internal/repository"
)

// ReservationService reserves a print slot with the manufacturer before the
// physical payment happens. On any remote failure nothing is persisted, so
// the caller can retry from the prior state.
type ReservationService struct {
	db       Transactor
	sessions repository.SessionRepository
	mappings repository.PaymentMappingRepository
	gen      *ident.Generator
	api      manufacturer.API
}

func NewReservationService(
	db Transactor,
	sessions repository.SessionRepository,
	mappings repository.PaymentMappingRepository,
	gen *ident.Generator,
	api manufacturer.API,
) *ReservationService {
	return &ReservationService{
		db:       db,
		sessions: sessions,
		mappings: mappings,
		gen:      gen,
		api:      api,
	}
}

// Reserve generates a fresh payment correlation id, reports the payment to
// the manufacturer, and persists the reservation together with its fallback
// mapping in one transaction.
func (s *ReservationService) Reserve(ctx context.Context, session *model.VendingSession, amount decimal.Decimal, payType model.PayType) (*model.Reservation, error) {
	if !amount.IsPositive() {
		return nil, apperrors.InvalidInput("amount", "must be positive")
	}

	thirdID, err := s.gen.GenerateUnique(ctx, ident.PrefixPayment, s.idTaken)
	if err != nil {
		return nil, err
	}

	deviceID := ""
	if session.DeviceID != nil {
		deviceID = *session.DeviceID
	}

	result, err := s.api.ReportPayment(ctx, manufacturer.PayDataRequest{
		MobileModelID: *session.ModelID,
		DeviceID:      deviceID,
		ThirdID:       thirdID,
		PayAmount:     amount,
		PayType:       payType.WireCode(),
	})
	if err != nil {
		log.Error().Err(err).
			Str("sessionId", session.SessionID).
			Str("thirdId", thirdID).
			Msg("payment reservation rejected by manufacturer")
		return nil, apperrors.ReservationFailed(err)
	}

	err = s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		repo := s.sessions.WithTx(tx)

		current, err := repo.FindByIDForUpdate(ctx, session.SessionID)
		if err != nil {
			return apperrors.Database(err)
		}
		if current == nil {
			return apperrors.SessionNotFound()
		}
		if current.HasActiveReservation() {
			return apperrors.ReservationAlreadyExists()
		}
		if current.Status.Terminal() {
			return apperrors.SessionClosed()
		}

		rows, err := repo.SetReservation(ctx, session.SessionID, current.Version, thirdID, amount, result.PaymentID, payType)
		if err != nil {
			return apperrors.Database(err)
		}
		if rows == 0 {
			return apperrors.Conflict("session changed while persisting reservation")
		}

		if err := s.mappings.WithTx(tx).Insert(ctx, thirdID, session.SessionID); err != nil {
			return apperrors.Database(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("sessionId", session.SessionID).
		Str("thirdId", thirdID).
		Str("externalPayId", result.PaymentID).
		Str("amount", amount.String()).
		Msg("payment reserved")
	audit.Log(ctx, audit.Event{
		Type:      audit.EventPaymentReserved,
		SessionID: session.SessionID,
		MachineID: session.MachineID,
		ThirdID:   thirdID,
		Details:   map[string]interface{}{"amount": amount.String(), "payType": string(payType)},
	})

	return &model.Reservation{
		ThirdID:       thirdID,
		ReservationID: result.PaymentID,
		Amount:        amount,
		PayType:       payType,
	}, nil
}

// idTaken probes both the session index and the fallback mapping so a
// colliding candidate is regenerated rather than failing the insert.
func (s *ReservationService) idTaken(ctx context.Context, id string) (bool, error) {
	taken, err := s.sessions.ReservationIDTaken(ctx, id)
	if err != nil || taken {
		return taken, err
	}
	mapping, err := s.mappings.FindByThirdID(ctx, id)
	if err != nil {
		return false, err
	}
	return mapping != nil, nil
}
