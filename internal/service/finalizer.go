package service

import (
	"context"

	"github.com/rs/zerolog/log"

	apperrors "github.com/casevend/kiosk-server-go/internal/errors"
	"github.com/casevend/kiosk-server-go/internal/ident"
	"github.com/casevend/kiosk-server-go/internal/manufacturer"
	"github.com/casevend/kiosk-server-go/internal/model"
	"github.com/casevend/kiosk-server-go/internal/repository"
)

// OrderFinalizer submits the manufacturing order once payment is confirmed.
// It never writes session state itself: the caller records the returned order
// in the same transaction that moves the session to payment_completed, which
// is what keeps final_order and status in lockstep.
type OrderFinalizer struct {
	gen *ident.Generator
	api manufacturer.API
}

func NewOrderFinalizer(gen *ident.Generator, api manufacturer.API) *OrderFinalizer {
	return &OrderFinalizer{gen: gen, api: api}
}

// Finalize builds and submits the order for a session whose payment was just
// confirmed. If the session already carries a final order the recorded result
// is returned without touching the remote again.
func (f *OrderFinalizer) Finalize(ctx context.Context, repo repository.SessionRepository, session *model.VendingSession) (*model.FinalOrder, error) {
	if session.Finalized() {
		order := &model.FinalOrder{ThirdID: *session.OrderThirdID}
		if session.ExternalOrderID != nil {
			order.ExternalOrderID = *session.ExternalOrderID
		}
		if session.QueueNo != nil {
			order.QueueNo = *session.QueueNo
		}
		if session.OrderStatus != nil {
			order.Status = *session.OrderStatus
		}
		return order, nil
	}

	if session.ExternalPayID == nil || !session.SummarySet() {
		return nil, apperrors.Internal("session is missing reservation or summary data for finalization")
	}

	thirdID, err := f.gen.GenerateUnique(ctx, ident.PrefixOrder, func(ctx context.Context, id string) (bool, error) {
		return repo.ReservationIDTaken(ctx, id)
	})
	if err != nil {
		return nil, err
	}

	deviceID := ""
	if session.DeviceID != nil {
		deviceID = *session.DeviceID
	}
	shellID := ""
	if session.ShellID != nil {
		shellID = *session.ShellID
	}

	result, err := f.api.ReportOrder(ctx, manufacturer.OrderDataRequest{
		ThirdPayID:    *session.ExternalPayID,
		ThirdID:       thirdID,
		MobileModelID: *session.ModelID,
		MobileShellID: shellID,
		Pic:           *session.DesignRef,
		DeviceID:      deviceID,
	})
	if err != nil {
		log.Error().Err(err).
			Str("sessionId", session.SessionID).
			Str("thirdId", thirdID).
			Msg("order submission failed")
		return nil, err
	}

	log.Info().
		Str("sessionId", session.SessionID).
		Str("thirdId", thirdID).
		Str("externalOrderId", result.OrderID).
		Str("queueNo", result.QueueNo).
		Msg("order submitted")

	// queue_no comes exclusively from the manufacturer's response
	return &model.FinalOrder{
		ThirdID:         thirdID,
		ExternalOrderID: result.OrderID,
		QueueNo:         result.QueueNo,
		Status:          result.Status,
	}, nil
}
