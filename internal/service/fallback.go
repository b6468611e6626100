package service

import (
	"context"

	"github.com/rs/zerolog/log"

	apperrors "github.com/casevend/kiosk-server-go/internal/errors"
	"github.com/casevend/kiosk-server-go/internal/repository"
)

// FallbackResolver is the last-resort lookup from a payment correlation id to
// its session, consulted only when the primary session index misses. It never
// fabricates a result: a missing mapping stays a miss.
type FallbackResolver struct {
	mappings repository.PaymentMappingRepository
}

func NewFallbackResolver(mappings repository.PaymentMappingRepository) *FallbackResolver {
	return &FallbackResolver{mappings: mappings}
}

// ResolveByPaymentID returns the owning session id for a reservation
// correlation id, or ok=false when no mapping exists.
func (f *FallbackResolver) ResolveByPaymentID(ctx context.Context, thirdID string) (string, bool, error) {
	mapping, err := f.mappings.FindByThirdID(ctx, thirdID)
	if err != nil {
		return "", false, apperrors.Database(err)
	}
	if mapping == nil {
		return "", false, nil
	}

	log.Warn().
		Str("thirdId", thirdID).
		Str("sessionId", mapping.SessionID).
		Msg("session resolved through payment-mapping fallback")
	return mapping.SessionID, true, nil
}
