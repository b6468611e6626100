package ident

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"github.com/casevend/kiosk-server-go/internal/config"
	apperrors "github.com/casevend/kiosk-server-go/internal/errors"
)

// Correlation id prefixes for the manufacturer wire contract.
const (
	PrefixPayment = "PYEN"
	PrefixOrder   = "OREN"
)

const (
	randomDigits       = 6
	sessionRandomBytes = 3
)

// Generator produces correlation identifiers of the form
// PREFIX + yyMMdd + six random digits. No counter state; uniqueness comes
// from randomness and is verified by the caller's taken probe.
type Generator struct {
	now func() time.Time
}

func NewGenerator() *Generator {
	return &Generator{now: time.Now}
}

// NewGeneratorAt pins the clock, for tests.
func NewGeneratorAt(now func() time.Time) *Generator {
	return &Generator{now: now}
}

// Generate returns a fresh identifier. Each call draws new randomness; a
// session only ever holds one payment id and one order id, but that is
// enforced by the lifecycle service, not here.
func (g *Generator) Generate(prefix string) string {
	date := g.now().Format("060102")
	digits := make([]byte, randomDigits)
	for i := range digits {
		n, _ := rand.Int(rand.Reader, big.NewInt(10))
		digits[i] = byte('0' + n.Int64())
	}
	return prefix + date + string(digits)
}

// TakenFunc reports whether a candidate identifier is already in use.
type TakenFunc func(ctx context.Context, id string) (bool, error)

// GenerateUnique retries generation with fresh randomness while the candidate
// collides, up to a small bound, then fails with GENERATION_EXHAUSTED.
func (g *Generator) GenerateUnique(ctx context.Context, prefix string, taken TakenFunc) (string, error) {
	for attempt := 0; attempt < config.MaxIDGenerationAttempts; attempt++ {
		id := g.Generate(prefix)
		inUse, err := taken(ctx, id)
		if err != nil {
			return "", fmt.Errorf("check identifier: %w", err)
		}
		if !inUse {
			return id, nil
		}
	}
	return "", apperrors.GenerationExhausted(prefix)
}

// SessionID builds a session identifier of the form
// {machine_id}_{yyyyMMdd}_{HHMMSS}_{random}.
func (g *Generator) SessionID(machineID string) string {
	now := g.now()
	suffix := make([]byte, sessionRandomBytes)
	_, _ = rand.Read(suffix)
	return fmt.Sprintf("%s_%s_%s_%s",
		machineID,
		now.Format("20060102"),
		now.Format("150405"),
		hex.EncodeToString(suffix),
	)
}
