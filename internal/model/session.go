package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// VendingSession tracks one customer interaction from QR scan to print-queue
// admission. All mutation goes through the lifecycle service; handlers only
// ever read projections.
type VendingSession struct {
	SessionID    string        `db:"session_id" json:"sessionId"`
	MachineID    string        `db:"machine_id" json:"machineId"`
	DeviceID     *string       `db:"device_id" json:"deviceId,omitempty"`
	Location     string        `db:"location" json:"location"`
	Status       SessionStatus `db:"status" json:"status"`
	UserProgress UserProgress  `db:"user_progress" json:"userProgress"`

	// Order summary, set once by design submission
	DesignRef *string `db:"design_ref" json:"designRef,omitempty"`
	ModelID   *string `db:"model_id" json:"modelId,omitempty"`
	ShellID   *string `db:"shell_id" json:"shellId,omitempty"`
	BrandID   *string `db:"brand_id" json:"brandId,omitempty"`

	// Payment reservation
	PayThirdID        *string            `db:"pay_third_id" json:"payThirdId,omitempty"`
	PayAmount         *decimal.Decimal   `db:"pay_amount" json:"payAmount,omitempty"`
	ExternalPayID     *string            `db:"external_pay_id" json:"externalPayId,omitempty"`
	PayType           *PayType           `db:"pay_type" json:"payType,omitempty"`
	ReservationStatus *ReservationStatus `db:"reservation_status" json:"reservationStatus,omitempty"`

	// Final order, set at most once and only from a manufacturer response
	OrderThirdID    *string `db:"order_third_id" json:"orderThirdId,omitempty"`
	ExternalOrderID *string `db:"external_order_id" json:"externalOrderId,omitempty"`
	QueueNo         *string `db:"queue_no" json:"queueNo,omitempty"`
	OrderStatus     *int    `db:"order_status" json:"orderStatus,omitempty"`

	Version        int       `db:"version" json:"-"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
	ExpiresAt      time.Time `db:"expires_at" json:"expiresAt"`
	LastActivityAt time.Time `db:"last_activity_at" json:"lastActivityAt"`
	UpdatedAt      time.Time `db:"updated_at" json:"updatedAt"`
}

// SummarySet reports whether the design submission step has happened.
func (s *VendingSession) SummarySet() bool {
	return s.ModelID != nil
}

// HasActiveReservation reports whether a live payment reservation exists.
func (s *VendingSession) HasActiveReservation() bool {
	return s.PayThirdID != nil && s.ReservationStatus != nil &&
		*s.ReservationStatus != ReservationStatusFailed
}

// Finalized reports whether the manufacturer order has been recorded.
func (s *VendingSession) Finalized() bool {
	return s.OrderThirdID != nil
}

// ExpiredAt reports whether the session's soft expiry has passed.
func (s *VendingSession) ExpiredAt(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

type CreateSessionParams struct {
	SessionID string
	MachineID string
	DeviceID  *string
	Location  string
	ExpiresAt time.Time
}

// OrderSummary is the immutable design reference submitted by the mobile flow.
type OrderSummary struct {
	DesignRef string `json:"designRef"`
	ModelID   string `json:"modelId"`
	ShellID   string `json:"shellId"`
	BrandID   string `json:"brandId"`
}

// Matches reports whether the session's recorded summary is identical, which
// makes a duplicate submission a no-op.
func (o OrderSummary) Matches(s *VendingSession) bool {
	if !s.SummarySet() {
		return false
	}
	eq := func(p *string, v string) bool { return p != nil && *p == v }
	return eq(s.DesignRef, o.DesignRef) && eq(s.ModelID, o.ModelID) &&
		eq(s.ShellID, o.ShellID) && eq(s.BrandID, o.BrandID)
}

// Reservation is the persisted payment reservation projection returned to the
// vending client after init-payment.
type Reservation struct {
	ThirdID       string          `json:"thirdId"`
	ReservationID string          `json:"reservationId"`
	Amount        decimal.Decimal `json:"amount"`
	PayType       PayType         `json:"payType"`
}

// FinalOrder is filled exclusively from a successful orderData response.
type FinalOrder struct {
	ThirdID         string `json:"thirdId"`
	ExternalOrderID string `json:"externalOrderId"`
	QueueNo         string `json:"queueNo"`
	Status          int    `json:"status"`
}

// PaymentMapping is the defensive secondary index from a reservation
// correlation id to its session, used only when the primary lookup misses.
type PaymentMapping struct {
	ThirdID   string    `db:"third_id" json:"thirdId"`
	SessionID string    `db:"session_id" json:"sessionId"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}
