package model

// SessionStatus is the authoritative state of a vending session. Transitions
// are monotonic except for the explicit cancel/expire terminals.
type SessionStatus string

const (
	SessionStatusActive           SessionStatus = "active"
	SessionStatusDesigning        SessionStatus = "designing"
	SessionStatusPaymentPending   SessionStatus = "payment_pending"
	SessionStatusPaymentCompleted SessionStatus = "payment_completed"
	SessionStatusExpired          SessionStatus = "expired"
	SessionStatusCancelled        SessionStatus = "cancelled"
)

// Terminal reports whether no further transitions are permitted.
func (s SessionStatus) Terminal() bool {
	return s == SessionStatusExpired || s == SessionStatusCancelled
}

// UserProgress tracks how far the customer got in the flow. Advisory only,
// never used for business decisions.
type UserProgress string

const (
	ProgressStarted        UserProgress = "started"
	ProgressQRScanned      UserProgress = "qr_scanned"
	ProgressDesignComplete UserProgress = "design_complete"
	ProgressPaymentReached UserProgress = "payment_reached"
	ProgressOrderSubmitted UserProgress = "order_submitted"
)

// PayType distinguishes vending-machine payments (which route through the
// manufacturer) from in-app card payments.
type PayType string

const (
	PayTypeVending PayType = "vending"
	PayTypeApp     PayType = "app"
)

// WireCode is the integer code the manufacturer API expects for this pay type.
func (p PayType) WireCode() int {
	if p == PayTypeApp {
		return 1
	}
	return 2
}

// ReservationStatus is the state of a session's payment reservation.
type ReservationStatus string

const (
	ReservationStatusReserved ReservationStatus = "reserved"
	ReservationStatusFailed   ReservationStatus = "failed"
	ReservationStatusPaid     ReservationStatus = "paid"
)

// PayStatus is the internal form of the manufacturer's payment status codes.
// External integers are converted at the boundary and never passed around raw.
type PayStatus string

const (
	PayStatusWaiting    PayStatus = "waiting"
	PayStatusProcessing PayStatus = "processing"
	PayStatusPaid       PayStatus = "paid"
	PayStatusFailed     PayStatus = "failed"
	PayStatusAbnormal   PayStatus = "abnormal"
	PayStatusUnknown    PayStatus = "unknown"
)

// PayStatusFromWire maps the manufacturer's 1..5 status codes.
func PayStatusFromWire(code int) PayStatus {
	switch code {
	case 1:
		return PayStatusWaiting
	case 2:
		return PayStatusProcessing
	case 3:
		return PayStatusPaid
	case 4:
		return PayStatusFailed
	case 5:
		return PayStatusAbnormal
	default:
		return PayStatusUnknown
	}
}

// Success reports whether the status confirms a completed payment.
func (s PayStatus) Success() bool {
	return s == PayStatusPaid
}

// Failure reports whether the status is terminal without payment.
func (s PayStatus) Failure() bool {
	return s == PayStatusFailed || s == PayStatusAbnormal
}
