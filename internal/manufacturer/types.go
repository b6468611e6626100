package manufacturer

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// envelope is the manufacturer's uniform response wrapper.
type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

const remoteOK = 200

type loginData struct {
	Token string `json:"token"`
}

// PayDataRequest reserves a print slot against a payment amount before the
// physical payment happens.
type PayDataRequest struct {
	MobileModelID string
	DeviceID      string
	ThirdID       string
	PayAmount     decimal.Decimal
	PayType       int
}

func (r PayDataRequest) fields() map[string]any {
	return map[string]any{
		"mobile_model_id": r.MobileModelID,
		"device_id":       r.DeviceID,
		"third_id":        r.ThirdID,
		"pay_amount":      r.PayAmount,
		"pay_type":        r.PayType,
	}
}

type PayDataResult struct {
	PaymentID string `json:"payment_id"`
	ThirdID   string `json:"third_id"`
}

// OrderDataRequest submits the manufacturing order after payment confirmation.
type OrderDataRequest struct {
	ThirdPayID    string
	ThirdID       string
	MobileModelID string
	MobileShellID string
	Pic           string
	DeviceID      string
}

func (r OrderDataRequest) fields() map[string]any {
	return map[string]any{
		"third_pay_id":    r.ThirdPayID,
		"third_id":        r.ThirdID,
		"mobile_model_id": r.MobileModelID,
		"mobile_shell_id": r.MobileShellID,
		"pic":             r.Pic,
		"device_id":       r.DeviceID,
	}
}

type OrderDataResult struct {
	OrderID string `json:"order_id"`
	ThirdID string `json:"third_id"`
	QueueNo string `json:"queue_no"`
	Status  int    `json:"status"`
}

// StatusResult is one entry of a getPayStatus/getOrderStatus poll.
type StatusResult struct {
	ThirdID string `json:"third_id"`
	Status  int    `json:"status"`
}
