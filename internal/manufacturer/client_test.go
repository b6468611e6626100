package manufacturer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/casevend/kiosk-server-go/internal/errors"
)

func newTestClient(baseURL string) *Client {
	return NewClient(Options{
		BaseURL:    baseURL,
		Account:    "acct",
		Password:   "pw",
		SignSecret: "sec",
		SystemName: "sys",
		ReqSource:  "kiosk-server",
		Timeout:    2 * time.Second,
	})
}

func writeEnvelope(w http.ResponseWriter, code int, msg string, data any) {
	raw, _ := json.Marshal(data)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"code": code,
		"msg":  msg,
		"data": json.RawMessage(raw),
	})
}

func TestReportPayment(t *testing.T) {
	t.Run("logs in, signs and returns payment data", func(t *testing.T) {
		var gotSign, gotSource, gotAuth string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/user/login":
				writeEnvelope(w, 200, "ok", map[string]string{"token": "tok-1"})
			case "/order/payData":
				gotSign = r.Header.Get("sign")
				gotSource = r.Header.Get("req_source")
				gotAuth = r.Header.Get("Authorization")
				writeEnvelope(w, 200, "ok", map[string]string{
					"payment_id": "EXT-PAY-1",
					"third_id":   "PYEN260828123456",
				})
			default:
				http.NotFound(w, r)
			}
		}))
		defer server.Close()

		client := newTestClient(server.URL)
		result, err := client.ReportPayment(context.Background(), PayDataRequest{
			MobileModelID: "MM1",
			DeviceID:      "DEV1",
			ThirdID:       "PYEN260828123456",
			PayAmount:     decimal.RequireFromString("19.99"),
			PayType:       2,
		})

		require.NoError(t, err)
		assert.Equal(t, "EXT-PAY-1", result.PaymentID)
		assert.Equal(t, "PYEN260828123456", result.ThirdID)
		assert.Equal(t, "tok-1", gotAuth)
		assert.Equal(t, "kiosk-server", gotSource)
		assert.Len(t, gotSign, 32)
	})

	t.Run("caches token across calls", func(t *testing.T) {
		var logins int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/user/login":
				atomic.AddInt32(&logins, 1)
				writeEnvelope(w, 200, "ok", map[string]string{"token": "tok-1"})
			default:
				writeEnvelope(w, 200, "ok", map[string]string{"payment_id": "p", "third_id": "t"})
			}
		}))
		defer server.Close()

		client := newTestClient(server.URL)
		for i := 0; i < 3; i++ {
			_, err := client.ReportPayment(context.Background(), PayDataRequest{ThirdID: "x"})
			require.NoError(t, err)
		}
		assert.Equal(t, int32(1), atomic.LoadInt32(&logins))
	})

	t.Run("re-authenticates once on 401 then succeeds", func(t *testing.T) {
		var logins, rejected int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/user/login":
				n := atomic.AddInt32(&logins, 1)
				writeEnvelope(w, 200, "ok", map[string]string{"token": "tok-" + string(rune('0'+n))})
			case "/order/payData":
				if r.Header.Get("Authorization") == "tok-1" {
					atomic.AddInt32(&rejected, 1)
					w.WriteHeader(http.StatusUnauthorized)
					return
				}
				writeEnvelope(w, 200, "ok", map[string]string{"payment_id": "p", "third_id": "t"})
			}
		}))
		defer server.Close()

		client := newTestClient(server.URL)
		result, err := client.ReportPayment(context.Background(), PayDataRequest{ThirdID: "x"})

		require.NoError(t, err)
		assert.Equal(t, "p", result.PaymentID)
		assert.Equal(t, int32(2), atomic.LoadInt32(&logins))
		assert.Equal(t, int32(1), atomic.LoadInt32(&rejected))
	})

	t.Run("surfaces AuthFailure after second rejection", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/user/login" {
				writeEnvelope(w, 200, "ok", map[string]string{"token": "tok"})
				return
			}
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer server.Close()

		client := newTestClient(server.URL)
		_, err := client.ReportPayment(context.Background(), PayDataRequest{ThirdID: "x"})

		require.Error(t, err)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeAuthFailure))
	})

	t.Run("maps vendor error code to RemoteRejected", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/user/login" {
				writeEnvelope(w, 200, "ok", map[string]string{"token": "tok"})
				return
			}
			writeEnvelope(w, 4001, "unknown model", nil)
		}))
		defer server.Close()

		client := newTestClient(server.URL)
		_, err := client.ReportPayment(context.Background(), PayDataRequest{ThirdID: "x"})

		require.Error(t, err)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeRemoteRejected))
	})

	t.Run("does not retry 4xx", func(t *testing.T) {
		var calls int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/user/login" {
				writeEnvelope(w, 200, "ok", map[string]string{"token": "tok"})
				return
			}
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusUnprocessableEntity)
		}))
		defer server.Close()

		client := newTestClient(server.URL)
		_, err := client.ReportPayment(context.Background(), PayDataRequest{ThirdID: "x"})

		require.Error(t, err)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeRemoteRejected))
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})

	t.Run("retries 5xx then succeeds", func(t *testing.T) {
		var calls int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/user/login" {
				writeEnvelope(w, 200, "ok", map[string]string{"token": "tok"})
				return
			}
			if atomic.AddInt32(&calls, 1) < 3 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			writeEnvelope(w, 200, "ok", map[string]string{"payment_id": "p", "third_id": "t"})
		}))
		defer server.Close()

		client := newTestClient(server.URL)
		result, err := client.ReportPayment(context.Background(), PayDataRequest{ThirdID: "x"})

		require.NoError(t, err)
		assert.Equal(t, "p", result.PaymentID)
		assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	})

	t.Run("maps timeout to RemoteTimeout", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/user/login" {
				writeEnvelope(w, 200, "ok", map[string]string{"token": "tok"})
				return
			}
			time.Sleep(500 * time.Millisecond)
			writeEnvelope(w, 200, "ok", nil)
		}))
		defer server.Close()

		client := NewClient(Options{
			BaseURL:    server.URL,
			Account:    "acct",
			Password:   "pw",
			SignSecret: "sec",
			SystemName: "sys",
			ReqSource:  "kiosk-server",
			Timeout:    100 * time.Millisecond,
		})
		_, err := client.ReportPayment(context.Background(), PayDataRequest{ThirdID: "x"})

		require.Error(t, err)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeRemoteTimeout))
	})
}

func TestReportOrder(t *testing.T) {
	t.Run("returns queue number from orderData", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/user/login":
				writeEnvelope(w, 200, "ok", map[string]string{"token": "tok"})
			case "/order/orderData":
				writeEnvelope(w, 200, "ok", map[string]any{
					"order_id": "EXT-ORD-1",
					"third_id": "OREN260828654321",
					"queue_no": "001",
					"status":   1,
				})
			}
		}))
		defer server.Close()

		client := newTestClient(server.URL)
		result, err := client.ReportOrder(context.Background(), OrderDataRequest{
			ThirdPayID:    "EXT-PAY-1",
			ThirdID:       "OREN260828654321",
			MobileModelID: "MM1",
			MobileShellID: "MS1",
			Pic:           "https://cdn.example.com/design.png",
			DeviceID:      "DEV1",
		})

		require.NoError(t, err)
		assert.Equal(t, "001", result.QueueNo)
		assert.Equal(t, "EXT-ORD-1", result.OrderID)
	})
}

func TestGetPayStatus(t *testing.T) {
	t.Run("returns status list", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/user/login":
				writeEnvelope(w, 200, "ok", map[string]string{"token": "tok"})
			case "/order/getPayStatus":
				writeEnvelope(w, 200, "ok", []map[string]any{
					{"third_id": "PYEN1", "status": 3},
					{"third_id": "PYEN2", "status": 1},
				})
			}
		}))
		defer server.Close()

		client := newTestClient(server.URL)
		results, err := client.GetPayStatus(context.Background(), []string{"PYEN1", "PYEN2"})

		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, 3, results[0].Status)
	})
}
