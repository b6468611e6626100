package service

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/casevend/kiosk-server-go/internal/database"
	"github.com/casevend/kiosk-server-go/internal/manufacturer"
	"github.com/casevend/kiosk-server-go/internal/model"
	"github.com/casevend/kiosk-server-go/internal/repository"
)

// stubTransactor runs the transaction function directly; repositories in
// these tests ignore the tx handle.
type stubTransactor struct{}

func (stubTransactor) WithTx(_ context.Context, fn database.TxFunc) error {
	return fn(nil)
}

type mockSessionRepo struct {
	mock.Mock
}

func (m *mockSessionRepo) WithTx(_ *sqlx.Tx) repository.SessionRepository {
	return m
}

func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*model.VendingSession, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.VendingSession), args.Error(1)
}

func (m *mockSessionRepo) FindByIDForUpdate(ctx context.Context, id string) (*model.VendingSession, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.VendingSession), args.Error(1)
}

func (m *mockSessionRepo) FindByReservationID(ctx context.Context, thirdID string) (*model.VendingSession, error) {
	args := m.Called(ctx, thirdID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.VendingSession), args.Error(1)
}

func (m *mockSessionRepo) FindStalePending(ctx context.Context, olderThan time.Time, limit int) ([]model.VendingSession, error) {
	args := m.Called(ctx, olderThan, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.VendingSession), args.Error(1)
}

func (m *mockSessionRepo) FindRecentOrders(ctx context.Context, since time.Time, limit int) ([]model.VendingSession, error) {
	args := m.Called(ctx, since, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.VendingSession), args.Error(1)
}

func (m *mockSessionRepo) Create(ctx context.Context, params model.CreateSessionParams) (*model.VendingSession, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.VendingSession), args.Error(1)
}

func (m *mockSessionRepo) ReservationIDTaken(ctx context.Context, thirdID string) (bool, error) {
	args := m.Called(ctx, thirdID)
	return args.Bool(0), args.Error(1)
}

func (m *mockSessionRepo) MarkRegistered(ctx context.Context, id string, version int) (int64, error) {
	args := m.Called(ctx, id, version)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockSessionRepo) SetSummary(ctx context.Context, id string, version int, summary model.OrderSummary) (int64, error) {
	args := m.Called(ctx, id, version, summary)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockSessionRepo) SetReservation(ctx context.Context, id string, version int, thirdID string, amount decimal.Decimal, externalPayID string, payType model.PayType) (int64, error) {
	args := m.Called(ctx, id, version, thirdID, amount, externalPayID, payType)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockSessionRepo) MarkReservationFailed(ctx context.Context, id string, version int) (int64, error) {
	args := m.Called(ctx, id, version)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockSessionRepo) CompleteOrder(ctx context.Context, id string, version int, order model.FinalOrder) (int64, error) {
	args := m.Called(ctx, id, version, order)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockSessionRepo) MarkCancelled(ctx context.Context, id string, version int) (int64, error) {
	args := m.Called(ctx, id, version)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockSessionRepo) ExpireOverdue(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockSessionRepo) DeleteTerminal(ctx context.Context, olderThan time.Time) (int64, error) {
	args := m.Called(ctx, olderThan)
	return args.Get(0).(int64), args.Error(1)
}

type mockMappingRepo struct {
	mock.Mock
}

func (m *mockMappingRepo) WithTx(_ *sqlx.Tx) repository.PaymentMappingRepository {
	return m
}

func (m *mockMappingRepo) Insert(ctx context.Context, thirdID, sessionID string) error {
	args := m.Called(ctx, thirdID, sessionID)
	return args.Error(0)
}

func (m *mockMappingRepo) FindByThirdID(ctx context.Context, thirdID string) (*model.PaymentMapping, error) {
	args := m.Called(ctx, thirdID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PaymentMapping), args.Error(1)
}

func (m *mockMappingRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

type mockManufacturerAPI struct {
	mock.Mock
}

func (m *mockManufacturerAPI) ReportPayment(ctx context.Context, req manufacturer.PayDataRequest) (*manufacturer.PayDataResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*manufacturer.PayDataResult), args.Error(1)
}

func (m *mockManufacturerAPI) ReportOrder(ctx context.Context, req manufacturer.OrderDataRequest) (*manufacturer.OrderDataResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*manufacturer.OrderDataResult), args.Error(1)
}

func (m *mockManufacturerAPI) GetPayStatus(ctx context.Context, thirdIDs []string) ([]manufacturer.StatusResult, error) {
	args := m.Called(ctx, thirdIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]manufacturer.StatusResult), args.Error(1)
}

func (m *mockManufacturerAPI) GetOrderStatus(ctx context.Context, thirdIDs []string) ([]manufacturer.StatusResult, error) {
	args := m.Called(ctx, thirdIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]manufacturer.StatusResult), args.Error(1)
}

// Fixtures

func strPtr(s string) *string { return &s }

func resStatusPtr(s model.ReservationStatus) *model.ReservationStatus { return &s }

func payTypePtr(p model.PayType) *model.PayType { return &p }

func intPtr(i int) *int { return &i }

func activeSession() *model.VendingSession {
	return &model.VendingSession{
		SessionID:    "VM001_20260828_143045_a1b2c3",
		MachineID:    "VM001",
		DeviceID:     strPtr("DEV1"),
		Location:     "Mall of Berlin",
		Status:       model.SessionStatusActive,
		UserProgress: model.ProgressStarted,
		Version:      1,
		CreatedAt:    time.Now().Add(-time.Minute),
		ExpiresAt:    time.Now().Add(30 * time.Minute),
	}
}

func designedSession() *model.VendingSession {
	s := activeSession()
	s.Status = model.SessionStatusDesigning
	s.UserProgress = model.ProgressDesignComplete
	s.DesignRef = strPtr("https://cdn.example.com/design.png")
	s.ModelID = strPtr("MM1")
	s.ShellID = strPtr("MS1")
	s.BrandID = strPtr("BR1")
	s.Version = 2
	return s
}

func pendingSession() *model.VendingSession {
	s := designedSession()
	s.Status = model.SessionStatusPaymentPending
	s.UserProgress = model.ProgressPaymentReached
	s.PayThirdID = strPtr("PYEN260828123456")
	amount := decimal.RequireFromString("19.99")
	s.PayAmount = &amount
	s.ExternalPayID = strPtr("EXT-PAY-1")
	s.PayType = payTypePtr(model.PayTypeVending)
	s.ReservationStatus = resStatusPtr(model.ReservationStatusReserved)
	s.Version = 3
	return s
}

func completedSession() *model.VendingSession {
	s := pendingSession()
	s.Status = model.SessionStatusPaymentCompleted
	s.UserProgress = model.ProgressOrderSubmitted
	s.ReservationStatus = resStatusPtr(model.ReservationStatusPaid)
	s.OrderThirdID = strPtr("OREN260828654321")
	s.ExternalOrderID = strPtr("EXT-ORD-1")
	s.QueueNo = strPtr("001")
	s.OrderStatus = intPtr(1)
	s.Version = 4
	return s
}
