package handler

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/casevend/kiosk-server-go/internal/database"
	"github.com/casevend/kiosk-server-go/internal/ident"
	"github.com/casevend/kiosk-server-go/internal/manufacturer"
	"github.com/casevend/kiosk-server-go/internal/model"
	"github.com/casevend/kiosk-server-go/internal/repository"
	"github.com/casevend/kiosk-server-go/internal/service"
)

// Handler tests wire real services over stub repositories so the full
// request path from router to transition logic is exercised.

type stubTransactor struct{}

func (stubTransactor) WithTx(_ context.Context, fn database.TxFunc) error {
	return fn(nil)
}

type stubSessionRepo struct {
	findByID            func(ctx context.Context, id string) (*model.VendingSession, error)
	findByReservationID func(ctx context.Context, thirdID string) (*model.VendingSession, error)
	create              func(ctx context.Context, params model.CreateSessionParams) (*model.VendingSession, error)
	markRegistered      func(ctx context.Context, id string, version int) (int64, error)
	setSummary          func(ctx context.Context, id string, version int, summary model.OrderSummary) (int64, error)
	setReservation      func(ctx context.Context, id string, version int, thirdID string, amount decimal.Decimal, externalPayID string, payType model.PayType) (int64, error)
	completeOrder       func(ctx context.Context, id string, version int, order model.FinalOrder) (int64, error)
	markCancelled       func(ctx context.Context, id string, version int) (int64, error)
}

func (s *stubSessionRepo) WithTx(_ *sqlx.Tx) repository.SessionRepository { return s }

func (s *stubSessionRepo) FindByID(ctx context.Context, id string) (*model.VendingSession, error) {
	if s.findByID == nil {
		return nil, nil
	}
	return s.findByID(ctx, id)
}

func (s *stubSessionRepo) FindByIDForUpdate(ctx context.Context, id string) (*model.VendingSession, error) {
	return s.FindByID(ctx, id)
}

func (s *stubSessionRepo) FindByReservationID(ctx context.Context, thirdID string) (*model.VendingSession, error) {
	if s.findByReservationID == nil {
		return nil, nil
	}
	return s.findByReservationID(ctx, thirdID)
}

func (s *stubSessionRepo) FindStalePending(context.Context, time.Time, int) ([]model.VendingSession, error) {
	return nil, nil
}

func (s *stubSessionRepo) FindRecentOrders(context.Context, time.Time, int) ([]model.VendingSession, error) {
	return nil, nil
}

func (s *stubSessionRepo) Create(ctx context.Context, params model.CreateSessionParams) (*model.VendingSession, error) {
	return s.create(ctx, params)
}

func (s *stubSessionRepo) ReservationIDTaken(context.Context, string) (bool, error) {
	return false, nil
}

func (s *stubSessionRepo) MarkRegistered(ctx context.Context, id string, version int) (int64, error) {
	return s.markRegistered(ctx, id, version)
}

func (s *stubSessionRepo) SetSummary(ctx context.Context, id string, version int, summary model.OrderSummary) (int64, error) {
	return s.setSummary(ctx, id, version, summary)
}

func (s *stubSessionRepo) SetReservation(ctx context.Context, id string, version int, thirdID string, amount decimal.Decimal, externalPayID string, payType model.PayType) (int64, error) {
	return s.setReservation(ctx, id, version, thirdID, amount, externalPayID, payType)
}

func (s *stubSessionRepo) MarkReservationFailed(context.Context, string, int) (int64, error) {
	return 1, nil
}

func (s *stubSessionRepo) CompleteOrder(ctx context.Context, id string, version int, order model.FinalOrder) (int64, error) {
	return s.completeOrder(ctx, id, version, order)
}

func (s *stubSessionRepo) MarkCancelled(ctx context.Context, id string, version int) (int64, error) {
	return s.markCancelled(ctx, id, version)
}

func (s *stubSessionRepo) ExpireOverdue(context.Context) (int64, error) { return 0, nil }

func (s *stubSessionRepo) DeleteTerminal(context.Context, time.Time) (int64, error) { return 0, nil }

type stubMappingRepo struct {
	findByThirdID func(ctx context.Context, thirdID string) (*model.PaymentMapping, error)
}

func (s *stubMappingRepo) WithTx(_ *sqlx.Tx) repository.PaymentMappingRepository { return s }

func (s *stubMappingRepo) Insert(context.Context, string, string) error { return nil }

func (s *stubMappingRepo) FindByThirdID(ctx context.Context, thirdID string) (*model.PaymentMapping, error) {
	if s.findByThirdID == nil {
		return nil, nil
	}
	return s.findByThirdID(ctx, thirdID)
}

func (s *stubMappingRepo) DeleteOlderThan(context.Context, time.Time) (int64, error) { return 0, nil }

type stubManufacturerAPI struct {
	reportPayment func(ctx context.Context, req manufacturer.PayDataRequest) (*manufacturer.PayDataResult, error)
	reportOrder   func(ctx context.Context, req manufacturer.OrderDataRequest) (*manufacturer.OrderDataResult, error)
}

func (s *stubManufacturerAPI) ReportPayment(ctx context.Context, req manufacturer.PayDataRequest) (*manufacturer.PayDataResult, error) {
	return s.reportPayment(ctx, req)
}

func (s *stubManufacturerAPI) ReportOrder(ctx context.Context, req manufacturer.OrderDataRequest) (*manufacturer.OrderDataResult, error) {
	return s.reportOrder(ctx, req)
}

func (s *stubManufacturerAPI) GetPayStatus(context.Context, []string) ([]manufacturer.StatusResult, error) {
	return nil, nil
}

func (s *stubManufacturerAPI) GetOrderStatus(context.Context, []string) ([]manufacturer.StatusResult, error) {
	return nil, nil
}

type testStack struct {
	lifecycle  *service.LifecycleManager
	correlator *service.WebhookCorrelator
}

func newTestStack(sessions *stubSessionRepo, mappings *stubMappingRepo, api *stubManufacturerAPI) testStack {
	gen := ident.NewGenerator()
	reservations := service.NewReservationService(stubTransactor{}, sessions, mappings, gen, api)
	finalizer := service.NewOrderFinalizer(gen, api)
	lifecycle := service.NewLifecycleManager(stubTransactor{}, sessions, reservations, finalizer, gen, 30*time.Minute)
	correlator := service.NewWebhookCorrelator(sessions, service.NewFallbackResolver(mappings), lifecycle)
	return testStack{lifecycle: lifecycle, correlator: correlator}
}

func strPtr(s string) *string { return &s }

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
	payType := model.PayTypeVending
	s.PayType = &payType
	reserved := model.ReservationStatusReserved
	s.ReservationStatus = &reserved
	s.Version = 3
	return s
}
