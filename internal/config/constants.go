package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 60 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Background job intervals
const (
	CleanupJobInterval   = 5 * time.Minute
	ReconcileJobInterval = 2 * time.Minute
	// Sessions stuck at payment_pending longer than this are polled against
	// the manufacturer's getPayStatus endpoint.
	ReconcileMinPendingAge = 3 * time.Minute
	ReconcileBatchSize     = 50
	// Orders finalized within this window are spot-checked against
	// getOrderStatus so a dropped print job surfaces in the logs.
	ReconcileOrderLookback = 15 * time.Minute
)

// Retention for terminal rows swept by the cleanup job
const (
	TerminalSessionRetention = 24 * time.Hour
	PaymentMappingRetention  = 30 * 24 * time.Hour
)

// Manufacturer client settings
const (
	TokenValidity    = 1440 * time.Minute
	RemoteRetryCount = 2
	RemoteRetryWait  = 500 * time.Millisecond
)

// Correlation identifier generation
const MaxIDGenerationAttempts = 5

// Webhook correlation: a callback can beat the reservation commit, so the
// primary lookup is retried briefly before the fallback index is consulted.
const (
	WebhookLookupAttempts = 4
	WebhookLookupInterval = 250 * time.Millisecond
)

// Default rate limiting for session creation, per client address
const DefaultCreateRateLimitPerMin = 30
