package config

import "time"

// HTTP server timeouts
const (
	ServerRequestTimeout  = 60 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Payment defaults
const (
	// DefaultRatePerSecond is the KAS/second rate used when callers do not
	// supply one. Kept above dust levels to avoid storage mass errors.
	DefaultRatePerSecond = 0.01

	// DefaultPaymentInterval is how often a recurring session is charged.
	DefaultPaymentInterval = 30 * time.Second

	// MinBalanceThreshold is the minimum viewer balance, in KAS, required
	// for a session to keep producing payments.
	MinBalanceThreshold = 0.5

	// TransactionFee is the fixed per-transaction network fee in KAS.
	TransactionFee = 0.0001
)

// Simulated network confirmation latency: a fixed base plus bounded jitter.
// Kaspa confirms in roughly one to two seconds.
const (
	ConfirmationDelayBase   = time.Second
	ConfirmationDelayJitter = time.Second
)

// ExplorerBaseURL is the block explorer used to derive transaction links.
const ExplorerBaseURL = "https://explorer.kaspa.org"

// Real-time channel settings
const (
	WSReconnectDelay       = 3 * time.Second
	BalanceRefreshInterval = 2 * time.Second
)
