package model

import "time"

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusMempool   TransactionStatus = "mempool"
	TransactionStatusConfirmed TransactionStatus = "confirmed"
	TransactionStatusFailed    TransactionStatus = "failed"
)

// Transaction is one discrete payment attempt tied to a session. It is
// created in pending state when the orchestrator requests a payment and
// moves to mempool only once the external signer reports a real hash.
// Confirmed and failed are terminal.
type Transaction struct {
	ID          string            `json:"id"`
	SessionID   string            `json:"sessionId"`
	Hash        string            `json:"hash,omitempty"`
	From        string            `json:"from"`
	To          string            `json:"to"`
	Amount      float64           `json:"amount"`
	Fee         float64           `json:"fee"`
	Status      TransactionStatus `json:"status"`
	CreatedAt   time.Time         `json:"createdAt"`
	ConfirmedAt *time.Time        `json:"confirmedAt,omitempty"`
	ExplorerURL string            `json:"explorerUrl,omitempty"`
}

// MerchantStats aggregates earnings over every session ever created, not
// just the currently active ones.
type MerchantStats struct {
	TotalEarned       float64 `json:"totalEarned"`
	ActiveStreams     int     `json:"activeStreams"`
	RevenuePerSecond  float64 `json:"revenuePerSecond"`
	TotalTransactions int     `json:"totalTransactions"`
}
