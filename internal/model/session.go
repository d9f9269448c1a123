package model

import "time"

type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "active"
	SessionStatusPaused    SessionStatus = "paused"
	SessionStatusEnded     SessionStatus = "ended"
	SessionStatusCompleted SessionStatus = "completed"
)

// Terminal reports whether the session can no longer change state.
func (s SessionStatus) Terminal() bool {
	return s == SessionStatusEnded || s == SessionStatusCompleted
}

type ServiceType string

const (
	ServiceTypeStreaming ServiceType = "streaming"
	ServiceTypeAPI       ServiceType = "api"
	ServiceTypeCloud     ServiceType = "cloud"
)

// Session is a bounded period of metered payment activity between a viewer
// (payer) and a merchant (payee) at an agreed KAS-per-second rate.
//
// TotalPaid and TotalTransactions only move when a transaction receives a
// real hash from the wallet; CurrentTransaction counts requested payments
// and exists to enforce MaxTransactions.
type Session struct {
	ID                 string        `json:"id"`
	ViewerAddress      string        `json:"viewerAddress"`
	MerchantAddress    string        `json:"merchantAddress"`
	RatePerSecond      float64       `json:"ratePerSecond"`
	StartedAt          time.Time     `json:"startedAt"`
	PausedAt           *time.Time    `json:"pausedAt,omitempty"`
	EndedAt            *time.Time    `json:"endedAt,omitempty"`
	TotalPaid          float64       `json:"totalPaid"`
	TotalTransactions  int           `json:"totalTransactions"`
	CurrentTransaction int           `json:"currentTransaction"`
	MaxTransactions    int           `json:"maxTransactions,omitempty"`
	PaymentIntervalMs  int           `json:"paymentInterval"`
	PayAtEnd           bool          `json:"payAtEnd"`
	Status             SessionStatus `json:"status"`
	ServiceType        ServiceType   `json:"serviceType,omitempty"`
	ServiceName        string        `json:"serviceName,omitempty"`
}

// PaymentInterval returns the recurring charge interval as a duration.
func (s *Session) PaymentInterval() time.Duration {
	return time.Duration(s.PaymentIntervalMs) * time.Millisecond
}

type CreateSessionParams struct {
	ViewerAddress     string      `json:"viewerAddress"`
	MerchantAddress   string      `json:"merchantAddress"`
	RatePerSecond     float64     `json:"ratePerSecond"`
	ServiceType       ServiceType `json:"serviceType,omitempty"`
	ServiceName       string      `json:"serviceName,omitempty"`
	PaymentIntervalMs int         `json:"paymentInterval,omitempty"`
	MaxTransactions   int         `json:"maxTransactions,omitempty"`
	PayAtEnd          bool        `json:"payAtEnd,omitempty"`
}
