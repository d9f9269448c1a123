// Package service owns all session and transaction state. The
// StreamingService is the single writer of that state; the notifier and the
// signer bridge interact with it only through its public operations and its
// observer callbacks.
package service

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/kas-flash/stream-server-go/internal/config"
	apperrors "github.com/kas-flash/stream-server-go/internal/errors"
	"github.com/kas-flash/stream-server-go/internal/kaspa"
	"github.com/kas-flash/stream-server-go/internal/model"
)

const gatewayTimeout = 5 * time.Second

// TransactionObserver is invoked on every transaction creation or status
// change with a snapshot of the transaction.
type TransactionObserver func(sessionID string, tx model.Transaction)

// SessionObserver is invoked on every session state change with a snapshot
// of the session.
type SessionObserver func(session model.Session)

// sessionState bundles a session with its transactions and the stop handle
// of its payment cycle. Only accessed with StreamingService.mu held.
type sessionState struct {
	session      model.Session
	transactions []model.Transaction
	stop         chan struct{}
}

// StreamingService manages streaming sessions and orchestrates the
// pay-per-second payment cycle: it creates pending transactions on a timer,
// checks the viewer's balance through the gateway, enforces transaction
// caps, and resolves transactions when the external signer reports back.
type StreamingService struct {
	mu       sync.Mutex
	sessions map[string]*sessionState
	kaspa    kaspa.Client

	obsMu            sync.RWMutex
	txObservers      []TransactionObserver
	sessionObservers []SessionObserver

	// confirmationDelay simulates network confirmation latency; replaced
	// in tests to keep them fast.
	confirmationDelay func() time.Duration
}

func NewStreamingService(kaspaClient kaspa.Client) *StreamingService {
	return &StreamingService{
		sessions: make(map[string]*sessionState),
		kaspa:    kaspaClient,
		confirmationDelay: func() time.Duration {
			return config.ConfirmationDelayBase +
				time.Duration(rand.Int63n(int64(config.ConfirmationDelayJitter)))
		},
	}
}

// OnTransaction registers an observer for transaction events. Observers are
// called outside the state lock and may call back into the service.
func (s *StreamingService) OnTransaction(fn TransactionObserver) {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	s.txObservers = append(s.txObservers, fn)
}

// OnSessionUpdate registers an observer for session state changes.
func (s *StreamingService) OnSessionUpdate(fn SessionObserver) {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	s.sessionObservers = append(s.sessionObservers, fn)
}

func (s *StreamingService) notifyTransaction(sessionID string, tx model.Transaction) {
	s.obsMu.RLock()
	observers := make([]TransactionObserver, len(s.txObservers))
	copy(observers, s.txObservers)
	s.obsMu.RUnlock()

	for _, fn := range observers {
		fn(sessionID, tx)
	}
}

func (s *StreamingService) notifySession(session model.Session) {
	s.obsMu.RLock()
	observers := make([]SessionObserver, len(s.sessionObservers))
	copy(observers, s.sessionObservers)
	s.obsMu.RUnlock()

	for _, fn := range observers {
		fn(session)
	}
}

// CreateSession allocates a new active session and, unless the session is
// pay-at-end, starts its payment cycle with an immediate first payment.
func (s *StreamingService) CreateSession(params model.CreateSessionParams) (model.Session, error) {
	if params.ViewerAddress == "" {
		return model.Session{}, apperrors.MissingRequired("viewerAddress")
	}
	if params.MerchantAddress == "" {
		return model.Session{}, apperrors.MissingRequired("merchantAddress")
	}
	if params.RatePerSecond <= 0 {
		return model.Session{}, apperrors.InvalidInput("ratePerSecond", "must be positive")
	}

	intervalMs := params.PaymentIntervalMs
	if intervalMs <= 0 {
		intervalMs = int(config.DefaultPaymentInterval / time.Millisecond)
	}

	session := model.Session{
		ID:                uuid.NewString(),
		ViewerAddress:     params.ViewerAddress,
		MerchantAddress:   params.MerchantAddress,
		RatePerSecond:     params.RatePerSecond,
		StartedAt:         time.Now(),
		MaxTransactions:   params.MaxTransactions,
		PaymentIntervalMs: intervalMs,
		PayAtEnd:          params.PayAtEnd,
		Status:            model.SessionStatusActive,
		ServiceType:       params.ServiceType,
		ServiceName:       params.ServiceName,
	}

	st := &sessionState{session: session}

	s.mu.Lock()
	s.sessions[session.ID] = st
	if !session.PayAtEnd {
		s.startPaymentCycleLocked(st)
	}
	s.mu.Unlock()

	log.Info().
		Str("sessionId", session.ID).
		Str("serviceName", session.ServiceName).
		Float64("ratePerSecond", session.RatePerSecond).
		Int("paymentIntervalMs", intervalMs).
		Int("maxTransactions", session.MaxTransactions).
		Bool("payAtEnd", session.PayAtEnd).
		Msg("session created")

	return session, nil
}

// startPaymentCycleLocked launches the recurring payment goroutine for a
// session. Callers must hold s.mu. At most one cycle runs per session: any
// existing cycle is stopped first.
func (s *StreamingService) startPaymentCycleLocked(st *sessionState) {
	s.stopPaymentCycleLocked(st)

	stop := make(chan struct{})
	st.stop = stop

	sessionID := st.session.ID
	interval := st.session.PaymentInterval()

	go func() {
		// First payment fires immediately, before the first tick.
		s.processPayment(sessionID)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.processPayment(sessionID)
			}
		}
	}()
}

// stopPaymentCycleLocked cancels a session's payment cycle, if any.
// Callers must hold s.mu.
func (s *StreamingService) stopPaymentCycleLocked(st *sessionState) {
	if st.stop != nil {
		close(st.stop)
		st.stop = nil
	}
}

// processPayment performs one payment attempt for a session. A tick that
// races a pause/end call finds the session no longer active and does
// nothing.
func (s *StreamingService) processPayment(sessionID string) {
	s.mu.Lock()
	st, ok := s.sessions[sessionID]
	if !ok || st.session.Status != model.SessionStatusActive {
		s.mu.Unlock()
		return
	}

	if st.session.MaxTransactions > 0 && st.session.CurrentTransaction >= st.session.MaxTransactions {
		log.Info().Str("sessionId", sessionID).Msg("max transactions reached")

		payAtEndTx := s.endLocked(st)
		endedSnapshot := st.session
		st.session.Status = model.SessionStatusCompleted
		completedSnapshot := st.session
		s.mu.Unlock()

		if payAtEndTx != nil {
			s.notifyTransaction(sessionID, *payAtEndTx)
		}
		s.notifySession(endedSnapshot)
		s.notifySession(completedSnapshot)
		return
	}

	viewerAddress := st.session.ViewerAddress
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), gatewayTimeout)
	balance, err := s.kaspa.GetBalance(ctx, viewerAddress)
	cancel()
	if err != nil {
		// Skip this tick; the next one retries the balance check.
		extErr := apperrors.External("Kaspa gateway", err)
		log.Warn().Err(extErr).Str("sessionId", sessionID).Msg("balance check failed")
		return
	}

	if balance < config.MinBalanceThreshold {
		log.Info().
			Str("sessionId", sessionID).
			Float64("balance", balance).
			Msg("insufficient balance, ending session")
		s.EndSession(sessionID)
		return
	}

	s.mu.Lock()
	st, ok = s.sessions[sessionID]
	if !ok || st.session.Status != model.SessionStatusActive {
		// Session was paused or ended while the balance check ran.
		s.mu.Unlock()
		return
	}

	intervalSeconds := st.session.PaymentInterval().Seconds()
	amount := st.session.RatePerSecond * intervalSeconds

	st.session.CurrentTransaction++

	tx := model.Transaction{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		From:      st.session.ViewerAddress,
		To:        st.session.MerchantAddress,
		Amount:    amount,
		Fee:       config.TransactionFee,
		Status:    model.TransactionStatusPending,
		CreatedAt: time.Now(),
	}
	st.transactions = append(st.transactions, tx)

	current := st.session.CurrentTransaction
	sessionSnapshot := st.session
	s.mu.Unlock()

	log.Info().
		Str("sessionId", sessionID).
		Str("transactionId", tx.ID).
		Int("paymentNumber", current).
		Float64("amount", amount).
		Msg("payment requested")

	// The transaction stays pending until the external signer reports a
	// real hash; the orchestrator never contacts the signer itself.
	s.notifyTransaction(sessionID, tx)
	s.notifySession(sessionSnapshot)
}

// UpdateTransactionHash records the real hash the external signer obtained
// for a pending transaction. This is the only place the session's
// authoritative totals move: a requested payment the signer never executes
// is never credited. A missing session or transaction, or a transaction no
// longer pending, is a silent no-op.
func (s *StreamingService) UpdateTransactionHash(sessionID, transactionID, txHash string) {
	s.mu.Lock()
	st, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return
	}

	idx := findTransaction(st.transactions, transactionID)
	if idx < 0 || st.transactions[idx].Status != model.TransactionStatusPending {
		// Failed and confirmed are terminal; a repeated report must not
		// credit the payment twice.
		s.mu.Unlock()
		return
	}

	tx := &st.transactions[idx]
	tx.Hash = txHash
	tx.Status = model.TransactionStatusMempool
	tx.ExplorerURL = fmt.Sprintf("%s/txs/%s", config.ExplorerBaseURL, txHash)

	st.session.TotalPaid += tx.Amount
	st.session.TotalTransactions++

	txSnapshot := *tx
	sessionSnapshot := st.session
	s.mu.Unlock()

	log.Info().
		Str("sessionId", sessionID).
		Str("txHash", txHash).
		Float64("totalPaid", sessionSnapshot.TotalPaid).
		Msg("transaction hash received")

	s.notifyTransaction(sessionID, txSnapshot)
	s.notifySession(sessionSnapshot)

	// Placeholder for confirmation polling against the gateway: the
	// transaction confirms after a simulated network delay.
	time.AfterFunc(s.confirmationDelay(), func() {
		s.confirmTransaction(sessionID, transactionID)
	})
}

// confirmTransaction fires after the simulated confirmation delay. The
// session or transaction may be gone by then (shutdown), which makes this a
// harmless no-op.
func (s *StreamingService) confirmTransaction(sessionID, transactionID string) {
	s.mu.Lock()
	st, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return
	}

	idx := findTransaction(st.transactions, transactionID)
	if idx < 0 || st.transactions[idx].Status != model.TransactionStatusMempool {
		s.mu.Unlock()
		return
	}

	now := time.Now()
	st.transactions[idx].Status = model.TransactionStatusConfirmed
	st.transactions[idx].ConfirmedAt = &now
	txSnapshot := st.transactions[idx]
	s.mu.Unlock()

	s.notifyTransaction(sessionID, txSnapshot)
}

// MarkTransactionFailed records a signer-reported failure. Failed requests
// are abandoned: the counter is not rolled back and nothing retries. A
// missing session or transaction, or a transaction already confirmed, is a
// silent no-op.
func (s *StreamingService) MarkTransactionFailed(sessionID, transactionID, reason string) {
	s.mu.Lock()
	st, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return
	}

	idx := findTransaction(st.transactions, transactionID)
	if idx < 0 || st.transactions[idx].Status == model.TransactionStatusConfirmed ||
		st.transactions[idx].Status == model.TransactionStatusFailed {
		s.mu.Unlock()
		return
	}

	st.transactions[idx].Status = model.TransactionStatusFailed
	txSnapshot := st.transactions[idx]
	s.mu.Unlock()

	log.Warn().
		Str("sessionId", sessionID).
		Str("transactionId", transactionID).
		Str("reason", reason).
		Msg("transaction failed")

	s.notifyTransaction(sessionID, txSnapshot)
}

// PauseSession halts an active session's payment cycle. Pausing a session
// that is not active returns it unchanged.
func (s *StreamingService) PauseSession(sessionID string) (model.Session, error) {
	s.mu.Lock()
	st, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return model.Session{}, apperrors.NotFound("Session")
	}

	if st.session.Status != model.SessionStatusActive {
		snapshot := st.session
		s.mu.Unlock()
		return snapshot, nil
	}

	now := time.Now()
	st.session.Status = model.SessionStatusPaused
	st.session.PausedAt = &now
	s.stopPaymentCycleLocked(st)
	snapshot := st.session
	s.mu.Unlock()

	log.Info().Str("sessionId", sessionID).Msg("session paused")

	s.notifySession(snapshot)
	return snapshot, nil
}

// ResumeSession restarts a paused session's payment cycle, firing an
// immediate payment attempt. Resuming a session that is not paused returns
// it unchanged.
func (s *StreamingService) ResumeSession(sessionID string) (model.Session, error) {
	s.mu.Lock()
	st, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return model.Session{}, apperrors.NotFound("Session")
	}

	if st.session.Status != model.SessionStatusPaused {
		snapshot := st.session
		s.mu.Unlock()
		return snapshot, nil
	}

	st.session.Status = model.SessionStatusActive
	st.session.PausedAt = nil
	s.startPaymentCycleLocked(st)
	snapshot := st.session
	s.mu.Unlock()

	log.Info().Str("sessionId", sessionID).Msg("session resumed")

	s.notifySession(snapshot)
	return snapshot, nil
}

// EndSession stops a session for good. For pay-at-end sessions this is the
// moment the single settlement transaction for the whole watch time is
// created. Ending an already-ended session returns it unchanged rather than
// re-running the settlement.
func (s *StreamingService) EndSession(sessionID string) (model.Session, error) {
	s.mu.Lock()
	st, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return model.Session{}, apperrors.NotFound("Session")
	}

	if st.session.Status.Terminal() {
		snapshot := st.session
		s.mu.Unlock()
		return snapshot, nil
	}

	payAtEndTx := s.endLocked(st)
	snapshot := st.session
	s.mu.Unlock()

	log.Info().
		Str("sessionId", sessionID).
		Float64("totalPaid", snapshot.TotalPaid).
		Int("totalTransactions", snapshot.TotalTransactions).
		Msg("session ended")

	if payAtEndTx != nil {
		s.notifyTransaction(sessionID, *payAtEndTx)
	}
	s.notifySession(snapshot)

	return snapshot, nil
}

// endLocked performs the end-of-session mutations: stops the payment cycle,
// marks the session ended and, in pay-at-end mode, creates the single
// settlement transaction covering the elapsed watch time. Callers must hold
// s.mu and notify observers with the returned snapshots after unlocking.
func (s *StreamingService) endLocked(st *sessionState) *model.Transaction {
	s.stopPaymentCycleLocked(st)

	now := time.Now()
	st.session.Status = model.SessionStatusEnded
	st.session.EndedAt = &now

	if !st.session.PayAtEnd {
		return nil
	}

	watchSeconds := now.Sub(st.session.StartedAt).Seconds()
	totalAmount := st.session.RatePerSecond * watchSeconds

	tx := model.Transaction{
		ID:        uuid.NewString(),
		SessionID: st.session.ID,
		From:      st.session.ViewerAddress,
		To:        st.session.MerchantAddress,
		Amount:    totalAmount,
		Fee:       config.TransactionFee,
		Status:    model.TransactionStatusPending,
		CreatedAt: now,
	}
	st.transactions = append(st.transactions, tx)

	// TotalTransactions stays at zero until the signer reports a hash for
	// this transaction; only TotalPaid is set eagerly.
	st.session.TotalPaid = totalAmount

	log.Info().
		Str("sessionId", st.session.ID).
		Float64("watchSeconds", watchSeconds).
		Float64("totalAmount", totalAmount).
		Msg("pay-at-end settlement created")

	return &tx
}

// GetSession returns a snapshot of a session.
func (s *StreamingService) GetSession(sessionID string) (model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.sessions[sessionID]
	if !ok {
		return model.Session{}, apperrors.NotFound("Session")
	}
	return st.session, nil
}

// GetSessionTransactions returns a session's transactions in creation order.
func (s *StreamingService) GetSessionTransactions(sessionID string) ([]model.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.sessions[sessionID]
	if !ok {
		return nil, apperrors.NotFound("Session")
	}

	transactions := make([]model.Transaction, len(st.transactions))
	copy(transactions, st.transactions)
	return transactions, nil
}

// GetActiveSessions returns snapshots of every currently active session.
func (s *StreamingService) GetActiveSessions() []model.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessions := make([]model.Session, 0)
	for _, st := range s.sessions {
		if st.session.Status == model.SessionStatusActive {
			sessions = append(sessions, st.session)
		}
	}
	return sessions
}

// GetMerchantStats aggregates earnings over all sessions ever created;
// active-only figures cover just the live streams.
func (s *StreamingService) GetMerchantStats() model.MerchantStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stats model.MerchantStats
	for _, st := range s.sessions {
		stats.TotalEarned += st.session.TotalPaid
		stats.TotalTransactions += st.session.TotalTransactions

		if st.session.Status == model.SessionStatusActive {
			stats.ActiveStreams++
			stats.RevenuePerSecond += st.session.RatePerSecond
		}
	}
	return stats
}

// Shutdown cancels every payment cycle and discards all in-memory state.
// Confirmation timers still in flight fire against the empty map and do
// nothing.
func (s *StreamingService) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, st := range s.sessions {
		s.stopPaymentCycleLocked(st)
	}
	s.sessions = make(map[string]*sessionState)

	log.Info().Msg("streaming service shut down")
}

func findTransaction(transactions []model.Transaction, id string) int {
	for i := range transactions {
		if transactions[i].ID == id {
			return i
		}
	}
	return -1
}
