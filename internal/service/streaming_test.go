package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/kas-flash/stream-server-go/internal/errors"
	"github.com/kas-flash/stream-server-go/internal/kaspa"
	"github.com/kas-flash/stream-server-go/internal/model"
)

// fakeGateway is a controllable gateway for orchestrator tests.
type fakeGateway struct {
	mu      sync.Mutex
	balance float64
	err     error
}

func newFakeGateway(balance float64) *fakeGateway {
	return &fakeGateway{balance: balance}
}

func (f *fakeGateway) setBalance(balance float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balance = balance
}

func (f *fakeGateway) GetBalance(ctx context.Context, address string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balance, f.err
}

func (f *fakeGateway) GetUTXOs(ctx context.Context, address string) ([]kaspa.UTXO, error) {
	return nil, nil
}

func (f *fakeGateway) SubmitTransaction(ctx context.Context, signedTx string) (string, error) {
	return "fake_tx_hash", nil
}

func (f *fakeGateway) InMempool(ctx context.Context, txHash string) (bool, error) {
	return true, nil
}

func (f *fakeGateway) IsConfirmed(ctx context.Context, txHash string) (bool, error) {
	return false, nil
}

func (f *fakeGateway) GetTransaction(ctx context.Context, txHash string) (*kaspa.TransactionInfo, error) {
	return &kaspa.TransactionInfo{Hash: txHash}, nil
}

// recorder collects observer callbacks so tests can assert on the event
// stream without touching service internals.
type recorder struct {
	mu       sync.Mutex
	txs      []model.Transaction
	sessions []model.Session
}

func (r *recorder) attach(s *StreamingService) {
	s.OnTransaction(func(sessionID string, tx model.Transaction) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.txs = append(r.txs, tx)
	})
	s.OnSessionUpdate(func(session model.Session) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.sessions = append(r.sessions, session)
	})
}

func (r *recorder) transactionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.txs)
}

func newTestService(t *testing.T, gateway kaspa.Client) *StreamingService {
	t.Helper()
	s := NewStreamingService(gateway)
	s.confirmationDelay = func() time.Duration { return 5 * time.Millisecond }
	t.Cleanup(s.Shutdown)
	return s
}

func createParams() model.CreateSessionParams {
	return model.CreateSessionParams{
		ViewerAddress:   "kaspatest:viewer",
		MerchantAddress: "kaspatest:merchant",
		RatePerSecond:   0.01,
	}
}

func TestCreateSession_Validation(t *testing.T) {
	s := newTestService(t, newFakeGateway(1.5))

	t.Run("missing viewer address", func(t *testing.T) {
		params := createParams()
		params.ViewerAddress = ""
		_, err := s.CreateSession(params)
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeMissingRequired, apperrors.GetCode(err))
	})

	t.Run("missing merchant address", func(t *testing.T) {
		params := createParams()
		params.MerchantAddress = ""
		_, err := s.CreateSession(params)
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeMissingRequired, apperrors.GetCode(err))
	})

	t.Run("non-positive rate", func(t *testing.T) {
		params := createParams()
		params.RatePerSecond = 0
		_, err := s.CreateSession(params)
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.GetCode(err))
	})
}

func TestCreateSession_Defaults(t *testing.T) {
	s := newTestService(t, newFakeGateway(1.5))

	params := createParams()
	params.PayAtEnd = true // no timer so defaults are easy to inspect
	session, err := s.CreateSession(params)
	require.NoError(t, err)

	assert.NotEmpty(t, session.ID)
	assert.Equal(t, model.SessionStatusActive, session.Status)
	assert.Equal(t, 30000, session.PaymentIntervalMs)
	assert.Zero(t, session.TotalPaid)
	assert.Zero(t, session.TotalTransactions)
	assert.Zero(t, session.CurrentTransaction)
	assert.False(t, session.StartedAt.IsZero())
}

func TestPaymentCycle_CreatesPendingTransactions(t *testing.T) {
	s := newTestService(t, newFakeGateway(1.5))
	rec := &recorder{}
	rec.attach(s)

	params := createParams()
	params.PaymentIntervalMs = 40
	session, err := s.CreateSession(params)
	require.NoError(t, err)

	// First payment attempt fires immediately, before the first tick.
	require.Eventually(t, func() bool {
		return rec.transactionCount() >= 1
	}, time.Second, 5*time.Millisecond)

	txs, err := s.GetSessionTransactions(session.ID)
	require.NoError(t, err)
	require.NotEmpty(t, txs)

	tx := txs[0]
	assert.Equal(t, session.ID, tx.SessionID)
	assert.Equal(t, session.ViewerAddress, tx.From)
	assert.Equal(t, session.MerchantAddress, tx.To)
	assert.Equal(t, model.TransactionStatusPending, tx.Status)
	assert.InDelta(t, 0.01*0.040, tx.Amount, 1e-9)
	assert.Equal(t, 0.0001, tx.Fee)

	// Requested payments move the ordinal but never the totals.
	got, err := s.GetSession(session.ID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, got.CurrentTransaction, 1)
	assert.Zero(t, got.TotalPaid)
	assert.Zero(t, got.TotalTransactions)
}

func TestPaymentCycle_MaxTransactionsCompletesSession(t *testing.T) {
	s := newTestService(t, newFakeGateway(1.5))

	params := createParams()
	params.PaymentIntervalMs = 30
	params.MaxTransactions = 2
	session, err := s.CreateSession(params)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := s.GetSession(session.ID)
		return err == nil && got.Status == model.SessionStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	txs, err := s.GetSessionTransactions(session.ID)
	require.NoError(t, err)
	assert.Len(t, txs, 2)

	// No third transaction appears after the cap is hit.
	time.Sleep(150 * time.Millisecond)
	txs, err = s.GetSessionTransactions(session.ID)
	require.NoError(t, err)
	assert.Len(t, txs, 2)

	got, err := s.GetSession(session.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusCompleted, got.Status)
	assert.NotNil(t, got.EndedAt)
}

func TestPaymentCycle_InsufficientBalanceEndsSession(t *testing.T) {
	s := newTestService(t, newFakeGateway(0.1))

	params := createParams()
	params.PaymentIntervalMs = 30
	session, err := s.CreateSession(params)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := s.GetSession(session.ID)
		return err == nil && got.Status == model.SessionStatusEnded
	}, 2*time.Second, 10*time.Millisecond)

	// Ran out of funds is "ended", never "completed".
	got, err := s.GetSession(session.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusEnded, got.Status)

	txs, err := s.GetSessionTransactions(session.ID)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestUpdateTransactionHash(t *testing.T) {
	s := newTestService(t, newFakeGateway(1.5))
	rec := &recorder{}
	rec.attach(s)

	params := createParams()
	params.PaymentIntervalMs = 60_000 // only the immediate payment fires
	session, err := s.CreateSession(params)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return rec.transactionCount() >= 1
	}, time.Second, 5*time.Millisecond)

	txs, err := s.GetSessionTransactions(session.ID)
	require.NoError(t, err)
	tx := txs[0]

	s.UpdateTransactionHash(session.ID, tx.ID, "real_hash_123")

	got, err := s.GetSession(session.ID)
	require.NoError(t, err)
	assert.InDelta(t, tx.Amount, got.TotalPaid, 1e-9)
	assert.Equal(t, 1, got.TotalTransactions)

	txs, err = s.GetSessionTransactions(session.ID)
	require.NoError(t, err)
	assert.Equal(t, "real_hash_123", txs[0].Hash)
	assert.Equal(t, "https://explorer.kaspa.org/txs/real_hash_123", txs[0].ExplorerURL)

	// Simulated network confirmation fires shortly after.
	require.Eventually(t, func() bool {
		txs, err := s.GetSessionTransactions(session.ID)
		return err == nil && txs[0].Status == model.TransactionStatusConfirmed
	}, time.Second, 5*time.Millisecond)

	txs, err = s.GetSessionTransactions(session.ID)
	require.NoError(t, err)
	assert.NotNil(t, txs[0].ConfirmedAt)
}

func TestUpdateTransactionHash_UnknownIsNoop(t *testing.T) {
	s := newTestService(t, newFakeGateway(1.5))

	assert.NotPanics(t, func() {
		s.UpdateTransactionHash("no-such-session", "no-such-tx", "hash")
	})

	params := createParams()
	params.PayAtEnd = true
	session, err := s.CreateSession(params)
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		s.UpdateTransactionHash(session.ID, "no-such-tx", "hash")
	})

	got, err := s.GetSession(session.ID)
	require.NoError(t, err)
	assert.Zero(t, got.TotalTransactions)
}

func TestUpdateTransactionHash_OnlyPendingAccepted(t *testing.T) {
	s := newTestService(t, newFakeGateway(1.5))
	rec := &recorder{}
	rec.attach(s)

	params := createParams()
	params.PaymentIntervalMs = 60_000
	session, err := s.CreateSession(params)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return rec.transactionCount() >= 1
	}, time.Second, 5*time.Millisecond)

	txs, err := s.GetSessionTransactions(session.ID)
	require.NoError(t, err)
	tx := txs[0]

	s.UpdateTransactionHash(session.ID, tx.ID, "first_hash")

	// A repeated report for the same transaction is ignored: the hash
	// stays and the totals are credited exactly once.
	s.UpdateTransactionHash(session.ID, tx.ID, "second_hash")

	txs, err = s.GetSessionTransactions(session.ID)
	require.NoError(t, err)
	assert.Equal(t, "first_hash", txs[0].Hash)

	got, err := s.GetSession(session.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.TotalTransactions)
	assert.InDelta(t, tx.Amount, got.TotalPaid, 1e-9)

	// The same holds once the transaction has confirmed.
	require.Eventually(t, func() bool {
		txs, err := s.GetSessionTransactions(session.ID)
		return err == nil && txs[0].Status == model.TransactionStatusConfirmed
	}, time.Second, 5*time.Millisecond)

	s.UpdateTransactionHash(session.ID, tx.ID, "third_hash")

	txs, err = s.GetSessionTransactions(session.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TransactionStatusConfirmed, txs[0].Status)
	assert.Equal(t, "first_hash", txs[0].Hash)

	got, err = s.GetSession(session.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.TotalTransactions)
}

func TestMarkTransactionFailed(t *testing.T) {
	s := newTestService(t, newFakeGateway(1.5))
	rec := &recorder{}
	rec.attach(s)

	params := createParams()
	params.PaymentIntervalMs = 60_000
	session, err := s.CreateSession(params)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return rec.transactionCount() >= 1
	}, time.Second, 5*time.Millisecond)

	txs, err := s.GetSessionTransactions(session.ID)
	require.NoError(t, err)
	tx := txs[0]

	s.MarkTransactionFailed(session.ID, tx.ID, "user rejected")

	txs, err = s.GetSessionTransactions(session.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TransactionStatusFailed, txs[0].Status)

	// The session keeps running: a single failed payment does not end it.
	got, err := s.GetSession(session.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusActive, got.Status)

	// Failed is terminal; a late hash must not resurrect the transaction.
	s.UpdateTransactionHash(session.ID, tx.ID, "late_hash")
	txs, err = s.GetSessionTransactions(session.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TransactionStatusFailed, txs[0].Status)
}

func TestPauseAndResume(t *testing.T) {
	s := newTestService(t, newFakeGateway(1.5))
	rec := &recorder{}
	rec.attach(s)

	params := createParams()
	params.PaymentIntervalMs = 60_000 // only immediate fires per cycle start
	session, err := s.CreateSession(params)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return rec.transactionCount() == 1
	}, time.Second, 5*time.Millisecond)

	paused, err := s.PauseSession(session.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusPaused, paused.Status)
	require.NotNil(t, paused.PausedAt)

	// Paused sessions produce no further automatic transactions.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, rec.transactionCount())

	t.Run("pause is idempotent", func(t *testing.T) {
		again, err := s.PauseSession(session.ID)
		require.NoError(t, err)
		assert.Equal(t, model.SessionStatusPaused, again.Status)
		assert.Equal(t, *paused.PausedAt, *again.PausedAt)
	})

	resumed, err := s.ResumeSession(session.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusActive, resumed.Status)
	assert.Nil(t, resumed.PausedAt)

	// Resuming fires one immediate payment attempt.
	require.Eventually(t, func() bool {
		return rec.transactionCount() == 2
	}, time.Second, 5*time.Millisecond)

	t.Run("resume on active session is a no-op", func(t *testing.T) {
		again, err := s.ResumeSession(session.ID)
		require.NoError(t, err)
		assert.Equal(t, model.SessionStatusActive, again.Status)

		time.Sleep(50 * time.Millisecond)
		assert.Equal(t, 2, rec.transactionCount())
	})
}

func TestPauseSession_NotFound(t *testing.T) {
	s := newTestService(t, newFakeGateway(1.5))

	_, err := s.PauseSession("missing")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.GetCode(err))

	_, err = s.ResumeSession("missing")
	assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.GetCode(err))

	_, err = s.EndSession("missing")
	assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.GetCode(err))
}

func TestEndSession_PayAtEnd(t *testing.T) {
	s := newTestService(t, newFakeGateway(1.5))
	rec := &recorder{}
	rec.attach(s)

	params := createParams()
	params.RatePerSecond = 0.02
	params.PayAtEnd = true
	session, err := s.CreateSession(params)
	require.NoError(t, err)

	// Pay-at-end sessions have no recurring cycle.
	time.Sleep(80 * time.Millisecond)
	assert.Zero(t, rec.transactionCount())

	elapsed := time.Since(session.StartedAt)
	ended, err := s.EndSession(session.ID)
	require.NoError(t, err)

	assert.Equal(t, model.SessionStatusEnded, ended.Status)
	require.NotNil(t, ended.EndedAt)

	txs, err := s.GetSessionTransactions(session.ID)
	require.NoError(t, err)
	require.Len(t, txs, 1)

	// One settlement transaction for rate x elapsed seconds, give or take
	// scheduling slop around the measured elapsed time.
	assert.InDelta(t, 0.02*elapsed.Seconds(), txs[0].Amount, 0.02*0.5)
	assert.Equal(t, model.TransactionStatusPending, txs[0].Status)

	// totalPaid is set eagerly; totalTransactions waits for the signer.
	assert.InDelta(t, txs[0].Amount, ended.TotalPaid, 1e-9)
	assert.Zero(t, ended.TotalTransactions)

	t.Run("double end does not duplicate the settlement", func(t *testing.T) {
		again, err := s.EndSession(session.ID)
		require.NoError(t, err)
		assert.Equal(t, model.SessionStatusEnded, again.Status)
		assert.Equal(t, ended.TotalPaid, again.TotalPaid)

		txs, err := s.GetSessionTransactions(session.ID)
		require.NoError(t, err)
		assert.Len(t, txs, 1)
	})
}

func TestGetMerchantStats(t *testing.T) {
	s := newTestService(t, newFakeGateway(1.5))
	rec := &recorder{}
	rec.attach(s)

	long := createParams()
	long.PaymentIntervalMs = 60_000
	active, err := s.CreateSession(long)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return rec.transactionCount() >= 1
	}, time.Second, 5*time.Millisecond)

	txs, err := s.GetSessionTransactions(active.ID)
	require.NoError(t, err)
	s.UpdateTransactionHash(active.ID, txs[0].ID, "hash-1")

	payAtEnd := createParams()
	payAtEnd.RatePerSecond = 0.02
	payAtEnd.PayAtEnd = true
	other, err := s.CreateSession(payAtEnd)
	require.NoError(t, err)
	endedOther, err := s.EndSession(other.ID)
	require.NoError(t, err)

	stats := s.GetMerchantStats()

	// Earnings aggregate over every session ever created, active or not.
	assert.InDelta(t, txs[0].Amount+endedOther.TotalPaid, stats.TotalEarned, 1e-9)
	assert.Equal(t, 1, stats.TotalTransactions)
	assert.Equal(t, 1, stats.ActiveStreams)
	assert.InDelta(t, 0.01, stats.RevenuePerSecond, 1e-9)
}

func TestGetActiveSessions(t *testing.T) {
	s := newTestService(t, newFakeGateway(1.5))

	a := createParams()
	a.PayAtEnd = true
	first, err := s.CreateSession(a)
	require.NoError(t, err)

	b := createParams()
	b.PayAtEnd = true
	second, err := s.CreateSession(b)
	require.NoError(t, err)

	_, err = s.EndSession(second.ID)
	require.NoError(t, err)

	active := s.GetActiveSessions()
	require.Len(t, active, 1)
	assert.Equal(t, first.ID, active[0].ID)
}

func TestShutdown(t *testing.T) {
	s := newTestService(t, newFakeGateway(1.5))

	params := createParams()
	params.PaymentIntervalMs = 30
	session, err := s.CreateSession(params)
	require.NoError(t, err)

	s.Shutdown()

	_, err = s.GetSession(session.ID)
	assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.GetCode(err))

	// A confirmation timer firing after teardown is a harmless no-op.
	assert.NotPanics(t, func() {
		s.confirmTransaction(session.ID, "any")
	})
}
