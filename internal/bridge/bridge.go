// Package bridge connects an external wallet to the streaming server: it
// watches the real-time channel for payment requests, asks the wallet to
// send the funds, and reports the outcome back over the HTTP API.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog/log"

	"github.com/kas-flash/stream-server-go/internal/config"
	"github.com/kas-flash/stream-server-go/internal/kaspa"
	"github.com/kas-flash/stream-server-go/internal/model"
	"github.com/kas-flash/stream-server-go/internal/ws"
)

// Bridge is the only component that talks to the external signer. It holds
// a single wallet identity; payment requests addressed to other wallets, or
// seen while acting as a merchant, are ignored.
type Bridge struct {
	apiBaseURL string
	wsURL      string
	address    string
	role       model.WalletRole
	signer     Signer
	httpClient *http.Client
}

func New(apiBaseURL, wsURL, address string, role model.WalletRole, signer Signer) *Bridge {
	return &Bridge{
		apiBaseURL: apiBaseURL,
		wsURL:      wsURL,
		address:    address,
		role:       role,
		signer:     signer,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Run connects to the server's real-time channel and processes payment
// requests until the context is cancelled, reconnecting after transient
// failures.
func (b *Bridge) Run(ctx context.Context) error {
	for {
		if err := b.connectAndListen(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn().Err(err).Dur("retryIn", config.WSReconnectDelay).Msg("ws connection lost")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(config.WSReconnectDelay):
		}
	}
}

func (b *Bridge) connectAndListen(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, b.wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", b.wsURL, err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	log.Info().Str("wsUrl", b.wsURL).Str("role", string(b.role)).Msg("bridge connected")

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		b.handleMessage(ctx, data)
	}
}

type wireEvent struct {
	Type    ws.EventType    `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type transactionPayload struct {
	Transaction model.Transaction `json:"transaction"`
}

func (b *Bridge) handleMessage(ctx context.Context, data []byte) {
	var event wireEvent
	if err := json.Unmarshal(data, &event); err != nil {
		log.Debug().Err(err).Msg("ignoring malformed event")
		return
	}

	if event.Type != ws.EventTransactionBroadcast {
		return
	}

	var payload transactionPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		log.Debug().Err(err).Msg("ignoring malformed transaction payload")
		return
	}

	tx := payload.Transaction
	if tx.Status != model.TransactionStatusPending {
		return
	}

	// A merchant must never pay itself: both roles see the same event
	// stream, so only a viewer wallet matching the payer address acts.
	if b.role != model.WalletRoleViewer || tx.From != b.address {
		return
	}

	go b.executePayment(ctx, tx)
}

func (b *Bridge) executePayment(ctx context.Context, tx model.Transaction) {
	amountSompi := kaspa.KASToSompi(tx.Amount)

	log.Info().
		Str("transactionId", tx.ID).
		Float64("amountKas", tx.Amount).
		Int64("amountSompi", amountSompi).
		Msg("executing payment")

	txHash, err := b.signer.SendKaspa(ctx, tx.To, amountSompi)
	if err != nil {
		log.Error().Err(err).Str("transactionId", tx.ID).Msg("payment failed")
		if reportErr := b.reportFailure(ctx, tx, err.Error()); reportErr != nil {
			log.Error().Err(reportErr).Msg("failed to report payment failure")
		}
		return
	}

	if err := b.reportHash(ctx, tx, txHash); err != nil {
		log.Error().Err(err).Str("txHash", txHash).Msg("failed to report transaction hash")
	}
}

func (b *Bridge) reportHash(ctx context.Context, tx model.Transaction, txHash string) error {
	return b.post(ctx, fmt.Sprintf("/api/transactions/%s/hash", tx.ID), map[string]string{
		"sessionId": tx.SessionID,
		"txHash":    txHash,
	})
}

func (b *Bridge) reportFailure(ctx context.Context, tx model.Transaction, reason string) error {
	return b.post(ctx, fmt.Sprintf("/api/transactions/%s/failed", tx.ID), map[string]string{
		"sessionId": tx.SessionID,
		"error":     reason,
	})
}

func (b *Bridge) post(ctx context.Context, path string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.apiBaseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned status %d", path, resp.StatusCode)
	}
	return nil
}
