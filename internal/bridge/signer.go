package bridge

import (
	"context"
	"fmt"

	"github.com/kas-flash/stream-server-go/internal/kaspa"
)

// Signer is the external wallet: given a destination address and an amount
// in sompi, it authorizes and transmits the funds, returning the resulting
// transaction hash.
type Signer interface {
	SendKaspa(ctx context.Context, toAddress string, amountSompi int64) (string, error)
}

// GatewaySigner is a headless stand-in for a wallet extension: it
// "signs" by handing the payment straight to the gateway's broadcast
// endpoint. Good enough for running the demo end to end without a browser.
type GatewaySigner struct {
	kaspa kaspa.Client
}

func NewGatewaySigner(kaspaClient kaspa.Client) *GatewaySigner {
	return &GatewaySigner{kaspa: kaspaClient}
}

func (s *GatewaySigner) SendKaspa(ctx context.Context, toAddress string, amountSompi int64) (string, error) {
	signedTx := fmt.Sprintf("unsigned:%s:%d", toAddress, amountSompi)
	return s.kaspa.SubmitTransaction(ctx, signedTx)
}
