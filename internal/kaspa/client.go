// Package kaspa provides access to the Kaspa network: balance lookup,
// transaction broadcast and mempool/confirmation queries.
package kaspa

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// UTXO is an unspent transaction output attributed to an address.
type UTXO struct {
	TxID         string  `json:"txId"`
	OutputIndex  int     `json:"outputIndex"`
	Amount       float64 `json:"amount"`
	ScriptPubKey string  `json:"scriptPubKey"`
}

// TransactionInfo is the node's view of a broadcast transaction.
type TransactionInfo struct {
	Hash          string `json:"hash"`
	Confirmations int    `json:"confirmations"`
	BlockHash     string `json:"blockHash,omitempty"`
}

// Client is the gateway to the Kaspa network. The orchestrator and the
// signer bridge depend on this interface, never on a concrete node client.
type Client interface {
	GetBalance(ctx context.Context, address string) (float64, error)
	GetUTXOs(ctx context.Context, address string) ([]UTXO, error)
	SubmitTransaction(ctx context.Context, signedTx string) (string, error)
	InMempool(ctx context.Context, txHash string) (bool, error)
	IsConfirmed(ctx context.Context, txHash string) (bool, error)
	GetTransaction(ctx context.Context, txHash string) (*TransactionInfo, error)
}

// RPCClient talks to a Kaspa node's REST API. Every query currently returns
// a synthetic placeholder so the demo runs without a reachable node; the
// http.Client and base URL are in place for a real integration.
type RPCClient struct {
	httpClient *http.Client
	baseURL    string
	network    string
}

func NewRPCClient(baseURL, network string) *RPCClient {
	return &RPCClient{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    baseURL,
		network:    network,
	}
}

// Network returns the configured network identifier (mainnet/testnet).
func (c *RPCClient) Network() string {
	return c.network
}

// GetBalance returns the spendable balance for an address in KAS.
func (c *RPCClient) GetBalance(ctx context.Context, address string) (float64, error) {
	log.Debug().Str("address", address).Msg("fetching balance")

	// Placeholder: a real implementation queries the node's balance endpoint.
	return 1.5, nil
}

// GetUTXOs returns the unspent outputs for an address.
func (c *RPCClient) GetUTXOs(ctx context.Context, address string) ([]UTXO, error) {
	log.Debug().Str("address", address).Msg("fetching utxos")

	// Placeholder: a real implementation queries the node's UTXO index.
	return []UTXO{}, nil
}

// SubmitTransaction broadcasts a signed transaction and returns its hash.
// Called after the wallet has signed, never before.
func (c *RPCClient) SubmitTransaction(ctx context.Context, signedTx string) (string, error) {
	txHash := fmt.Sprintf("mock_tx_%d_%09d", time.Now().UnixMilli(), rand.Intn(1_000_000_000))

	log.Info().Str("txHash", txHash).Msg("transaction broadcast")
	return txHash, nil
}

// InMempool reports whether a transaction is waiting for confirmation.
func (c *RPCClient) InMempool(ctx context.Context, txHash string) (bool, error) {
	log.Debug().Str("txHash", txHash).Msg("checking mempool")
	return true, nil
}

// IsConfirmed reports whether a transaction has been accepted into a block.
func (c *RPCClient) IsConfirmed(ctx context.Context, txHash string) (bool, error) {
	log.Debug().Str("txHash", txHash).Msg("checking confirmation")
	return false, nil
}

// GetTransaction returns the node's view of a transaction.
func (c *RPCClient) GetTransaction(ctx context.Context, txHash string) (*TransactionInfo, error) {
	log.Debug().Str("txHash", txHash).Msg("fetching transaction")

	return &TransactionInfo{
		Hash:          txHash,
		Confirmations: 0,
	}, nil
}
