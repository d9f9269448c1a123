// The bridge daemon runs the external-signer round trip without a browser:
// it watches the server's real-time channel for payment requests addressed
// to its wallet and settles them through the gateway-backed signer.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/kas-flash/stream-server-go/internal/bridge"
	"github.com/kas-flash/stream-server-go/internal/kaspa"
	"github.com/kas-flash/stream-server-go/internal/model"
)

type bridgeConfig struct {
	APIBaseURL    string `env:"API_BASE_URL" envDefault:"http://localhost:3001"`
	WSURL         string `env:"WS_URL" envDefault:"ws://localhost:3001/ws"`
	WalletAddress string `env:"WALLET_ADDRESS,required"`
	WalletRole    string `env:"WALLET_ROLE" envDefault:"viewer"`
	KaspaRPCURL   string `env:"KASPA_RPC_URL" envDefault:"https://api.kaspa.org"`
	KaspaNetwork  string `env:"KASPA_NETWORK" envDefault:"testnet"`
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	godotenv.Load()

	var cfg bridgeConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatal().Err(err).Msg("failed to parse config")
	}

	role := model.WalletRole(cfg.WalletRole)
	if role != model.WalletRoleViewer && role != model.WalletRoleMerchant {
		log.Fatal().Str("role", cfg.WalletRole).Msg(fmt.Sprintf("WALLET_ROLE must be %q or %q", model.WalletRoleViewer, model.WalletRoleMerchant))
	}

	kaspaClient := kaspa.NewRPCClient(cfg.KaspaRPCURL, cfg.KaspaNetwork)
	signer := bridge.NewGatewaySigner(kaspaClient)
	b := bridge.New(cfg.APIBaseURL, cfg.WSURL, cfg.WalletAddress, role, signer)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info().
		Str("wallet", cfg.WalletAddress).
		Str("role", cfg.WalletRole).
		Msg("starting signer bridge")

	if err := b.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("bridge stopped")
	}

	log.Info().Msg("bridge stopped")
}
