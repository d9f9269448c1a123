// Package jobs holds background tasks that run alongside the HTTP server.
package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/kas-flash/stream-server-go/internal/kaspa"
	"github.com/kas-flash/stream-server-go/internal/service"
	"github.com/kas-flash/stream-server-go/internal/ws"
)

// BalanceJob periodically looks up the viewer balance of every active
// session and pushes balance_updated events to connected clients, so the UI
// can chart the balance without polling the gateway itself.
type BalanceJob struct {
	streamingService *service.StreamingService
	kaspa            kaspa.Client
	hub              *ws.Hub
	interval         time.Duration
	done             chan struct{}
}

func NewBalanceJob(
	streamingService *service.StreamingService,
	kaspaClient kaspa.Client,
	hub *ws.Hub,
	interval time.Duration,
) *BalanceJob {
	return &BalanceJob{
		streamingService: streamingService,
		kaspa:            kaspaClient,
		hub:              hub,
		interval:         interval,
		done:             make(chan struct{}),
	}
}

func (j *BalanceJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("balance job started")
}

func (j *BalanceJob) Stop() {
	close(j.done)
	log.Info().Msg("balance job stopped")
}

func (j *BalanceJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.refresh()
		}
	}
}

func (j *BalanceJob) refresh() {
	if j.hub.ClientCount() == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	seen := make(map[string]bool)
	for _, session := range j.streamingService.GetActiveSessions() {
		address := session.ViewerAddress
		if seen[address] {
			continue
		}
		seen[address] = true

		balance, err := j.kaspa.GetBalance(ctx, address)
		if err != nil {
			log.Warn().Err(err).Str("address", address).Msg("failed to refresh balance")
			continue
		}

		j.hub.BroadcastBalance(address, balance)
	}
}
