package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/kas-flash/stream-server-go/internal/config"
	"github.com/kas-flash/stream-server-go/internal/handler"
	"github.com/kas-flash/stream-server-go/internal/httputil"
	"github.com/kas-flash/stream-server-go/internal/jobs"
	"github.com/kas-flash/stream-server-go/internal/kaspa"
	"github.com/kas-flash/stream-server-go/internal/middleware"
	"github.com/kas-flash/stream-server-go/internal/model"
	"github.com/kas-flash/stream-server-go/internal/service"
	"github.com/kas-flash/stream-server-go/internal/ws"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	kaspaClient := kaspa.NewRPCClient(cfg.KaspaRPCURL, cfg.KaspaNetwork)
	streamingService := service.NewStreamingService(kaspaClient)
	hub := ws.NewHub()

	// Every session and transaction state change fans out to connected
	// clients through the hub.
	streamingService.OnTransaction(func(sessionID string, tx model.Transaction) {
		hub.BroadcastTransaction(tx)
	})
	streamingService.OnSessionUpdate(hub.BroadcastSession)

	origins := strings.Split(cfg.AllowedOrigins, ",")
	wsHandler := ws.NewHandler(hub, origins)

	sessionHandler := handler.NewSessionHandler(streamingService)
	transactionHandler := handler.NewTransactionHandler(streamingService)
	merchantHandler := handler.NewMerchantHandler(streamingService)

	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(origins))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"status":    "ok",
			"timestamp": time.Now(),
			"clients":   hub.ClientCount(),
		})
	})

	r.Get("/ws", wsHandler.ServeHTTP)

	r.Route("/api", func(r chi.Router) {
		r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
		r.Use(bodyLimitMiddleware.Handler)
		r.Mount("/sessions", sessionHandler.Routes())
		r.Mount("/transactions", transactionHandler.Routes())
		r.Mount("/merchant", merchantHandler.Routes())
	})

	balanceJob := jobs.NewBalanceJob(streamingService, kaspaClient, hub, config.BalanceRefreshInterval)
	balanceJob.Start()
	defer balanceJob.Stop()

	server := &http.Server{
		Addr:        cfg.Addr(),
		Handler:     r,
		ReadTimeout: config.ServerReadTimeout,
		// WriteTimeout stays zero: websocket connections are long-lived.
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().
			Str("addr", cfg.Addr()).
			Str("network", cfg.KaspaNetwork).
			Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	streamingService.Shutdown()
	hub.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
