package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/collapsinghierarchy/chat-backend/internal/config"
	"github.com/collapsinghierarchy/chat-backend/internal/health"
	"github.com/collapsinghierarchy/chat-backend/internal/hub"
	"github.com/collapsinghierarchy/chat-backend/internal/logs"
	"github.com/collapsinghierarchy/chat-backend/internal/metrics"
	"github.com/collapsinghierarchy/chat-backend/internal/middleware"
	"github.com/collapsinghierarchy/chat-backend/internal/presence"
	"github.com/collapsinghierarchy/chat-backend/internal/relay"
	"github.com/collapsinghierarchy/chat-backend/internal/store"
	"github.com/collapsinghierarchy/chat-backend/internal/ws"
)

func main() {
	// 1) Config + logger (.env is optional)
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}
	logger := logs.New("srv")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2) Message store
	st, err := store.Open(cfg.DBPath, cfg.HistoryLimit)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer st.Close()

	// 3) Presence + relay core over the connection hub
	h := hub.New()
	reg := presence.New()
	core := relay.New(reg, h, st, logger)

	// 4) Mux + core endpoints (probes and metrics stay unthrottled)
	httpRL := middleware.New(cfg.HTTPRatePerMin)
	httpRL.StartJanitor(ctx)
	mux := http.NewServeMux()
	mux.Handle("/healthz", health.Healthz())
	mux.Handle("/readyz", health.Readyz(st))
	mux.Handle(cfg.MetricsRoute, metrics.Handler())
	mux.Handle("/", httpRL.Middleware()(health.Root("chat-backend")))

	// 5) WebSocket endpoint with rate limit + tuning
	wsRL := middleware.New(cfg.WSRatePerMin)
	wsRL.StartJanitor(ctx)
	wsHandler := ws.NewWSHandler(
		h,
		core,
		cfg.CORSOrigins, // exact origins; ignored when DevMode=true
		nil,             // use handler's default slog logger
		cfg.DevMode,     // allow all origins in dev
		ws.WithBuffers(cfg.WSReadBuf, cfg.WSWriteBuf),
		ws.WithLimits(cfg.WSMaxMsg, cfg.Heartbeat),
		ws.WithRateLimiter(wsRL),
	)
	mux.Handle("/ws", wsHandler)

	// 6) HTTP server with timeouts and request logging
	srv := &http.Server{
		Addr:              cfg.BindAddr(),
		Handler:           logs.Middleware(logger)(mux),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("serving HTTP on %s", cfg.BindAddr())
		errCh <- srv.ListenAndServe()
	}()

	// 7) Block until we're told to stop (signal) or the server fails
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("graceful shutdown error: %v", err)
		}
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}
}
