package server

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/xueqianLu/ticketdesk/internal/handler"
	"github.com/xueqianLu/ticketdesk/internal/intent"
	"github.com/xueqianLu/ticketdesk/internal/middleware"
)

// NewServer creates and configures an HTTP server.
// Submissions wait for signing and broadcast, so writes get a longer timeout than reads.
func NewServer(handler http.Handler, address, port string) *http.Server {
	return &http.Server{
		Addr:         address + ":" + port,
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

// NewRouter registers the API routes. Health and metrics are served without authentication.
func NewRouter(desk handler.Desk, auth *middleware.AuthMiddleware, gatherer prometheus.Gatherer) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/health", handler.NewHealthHandler(desk))
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	mux.Handle("/wallet", auth.Wrap(handler.NewWalletHandler(desk)))
	mux.Handle("/wallet/unlock", auth.Wrap(handler.NewUnlockHandler(desk)))
	mux.Handle("/wallet/inspect", auth.Wrap(handler.NewInspectHandler()))
	mux.Handle("/balances", auth.Wrap(handler.NewBalancesHandler(desk)))
	mux.Handle("/quote", auth.Wrap(handler.NewQuoteHandler(desk)))
	mux.Handle("/tickets/buy", auth.Wrap(handler.NewTicketsHandler(desk, intent.Buy)))
	mux.Handle("/tickets/redeem", auth.Wrap(handler.NewTicketsHandler(desk, intent.Redeem)))
	mux.Handle("/attempt", auth.Wrap(handler.NewAttemptHandler(desk)))
	mux.Handle("/events", auth.Wrap(handler.NewEventsHandler(desk)))
	return mux
}
