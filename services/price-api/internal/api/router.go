package api

import (
	"net/http"

	"github.com/sirupsen/logrus"
)

// Routes carries the handlers mounted next to the query endpoints.
type Routes struct {
	Stream    http.Handler
	Liveness  http.Handler
	Readiness http.Handler
	StaticDir string
}

func NewRouter(h *Handler, routes Routes, logger *logrus.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/prices", h.GetPrices)
	mux.HandleFunc("GET /api/nobitex", h.GetNobitex)
	mux.HandleFunc("GET /api/nobitex/trades/{symbol}", h.GetTrades)

	if routes.Stream != nil {
		mux.Handle("GET /api/stream", routes.Stream)
	}
	if routes.Liveness != nil {
		mux.Handle("GET /health", routes.Liveness)
		mux.Handle("GET /healthz", routes.Liveness)
	}
	if routes.Readiness != nil {
		mux.Handle("GET /ready", routes.Readiness)
	}
	if routes.StaticDir != "" {
		mux.Handle("GET /", http.FileServer(http.Dir(routes.StaticDir)))
	}

	var handler http.Handler = mux
	handler = withAccessLog(logger)(handler)
	handler = withRecovery(logger)(handler)
	handler = withRequestID(handler)
	return handler
}
