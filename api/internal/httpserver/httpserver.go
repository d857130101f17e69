package httpserver

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Start runs the HTTP server until it fails. Blocking by design, callers
// decide whether to wrap it in a goroutine.
func Start(addr string, mux *http.ServeMux, log *zap.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Info("listening", zap.String("addr", addr))
	return srv.ListenAndServe()
}
