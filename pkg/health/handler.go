package health

import (
	"net/http"

	"github.com/heptiolabs/healthcheck"

	"github.com/srediag/shm-arbiter/api"
)

// NewHandler serves /live and /ready for h.
func NewHandler(h api.Health) healthcheck.Handler {
	handler := healthcheck.NewHandler()
	handler.AddLivenessCheck("arbiter-loop", h.Live)
	handler.AddReadinessCheck("arbiter-listener", h.Ready)
	return handler
}

// Mount registers the health endpoints on mux.
func Mount(mux *http.ServeMux, h api.Health) {
	handler := NewHandler(h)
	mux.HandleFunc("/live", handler.LiveEndpoint)
	mux.HandleFunc("/ready", handler.ReadyEndpoint)
}
