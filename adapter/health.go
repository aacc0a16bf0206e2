package adapter

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/srediag/shm-arbiter/api"
	"github.com/srediag/shm-arbiter/pkg/health"
)

// NewAdminHandler serves /live and /ready for h and, when g is non-nil,
// /metrics from g.
func NewAdminHandler(h api.Health, g prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	health.Mount(mux, h)
	if g != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	}
	return mux
}
