package metrics

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/pkg/application"
)

const DefaultPath = "/debug/prometheus"

// PrometheusController exposes the transfer metrics (rows, runs, store call
// latency) registered through promauto.
type PrometheusController struct {
	path     string
	gatherer prometheus.Gatherer
}

func NewPrometheusController(path string) application.Controller {
	return NewPrometheusControllerFor(path, prometheus.DefaultGatherer)
}

// NewPrometheusControllerFor serves g instead of the default registry.
func NewPrometheusControllerFor(path string, g prometheus.Gatherer) application.Controller {
	if path == "" {
		path = DefaultPath
	}
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return &PrometheusController{path: path, gatherer: g}
}

func (c *PrometheusController) Key() string {
	return c.path
}

func (c *PrometheusController) Register(r *mux.Router) {
	h := promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
	r.Handle(c.path, h).Methods(http.MethodGet)
}
