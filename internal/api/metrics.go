package api

import (
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webchat_http_requests_total",
		Help: "HTTP requests by method and status.",
	}, []string{"method", "status"})

	wsSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "webchat_ws_sessions",
		Help: "Open websocket conversation sessions.",
	})
)

// MetricsHandler returns the scrape endpoint, served on its own listener.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

func countRequests() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()
		requestsTotal.WithLabelValues(c.Method(), strconv.Itoa(c.Response().StatusCode())).Inc()
		return err
	}
}
