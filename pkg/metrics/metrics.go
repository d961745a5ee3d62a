// Package metrics holds the Prometheus instruments exported at GET /metrics.
//
//	cinegate_http_requests_total          counter   method, path, status
//	cinegate_http_request_duration_secs   histogram method, path
//	cinegate_gateway_failures_total       counter   source
//	cinegate_records_dropped_total        counter   source
//	cinegate_funnel_clicks_total          counter   funnel, outcome
//	cinegate_ads_enabled                  gauge
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "cinegate_http_requests_total",
	Help: "Total HTTP requests handled.",
}, []string{"method", "path", "status"})

var HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "cinegate_http_request_duration_secs",
	Help:    "HTTP request latency in seconds.",
	Buckets: prometheus.DefBuckets,
}, []string{"method", "path"})

// GatewayFailures counts fetches that degraded to an empty result set.
var GatewayFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "cinegate_gateway_failures_total",
	Help: "Content source fetches that failed and were replaced by an empty set.",
}, []string{"source"})

// RecordsDropped counts records rejected during normalization.
var RecordsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "cinegate_records_dropped_total",
	Help: "Records dropped because they could not be normalized.",
}, []string{"source"})

// FunnelClicks counts funnel interactions by outcome (ad, continue, ad_continue, bypass).
var FunnelClicks = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "cinegate_funnel_clicks_total",
	Help: "Ad-gate funnel interactions by outcome.",
}, []string{"funnel", "outcome"})

var AdsEnabled = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "cinegate_ads_enabled",
	Help: "1 when the ad funnel is active, 0 when bypassed.",
})

// Middleware records request counts and latency keyed by the matched route.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		HTTPRequests.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		HTTPDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

func Handler() http.Handler {
	return promhttp.Handler()
}
