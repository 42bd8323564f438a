// Package metrics exposes shop counters for Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	purchases        *prometheus.CounterVec
	purchaseDuration prometheus.Histogram
	logins           *prometheus.CounterVec
	keysLoaded       prometheus.Counter
}

func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		purchases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "keyshop_purchases_total",
			Help: "Purchase attempts by result kind.",
		}, []string{"result"}),
		purchaseDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "keyshop_purchase_duration_seconds",
			Help:    "Duration of purchase transactions.",
			Buckets: prometheus.DefBuckets,
		}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "keyshop_logins_total",
			Help: "Chat login attempts by result kind.",
		}, []string{"result"}),
		keysLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "keyshop_keys_loaded_total",
			Help: "License keys added to inventory.",
		}),
	}

	reg.MustRegister(
		c.purchases,
		c.purchaseDuration,
		c.logins,
		c.keysLoaded,
	)

	return c
}

// RecordPurchase counts one attempt under its result kind, see entity.ErrorKind.
func (c *Collector) RecordPurchase(result string, duration time.Duration) {
	c.purchases.WithLabelValues(result).Inc()
	c.purchaseDuration.Observe(duration.Seconds())
}

func (c *Collector) RecordLogin(result string) {
	c.logins.WithLabelValues(result).Inc()
}

func (c *Collector) RecordKeysLoaded(count int) {
	c.keysLoaded.Add(float64(count))
}

// Handler serves the Prometheus scrape endpoint.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
