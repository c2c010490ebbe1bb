// Package metrics declares the Prometheus collectors the service exports.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ticketing"

var (
	registry = prometheus.NewRegistry()

	// Bookings counts booking attempts by outcome.
	Bookings = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bookings_total",
		Help:      "Booking attempts by result.",
	}, []string{"result"})

	SeatsReserved = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "seats_reserved_total",
		Help:      "Seats taken by committed bookings.",
	})

	// Compensations counts seat releases after a failed ledger write.
	// result="failed" means inventory and ledger disagree and needs an operator.
	Compensations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "compensations_total",
		Help:      "Seat releases after a failed booking write, by result.",
	}, []string{"result"})

	Observers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "realtime_observers",
		Help:      "Connected realtime observers.",
	})

	NotifierDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "realtime_dropped_total",
		Help:      "Seat updates not delivered, by reason.",
	}, []string{"reason"})

	BrokerPublish = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "broker_publish_total",
		Help:      "Booking events handed to the broker, by result.",
	}, []string{"result"})
)

func init() {
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		Bookings,
		SeatsReserved,
		Compensations,
		Observers,
		NotifierDropped,
		BrokerPublish,
	)
}

// Handler serves the exposition format for the service registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
