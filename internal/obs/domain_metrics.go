package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// PaymentOpTotal counts facade operations (authorize/capture/refund) by result.
	PaymentOpTotal *prometheus.CounterVec
	// GatewayRequestDuration records latency of outbound gateway calls in milliseconds.
	GatewayRequestDuration *prometheus.HistogramVec
	// GatewayTransportErrors counts transport-level gateway failures.
	GatewayTransportErrors prometheus.Counter
	// ReconSyncTotal counts reconciliation outcomes per order.
	ReconSyncTotal *prometheus.CounterVec
	// ReconSweepDuration records sweep latency in milliseconds.
	ReconSweepDuration prometheus.Histogram
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		PaymentOpTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_operation_total",
			Help:      "Count of payment facade operations by outcome.",
		}, []string{"operation", "result"})
		GatewayRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gateway_request_duration_ms",
			Help:      "Latency of outbound gateway HTTP calls in milliseconds.",
			Buckets:   []float64{25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 40000},
		}, []string{"path", "status"})
		GatewayTransportErrors = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_transport_errors_total",
			Help:      "Total transport-level failures talking to the gateway.",
		})
		ReconSyncTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recon_sync_total",
			Help:      "Count of reconciliation outcomes per order sync.",
		}, []string{"result"})
		ReconSweepDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "recon_sweep_duration_ms",
			Help:      "Latency of a full reconciliation sweep in milliseconds.",
			Buckets:   []float64{100, 500, 1000, 5000, 15000, 60000, 300000},
		})

		registerOrReuse(reg, PaymentOpTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PaymentOpTotal = v
			}
		})
		registerOrReuse(reg, GatewayRequestDuration, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				GatewayRequestDuration = v
			}
		})
		registerOrReuse(reg, GatewayTransportErrors, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				GatewayTransportErrors = v
			}
		})
		registerOrReuse(reg, ReconSyncTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				ReconSyncTotal = v
			}
		})
		registerOrReuse(reg, ReconSweepDuration, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Histogram); ok {
				ReconSweepDuration = v
			}
		})
	})
}
