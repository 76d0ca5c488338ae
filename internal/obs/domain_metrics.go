package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// PaymentInitiateTotal counts payment initiations by method and outcome.
	PaymentInitiateTotal *prometheus.CounterVec
	// PaymentVerifyTotal counts verification attempts by method and resulting status.
	PaymentVerifyTotal *prometheus.CounterVec
	// ProviderCallLatency records outbound gateway call latency in milliseconds.
	ProviderCallLatency *prometheus.HistogramVec
	// SettlementSideEffectTotal counts fan-out side effects after a verified payment.
	SettlementSideEffectTotal *prometheus.CounterVec
	// DocumentGenerateTotal counts generated PDFs by document kind and outcome.
	DocumentGenerateTotal *prometheus.CounterVec
	// NotificationTotal counts notifier deliveries by channel and outcome.
	NotificationTotal *prometheus.CounterVec
)

func init() {
	// Collectors stay usable when the process never calls MustRegisterDomainMetrics (tests, tools).
	initDomainCollectors("")
}

func initDomainCollectors(namespace string) {
	PaymentInitiateTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payment_initiate_total",
		Help:      "Count of payment initiation outcomes.",
	}, []string{"method", "result"})
	PaymentVerifyTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payment_verify_total",
		Help:      "Count of payment verification attempts by resulting status.",
	}, []string{"method", "status"})
	ProviderCallLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "payment_provider_call_duration_ms",
		Help:      "Latency of outbound payment gateway calls in milliseconds.",
		Buckets:   []float64{25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
	}, []string{"provider", "result"})
	SettlementSideEffectTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "settlement_side_effect_total",
		Help:      "Count of post-verification side effects by step and outcome.",
	}, []string{"step", "result"})
	DocumentGenerateTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "document_generate_total",
		Help:      "Count of generated documents by kind and outcome.",
	}, []string{"kind", "result"})
	NotificationTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notification_total",
		Help:      "Count of notification deliveries by channel and outcome.",
	}, []string{"channel", "result"})
}

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		initDomainCollectors(namespace)

		for _, c := range []**prometheus.CounterVec{
			&PaymentInitiateTotal,
			&PaymentVerifyTotal,
			&SettlementSideEffectTotal,
			&DocumentGenerateTotal,
			&NotificationTotal,
		} {
			target := c
			mustRegisterCollector(reg, *target, func(existing prometheus.Collector) {
				if v, ok := existing.(*prometheus.CounterVec); ok {
					*target = v
				}
			})
		}
		mustRegisterCollector(reg, ProviderCallLatency, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				ProviderCallLatency = v
			}
		})
	})
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
