package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "faucet_http_request_duration_seconds",
		Help:    "Duration of HTTP requests handled by the faucet",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	claimsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "faucet_claims_total",
		Help: "Claim workflow steps by outcome",
	}, []string{"outcome"})

	disburseDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "faucet_disburse_duration_seconds",
		Help:    "Time from balance check to confirmed transfer",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
	}, []string{"result"})

	gasPriceGwei = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "faucet_gas_price_gwei",
		Help: "Last gas price observed by the disburser",
	})

	ledgerOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "faucet_ledger_operation_duration_seconds",
		Help:    "Time spent reading and writing the claim ledger",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
)

// ObserveHTTPRequest tracks the handling time of HTTP requests.
func ObserveHTTPRequest(method, route string, status int, d time.Duration) {
	httpRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}

// IncClaim counts a workflow outcome (issued, mismatch, rejected, disbursed...).
func IncClaim(outcome string) {
	claimsTotal.WithLabelValues(outcome).Inc()
}

// ObserveDisburse tracks disbursement duration by result.
func ObserveDisburse(result string, d time.Duration) {
	disburseDuration.WithLabelValues(result).Observe(d.Seconds())
}

// SetGasPrice records the last gas price seen, in gwei.
func SetGasPrice(gwei float64) {
	gasPriceGwei.Set(gwei)
}

// ObserveLedgerOperation tracks ledger call duration.
func ObserveLedgerOperation(operation string, d time.Duration) {
	ledgerOperationDuration.WithLabelValues(operation).Observe(d.Seconds())
}
