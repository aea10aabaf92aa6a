// Package metrics provides Prometheus metrics for the voting client.
// Collectors cover the gateway health monitor, the read endpoint pool,
// transaction confirmation and the decryption workflow.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// MetricPrefix prefix for all voting client metrics
	MetricPrefix = "voting_"

	// --- Label names used across metrics

	LabelDomain  = "domain"
	LabelResult  = "result"
	LabelFrom    = "from"
	LabelTo      = "to"
	LabelStage   = "stage"
	LabelBinding = "binding"
	LabelOutcome = "outcome"

	// --- Result values

	ResultSuccess = "success"
	ResultFailure = "failure"
)

// =============================================================================
// Gateway Status (Gauge)
// Value: 0 = unknown, 1 = up, 2 = down
// Purpose: Current view of the confidentiality gateway held by the monitor
// =============================================================================

var GatewayStatus = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: MetricPrefix + "gateway_status",
		Help: "Current gateway status as seen by the health monitor (0=unknown, 1=up, 2=down).",
	},
)

// GatewayProbesTotal counts gateway probes by result.
var GatewayProbesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: MetricPrefix + "gateway_probes_total",
		Help: "Gateway health probes by result (success/failure).",
	},
	[]string{LabelResult},
)

// GatewayTransitionsTotal counts status changes.
var GatewayTransitionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: MetricPrefix + "gateway_transitions_total",
		Help: "Gateway status transitions by previous and new status.",
	},
	[]string{LabelFrom, LabelTo},
)

// =============================================================================
// Endpoint Reads (Counter)
// Labels: domain, result
// Purpose: Show how often each read endpoint is tried and how often the pool
// has to fall back past it
// =============================================================================

var EndpointReadsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: MetricPrefix + "endpoint_reads_total",
		Help: "Read attempts against RPC endpoints by domain and result.",
	},
	[]string{LabelDomain, LabelResult},
)

// =============================================================================
// Transaction Confirmation (Counter + Histogram)
// =============================================================================

var TxConfirmationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: MetricPrefix + "tx_confirmations_total",
		Help: "Transaction confirmation outcomes (confirmed/reverted/timeout).",
	},
	[]string{LabelOutcome},
)

var TxConfirmationAttempts = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Name:    MetricPrefix + "tx_confirmation_attempts",
		Help:    "Number of receipt polls needed before a transaction was confirmed.",
		Buckets: []float64{1, 2, 3, 5, 10, 20, 40, 60},
	},
)

// =============================================================================
// Decryption Workflow (Counter + Histogram)
// =============================================================================

var DecryptionOutcomesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: MetricPrefix + "decryption_outcomes_total",
		Help: "Decryption workflow outcomes by binding and outcome.",
	},
	[]string{LabelBinding, LabelOutcome},
)

var DecryptionStageSeconds = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    MetricPrefix + "decryption_stage_seconds",
		Help:    "Time spent in each decryption workflow stage.",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	},
	[]string{LabelStage},
)

// RecordProbe records the outcome of a single gateway probe.
func RecordProbe(success bool) {
	result := ResultFailure
	if success {
		result = ResultSuccess
	}
	GatewayProbesTotal.With(prometheus.Labels{LabelResult: result}).Inc()
}

// RecordGatewayTransition records a status change and updates the status gauge.
// statusValue follows the GatewayStatus gauge encoding.
func RecordGatewayTransition(from, to string, statusValue float64) {
	GatewayTransitionsTotal.With(prometheus.Labels{LabelFrom: from, LabelTo: to}).Inc()
	GatewayStatus.Set(statusValue)
}

// RecordEndpointRead records one read attempt against an endpoint URL.
func RecordEndpointRead(endpointURL string, success bool) {
	domain := domainLabel(endpointURL)
	result := ResultFailure
	if success {
		result = ResultSuccess
	}
	EndpointReadsTotal.With(prometheus.Labels{LabelDomain: domain, LabelResult: result}).Inc()
}

// RecordTxConfirmation records the outcome of a receipt confirmation loop.
func RecordTxConfirmation(outcome string, attempts int) {
	TxConfirmationsTotal.With(prometheus.Labels{LabelOutcome: outcome}).Inc()
	if attempts > 0 {
		TxConfirmationAttempts.Observe(float64(attempts))
	}
}

// RecordDecryptionOutcome records the terminal state of one workflow run.
func RecordDecryptionOutcome(binding, outcome string) {
	DecryptionOutcomesTotal.With(prometheus.Labels{LabelBinding: binding, LabelOutcome: outcome}).Inc()
}

// RecordDecryptionStage records the duration of a workflow stage.
func RecordDecryptionStage(stage string, seconds float64) {
	DecryptionStageSeconds.With(prometheus.Labels{LabelStage: stage}).Observe(seconds)
}
