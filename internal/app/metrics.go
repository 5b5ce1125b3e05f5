package app

import (
	"time"

	"github.com/DIMO-Network/enclave-attest/pkg/attest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	verificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "enclave_attest",
		Name:      "verifications_total",
		Help:      "Attestation document verifications by outcome.",
	}, []string{"reason"})

	verificationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "enclave_attest",
		Name:      "verification_duration_seconds",
		Help:      "Time spent verifying an attestation document.",
		Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
	})
)

func observeVerification(start time.Time, err error) {
	verificationDuration.Observe(time.Since(start).Seconds())
	verificationsTotal.WithLabelValues(attest.Reason(err)).Inc()
}
