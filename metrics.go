// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package svcrpc

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "svcrpc"

// Process-wide collectors for the contract and strategy caches. They are not
// registered anywhere by default; see Collectors.
var (
	contractScans = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "contract_scans_total",
		Help:      "Number of service contract types scanned for operations",
	}, []string{"contract"})

	strategyBuilds = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "strategy_builds_total",
		Help:      "Number of invocation strategies built, by operation signature",
	}, []string{"signature"})

	cacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "cache_lookups_total",
		Help:      "Lookups in the contract and strategy caches",
	}, []string{"cache", "outcome"})
)

// Collectors returns the cache collectors so callers can register them:
//
//	reg.MustRegister(svcrpc.Collectors()...)
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{contractScans, strategyBuilds, cacheLookups}
}

// callMetrics backs the Instrument middleware.
type callMetrics struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newCallMetrics(reg prometheus.Registerer, subsystem string) (*callMetrics, error) {
	m := &callMetrics{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: subsystem,
			Name:      "calls_total",
			Help:      "Remote calls forwarded to the invoker",
		}, []string{"method", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: subsystem,
			Name:      "call_duration_seconds",
			Help:      "Duration of remote calls in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
	for _, c := range []prometheus.Collector{m.calls, m.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}
