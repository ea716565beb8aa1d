// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package telemetry exposes pipeline counters for Prometheus. Metrics
// are global and label cardinality is fixed (outcome/kind strings from
// closed sets), so registration happens eagerly at init. If no /metrics
// endpoint is served the registration is harmless.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	admissionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lexai_admissions_total",
		Help: "Analysis admission requests by outcome (queued, cache_hit, in_flight, quota_exceeded, rejected, error)",
	}, []string{"outcome"})

	cacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lexai_cache_hits_total",
		Help: "Fingerprint cache hits, admission-time and worker recheck combined",
	})

	llmAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lexai_llm_attempts_total",
		Help: "Model provider calls by result (ok, transient, permanent)",
	}, []string{"result"})

	llmTokensTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lexai_llm_tokens_total",
		Help: "Total tokens reported by the model provider",
	})

	llmDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "lexai_llm_duration_seconds",
		Help:    "Wall time of successful model calls",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 60},
	})

	queuePublishesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lexai_queue_publishes_total",
		Help: "Queue publishes by queue name",
	}, []string{"queue"})

	jobOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lexai_job_outcomes_total",
		Help: "Consumed jobs by outcome (ack, retry, dead_letter)",
	}, []string{"outcome"})

	wsConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "lexai_ws_connections",
		Help: "Currently connected WebSocket clients",
	})

	alertsFiredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lexai_alerts_fired_total",
		Help: "Expiry alerts enqueued by the scheduler",
	})
)

func init() {
	prometheus.MustRegister(admissionsTotal, cacheHitsTotal, llmAttemptsTotal,
		llmTokensTotal, llmDuration, queuePublishesTotal, jobOutcomesTotal,
		wsConnections, alertsFiredTotal)
}

func ObserveAdmission(outcome string) { admissionsTotal.WithLabelValues(outcome).Inc() }
func ObserveCacheHit()                { cacheHitsTotal.Inc() }

// ObserveLLMCall records one provider round trip. d is only meaningful
// when result is "ok".
func ObserveLLMCall(result string, tokens int, d time.Duration) {
	llmAttemptsTotal.WithLabelValues(result).Inc()
	if tokens > 0 {
		llmTokensTotal.Add(float64(tokens))
	}
	if result == "ok" {
		llmDuration.Observe(d.Seconds())
	}
}

func ObservePublish(queue string)      { queuePublishesTotal.WithLabelValues(queue).Inc() }
func ObserveJobOutcome(outcome string) { jobOutcomesTotal.WithLabelValues(outcome).Inc() }
func ObserveAlertFired()               { alertsFiredTotal.Inc() }

func ClientConnected()    { wsConnections.Inc() }
func ClientDisconnected() { wsConnections.Dec() }

// Serve exposes /metrics on addr in a background goroutine.
func Serve(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		_ = server.ListenAndServe()
	}()
}
