/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package stats defines the narrow metrics surface the engine reports
// through, in the shape of ptp4u/stats.Stats (one interface, Start plus a
// handful of Inc*/Set* methods), backed here by prometheus/client_golang
// rather than that package's JSON-over-HTTP reporter.
package stats

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// Stats is the metrics surface the engine's workers report through.
type Stats interface {
	// Start runs the monitoring HTTP server.
	Start(monitoringPort int)

	IncInsertInserted()
	IncInsertTimeouts()
	IncInsertFailed()
	IncPush()
	IncPull()
	IncPrune()
	IncPing()
	IncPong()
	SetQueueDepth(queue string, n int)
	ObserveTrimDuration(seconds float64)
	IncActiveSetRotation()
}

// Prometheus is the production Stats implementation.
type Prometheus struct {
	insertInserted prometheus.Counter
	insertTimeouts prometheus.Counter
	insertFailed   prometheus.Counter
	push           prometheus.Counter
	pull           prometheus.Counter
	prune          prometheus.Counter
	ping           prometheus.Counter
	pong           prometheus.Counter
	queueDepth     *prometheus.GaugeVec
	trimDuration   prometheus.Histogram
	rotations      prometheus.Counter

	registry *prometheus.Registry
}

// NewPrometheus builds a Prometheus stats reporter with its own registry,
// so multiple engine instances in one process (as tests do) don't collide
// on the default global registry.
func NewPrometheus() *Prometheus {
	reg := prometheus.NewRegistry()
	p := &Prometheus{
		registry: reg,
		insertInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gossip_crds_insert_inserted_total",
			Help: "Number of CrdsValue inserts that succeeded.",
		}),
		insertTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gossip_crds_insert_timeouts_total",
			Help: "Number of CrdsValue inserts force-applied after timeout.",
		}),
		insertFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gossip_crds_insert_failed_total",
			Help: "Number of CrdsValue inserts that failed (stale or bad signature).",
		}),
		push: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gossip_push_messages_total",
			Help: "Number of PushMessage envelopes processed.",
		}),
		pull: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gossip_pull_requests_total",
			Help: "Number of PullRequest and PullResponse envelopes processed.",
		}),
		prune: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gossip_prune_messages_total",
			Help: "Number of PruneMessage envelopes processed.",
		}),
		ping: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gossip_ping_messages_total",
			Help: "Number of PingMessage envelopes processed.",
		}),
		pong: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gossip_pong_messages_total",
			Help: "Number of PongMessage envelopes processed.",
		}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gossip_queue_depth",
			Help: "Current depth of an engine queue.",
		}, []string{"queue"}),
		trimDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gossip_trim_memory_seconds",
			Help:    "Duration of a trim-memory pass.",
			Buckets: prometheus.DefBuckets,
		}),
		rotations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gossip_active_set_rotations_total",
			Help: "Number of active-set rotations performed.",
		}),
	}
	reg.MustRegister(
		p.insertInserted, p.insertTimeouts, p.insertFailed,
		p.push, p.pull, p.prune, p.ping, p.pong,
		p.queueDepth, p.trimDuration, p.rotations,
	)
	return p
}

// Start runs the prometheus /metrics endpoint, mirroring ptp4u/stats'
// JSONStats.Start shape (one blocking ListenAndServe call meant to be
// launched in its own goroutine).
func (p *Prometheus) Start(monitoringPort int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{}))
	addr := fmt.Sprintf(":%d", monitoringPort)
	log.Infof("Starting prometheus metrics server on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("Failed to start metrics listener: %v", err)
	}
}

func (p *Prometheus) IncInsertInserted()     { p.insertInserted.Inc() }
func (p *Prometheus) IncInsertTimeouts()     { p.insertTimeouts.Inc() }
func (p *Prometheus) IncInsertFailed()       { p.insertFailed.Inc() }
func (p *Prometheus) IncPush()               { p.push.Inc() }
func (p *Prometheus) IncPull()               { p.pull.Inc() }
func (p *Prometheus) IncPrune()              { p.prune.Inc() }
func (p *Prometheus) IncPing()               { p.ping.Inc() }
func (p *Prometheus) IncPong()               { p.pong.Inc() }
func (p *Prometheus) IncActiveSetRotation()  { p.rotations.Inc() }

func (p *Prometheus) SetQueueDepth(queue string, n int) {
	p.queueDepth.WithLabelValues(queue).Set(float64(n))
}

func (p *Prometheus) ObserveTrimDuration(seconds float64) {
	p.trimDuration.Observe(seconds)
}
