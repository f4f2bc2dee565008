// Package stats is curlmulti's metrics surface: Prometheus counters and
// gauges for the Agent's lifecycle. Grounded on the teacher's
// stats/common_statsd.go, which wraps the same vocabulary of counters
// behind a pluggable backend; curlmulti keeps only the Prometheus half of
// that duality since there is no StatsD-speaking collaborator anywhere in
// this tree to justify carrying the other one.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package stats

import (
	"net/http"

	"go.uber.org/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/NVIDIA/curlmulti/nlog"
)

// Tracker holds one Agent's counters and gauges. Each Agent owns its own
// registry so that more than one Agent can coexist in a process without
// metric name collisions.
type Tracker struct {
	registry *prometheus.Registry

	submitted prometheus.Counter
	completed prometheus.Counter
	failed    prometheus.Counter
	canceled  prometheus.Counter

	// activeTransfers and queueDepth are gauges set to an absolute size
	// rather than incremented/decremented: the worker sets the table's
	// size after each reap pass, and the queue's size is set after every
	// push and reset to zero when the worker drains it.
	activeTransfers prometheus.Gauge
	queueDepth      prometheus.Gauge

	// workerRestarts counts every time the worker goroutine is spawned,
	// including the very first one — a churn rate well above 1/process
	// lifetime flags an idle-exit/respawn loop thrashing (spec §4.6
	// step 6).
	workerRestarts prometheus.Counter
	bytesSent      prometheus.Counter
	bytesReceived  prometheus.Counter
	// callbackAborts counts transport callback invocations that panicked
	// and were converted into an abort disposition instead of taking the
	// process down (agent/curlcb's panic recovery boundary).
	callbackAborts prometheus.Counter

	// snapActive/snapQueue mirror the two gauges in plain memory so
	// LogSnapshot can report them without scraping the prometheus
	// registry back out.
	snapActive atomic.Int64
	snapQueue  atomic.Int64
}

func New() *Tracker {
	reg := prometheus.NewRegistry()
	t := &Tracker{
		registry: reg,
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "curlmulti_transfers_submitted_total",
			Help: "Transfers submitted to the agent.",
		}),
		completed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "curlmulti_transfers_completed_total",
			Help: "Transfers that completed successfully.",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "curlmulti_transfers_failed_total",
			Help: "Transfers that completed with an error.",
		}),
		canceled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "curlmulti_transfers_canceled_total",
			Help: "Transfers canceled before completion.",
		}),
		activeTransfers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "curlmulti_active_transfers",
			Help: "Transfers currently in the Active Operation Table.",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "curlmulti_queue_depth",
			Help: "Submissions pending in the Incoming Submission Queue.",
		}),
		workerRestarts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "curlmulti_worker_restarts_total",
			Help: "Times the worker goroutine was spawned, including the first.",
		}),
		bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "curlmulti_bytes_sent_total",
			Help: "Request body bytes handed to the transport.",
		}),
		bytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "curlmulti_bytes_received_total",
			Help: "Response body bytes delivered from the transport.",
		}),
		callbackAborts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "curlmulti_callback_aborts_total",
			Help: "Transport callback invocations that panicked and were aborted.",
		}),
	}
	reg.MustRegister(
		t.submitted, t.completed, t.failed, t.canceled,
		t.activeTransfers, t.queueDepth,
		t.workerRestarts, t.bytesSent, t.bytesReceived, t.callbackAborts,
	)
	return t
}

func (t *Tracker) IncSubmitted() { t.submitted.Inc() }
func (t *Tracker) IncCompleted() { t.completed.Inc() }
func (t *Tracker) IncFailed()    { t.failed.Inc() }
func (t *Tracker) IncCanceled()  { t.canceled.Inc() }

func (t *Tracker) SetActiveTransfers(n int) {
	t.activeTransfers.Set(float64(n))
	t.snapActive.Store(int64(n))
}

func (t *Tracker) SetQueueDepth(n int) {
	t.queueDepth.Set(float64(n))
	t.snapQueue.Store(int64(n))
}

func (t *Tracker) IncWorkerRestart()        { t.workerRestarts.Inc() }
func (t *Tracker) AddBytesSent(n int64)     { t.bytesSent.Add(float64(n)) }
func (t *Tracker) AddBytesReceived(n int64) { t.bytesReceived.Add(float64(n)) }
func (t *Tracker) IncCallbackAbort()        { t.callbackAborts.Inc() }

// Handler exposes the registry for a caller's own metrics endpoint.
func (t *Tracker) Handler() http.Handler {
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}

// LogSnapshot writes one log line summarizing the gauges, the cheap
// housekeeping-driven alternative to scraping /metrics for a process that
// isn't otherwise being monitored. Registered through hk.Reg by the Agent
// (spec §8.7 periodic diagnostics).
func (t *Tracker) LogSnapshot() {
	nlog.Infof("stats: active=%d queue=%d", t.snapActive.Load(), t.snapQueue.Load())
}
