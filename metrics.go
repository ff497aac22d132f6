// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package weatherd

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "weatherd"

// Reasons a connection was closed by the listener without reaching a pool.
const (
	RejectPoolExhausted = "pool_exhausted"
	RejectRateLimited   = "rate_limited"
	RejectNoHandler     = "no_handler"
	RejectError         = "error"
)

// Pool labels.
const (
	PoolHTTP    = "http"
	PoolWeather = "weather"
)

// Metrics holds the Prometheus collectors updated by the runtime, the
// listener, and both pools. A nil *Metrics is valid, and records nothing.
//
// Collectors are updated from the loop goroutine and may be scraped from any
// goroutine.
type Metrics struct {
	accepted  prometheus.Counter
	rejected  *prometheus.CounterVec
	responses *prometheus.CounterVec
	evictions *prometheus.CounterVec
	ticks     prometheus.Counter
	active    *prometheus.GaugeVec
	codes     map[int]prometheus.Counter
}

// NewMetrics creates the collectors, registering them with reg if it is
// non-nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		accepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "connections_accepted_total",
			Help:      "Count of connections handed to the HTTP pool.",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "connections_rejected_total",
			Help:      "Count of accepted connections closed by the listener, by reason.",
		}, []string{"reason"}),
		responses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "responses_total",
			Help:      "Count of responses queued for sending, by status code.",
		}, []string{"code"}),
		evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "work_items_evicted_total",
			Help:      "Count of work items removed from the scheduler after failing or panicking.",
		}, []string{"item"}),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "ticks_total",
			Help:      "Count of scheduler ticks.",
		}),
		active: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "active_slots",
			Help:      "Number of in-use connection slots, by pool.",
		}, []string{"pool"}),
	}
	// one series per code buildResponse can send, resolved up front
	m.codes = make(map[int]prometheus.Counter, len(statusTable))
	for code := range statusTable {
		m.codes[code] = m.responses.WithLabelValues(strconv.Itoa(code))
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{
			m.accepted,
			m.rejected,
			m.responses,
			m.evictions,
			m.ticks,
			m.active,
		} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) acceptedConn() {
	if m == nil {
		return
	}
	m.accepted.Inc()
}

func (m *Metrics) rejectedConn(reason string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) response(code int) {
	if m == nil {
		return
	}
	c, ok := m.codes[code]
	if !ok {
		// sent as a 500, see buildResponse
		c = m.codes[StatusInternalError]
	}
	c.Inc()
}

func (m *Metrics) evicted(item string) {
	if m == nil {
		return
	}
	m.evictions.WithLabelValues(item).Inc()
}

func (m *Metrics) tick() {
	if m == nil {
		return
	}
	m.ticks.Inc()
}

func (m *Metrics) setActive(pool string, n int) {
	if m == nil {
		return
	}
	m.active.WithLabelValues(pool).Set(float64(n))
}
