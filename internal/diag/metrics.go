package diag

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label values for LinesParsed.
const (
	PathFast = `fast`
	PathSlow = `slow`
)

// Label values for RequestsServed.
const (
	OutcomeOK       = `ok`
	OutcomeNotFound = `not_found`
	OutcomeError    = `error`
)

var (
	// LinesParsed counts trace lines by the recognizer that handled them.
	LinesParsed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: `epic_parser_lines_total`,
		Help: `Trace lines parsed, by recognizer path`,
	}, []string{`path`})

	// Diagnostics counts skipped or suspicious trace lines by kind.
	Diagnostics = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: `epic_parser_diagnostics_total`,
		Help: `Trace diagnostics reported, by kind`,
	}, []string{`kind`})

	// SignalsDeclared counts signals created by .index declarations.
	SignalsDeclared = promauto.NewCounter(prometheus.CounterOpts{
		Name: `epic_parser_signals_total`,
		Help: `Signals declared`,
	})

	// EventsEncoded counts samples appended to signal buffers.
	EventsEncoded = promauto.NewCounter(prometheus.CounterOpts{
		Name: `epic_parser_events_total`,
		Help: `Events appended to signal buffers`,
	})

	// EncodedBytes is the total size of the compacted buffers currently held.
	EncodedBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: `epic_producer_encoded_bytes`,
		Help: `Bytes held by compacted signal buffers`,
	})

	// ParseDuration records how long a full parse took.
	ParseDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    `epic_parser_duration_seconds`,
		Help:    `Duration of a full trace parse`,
		Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 15, 60, 300},
	})

	// RequestsServed counts signal requests answered by the producer.
	RequestsServed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: `epic_producer_requests_total`,
		Help: `Signal requests served, by outcome`,
	}, []string{`outcome`})

	// RequestDuration records decode and write time per request.
	RequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    `epic_producer_request_duration_seconds`,
		Help:    `Duration of serving one signal request`,
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	})

	// RoundTrips counts consumer requests by outcome.
	RoundTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: `epic_consumer_round_trips_total`,
		Help: `Signal requests issued by consumers, by outcome`,
	}, []string{`outcome`})
)
