// Package metrics provides the MetricsRecorder interface, a noop
// implementation and a Prometheus-backed implementation.
package metrics

import "time"

// MetricsRecorder is the interface for recording cache and memoizer metrics.
// scope is the cache namespace or memoized function name.
type MetricsRecorder interface {
	RecordHit(scope string)
	RecordMiss(scope string)
	RecordWrite(scope string)
	RecordLatency(scope, op string, d time.Duration)
	RecordError(scope, op string)
}

// Noop is a MetricsRecorder that discards all data.
type Noop struct{}

func (Noop) RecordHit(scope string)                          {}
func (Noop) RecordMiss(scope string)                         {}
func (Noop) RecordWrite(scope string)                        {}
func (Noop) RecordLatency(scope, op string, d time.Duration) {}
func (Noop) RecordError(scope, op string)                    {}
