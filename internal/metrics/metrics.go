// Package metrics records transport attempts, transferred bytes and session
// outcomes as Prometheus collectors.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	objerrors "github.com/input-output-hk/catalyst-forge-libs/objstore/errors"
	"github.com/input-output-hk/catalyst-forge-libs/objstore/objtypes"
)

// Direction labels a transfer.
type Direction string

// Transfer directions
const (
	Upload   Direction = "upload"
	Download Direction = "download"
)

// Recorder owns one set of collectors. A nil *Recorder is valid and records nothing.
type Recorder struct {
	// Attempts counts every transport attempt by operation and outcome
	Attempts *prometheus.CounterVec

	// Sessions counts finished transfer sessions by direction and final state
	Sessions *prometheus.CounterVec

	// Bytes counts committed chunk bytes by direction
	Bytes *prometheus.CounterVec

	// ChunkDuration observes how long a chunk took, retries included
	ChunkDuration *prometheus.HistogramVec
}

// NewRecorder creates the collectors and registers them on reg.
// A nil registerer leaves them unregistered, which is useful in tests.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		Attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "objstore_attempts_total",
				Help: "Total number of transport attempts",
			},
			[]string{"operation", "outcome"},
		),
		Sessions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "objstore_sessions_total",
				Help: "Total number of finished transfer sessions",
			},
			[]string{"direction", "state"},
		),
		Bytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "objstore_bytes_total",
				Help: "Total number of committed chunk bytes",
			},
			[]string{"direction"},
		),
		ChunkDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "objstore_chunk_duration_seconds",
				Help:    "Time to commit a single chunk, including retries",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
			},
			[]string{"direction"},
		),
	}

	if reg == nil {
		return r, nil
	}
	var err error
	if r.Attempts, err = register(reg, r.Attempts); err != nil {
		return nil, err
	}
	if r.Sessions, err = register(reg, r.Sessions); err != nil {
		return nil, err
	}
	if r.Bytes, err = register(reg, r.Bytes); err != nil {
		return nil, err
	}
	if r.ChunkDuration, err = register(reg, r.ChunkDuration); err != nil {
		return nil, err
	}
	return r, nil
}

// register adds c to reg, reusing an identical collector that is already registered.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// ObserveAttempt implements retry.Observer.
func (r *Recorder) ObserveAttempt(op string, _ int, err error) {
	if r == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	r.Attempts.WithLabelValues(op, outcome).Inc()
}

// ChunkCommitted records one committed chunk.
func (r *Recorder) ChunkCommitted(dir Direction, n int64, took time.Duration) {
	if r == nil {
		return
	}
	r.Bytes.WithLabelValues(string(dir)).Add(float64(n))
	r.ChunkDuration.WithLabelValues(string(dir)).Observe(took.Seconds())
}

// SessionFinished records a session reaching a terminal state.
func (r *Recorder) SessionFinished(dir Direction, state objtypes.SessionState, err error) {
	if r == nil {
		return
	}
	label := state.String()
	if err != nil && state == objtypes.SessionFailed {
		label += "_" + string(objerrors.CodeOf(err))
	}
	r.Sessions.WithLabelValues(string(dir), label).Inc()
}
