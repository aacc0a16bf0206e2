/*
 * Copyright 2025 SREDiag Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package arbiter

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/srediag/shm-arbiter/pkg/transport"
)

const (
	resultOK        = "ok"
	resultRejected  = "rejected"
	resultMalformed = "malformed"
	resultError     = "error"
)

type metrics struct {
	requests *prometheus.CounterVec
	segments prometheus.Gauge
	bytes    prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shm_arbiter",
			Name:      "requests_total",
			Help:      "Requests handled by the arbiter, by mode and result.",
		}, []string{"mode", "result"}),
		segments: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "shm_arbiter",
			Name:      "segments",
			Help:      "Segments currently registered.",
		}),
		bytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "shm_arbiter",
			Name:      "segment_bytes",
			Help:      "Total size of registered segments.",
		}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.requests, m.segments, m.bytes} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *metrics) observe(mode string, err error) {
	m.requests.WithLabelValues(mode, classify(err)).Inc()
}

func (m *metrics) update(r *Registry) {
	m.segments.Set(float64(r.Len()))
	m.bytes.Set(float64(r.Bytes()))
}

func classify(err error) string {
	switch {
	case err == nil:
		return resultOK
	case errors.Is(err, transport.ErrFraming):
		return resultMalformed
	case isRejection(err):
		return resultRejected
	default:
		return resultError
	}
}

// isRejection reports whether err is a per-request registry error rather than a
// socket or syscall failure.
func isRejection(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrExists) || errors.Is(err, ErrInvalidSize)
}
