// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package metric

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

// RecordingObserverVec records every operation observation along with the
// labels it was made under.
type RecordingObserverVec struct {
	prometheus.ObserverVec

	mu           sync.Mutex
	Observations []*Observation
}

// Observation is a single recorded duration.
type Observation struct {
	Labels prometheus.Labels
	Value  float64
}

func (v *RecordingObserverVec) With(l prometheus.Labels) prometheus.Observer {
	o := &Observation{Labels: l}
	v.mu.Lock()
	v.Observations = append(v.Observations, o)
	v.mu.Unlock()
	return prometheus.ObserverFunc(func(f float64) { o.Value = f })
}

// TestOperationObserver replaces the operation collector with a
// RecordingObserverVec until the test completes.  Tests using it must not
// run in parallel with other tests observing operations.
func TestOperationObserver(t testing.TB) *RecordingObserverVec {
	t.Helper()
	prev := operationDuration
	v := &RecordingObserverVec{ObserverVec: prev}
	operationDuration = v
	t.Cleanup(func() { operationDuration = prev })
	return v
}
