// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

// Package metric provides the prometheus collectors for secret storage
// operations and the hooks that update them.
package metric

import (
	"errors"
	"time"

	ierrors "github.com/hashicorp/secretstorage/internal/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	Namespace        = "secretstorage"
	storageSubsystem = "storage"

	LabelOperation = "operation"
	LabelResult    = "result"
)

// Operation names a facade operation.
type Operation string

const (
	OpStore  Operation = "store"
	OpLoad   Operation = "load"
	OpDelete Operation = "delete"
	OpCopyTo Operation = "copy_to"
	OpRewrap Operation = "rewrap"
)

// Result labels.
const (
	ResultSuccess       = "success"
	ResultIoError       = "io_error"
	ResultSecurityError = "security_error"
)

var (
	ListOperationLabels = []string{LabelOperation, LabelResult}

	allOperations = []Operation{OpStore, OpLoad, OpDelete, OpCopyTo, OpRewrap}
	allResults    = []string{ResultSuccess, ResultIoError, ResultSecurityError}
)

// operationDuration collects how long each facade operation takes.
var operationDuration prometheus.ObserverVec = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: Namespace,
		Subsystem: storageSubsystem,
		Name:      "operation_duration_seconds",
		Help:      "Histogram of latencies for secret storage operations.",
		Buckets:   prometheus.DefBuckets,
	},
	ListOperationLabels,
)

// dataKeysGenerated counts data key pairs generated on first store.
var dataKeysGenerated = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: storageSubsystem,
		Name:      "data_keys_generated_total",
		Help:      "Count of data encryption and signing key pairs generated.",
	},
)

// InitializeCollectors registers the storage collectors with r and zeroes
// every label combination.  A nil registerer disables registration.
// Registering twice with the same registerer is not an error.
func InitializeCollectors(r prometheus.Registerer) {
	if r == nil {
		return
	}
	for _, c := range []prometheus.Collector{operationDuration, dataKeysGenerated} {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				panic(err)
			}
		}
	}
	for _, op := range allOperations {
		for _, res := range allResults {
			operationDuration.With(prometheus.Labels{LabelOperation: string(op), LabelResult: res})
		}
	}
}

// ObserveOperation records an operation that started at start and finished
// with err.
func ObserveOperation(op Operation, start time.Time, err error) {
	operationDuration.With(prometheus.Labels{
		LabelOperation: string(op),
		LabelResult:    ResultLabel(err),
	}).Observe(time.Since(start).Seconds())
}

// DataKeysGenerated records a generated data key pair.
func DataKeysGenerated() {
	dataKeysGenerated.Inc()
}

// ResultLabel collapses err into a result label.  I/O failures are
// io_error; every other failure is security_error.
func ResultLabel(err error) string {
	switch {
	case err == nil:
		return ResultSuccess
	case ierrors.IsIoError(err):
		return ResultIoError
	default:
		return ResultSecurityError
	}
}
