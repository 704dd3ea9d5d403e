package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StoreErrors tracks store operation errors by backend and operation.
	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "semcache_store_errors_total",
			Help: "Total number of exact-match store operation errors",
		},
		[]string{"backend", "operation"}, // "get", "set", "remove"
	)

	// StoreBytesWritten tracks response payload bytes written by backend.
	StoreBytesWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "semcache_store_bytes_written_total",
			Help: "Total response payload bytes written to the exact-match store",
		},
		[]string{"backend"},
	)
)
