// Package sinks provides progress.Sink implementations backed by structured
// logging, Prometheus collectors, and the run-metric store.
package sinks
