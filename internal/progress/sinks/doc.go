// Package sinks implements concrete progress consumers: the stdout signal
// lines read by the supervisor, Prometheus metrics, the run ledger and
// structured logging. Each sink satisfies progress.Sink and is safe for
// repeated Consume/Close cycles.
package sinks
