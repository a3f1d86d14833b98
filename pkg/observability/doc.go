// Package observability provides structured logging, Prometheus metrics,
// and dependency health checks for the gatekeeper.
//
// The metrics collector and logger are constructed once in main and
// passed by reference into the components that use them; nothing in this
// package is ambient global state.
package observability
