// Package observability provides structured logging and Prometheus metrics
// for the newsletter assistant.
//
// Loggers are plain *zap.Logger values built once at startup and passed down.
// Metrics are recorded through the Metrics interface so services can run
// against NopMetrics in tests.
package observability
