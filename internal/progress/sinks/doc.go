// Package sinks contains progress.Sink implementations for logs, Prometheus
// metrics, the live status snapshot and persistent run history.
package sinks
