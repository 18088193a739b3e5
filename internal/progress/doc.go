// Package progress provides the run events, the non-blocking hub and the
// emitter interface the crawl engine uses to report what it is doing. Events
// are batched on a background goroutine and fanned out to pluggable sinks
// such as logs, Prometheus metrics, the status endpoint or run history.
package progress
