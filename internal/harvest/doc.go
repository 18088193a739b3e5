// Package harvest defines the records, errors and capability interfaces shared
// by the paginator, enricher, checkpoint store and crawl orchestrator.
package harvest
