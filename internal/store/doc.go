// Package store declares the run-history repository shared by the progress
// sinks, the status API and the storage backends.
package store
