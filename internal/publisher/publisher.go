// Package publisher announces completed harvests to downstream consumers.
package publisher

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Notification describes a completed run and its export.
type Notification struct {
	RunID     uuid.UUID `json:"run_id"`
	Subject   string    `json:"subject"`
	State     string    `json:"state"`
	Total     int       `json:"total"`
	ExportURI string    `json:"export_uri"`
}

// Validate reports whether n carries the fields consumers rely on.
func (n Notification) Validate() error {
	switch {
	case n.RunID == uuid.Nil:
		return errors.New("notification run id is required")
	case n.Subject == "":
		return errors.New("notification subject is required")
	case n.State == "":
		return errors.New("notification state is required")
	}
	return nil
}

// Publisher sends a Notification and returns the broker message id.
type Publisher interface {
	Publish(ctx context.Context, n Notification) (string, error)
}
