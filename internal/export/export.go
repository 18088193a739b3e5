// Package export writes the downstream copy of a completed collection: the
// same records without their ordering key.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/JakeFAU/thread-harvester/internal/harvest"
	"github.com/JakeFAU/thread-harvester/internal/storage"
)

const suffix = "_submissions.txt"

// Entry is a Record minus created_utc.
type Entry struct {
	Subject     string               `json:"theme"`
	Author      string               `json:"author"`
	Title       string               `json:"title"`
	Body        string               `json:"body"`
	ID          string               `json:"id"`
	Annotations []harvest.Annotation `json:"comments"`
}

// Path returns the object path of a subject's export.
func Path(subject string) string {
	return subject + suffix
}

// Entries converts records, preserving order.
func Entries(records []harvest.Record) []Entry {
	out := make([]Entry, 0, len(records))
	for _, r := range records {
		annotations := r.Annotations
		if annotations == nil {
			annotations = []harvest.Annotation{}
		}
		out = append(out, Entry{
			Subject:     r.Subject,
			Author:      r.Author,
			Title:       r.Title,
			Body:        r.Body,
			ID:          r.ID,
			Annotations: annotations,
		})
	}
	return out
}

// Writer persists exports through a blob store.
type Writer struct {
	blobs storage.BlobStore
}

// NewWriter builds a Writer.
func NewWriter(blobs storage.BlobStore) (*Writer, error) {
	if blobs == nil {
		return nil, errors.New("blob store is required")
	}
	return &Writer{blobs: blobs}, nil
}

// Write stores the export of collection and returns its URI.
func (w *Writer) Write(ctx context.Context, subject string, collection harvest.Collection) (string, error) {
	if subject == "" {
		return "", errors.New("subject is required")
	}
	data, err := json.Marshal(Entries(collection.Records()))
	if err != nil {
		return "", fmt.Errorf("marshal export: %w", err)
	}
	uri, err := w.blobs.PutObject(ctx, Path(subject), "application/json", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("write export %s: %w", Path(subject), err)
	}
	return uri, nil
}
