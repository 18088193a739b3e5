// Package checkpoint persists a subject's Collection as one JSON document per
// subject through a storage.BlobStore.
package checkpoint

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/JakeFAU/thread-harvester/internal/harvest"
	"github.com/JakeFAU/thread-harvester/internal/storage"
)

const (
	contentType = "application/json"
	suffix      = "_submissions.json"
)

var _ harvest.CheckpointStore = (*Store)(nil)

// Store implements harvest.CheckpointStore.
type Store struct {
	blobs storage.BlobStore
}

// New builds a Store over blobs.
func New(blobs storage.BlobStore) (*Store, error) {
	if blobs == nil {
		return nil, errors.New("blob store is required")
	}
	return &Store{blobs: blobs}, nil
}

// Path returns the object path holding a subject's checkpoint.
func Path(subject string) string {
	return subject + suffix
}

// Load returns the saved collection, or an empty one when nothing was saved
// yet or the object is empty. An unreadable non-empty object yields a
// *harvest.CorruptCheckpointError.
func (s *Store) Load(ctx context.Context, subject string) (harvest.Collection, error) {
	if subject == "" {
		return harvest.Collection{}, errors.New("subject is required")
	}
	path := Path(subject)
	data, err := s.blobs.GetObject(ctx, path)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return harvest.Collection{}, nil
	}
	if err != nil {
		return harvest.Collection{}, fmt.Errorf("load checkpoint %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return harvest.Collection{}, nil
	}
	records, err := Decode(data)
	if err != nil {
		return harvest.Collection{}, &harvest.CorruptCheckpointError{Subject: subject, Path: path, Err: err}
	}
	return harvest.NewCollection(records), nil
}

// Save rewrites the subject's checkpoint with the full collection.
func (s *Store) Save(ctx context.Context, subject string, collection harvest.Collection) error {
	if subject == "" {
		return errors.New("subject is required")
	}
	data, err := Encode(collection.Records())
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	if _, err := s.blobs.PutObject(ctx, Path(subject), contentType, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("save checkpoint %s: %w", Path(subject), err)
	}
	return nil
}

// Encode renders records as a JSON array. The output depends only on the
// records, so decoding and re-encoding reproduces it exactly.
func Encode(records []harvest.Record) ([]byte, error) {
	out := make([]harvest.Record, len(records))
	for i, rec := range records {
		if rec.Annotations == nil {
			rec.Annotations = []harvest.Annotation{}
		}
		out[i] = rec
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("marshal records: %w", err)
	}
	return data, nil
}

// Decode parses a JSON array of records.
func Decode(data []byte) ([]harvest.Record, error) {
	var records []harvest.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("unmarshal records: %w", err)
	}
	if records == nil {
		return nil, errors.New("checkpoint is not a JSON array")
	}
	for i := range records {
		if records[i].Annotations == nil {
			records[i].Annotations = []harvest.Annotation{}
		}
	}
	return records, nil
}
