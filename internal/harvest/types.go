package harvest

import (
	"net/http"
	"strconv"
	"time"
)

// Reserved markers used by the remote sources.
const (
	// DeletedMarker is both the anonymised-author sentinel and the body of a
	// removed comment.
	DeletedMarker = "[deleted]"
	// RemovedTitle marks a submission whose content was taken down.
	RemovedTitle = "[removed]"
	// MaxAnnotations bounds how many comments are attached to one record.
	MaxAnnotations = 5
)

// Annotation is a secondary item (a top-level comment) attached to a Record.
type Annotation struct {
	Author string `json:"author"`
	Body   string `json:"body"`
}

// Record is one harvested submission. Field order matches the checkpoint
// layout so encodes are stable across load/save cycles.
type Record struct {
	Subject     string       `json:"theme"`
	Author      string       `json:"author"`
	Title       string       `json:"title"`
	Body        string       `json:"body"`
	CreatedUTC  int64        `json:"created_utc"`
	ID          string       `json:"id"`
	Annotations []Annotation `json:"comments"`
}

// Draft is a Record before enrichment.
type Draft struct {
	ID         string
	Subject    string
	Author     string
	Title      string
	Body       string
	CreatedUTC int64
}

// Finish attaches annotations, producing the immutable Record.
func (d Draft) Finish(annotations []Annotation) Record {
	if annotations == nil {
		annotations = []Annotation{}
	}
	return Record{
		Subject:     d.Subject,
		Author:      d.Author,
		Title:       d.Title,
		Body:        d.Body,
		CreatedUTC:  d.CreatedUTC,
		ID:          d.ID,
		Annotations: annotations,
	}
}

// RawItem is one entry of a primary-source page as returned by the Paginator.
type RawItem struct {
	ID         string
	Author     string
	Title      string
	CreatedUTC int64
	// Body is nil when the source omitted the long-form text.
	Body     *string
	HasMedia bool
}

// Watermark is the pagination cursor: when Set, the next page must contain
// only items strictly older than Before.
type Watermark struct {
	Before int64
	Set    bool
}

// NoWatermark requests the newest page.
func NoWatermark() Watermark {
	return Watermark{}
}

// Below builds a watermark bounded by the given ordering key.
func Below(ts int64) Watermark {
	return Watermark{Before: ts, Set: true}
}

func (w Watermark) String() string {
	if !w.Set {
		return "none"
	}
	return strconv.FormatInt(w.Before, 10)
}

// FetchRequest captures everything needed to GET a remote resource.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}
