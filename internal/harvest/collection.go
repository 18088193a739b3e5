package harvest

// Collection is the append-only, arrival-ordered record sequence of one
// subject. The zero value is an empty collection.
type Collection struct {
	records []Record
}

// NewCollection wraps existing records, typically loaded from a checkpoint.
func NewCollection(records []Record) Collection {
	if len(records) == 0 {
		return Collection{}
	}
	return Collection{records: append([]Record(nil), records...)}
}

// Len reports the number of records.
func (c Collection) Len() int {
	return len(c.records)
}

// Records returns a copy of the records in arrival order.
func (c Collection) Records() []Record {
	return append([]Record(nil), c.records...)
}

// Last returns the most recently appended record.
func (c Collection) Last() (Record, bool) {
	if len(c.records) == 0 {
		return Record{}, false
	}
	return c.records[len(c.records)-1], true
}

// Append returns a collection with the records added at the tail. The
// receiver is left untouched.
func (c Collection) Append(records ...Record) Collection {
	out := make([]Record, 0, len(c.records)+len(records))
	out = append(out, c.records...)
	out = append(out, records...)
	return Collection{records: out}
}

// Truncate returns at most the first n records.
func (c Collection) Truncate(n int) Collection {
	if n < 0 {
		n = 0
	}
	if n >= len(c.records) {
		return c
	}
	return Collection{records: append([]Record(nil), c.records[:n]...)}
}

// Watermark derives the next pagination cursor from the last element.
func (c Collection) Watermark() Watermark {
	last, ok := c.Last()
	if !ok {
		return NoWatermark()
	}
	return Below(last.CreatedUTC)
}
