package task

// Record is one raw entry from the streaming benchmark dataset, before it
// has been materialized into a Task.
type Record struct {
	Repo             string
	BaseCommit       string
	Patch            string
	ProblemStatement string
	Row              map[string]any
}

// Dataset streams benchmark records. A real implementation wraps whatever
// format the benchmark ships in (the original stores these as a HuggingFace
// parquet/arrow dataset); this package only needs the iterator shape.
type Dataset interface {
	// Next returns the next record, or ok=false once the dataset is
	// exhausted. It must be safe to call repeatedly after exhaustion.
	Next() (rec Record, ok bool, err error)
}

// SliceDataset adapts an in-memory slice of Records to the Dataset
// interface, for tests and for datasets small enough to load eagerly.
type SliceDataset struct {
	records []Record
	pos     int
}

func NewSliceDataset(records []Record) *SliceDataset {
	return &SliceDataset{records: records}
}

func (d *SliceDataset) Next() (Record, bool, error) {
	if d.pos >= len(d.records) {
		return Record{}, false, nil
	}
	rec := d.records[d.pos]
	d.pos++
	return rec, true, nil
}
