package root

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"

	"github.com/coderena/validator/pkg/task"
)

// datasetRecord is the YAML shape of one streamed benchmark record
// (spec.md §4.2's "streaming dataset iterator"), for a CLI-driven
// standalone run that reads the benchmark from a local file rather than
// HuggingFace's parquet/arrow format.
type datasetRecord struct {
	Repo             string         `yaml:"repo"`
	BaseCommit       string         `yaml:"base_commit"`
	Patch            string         `yaml:"patch"`
	ProblemStatement string         `yaml:"problem_statement"`
	Row              map[string]any `yaml:"row"`
}

// loadDataset reads a YAML list of datasetRecords from path and returns a
// task.SliceDataset over it.
func loadDataset(path string) (*task.SliceDataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading dataset file: %w", err)
	}

	var records []datasetRecord
	if err := yaml.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parsing dataset file: %w", err)
	}

	out := make([]task.Record, len(records))
	for i, r := range records {
		out[i] = task.Record{
			Repo:             r.Repo,
			BaseCommit:       r.BaseCommit,
			Patch:            r.Patch,
			ProblemStatement: r.ProblemStatement,
			Row:              r.Row,
		}
	}
	return task.NewSliceDataset(out), nil
}
