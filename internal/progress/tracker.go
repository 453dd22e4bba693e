// Package progress records what happened to each file of a run: a
// diagnostic log of skips and failures, and a JSON report of every outcome.
package progress

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// FileStatus is the outcome of one file as written to the report.
type FileStatus string

const (
	StatusWritten FileStatus = "written"
	StatusSkipped FileStatus = "skipped"
	StatusFailed  FileStatus = "failed"
)

// FileEntry is one file in the report.
type FileEntry struct {
	File   string     `json:"file"`
	Status FileStatus `json:"status"`
	Key    string     `json:"key,omitempty"`
	Output string     `json:"output,omitempty"`
	Error  string     `json:"error,omitempty"`
}

// Summary holds the run totals.
type Summary struct {
	Written int `json:"written"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
	Total   int `json:"total"`
}

// Report is the JSON document describing one run.
type Report struct {
	RunID    string      `json:"run_id"`
	Started  string      `json:"started"`
	Finished string      `json:"finished"`
	DryRun   bool        `json:"dry_run,omitempty"`
	Mapping  string      `json:"mapping"`
	Input    string      `json:"input"`
	Output   string      `json:"output"`
	Files    []FileEntry `json:"files"`
	Summary  Summary     `json:"summary"`
}

// NewReport starts a report for a run.
func NewReport(runID string, started time.Time) *Report {
	return &Report{
		RunID:   runID,
		Started: started.Format(time.RFC3339),
		Files:   []FileEntry{},
	}
}

// Add appends a file entry and updates the totals.
func (r *Report) Add(entry FileEntry) {
	r.Files = append(r.Files, entry)
	r.Summary.Total++
	switch entry.Status {
	case StatusWritten:
		r.Summary.Written++
	case StatusSkipped:
		r.Summary.Skipped++
	case StatusFailed:
		r.Summary.Failed++
	}
}

// Save writes the report as indented JSON.
func (r *Report) Save(path string, finished time.Time) error {
	r.Finished = finished.Format(time.RFC3339)

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("could not marshal report: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("could not create report directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("could not save report: %w", err)
	}
	return nil
}

// LoadReport reads a report written by Save.
func LoadReport(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("could not parse report %s: %w", path, err)
	}
	return &r, nil
}
