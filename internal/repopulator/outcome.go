package repopulator

import (
	"sync/atomic"
	"time"

	dcm "dicom-repopulator/internal/dicom"
	"dicom-repopulator/internal/progress"
)

// Status is the result of processing one file.
type Status int

const (
	// Written means the file was rewritten into the output tree (or, in a
	// dry run, would have been).
	Written Status = iota
	// SkippedNoMatch means no mapping row matched the file's key.
	SkippedNoMatch
	// Failed means the file could not be read, rewritten or written.
	Failed
)

func (s Status) String() string {
	switch s {
	case Written:
		return "written"
	case SkippedNoMatch:
		return "skipped"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s Status) reportStatus() progress.FileStatus {
	switch s {
	case Written:
		return progress.StatusWritten
	case SkippedNoMatch:
		return progress.StatusSkipped
	default:
		return progress.StatusFailed
	}
}

// Outcome records what happened to one discovered file.
type Outcome struct {
	File   dcm.DiscoveredFile
	Status Status
	// Key is the key that matched, or the first candidate tried.
	Key    string
	Output string
	Reason string
	Err    error
}

// Stats holds the run counters. Counters only grow; they are safe to read
// while workers are running.
type Stats struct {
	done    atomic.Int64
	errors  atomic.Int64
	skipped atomic.Int64
}

// Done returns the number of files written. In a dry run it counts the
// files that would have been written.
func (s *Stats) Done() int64 { return s.done.Load() }

// Errors returns the number of files that failed.
func (s *Stats) Errors() int64 { return s.errors.Load() }

// Skipped returns the number of files with no matching row.
func (s *Stats) Skipped() int64 { return s.skipped.Load() }

func (s *Stats) record(status Status) {
	switch status {
	case Written:
		s.done.Add(1)
	case SkippedNoMatch:
		s.skipped.Add(1)
	case Failed:
		s.errors.Add(1)
	}
}

// Result is the outcome of a whole run.
type Result struct {
	RunID    string
	DryRun   bool
	Outcomes []Outcome // in discovery order
	Written  int
	Skipped  int
	Failed   int
	Duration time.Duration
	// LogFile is the diagnostic log, when one was written.
	LogFile string
}

// Total returns the number of discovered files.
func (r *Result) Total() int {
	return len(r.Outcomes)
}
