// Package anonymizer implements the optional de-identification pass run on
// each dataset after its fields have been repopulated.
package anonymizer

import (
	"github.com/suyashkumar/dicom/pkg/tag"

	dcm "dicom-repopulator/internal/dicom"
)

// Anonymizer clears identifying tags and coarsens dates in place.
type Anonymizer struct {
	clear    []tag.Tag
	truncate []tag.Tag
}

// New returns an anonymizer using the default tag lists.
func New() *Anonymizer {
	return &Anonymizer{
		clear:    PIITagsToClear,
		truncate: DateTagsToTruncate,
	}
}

// Anonymize clears PII tags and truncates dates to YYYYMM01. Tags in keep
// are left alone, so values written by the repopulation survive.
func (a *Anonymizer) Anonymize(ds *dcm.Dataset, keep map[tag.Tag]bool) {
	for _, t := range a.clear {
		if !keep[t] {
			ds.ClearTag(t)
		}
	}

	// Year and month stay for research use.
	for _, t := range a.truncate {
		if !keep[t] {
			ds.TruncateDate(t)
		}
	}
}
