package dicom

import (
	"fmt"
	"os"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// Dataset wraps a DICOM dataset for easier access
type Dataset struct {
	Data     dicom.Dataset
	FilePath string
}

// ReadDicom reads a DICOM file and returns the dataset.
func ReadDicom(path string) (*Dataset, error) {
	return readDicom(path)
}

// ReadDicomMetadataOnly reads only the metadata (no pixel data).
func ReadDicomMetadataOnly(path string) (*Dataset, error) {
	return readDicom(path, dicom.SkipPixelData())
}

func readDicom(path string, opts ...dicom.ParseOption) (*Dataset, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("could not stat file: %w", err)
	}

	ds, err := dicom.Parse(file, info.Size(), nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("could not parse DICOM: %w", err)
	}

	return &Dataset{
		Data:     ds,
		FilePath: path,
	}, nil
}

// GetString returns a string value for a tag, or empty string if not found.
// Multi-valued elements are joined with the DICOM backslash delimiter.
func (d *Dataset) GetString(t tag.Tag) string {
	elem, err := d.Data.FindElementByTag(t)
	if err != nil || elem.Value == nil {
		return ""
	}

	raw := elem.Value.GetValue()
	if raw == nil {
		return ""
	}

	switch v := raw.(type) {
	case []string:
		return strings.Join(v, `\`)
	case string:
		return v
	}

	return fmt.Sprintf("%v", raw)
}

// GetTrimmed returns the tag value with DICOM padding (spaces and NULs) removed.
func (d *Dataset) GetTrimmed(t tag.Tag) string {
	return strings.Trim(d.GetString(t), " \x00")
}

// Has reports whether the dataset carries an element for the tag.
func (d *Dataset) Has(t tag.Tag) bool {
	_, err := d.Data.FindElementByTag(t)
	return err == nil
}

// GetPatientID returns the patient ID.
func (d *Dataset) GetPatientID() string {
	return d.GetTrimmed(tag.PatientID)
}
