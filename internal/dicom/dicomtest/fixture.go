// Package dicomtest writes small DICOM files for tests.
package dicomtest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// ExplicitVRLittleEndian is the transfer syntax fixtures are written with.
const ExplicitVRLittleEndian = "1.2.840.10008.1.2.1"

// secondaryCapture is the SOP class used for every fixture.
const secondaryCapture = "1.2.840.10008.5.1.4.1.1.7"

// Fixture describes the identifying fields of one test file.
type Fixture struct {
	PatientID   string
	PatientName string
	StudyUID    string
	SeriesUID   string
	SOPUID      string
	StudyDate   string
	SeriesDate  string
	Modality    string
}

// Write creates a DICOM file at path (parents included) and returns path.
func Write(t testing.TB, path string, f Fixture) string {
	t.Helper()

	if f.Modality == "" {
		f.Modality = "CT"
	}
	if f.SOPUID == "" {
		f.SOPUID = "1.2.826.0.1.3680043.2.1125." + filepath.Base(path)
	}

	elems := []*dicom.Element{
		mustNewElement(t, tag.FileMetaInformationVersion, []byte{0x00, 0x01}),
		mustNewElement(t, tag.MediaStorageSOPClassUID, []string{secondaryCapture}),
		mustNewElement(t, tag.MediaStorageSOPInstanceUID, []string{f.SOPUID}),
		mustNewElement(t, tag.TransferSyntaxUID, []string{ExplicitVRLittleEndian}),
		mustNewElement(t, tag.SOPClassUID, []string{secondaryCapture}),
		mustNewElement(t, tag.SOPInstanceUID, []string{f.SOPUID}),
	}
	optional := []struct {
		t     tag.Tag
		value string
	}{
		{tag.StudyDate, f.StudyDate},
		{tag.SeriesDate, f.SeriesDate},
		{tag.Modality, f.Modality},
		{tag.PatientName, f.PatientName},
		{tag.PatientID, f.PatientID},
		{tag.StudyInstanceUID, f.StudyUID},
		{tag.SeriesInstanceUID, f.SeriesUID},
	}
	for _, o := range optional {
		if o.value != "" {
			elems = append(elems, mustNewElement(t, o.t, []string{o.value}))
		}
	}

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	out, err := os.Create(path)
	require.NoError(t, err)
	defer out.Close()

	err = dicom.Write(out, dicom.Dataset{Elements: elems},
		dicom.SkipVRVerification(),
		dicom.SkipValueTypeVerification(),
	)
	require.NoError(t, err)
	return path
}

// ReadString parses path and returns the trimmed first value of a tag, or
// the empty string when the tag is absent.
func ReadString(t testing.TB, path string, tg tag.Tag) string {
	t.Helper()

	ds, err := dicom.ParseFile(path, nil)
	require.NoError(t, err)

	elem, err := ds.FindElementByTag(tg)
	if err != nil {
		return ""
	}
	values, ok := elem.Value.GetValue().([]string)
	if !ok || len(values) == 0 {
		return ""
	}
	return trim(values[0])
}

func trim(s string) string {
	for len(s) > 0 && (s[len(s)-1] == ' ' || s[len(s)-1] == 0) {
		s = s[:len(s)-1]
	}
	return s
}

func mustNewElement(t testing.TB, tg tag.Tag, data interface{}) *dicom.Element {
	t.Helper()
	elem, err := dicom.NewElement(tg, data)
	require.NoError(t, err)
	return elem
}
