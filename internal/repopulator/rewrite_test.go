package repopulator

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suyashkumar/dicom/pkg/tag"

	dcm "dicom-repopulator/internal/dicom"
	"dicom-repopulator/internal/dicom/dicomtest"
	"dicom-repopulator/internal/mapping"
)

func loadPair(t *testing.T, table, redir string, opts mapping.TableOptions) (*mapping.Table, *mapping.Redirection) {
	t.Helper()
	r, err := mapping.ReadRedirection(strings.NewReader(redir), "redirect.txt")
	require.NoError(t, err)
	if r.HasKey() && opts.KeyColumn == "" {
		opts.KeyColumn = r.KeyColumn
	}
	tbl, err := mapping.ReadTable(strings.NewReader(table), "map.csv", opts)
	require.NoError(t, err)
	return tbl, r
}

func TestRewriterPlan(t *testing.T) {
	tbl, r := loadPair(t,
		"Series,ID,Date\nS1,NewPatientID1,2018-06-01\n",
		"ID:PatientID\nDate:StudyDate\nDate:SeriesDate\n",
		mapping.TableOptions{})

	rw, err := NewRewriter(tbl, r, RewriterOptions{})
	require.NoError(t, err)

	row, ok := tbl.Lookup("S1")
	require.True(t, ok)

	assert.Equal(t, []Assignment{
		{Column: "ID", Field: tag.PatientID, Keyword: "PatientID", Value: "NewPatientID1"},
		{Column: "Date", Field: tag.StudyDate, Keyword: "StudyDate", Value: "2018-06-01"},
		{Column: "Date", Field: tag.SeriesDate, Keyword: "SeriesDate", Value: "2018-06-01"},
	}, rw.Plan(row))
	assert.Equal(t, map[tag.Tag]bool{tag.PatientID: true, tag.StudyDate: true, tag.SeriesDate: true}, rw.Fields())
}

func TestRewriterSkipsKeyPair(t *testing.T) {
	tbl, r := loadPair(t,
		"ID,sopid\nNewPatientID1,1.2.3\n",
		"ID:PatientID\nsopid:SOPInstanceUID\n",
		mapping.TableOptions{})

	rw, err := NewRewriter(tbl, r, RewriterOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, rw.Len())
	assert.False(t, rw.Fields()[tag.SOPInstanceUID])

	withKey, err := NewRewriter(tbl, r, RewriterOptions{IncludeKeyPair: true})
	require.NoError(t, err)
	assert.Equal(t, 2, withKey.Len())
}

func TestRewriterAutoMap(t *testing.T) {
	tbl, r := loadPair(t,
		"File,Patient ID,StudyDate,Registry Ref,Accession\n/a.dcm,P1,2018-06-01,free text,ACC\n",
		"Accession:AccessionNumber\n",
		mapping.TableOptions{})

	rw, err := NewRewriter(tbl, r, RewriterOptions{AutoMapColumns: true})
	require.NoError(t, err)

	fields := rw.Fields()
	assert.True(t, fields[tag.AccessionNumber])
	assert.True(t, fields[tag.PatientID], "header with spaces maps onto its keyword")
	assert.True(t, fields[tag.StudyDate])
	assert.Len(t, fields, 3)

	off, err := NewRewriter(tbl, r, RewriterOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, off.Len())
}

func TestRewriterUnknownColumn(t *testing.T) {
	tbl, r := loadPair(t, "Series,ID\nS1,P\n", "Name:PatientName\n", mapping.TableOptions{})

	_, err := NewRewriter(tbl, r, RewriterOptions{})
	var cfgErr *mapping.ConfigError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestRewriterApply(t *testing.T) {
	tbl, r := loadPair(t,
		"Series,ID,Date,Accession\nS1,NewPatientID1,01/06/2018,ACC9\n",
		"ID:PatientID\nDate:StudyDate\nDate:SeriesDate\nAccession:AccessionNumber\n",
		mapping.TableOptions{})
	rw, err := NewRewriter(tbl, r, RewriterOptions{})
	require.NoError(t, err)

	path := dicomtest.Write(t, filepath.Join(t.TempDir(), "a.dcm"), dicomtest.Fixture{
		PatientID: "OLD",
		StudyDate: "20000101",
	})
	ds, err := dcm.ReadDicom(path)
	require.NoError(t, err)

	row, _ := tbl.Lookup("S1")
	require.NoError(t, rw.Apply(ds, row))

	assert.Equal(t, "NewPatientID1", ds.GetPatientID())
	assert.Equal(t, "20180601", ds.GetTrimmed(tag.StudyDate))
	assert.Equal(t, "20180601", ds.GetTrimmed(tag.SeriesDate), "absent field is created")
	assert.Equal(t, "ACC9", ds.GetTrimmed(tag.AccessionNumber))
}

func TestRewriterApplyBadDate(t *testing.T) {
	tbl, r := loadPair(t, "Series,Date\nS1,sometime\n", "Date:StudyDate\n", mapping.TableOptions{})
	rw, err := NewRewriter(tbl, r, RewriterOptions{})
	require.NoError(t, err)

	path := dicomtest.Write(t, filepath.Join(t.TempDir(), "a.dcm"), dicomtest.Fixture{})
	ds, err := dcm.ReadDicom(path)
	require.NoError(t, err)

	row, _ := tbl.Lookup("S1")
	err = rw.Apply(ds, row)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `column "Date" to StudyDate`)
}
