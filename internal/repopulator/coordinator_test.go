package repopulator

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suyashkumar/dicom/pkg/tag"

	"dicom-repopulator/internal/config"
	dcm "dicom-repopulator/internal/dicom"
	"dicom-repopulator/internal/dicom/dicomtest"
	"dicom-repopulator/internal/mapping"
	"dicom-repopulator/internal/progress"
)

func TestProcessSingleFile(t *testing.T) {
	ws := newWorkspace(t)
	ws.mapping("Series,ID\nP1,NewPatientID1\n")
	ws.redirection("ID:PatientID\n")
	ws.file("a.dcm", dicomtest.Fixture{PatientID: "OLD", SeriesUID: "P1"})

	c, err := New(ws.config(), WithRunID("run-1"))
	require.NoError(t, err)
	assert.Equal(t, "run-1", c.RunID())

	res, err := c.Process()
	require.NoError(t, err)

	assert.Equal(t, 1, res.Written)
	assert.EqualValues(t, 1, c.Stats().Done())
	assert.EqualValues(t, 0, c.Stats().Errors())
	assert.Equal(t, "NewPatientID1", dicomtest.ReadString(t, ws.out("a.dcm"), tag.PatientID))
	assert.Equal(t, "P1", res.Outcomes[0].Key)
	assert.Equal(t, ws.out("a.dcm"), res.Outcomes[0].Output)
	assert.Empty(t, res.LogFile, "clean run has no diagnostic log")
}

func TestProcessWrittenAndSkippedCounts(t *testing.T) {
	ws := newWorkspace(t)
	ws.mapping("Series,ID\nS1,NewPatientID1\nS2,NewPatientID2\nS9,Unused\n")
	ws.redirection("ID:PatientID\n")
	ws.file("one/a.dcm", dicomtest.Fixture{SeriesUID: "S1"})
	ws.file("two/b.dcm", dicomtest.Fixture{SeriesUID: "S2"})
	ws.file("three/c.dcm", dicomtest.Fixture{SeriesUID: "S3"})
	ws.file("three/d.dcm", dicomtest.Fixture{})

	c, err := New(ws.config())
	require.NoError(t, err)
	res, err := c.Process()
	require.NoError(t, err)

	assert.Equal(t, 4, res.Total())
	assert.Equal(t, 2, res.Written)
	assert.Equal(t, 2, res.Skipped)
	assert.Equal(t, 0, res.Failed)
	assert.EqualValues(t, 2, c.Stats().Done())
	assert.EqualValues(t, 0, c.Stats().Errors())
	assert.EqualValues(t, 2, c.Stats().Skipped())

	assert.True(t, exists(ws.out("one/a.dcm")))
	assert.True(t, exists(ws.out("two/b.dcm")))
	assert.False(t, exists(ws.out("three/c.dcm")))
	assert.False(t, exists(ws.out("three/d.dcm")))

	// Outcomes follow discovery order.
	var rels []string
	for _, o := range res.Outcomes {
		rels = append(rels, o.File.RelPath)
	}
	assert.True(t, sort.StringsAreSorted(rels))

	assert.Equal(t, ws.out("errors.log"), res.LogFile)
	logData, err := os.ReadFile(res.LogFile)
	require.NoError(t, err)
	assert.Contains(t, string(logData), `no mapping row for key "S3"`)
	assert.Contains(t, string(logData), "no SeriesInstanceUID value to match")
}

func TestProcessDeterministicAcrossWorkers(t *testing.T) {
	ws := newWorkspace(t)
	ws.mapping("Series,ID,Date\nS1,NewPatientID1,2018-06-01\nS2,NewPatientID2,bad date\n")
	ws.redirection("ID:PatientID\nDate:StudyDate\n")
	for i, series := range []string{"S1", "S2", "S3", "S1", "S2", "S1", "S3", "S1"} {
		ws.file(filepath.Join("dir"+series, "img"+string(rune('a'+i))+".dcm"), dicomtest.Fixture{SeriesUID: series})
	}

	run := func(workers int, output string) *Result {
		cfg := ws.config()
		cfg.Workers = workers
		cfg.OutputRoot = filepath.Join(ws.dir, output)
		c, err := New(cfg)
		require.NoError(t, err)
		res, err := c.Process()
		require.NoError(t, err)
		return res
	}

	serial := run(1, "out1")
	parallel := run(4, "out4")

	require.Equal(t, serial.Total(), parallel.Total())
	for i := range serial.Outcomes {
		s, p := serial.Outcomes[i], parallel.Outcomes[i]
		assert.Equal(t, s.File.RelPath, p.File.RelPath)
		assert.Equal(t, s.Status, p.Status, s.File.RelPath)
		assert.Equal(t, s.Reason, p.Reason, s.File.RelPath)

		if s.Status == Written {
			a, err := os.ReadFile(s.Output)
			require.NoError(t, err)
			b, err := os.ReadFile(p.Output)
			require.NoError(t, err)
			assert.Equal(t, a, b, "output of %s differs", s.File.RelPath)
		}
	}
	assert.Equal(t, 4, serial.Written)
	assert.Equal(t, 2, serial.Failed)
	assert.Equal(t, 2, serial.Skipped)
}

func TestProcessFanOutDate(t *testing.T) {
	ws := newWorkspace(t)
	ws.mapping("Series,Date\nS1,01/06/2018\n")
	ws.redirection("Date:StudyDate\nDate:SeriesDate\n")
	ws.file("a.dcm", dicomtest.Fixture{SeriesUID: "S1", StudyDate: "20000101"})

	c, err := New(ws.config())
	require.NoError(t, err)
	_, err = c.Process()
	require.NoError(t, err)

	assert.Equal(t, "20180601", dicomtest.ReadString(t, ws.out("a.dcm"), tag.StudyDate))
	assert.Equal(t, "20180601", dicomtest.ReadString(t, ws.out("a.dcm"), tag.SeriesDate))
}

func TestProcessKeyNotFirstColumn(t *testing.T) {
	for _, anonymise := range []bool{false, true} {
		t.Run(map[bool]string{false: "plain", true: "anonymise"}[anonymise], func(t *testing.T) {
			ws := newWorkspace(t)
			ws.mapping("ID,sopid\nNewPatientID1,1.2.3.4\n")
			ws.redirection("ID:PatientID\nsopid:SOPInstanceUID\n")
			ws.file("a.dcm", dicomtest.Fixture{
				PatientID:   "OLD",
				PatientName: "Doe^Jane",
				SeriesUID:   "NewPatientID1",
				SOPUID:      "1.2.3.4",
				StudyDate:   "20180615",
			})

			cfg := ws.config()
			cfg.Anonymise = anonymise
			c, err := New(cfg)
			require.NoError(t, err)
			res, err := c.Process()
			require.NoError(t, err)
			require.Equal(t, 1, res.Written)
			assert.Equal(t, "1.2.3.4", res.Outcomes[0].Key)

			out := ws.out("a.dcm")
			assert.Equal(t, "NewPatientID1", dicomtest.ReadString(t, out, tag.PatientID))
			assert.Equal(t, "1.2.3.4", dicomtest.ReadString(t, out, tag.SOPInstanceUID))
			if anonymise {
				assert.Equal(t, "", dicomtest.ReadString(t, out, tag.PatientName))
				assert.Equal(t, "20180601", dicomtest.ReadString(t, out, tag.StudyDate))
			} else {
				assert.Equal(t, "Doe^Jane", dicomtest.ReadString(t, out, tag.PatientName))
			}
		})
	}
}

func TestProcessPathMode(t *testing.T) {
	ws := newWorkspace(t)
	target := ws.file("a/img.dcm", dicomtest.Fixture{PatientID: "OLD"})
	ws.file("b/img.dcm", dicomtest.Fixture{PatientID: "OLD"})
	ws.file("c/img.dcm", dicomtest.Fixture{PatientID: "OLD"})
	ws.mapping(" File ,ID\n" + target + ",NewPatientID1\nc/img.dcm,NewPatientID3\nimg.dcm,Never\n")
	ws.redirection("ID:PatientID\n")

	cfg := ws.config()
	cfg.PathColumn = "file"
	c, err := New(cfg)
	require.NoError(t, err)
	res, err := c.Process()
	require.NoError(t, err)

	assert.Equal(t, 2, res.Written)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, "NewPatientID1", dicomtest.ReadString(t, ws.out("a/img.dcm"), tag.PatientID))
	assert.Equal(t, "NewPatientID3", dicomtest.ReadString(t, ws.out("c/img.dcm"), tag.PatientID))
	assert.False(t, exists(ws.out("b/img.dcm")))
}

func TestProcessTwoSeries(t *testing.T) {
	ws := newWorkspace(t)
	ws.mapping("Series,ID\nS1,NewPatientID1\nS2,NewPatientID2\n")
	ws.redirection("ID:PatientID\n")
	ws.file("Series1/1.dcm", dicomtest.Fixture{SeriesUID: "S1"})
	ws.file("Series1/2.dcm", dicomtest.Fixture{SeriesUID: "S1"})
	ws.file("Series2/1.dcm", dicomtest.Fixture{SeriesUID: "S2"})
	ws.file("Series2/2.dcm", dicomtest.Fixture{SeriesUID: "S2"})

	cfg := ws.config()
	cfg.Workers = 4
	c, err := New(cfg)
	require.NoError(t, err)
	_, err = c.Process()
	require.NoError(t, err)

	assert.EqualValues(t, 4, c.Stats().Done())
	for _, rel := range []string{"Series1/1.dcm", "Series1/2.dcm"} {
		assert.Equal(t, "NewPatientID1", dicomtest.ReadString(t, ws.out(rel), tag.PatientID), rel)
	}
	for _, rel := range []string{"Series2/1.dcm", "Series2/2.dcm"} {
		assert.Equal(t, "NewPatientID2", dicomtest.ReadString(t, ws.out(rel), tag.PatientID), rel)
	}
}

func TestNewMissingMappingTable(t *testing.T) {
	ws := newWorkspace(t)
	ws.table = filepath.Join(ws.dir, "missing.csv")
	ws.file("a.dcm", dicomtest.Fixture{SeriesUID: "S1"})

	_, err := New(ws.config())

	var loadErr *mapping.LoadError
	require.True(t, errors.As(err, &loadErr), "got %v", err)
	assert.False(t, exists(ws.output))
}

func TestNewFatalErrors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(ws *workspace, cfg *config.Config)
		check func(t *testing.T, err error)
	}{
		{
			name: "malformed redirection",
			setup: func(ws *workspace, cfg *config.Config) {
				ws.redirection("ID PatientID\n")
				cfg.RedirectionFile = ws.redir
			},
			check: func(t *testing.T, err error) {
				var cfgErr *mapping.ConfigError
				assert.True(t, errors.As(err, &cfgErr))
			},
		},
		{
			name: "redirection names unknown column",
			setup: func(ws *workspace, cfg *config.Config) {
				ws.redirection("Name:PatientName\n")
				cfg.RedirectionFile = ws.redir
			},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, mapping.ErrUnknownColumn)
			},
		},
		{
			name: "duplicate key",
			setup: func(ws *workspace, cfg *config.Config) {
				ws.mapping("Series,ID\nS1,a\nS1,b\n")
				cfg.MappingFile = ws.table
			},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, mapping.ErrDuplicateKey)
			},
		},
		{
			name: "unknown key field",
			setup: func(ws *workspace, cfg *config.Config) {
				cfg.KeyField = "NoSuchField"
			},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, mapping.ErrUnknownField)
			},
		},
		{
			name: "unknown path column",
			setup: func(ws *workspace, cfg *config.Config) {
				cfg.PathColumn = "File"
			},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, mapping.ErrUnknownColumn)
			},
		},
		{
			name: "output is a file",
			setup: func(ws *workspace, cfg *config.Config) {
				require.NoError(t, os.WriteFile(ws.output, []byte("x"), 0644))
			},
			check: func(t *testing.T, err error) {
				var verr *config.ValidationError
				assert.True(t, errors.As(err, &verr))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ws := newWorkspace(t)
			ws.mapping("Series,ID\nS1,NewPatientID1\n")
			cfg := ws.config()
			tt.setup(ws, &cfg)

			_, err := New(cfg)
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestProcessIsolatesFailures(t *testing.T) {
	ws := newWorkspace(t)
	ws.mapping("Series,ID\nS1,NewPatientID1\n")
	ws.redirection("ID:PatientID\n")
	ws.file("good.dcm", dicomtest.Fixture{SeriesUID: "S1"})
	require.NoError(t, os.WriteFile(filepath.Join(ws.input, "broken.dcm"), []byte("garbage"), 0644))

	c, err := New(ws.config())
	require.NoError(t, err)
	res, err := c.Process()
	require.NoError(t, err)

	assert.Equal(t, 1, res.Written)
	assert.Equal(t, 1, res.Failed)
	assert.EqualValues(t, 1, c.Stats().Errors())
	assert.False(t, exists(ws.out("broken.dcm")))

	var failed Outcome
	for _, o := range res.Outcomes {
		if o.Status == Failed {
			failed = o
		}
	}
	assert.Equal(t, "broken.dcm", failed.File.RelPath)
	assert.Error(t, failed.Err)
}

type panicCodec struct{ dcm.FileCodec }

func (panicCodec) Open(path string) (*dcm.Dataset, error) {
	if strings.HasSuffix(path, "boom.dcm") {
		panic("codec exploded")
	}
	return dcm.ReadDicom(path)
}

func TestProcessRecoversPanics(t *testing.T) {
	ws := newWorkspace(t)
	ws.mapping("Series,ID\nS1,NewPatientID1\n")
	ws.redirection("ID:PatientID\n")
	ws.file("boom.dcm", dicomtest.Fixture{SeriesUID: "S1"})
	ws.file("ok.dcm", dicomtest.Fixture{SeriesUID: "S1"})

	cfg := ws.config()
	cfg.Workers = 2
	c, err := New(cfg, WithCodec(panicCodec{}))
	require.NoError(t, err)
	res, err := c.Process()
	require.NoError(t, err)

	assert.Equal(t, Failed, res.Outcomes[0].Status)
	assert.Contains(t, res.Outcomes[0].Reason, "codec exploded")
	assert.Equal(t, Written, res.Outcomes[1].Status)
}

func TestPlanWritesNothing(t *testing.T) {
	ws := newWorkspace(t)
	ws.mapping("Series,ID,Date\nS1,NewPatientID1,2018-06-01\nS2,NewPatientID2,soon\n")
	ws.redirection("ID:PatientID\nDate:StudyDate\n")
	ws.file("a.dcm", dicomtest.Fixture{SeriesUID: "S1"})
	ws.file("b.dcm", dicomtest.Fixture{SeriesUID: "S2"})
	ws.file("c.dcm", dicomtest.Fixture{SeriesUID: "S3"})

	c, err := New(ws.config())
	require.NoError(t, err)
	res, err := c.Plan()
	require.NoError(t, err)

	assert.True(t, res.DryRun)
	assert.Equal(t, 1, res.Written)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Skipped)
	assert.Empty(t, res.LogFile)
	assert.False(t, exists(ws.output))

	// Dry runs count the files that would be written.
	assert.EqualValues(t, 1, c.Stats().Done())
	assert.EqualValues(t, 1, c.Stats().Errors())
	assert.EqualValues(t, 1, c.Stats().Skipped())
}

func TestProcessUnwritableLogFile(t *testing.T) {
	ws := newWorkspace(t)
	ws.mapping("Series,ID\nS1,NewPatientID1\n")
	ws.redirection("ID:PatientID\n")
	ws.file("a.dcm", dicomtest.Fixture{SeriesUID: "S1"})
	ws.file("b.dcm", dicomtest.Fixture{SeriesUID: "S2"})

	blocker := filepath.Join(ws.dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	cfg := ws.config()
	cfg.LogFile = filepath.Join(blocker, "errors.log")
	c, err := New(cfg)
	require.NoError(t, err)
	res, err := c.Process()
	require.NoError(t, err)

	assert.Equal(t, 1, res.Written)
	assert.Equal(t, 1, res.Skipped)
	assert.Empty(t, res.LogFile)
}

func TestNewUnwritableOutputRoot(t *testing.T) {
	ws := newWorkspace(t)
	ws.mapping("Series,ID\nS1,NewPatientID1\n")
	ws.file("a.dcm", dicomtest.Fixture{SeriesUID: "S1"})

	blocker := filepath.Join(ws.dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	cfg := ws.config()
	cfg.OutputRoot = filepath.Join(blocker, "out")
	_, err := New(cfg)

	var verr *config.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields["output"], "cannot be created")
}

func TestProcessExcludesNestedOutput(t *testing.T) {
	ws := newWorkspace(t)
	ws.mapping("Series,ID\nS1,NewPatientID1\n")
	ws.redirection("ID:PatientID\n")
	ws.file("a.dcm", dicomtest.Fixture{SeriesUID: "S1"})

	cfg := ws.config()
	cfg.OutputRoot = filepath.Join(ws.input, "repopulated")

	for run := 0; run < 2; run++ {
		c, err := New(cfg)
		require.NoError(t, err)
		res, err := c.Process()
		require.NoError(t, err)
		assert.Equal(t, 1, res.Total(), "run %d", run)
	}
}

func TestProcessReportAndProgress(t *testing.T) {
	ws := newWorkspace(t)
	ws.mapping("Series,ID\nS1,NewPatientID1\n")
	ws.redirection("ID:PatientID\n")
	ws.file("a.dcm", dicomtest.Fixture{SeriesUID: "S1"})
	ws.file("b.dcm", dicomtest.Fixture{SeriesUID: "S2"})

	cfg := ws.config()
	cfg.Workers = 2
	cfg.ReportFile = filepath.Join(ws.dir, "report.json")
	cfg.LogFile = filepath.Join(ws.dir, "diag.log")

	var seen []int
	c, err := New(cfg, WithProgress(func(current, total int, _, _ string) {
		assert.Equal(t, 2, total)
		seen = append(seen, current)
	}))
	require.NoError(t, err)
	_, err = c.Process()
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2}, seen)
	assert.True(t, exists(cfg.LogFile))
	assert.False(t, exists(ws.out("errors.log")))

	report, err := progress.LoadReport(cfg.ReportFile)
	require.NoError(t, err)
	assert.Equal(t, c.RunID(), report.RunID)
	assert.Equal(t, progress.Summary{Written: 1, Skipped: 1, Total: 2}, report.Summary)
	require.Len(t, report.Files, 2)
	assert.Equal(t, "a.dcm", report.Files[0].File)
	assert.Equal(t, progress.StatusWritten, report.Files[0].Status)
	assert.Equal(t, progress.StatusSkipped, report.Files[1].Status)
}

func TestProcessNoRedirectionChangesNothing(t *testing.T) {
	ws := newWorkspace(t)
	ws.mapping("Series,PatientID\nS1,NewPatientID1\n")
	ws.file("a.dcm", dicomtest.Fixture{SeriesUID: "S1", PatientID: "OLD"})

	c, err := New(ws.config())
	require.NoError(t, err)
	res, err := c.Process()
	require.NoError(t, err)
	require.Equal(t, 1, res.Written)
	assert.Equal(t, "OLD", dicomtest.ReadString(t, ws.out("a.dcm"), tag.PatientID))

	cfg := ws.config()
	cfg.AutoMapColumns = true
	cfg.OutputRoot = filepath.Join(ws.dir, "auto")
	c, err = New(cfg)
	require.NoError(t, err)
	_, err = c.Process()
	require.NoError(t, err)
	assert.Equal(t, "NewPatientID1", dicomtest.ReadString(t, filepath.Join(cfg.OutputRoot, "a.dcm"), tag.PatientID))
}

type recordingAnonymizer struct {
	calls int
	keep  map[tag.Tag]bool
}

func (r *recordingAnonymizer) Anonymize(_ *dcm.Dataset, keep map[tag.Tag]bool) {
	r.calls++
	r.keep = keep
}

func TestProcessAnonymizerKeepsWrittenFields(t *testing.T) {
	ws := newWorkspace(t)
	ws.mapping("Series,ID,Date\nS1,NewPatientID1,20240101\n")
	ws.redirection("ID:PatientID\nDate:StudyDate\n")
	ws.file("a.dcm", dicomtest.Fixture{SeriesUID: "S1"})
	ws.file("b.dcm", dicomtest.Fixture{SeriesUID: "S2"})

	cfg := ws.config()
	cfg.Anonymise = true
	anon := &recordingAnonymizer{}
	c, err := New(cfg, WithAnonymizer(anon))
	require.NoError(t, err)
	_, err = c.Process()
	require.NoError(t, err)

	assert.Equal(t, 1, anon.calls, "only matched files are anonymised")
	assert.True(t, anon.keep[tag.PatientID])
	assert.True(t, anon.keep[tag.StudyDate])
	assert.False(t, anon.keep[tag.PatientName])
}

func TestProcessAnonymizerOffByDefault(t *testing.T) {
	ws := newWorkspace(t)
	ws.mapping("Series,ID\nS1,NewPatientID1\n")
	ws.redirection("ID:PatientID\n")
	ws.file("a.dcm", dicomtest.Fixture{SeriesUID: "S1"})

	anon := &recordingAnonymizer{}
	c, err := New(ws.config(), WithAnonymizer(anon))
	require.NoError(t, err)
	_, err = c.Process()
	require.NoError(t, err)

	assert.Zero(t, anon.calls)
}
