package repopulator

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"dicom-repopulator/internal/config"
	"dicom-repopulator/internal/dicom/dicomtest"
)

// workspace lays out a mapping table, a redirection file, an input tree and
// an output root inside a temp directory.
type workspace struct {
	t      testing.TB
	dir    string
	input  string
	output string
	table  string
	redir  string
}

func newWorkspace(t testing.TB) *workspace {
	t.Helper()
	dir := t.TempDir()
	ws := &workspace{
		t:      t,
		dir:    dir,
		input:  filepath.Join(dir, "in"),
		output: filepath.Join(dir, "out"),
	}
	require.NoError(t, os.MkdirAll(ws.input, 0755))
	return ws
}

func (ws *workspace) file(rel string, f dicomtest.Fixture) string {
	ws.t.Helper()
	return dicomtest.Write(ws.t, filepath.Join(ws.input, rel), f)
}

func (ws *workspace) mapping(content string) {
	ws.t.Helper()
	ws.table = filepath.Join(ws.dir, "map.csv")
	require.NoError(ws.t, os.WriteFile(ws.table, []byte(content), 0644))
}

func (ws *workspace) redirection(content string) {
	ws.t.Helper()
	ws.redir = filepath.Join(ws.dir, "redirect.txt")
	require.NoError(ws.t, os.WriteFile(ws.redir, []byte(content), 0644))
}

func (ws *workspace) config() config.Config {
	cfg := config.Default()
	cfg.MappingFile = ws.table
	cfg.RedirectionFile = ws.redir
	cfg.InputRoot = ws.input
	cfg.OutputRoot = ws.output
	cfg.Workers = 1
	return cfg
}

func (ws *workspace) out(rel string) string {
	return filepath.Join(ws.output, rel)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
