// Package repopulator rewrites DICOM fields across a file tree from a
// mapping table, mirroring the tree into an output directory.
package repopulator

import (
	"fmt"
	"path/filepath"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/suyashkumar/dicom/pkg/tag"

	"dicom-repopulator/internal/anonymizer"
	"dicom-repopulator/internal/config"
	dcm "dicom-repopulator/internal/dicom"
	"dicom-repopulator/internal/logger"
	"dicom-repopulator/internal/mapping"
	"dicom-repopulator/internal/progress"
)

// Anonymizer is the optional pass applied after rewriting. Fields in keep
// were just written and must not be altered.
type Anonymizer interface {
	Anonymize(ds *dcm.Dataset, keep map[tag.Tag]bool)
}

// ProgressCallback is called after each file with its 1-based position,
// the total, the file's relative path and its status.
type ProgressCallback func(current, total int, filename, status string)

// Option customises a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *logger.Logger) Option {
	return func(c *Coordinator) { c.log = l }
}

// WithCodec replaces the filesystem codec.
func WithCodec(codec dcm.Codec) Option {
	return func(c *Coordinator) { c.codec = codec }
}

// WithAnonymizer replaces the anonymizer used when anonymisation is on.
func WithAnonymizer(a Anonymizer) Option {
	return func(c *Coordinator) { c.anonymizer = a }
}

// WithProgress registers a progress callback. It is never called
// concurrently.
func WithProgress(cb ProgressCallback) Option {
	return func(c *Coordinator) { c.progress = cb }
}

// WithRunID fixes the run id instead of generating one.
func WithRunID(id string) Option {
	return func(c *Coordinator) { c.runID = id }
}

// Coordinator runs one repopulation over a file tree. Build it with New,
// which loads and validates everything that can fail before any file is
// touched.
type Coordinator struct {
	cfg        config.Config
	inputRoot  string
	outputRoot string
	workers    int

	table       *mapping.Table
	redirection *mapping.Redirection
	resolver    *KeyResolver
	rewriter    *Rewriter
	keep        map[tag.Tag]bool

	codec      dcm.Codec
	anonymizer Anonymizer
	log        *logger.Logger
	progress   ProgressCallback
	runID      string

	stats Stats
}

// New validates cfg and loads the redirection and mapping table.
func New(cfg config.Config, opts ...Option) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Coordinator{
		cfg:     cfg,
		workers: cfg.EffectiveWorkers(),
		codec:   dcm.FileCodec{},
		log:     logger.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.runID == "" {
		c.runID = uuid.NewString()
	}
	c.log = c.log.With("run_id", c.runID)
	switch {
	case !cfg.Anonymise:
		c.anonymizer = nil
	case c.anonymizer == nil:
		c.anonymizer = anonymizer.New()
	}

	var err error
	if c.inputRoot, err = filepath.Abs(cfg.InputRoot); err != nil {
		return nil, fmt.Errorf("resolve input root: %w", err)
	}
	if c.outputRoot, err = filepath.Abs(cfg.OutputRoot); err != nil {
		return nil, fmt.Errorf("resolve output root: %w", err)
	}

	c.redirection, err = mapping.LoadRedirection(cfg.RedirectionFile)
	if err != nil {
		return nil, err
	}

	tableOpts := mapping.TableOptions{}
	if tableOpts.Delimiter, err = mapping.ParseDelimiter(cfg.Delimiter, ','); err != nil {
		return nil, &config.ValidationError{Fields: map[string]string{"delimiter": err.Error()}}
	}
	if tableOpts.Comment, err = mapping.ParseDelimiter(cfg.Comment, 0); err != nil {
		return nil, &config.ValidationError{Fields: map[string]string{"comment": err.Error()}}
	}

	if cfg.PathMode() {
		tableOpts.KeyColumn = cfg.PathColumn
		tableOpts.NormalizeKey = NormalizePathKey
		c.resolver = NewPathResolver()
	} else {
		keyField := c.redirection.KeyField
		if c.redirection.HasKey() {
			tableOpts.KeyColumn = c.redirection.KeyColumn
		} else {
			keyField, _, err = mapping.ResolveField(cfg.KeyField)
			if err != nil {
				return nil, &mapping.ConfigError{Err: fmt.Errorf("key field: %w", err)}
			}
		}
		c.resolver = NewFieldResolver(keyField)
	}

	c.table, err = mapping.LoadTable(cfg.MappingFile, tableOpts)
	if err != nil {
		return nil, err
	}

	c.rewriter, err = NewRewriter(c.table, c.redirection, RewriterOptions{
		IncludeKeyPair: cfg.PathMode(),
		AutoMapColumns: cfg.AutoMapColumns,
	})
	if err != nil {
		return nil, err
	}
	c.keep = c.rewriter.Fields()

	c.log.Debug("mapping loaded",
		"table", cfg.MappingFile,
		"rows", c.table.Len(),
		"key_column", c.table.KeyColumn,
		"key_mode", c.resolver.Mode().String(),
		"assignments", c.rewriter.Len())

	return c, nil
}

// Stats returns the live run counters.
func (c *Coordinator) Stats() *Stats { return &c.stats }

// RunID identifies this run in logs and the report.
func (c *Coordinator) RunID() string { return c.runID }

// Table returns the loaded mapping table.
func (c *Coordinator) Table() *mapping.Table { return c.table }

// Process discovers every file under the input root and repopulates it.
// Per-file problems are recorded as outcomes; the returned error is only
// set when the run could not proceed at all.
func (c *Coordinator) Process() (*Result, error) {
	return c.run(c.cfg.DryRun)
}

// Plan resolves every file against the mapping table and checks that its
// values convert, without writing anything.
func (c *Coordinator) Plan() (*Result, error) {
	return c.run(true)
}

func (c *Coordinator) run(dryRun bool) (*Result, error) {
	started := time.Now()

	files, err := dcm.FindDicomFiles(c.inputRoot, dcm.FindOptions{
		Recursive:    true,
		ExcludePaths: []string{c.outputRoot},
	})
	if err != nil {
		return nil, fmt.Errorf("could not find DICOM files: %w", err)
	}

	workers := c.workers
	// Don't use more workers than files
	if workers > len(files) {
		workers = len(files)
	}
	c.log.Info("starting run",
		"input", c.inputRoot,
		"output", c.outputRoot,
		"files", len(files),
		"workers", workers,
		"dry_run", dryRun)

	var diag *progress.ErrorLogger
	if !dryRun {
		diag = progress.NewErrorLogger(c.logFile())
	}

	outcomes := make([]Outcome, len(files))
	tasks := make(chan int, len(files))
	results := make(chan int, len(files))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range tasks {
				outcomes[i] = c.processFile(files[i], dryRun)
				results <- i
			}
		}()
	}

	for i := range files {
		tasks <- i
	}
	close(tasks)

	go func() {
		wg.Wait()
		close(results)
	}()

	completed := 0
	for i := range results {
		completed++
		out := outcomes[i]
		c.stats.record(out.Status)
		c.logOutcome(out, diag)
		if c.progress != nil {
			c.progress(completed, len(files), out.File.RelPath, out.Status.String())
		}
	}

	result := &Result{
		RunID:    c.runID,
		DryRun:   dryRun,
		Outcomes: outcomes,
		Duration: time.Since(started),
	}
	for _, out := range outcomes {
		switch out.Status {
		case Written:
			result.Written++
		case SkippedNoMatch:
			result.Skipped++
		case Failed:
			result.Failed++
		}
	}

	if diag != nil {
		if err := diag.Close(); err != nil {
			c.log.WithError(err).Warn("could not write diagnostic log", "file", c.logFile())
		}
		result.LogFile = diag.File()
		c.log.Debug("diagnostics", "summary", diag.Summary())
	}
	if c.cfg.ReportFile != "" {
		if err := c.saveReport(result, started); err != nil {
			c.log.WithError(err).Warn("could not write report", "file", c.cfg.ReportFile)
		}
	}

	c.log.Info("run complete",
		"written", result.Written,
		"skipped", result.Skipped,
		"failed", result.Failed,
		"duration", result.Duration.Round(time.Millisecond))

	return result, nil
}

// processFile runs the full read, match, rewrite and write sequence for one
// file. It never panics and never returns a partial write.
func (c *Coordinator) processFile(f dcm.DiscoveredFile, dryRun bool) (out Outcome) {
	out = Outcome{File: f}

	defer func() {
		if r := recover(); r != nil {
			c.log.Error("panic while processing file",
				"file", f.RelPath,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()))
			out.Status = Failed
			out.Output = ""
			out.Err = fmt.Errorf("panic: %v", r)
			out.Reason = out.Err.Error()
		}
	}()

	fail := func(err error) Outcome {
		out.Status = Failed
		out.Output = ""
		out.Err = err
		out.Reason = err.Error()
		return out
	}

	open := c.codec.Open
	if dryRun {
		open = c.codec.OpenHeader
	}

	var ds *dcm.Dataset
	var err error
	if c.resolver.NeedsDataset() {
		if ds, err = open(f.Path); err != nil {
			return fail(err)
		}
	}

	keys := c.resolver.Keys(f, ds)
	row, key, ok := c.lookup(keys)
	out.Key = key
	if !ok {
		out.Status = SkippedNoMatch
		if len(keys) == 0 {
			out.Reason = fmt.Sprintf("no %s value to match", fieldName(c.resolver.Field()))
		} else {
			out.Reason = fmt.Sprintf("no mapping row for key %q", key)
		}
		return out
	}

	out.Output = filepath.Join(c.outputRoot, f.RelPath)

	if dryRun {
		vrOf := dcm.DictionaryVR
		if ds != nil {
			vrOf = ds.FieldVR
		}
		if _, err := c.rewriter.Convert(row, vrOf); err != nil {
			return fail(err)
		}
		out.Status = Written
		return out
	}

	if ds == nil {
		if ds, err = c.codec.Open(f.Path); err != nil {
			return fail(err)
		}
	}

	if err := c.rewriter.Apply(ds, row); err != nil {
		return fail(err)
	}
	if c.anonymizer != nil {
		c.anonymizer.Anonymize(ds, c.keep)
	}
	if err := c.codec.Write(ds, out.Output); err != nil {
		return fail(err)
	}

	out.Status = Written
	return out
}

// lookup tries each candidate key in order. With no match it returns the
// first candidate so the outcome can name it.
func (c *Coordinator) lookup(keys []string) (*mapping.Row, string, bool) {
	for _, k := range keys {
		if row, ok := c.table.Lookup(k); ok {
			return row, k, true
		}
	}
	if len(keys) > 0 {
		return nil, keys[0], false
	}
	return nil, "", false
}

func (c *Coordinator) logOutcome(out Outcome, diag *progress.ErrorLogger) {
	switch out.Status {
	case Written:
		c.log.Debug("file written", "file", out.File.RelPath, "key", out.Key)
	case SkippedNoMatch:
		c.log.Debug("file skipped", "file", out.File.RelPath, "reason", out.Reason)
		if diag != nil {
			diag.Log(out.File.RelPath, out.Status.String(), out.Reason)
		}
	case Failed:
		c.log.Warn("file failed", "file", out.File.RelPath, "error", out.Reason)
		if diag != nil {
			diag.Log(out.File.RelPath, out.Status.String(), out.Reason)
		}
	}
}

func (c *Coordinator) logFile() string {
	if c.cfg.LogFile != "" {
		return c.cfg.LogFile
	}
	return filepath.Join(c.outputRoot, "errors.log")
}

func (c *Coordinator) saveReport(result *Result, started time.Time) error {
	report := progress.NewReport(c.runID, started)
	report.DryRun = result.DryRun
	report.Mapping = c.cfg.MappingFile
	report.Input = c.inputRoot
	report.Output = c.outputRoot

	for _, out := range result.Outcomes {
		report.Add(progress.FileEntry{
			File:   out.File.RelPath,
			Status: out.Status.reportStatus(),
			Key:    out.Key,
			Output: out.Output,
			Error:  errorText(out),
		})
	}
	return report.Save(c.cfg.ReportFile, time.Now())
}

func fieldName(t tag.Tag) string {
	if info, err := tag.Find(t); err == nil {
		return info.Name
	}
	return t.String()
}

func errorText(out Outcome) string {
	if out.Status == Written {
		return ""
	}
	return out.Reason
}
