package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"

	"dicom-repopulator/internal/config"
)

// ErrHelp is returned by ParseArgs when -h or --help is given.
var ErrHelp = errors.New("help requested")

// Options is the parsed command line. Flags that were not given leave the
// run file and the defaults in effect.
type Options struct {
	ConfigFile string
	Quiet      bool
	NoColor    bool

	flags flagValues
	set   map[string]bool
}

type flagValues struct {
	mapping     string
	redirection string
	input       string
	output      string
	workers     int
	keyField    string
	pathColumn  string
	anonymise   bool
	delimiter   string
	comment     string
	autoMap     bool
	dryRun      bool
	logFile     string
	report      string
	logLevel    string
	logFormat   string
}

// canonical maps every flag spelling to the option it sets.
var canonical = map[string]string{
	"m":           "mapping",
	"mapping":     "mapping",
	"r":           "redirection",
	"redirect":    "redirection",
	"redirection": "redirection",
	"i":           "input",
	"input":       "input",
	"o":           "output",
	"output":      "output",
	"w":           "workers",
	"workers":     "workers",
	"key-field":   "key-field",
	"p":           "path-column",
	"path-column": "path-column",
	"a":           "anonymise",
	"anonymise":   "anonymise",
	"anonymize":   "anonymise",
	"delimiter":   "delimiter",
	"comment":     "comment",
	"auto-map":    "auto-map",
	"n":           "dry-run",
	"dry-run":     "dry-run",
	"log-file":    "log-file",
	"report":      "report",
	"log-level":   "log-level",
	"log-format":  "log-format",
}

// ParseArgs parses command-line arguments (without the program name).
func ParseArgs(args []string) (*Options, error) {
	opts := &Options{set: make(map[string]bool)}
	v := &opts.flags

	fs := flag.NewFlagSet("dicom-repopulator", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	stringFlag := func(p *string, usage string, names ...string) {
		for _, name := range names {
			fs.StringVar(p, name, "", usage)
		}
	}
	boolFlag := func(p *bool, usage string, names ...string) {
		for _, name := range names {
			fs.BoolVar(p, name, false, usage)
		}
	}

	stringFlag(&opts.ConfigFile, "YAML run file", "c", "config")
	stringFlag(&v.mapping, "Mapping table (CSV)", "m", "mapping")
	stringFlag(&v.redirection, "Column-to-field redirection file", "r", "redirect", "redirection")
	stringFlag(&v.input, "Input folder containing DICOM files", "i", "input")
	stringFlag(&v.output, "Output folder for repopulated files", "o", "output")
	fs.IntVar(&v.workers, "w", 0, "Parallel workers")
	fs.IntVar(&v.workers, "workers", 0, "Parallel workers")
	stringFlag(&v.keyField, "DICOM field matched against the key column", "key-field")
	stringFlag(&v.pathColumn, "Match files by the path in this column", "p", "path-column")
	boolFlag(&v.anonymise, "Anonymise after repopulating", "a", "anonymise", "anonymize")
	stringFlag(&v.delimiter, "Mapping table delimiter", "delimiter")
	stringFlag(&v.comment, "Mapping table comment character", "comment")
	boolFlag(&v.autoMap, "Map columns named after DICOM keywords", "auto-map")
	boolFlag(&v.dryRun, "Preview only, no files written", "n", "dry-run")
	stringFlag(&v.logFile, "Diagnostic log file", "log-file")
	stringFlag(&v.report, "JSON report file", "report")
	stringFlag(&v.logLevel, "Log level (debug, info, warn, error)", "log-level")
	stringFlag(&v.logFormat, "Log format (pretty, json)", "log-format")
	boolFlag(&opts.Quiet, "Hide the progress bar", "q", "quiet")
	boolFlag(&opts.NoColor, "Disable colored log output", "no-color")

	var help bool
	boolFlag(&help, "Show help message", "h", "help")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, ErrHelp
		}
		return nil, err
	}
	if help {
		return nil, ErrHelp
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected argument %q", fs.Arg(0))
	}

	fs.Visit(func(f *flag.Flag) {
		if name, ok := canonical[f.Name]; ok {
			opts.set[name] = true
		}
	})

	return opts, nil
}

// Interactive reports whether no run was described at all, in which case
// the GUI starts.
func (o *Options) Interactive() bool {
	return o.ConfigFile == "" && len(o.set) == 0
}

// Config builds the run configuration: defaults, then the run file, then flags.
func (o *Options) Config() (config.Config, error) {
	cfg := config.Default()
	if o.ConfigFile != "" {
		var err error
		if cfg, err = config.Load(o.ConfigFile); err != nil {
			return cfg, err
		}
	}

	v := o.flags
	overrides := map[string]func(){
		"mapping":     func() { cfg.MappingFile = v.mapping },
		"redirection": func() { cfg.RedirectionFile = v.redirection },
		"input":       func() { cfg.InputRoot = v.input },
		"output":      func() { cfg.OutputRoot = v.output },
		"workers":     func() { cfg.Workers = v.workers },
		"key-field":   func() { cfg.KeyField = v.keyField },
		"path-column": func() { cfg.PathColumn = v.pathColumn },
		"anonymise":   func() { cfg.Anonymise = v.anonymise },
		"delimiter":   func() { cfg.Delimiter = v.delimiter },
		"comment":     func() { cfg.Comment = v.comment },
		"auto-map":    func() { cfg.AutoMapColumns = v.autoMap },
		"dry-run":     func() { cfg.DryRun = v.dryRun },
		"log-file":    func() { cfg.LogFile = v.logFile },
		"report":      func() { cfg.ReportFile = v.report },
		"log-level":   func() { cfg.Logging.Level = v.logLevel },
		"log-format":  func() { cfg.Logging.Format = v.logFormat },
	}
	for name, apply := range overrides {
		if o.set[name] {
			apply()
		}
	}

	return cfg, nil
}
