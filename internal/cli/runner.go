// Package cli runs a repopulation from the command line.
package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"dicom-repopulator/internal/config"
	"dicom-repopulator/internal/logger"
	"dicom-repopulator/internal/repopulator"
)

// Exit codes.
const (
	ExitOK      = 0
	ExitFailure = 1 // the run started but could not finish
	ExitConfig  = 2 // bad arguments, configuration, mapping table or redirection
)

// Run executes a command-line run and returns the process exit code. A run
// that completes returns ExitOK even when some files were skipped or failed.
func Run(opts *Options, stdout, stderr io.Writer) int {
	cfg, err := opts.Config()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitConfig
	}

	log := logger.New(logger.Config{
		Writer:  stderr,
		Format:  cfg.Logging.Format,
		Level:   logger.ParseLevel(cfg.Logging.Level),
		NoColor: opts.NoColor,
	})

	printHeader(stdout, cfg)

	pb := newProgressBar(stdout, 50)
	options := []repopulator.Option{repopulator.WithLogger(log)}
	if !opts.Quiet {
		options = append(options, repopulator.WithProgress(func(current, total int, _, _ string) {
			pb.update(current, total)
		}))
	}

	coord, err := repopulator.New(cfg, options...)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitConfig
	}
	table := coord.Table()
	fmt.Fprintf(stdout, "Rows:      %d (key column %q)\n", table.Len(), table.KeyColumn)

	if cfg.DryRun {
		fmt.Fprintln(stdout, "\n[DRY RUN MODE]")
	}
	fmt.Fprintln(stdout)

	result, err := coord.Process()
	if err != nil {
		fmt.Fprintf(stderr, "Error: processing failed: %v\n", err)
		return ExitFailure
	}
	if pb.drawn {
		fmt.Fprintln(stdout)
	}

	printSummary(stdout, result, cfg)
	return ExitOK
}

// Main parses args and runs. It is the whole command line except GUI mode.
func Main(args []string, stdout, stderr io.Writer) int {
	opts, err := ParseArgs(args)
	if errors.Is(err, ErrHelp) {
		PrintUsage(stdout)
		return ExitOK
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n\n", err)
		PrintUsage(stderr)
		return ExitConfig
	}
	return Run(opts, stdout, stderr)
}

// PrintUsage prints CLI usage information
func PrintUsage(w io.Writer) {
	fmt.Fprintln(w, `DICOM Repopulator - Command Line Interface

USAGE:
  dicom-repopulator                              Launch GUI (default)
  dicom-repopulator -m <csv> -i <in> -o <out>    Run CLI mode
  dicom-repopulator -c run.yaml [flags]          Run from a YAML run file

FLAGS:
  -m, --mapping <path>      Mapping table: header row plus one row per key
  -r, --redirect <path>     Redirection file, one "column:field" pair per line
  -i, --input <path>        Input folder, searched recursively
  -o, --output <path>       Output folder; the input layout is mirrored here
  -w, --workers <n>         Files processed in parallel (default: CPU count)
      --key-field <field>   Field matched against the key column
                            (default: SeriesInstanceUID)
  -p, --path-column <col>   Match files by the path in this column instead
  -a, --anonymise           Anonymise each file after repopulating it
      --delimiter <c>       Mapping table delimiter (default: ,)
      --comment <c>         Ignore mapping table lines starting with c
      --auto-map            Also map columns named after DICOM keywords
  -n, --dry-run             Preview matches, no files written
      --log-file <path>     Diagnostic log (default: {output}/errors.log)
      --report <path>       Write a JSON report of every file
      --log-level <level>   debug, info, warn or error (default: info)
      --log-format <fmt>    pretty or json (default: pretty)
  -c, --config <path>       YAML run file; flags override its values
  -q, --quiet               Hide the progress bar
      --no-color            Plain log output
  -h, --help                Show this help message

REDIRECTION:
  Each line maps a mapping table column onto a DICOM field, by keyword or
  tag number. A column may feed several fields. A column mapped onto
  StudyInstanceUID, SeriesInstanceUID or SOPInstanceUID becomes the key.

    ID:PatientID
    Date:StudyDate
    Date:SeriesDate
    sopid:SOPInstanceUID

EXAMPLES:
  # Preview which files match
  ./dicom-repopulator -m registry.csv -r fields.txt -i /data/in -o /data/out -n

  # Repopulate with 8 workers and anonymise
  ./dicom-repopulator -m registry.csv -r fields.txt -i /data/in -o /data/out -w 8 -a

  # Match by file path
  ./dicom-repopulator -m files.csv -r fields.txt -p File -i /data/in -o /data/out

EXIT CODES:
  0  run completed (see the summary for skipped and failed files)
  1  run could not finish
  2  bad arguments, configuration, mapping table or redirection`)
}

// printHeader prints the CLI header with configuration
func printHeader(w io.Writer, cfg config.Config) {
	fmt.Fprintln(w, "DICOM Repopulator")
	fmt.Fprintln(w, strings.Repeat("=", 50))
	fmt.Fprintf(w, "Mapping:   %s\n", cfg.MappingFile)
	if cfg.RedirectionFile != "" {
		fmt.Fprintf(w, "Redirect:  %s\n", cfg.RedirectionFile)
	}
	fmt.Fprintf(w, "Input:     %s\n", cfg.InputRoot)
	fmt.Fprintf(w, "Output:    %s\n", cfg.OutputRoot)
	if cfg.PathMode() {
		fmt.Fprintf(w, "Match:     path in column %q\n", cfg.PathColumn)
	} else {
		fmt.Fprintf(w, "Match:     field (default %s)\n", cfg.KeyField)
	}
	fmt.Fprintf(w, "Workers:   %d\n", cfg.EffectiveWorkers())

	var options []string
	if cfg.Anonymise {
		options = append(options, "Anonymise")
	}
	if cfg.AutoMapColumns {
		options = append(options, "Auto-map columns")
	}
	if cfg.DryRun {
		options = append(options, "Dry run")
	}
	if len(options) > 0 {
		fmt.Fprintf(w, "Options:   %s\n", strings.Join(options, ", "))
	}
}

// printSummary prints the processing summary
func printSummary(w io.Writer, res *repopulator.Result, cfg config.Config) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, strings.Repeat("=", 50))
	verb := "written"
	if res.DryRun {
		verb = "would be written"
	}
	fmt.Fprintf(w, "Complete! %d %s, %d skipped, %d failed\n", res.Written, verb, res.Skipped, res.Failed)

	for _, out := range res.Outcomes {
		if out.Status == repopulator.Failed {
			fmt.Fprintf(w, "  Error: %s: %s\n", out.File.RelPath, out.Reason)
		}
	}

	fmt.Fprintf(w, "Output:    %s\n", cfg.OutputRoot)
	if res.LogFile != "" {
		fmt.Fprintf(w, "Log:       %s\n", res.LogFile)
	}
	if cfg.ReportFile != "" {
		fmt.Fprintf(w, "Report:    %s\n", cfg.ReportFile)
	}
	fmt.Fprintf(w, "Run ID:    %s (%s)\n", res.RunID, res.Duration.Round(time.Millisecond))
}

// progressBar represents a terminal progress bar
type progressBar struct {
	w     io.Writer
	width int
	drawn bool
}

// newProgressBar creates a new progress bar with specified width
func newProgressBar(w io.Writer, width int) *progressBar {
	return &progressBar{w: w, width: width}
}

// update updates the progress bar display
func (pb *progressBar) update(current, total int) {
	if total == 0 {
		return
	}
	pb.drawn = true

	percent := float64(current) / float64(total)
	filled := int(percent * float64(pb.width))
	if filled > pb.width {
		filled = pb.width
	}

	bar := strings.Repeat("#", filled) + strings.Repeat("-", pb.width-filled)
	fmt.Fprintf(pb.w, "\r[%s] %3.0f%%  (%d/%d)", bar, percent*100, current, total)
}
