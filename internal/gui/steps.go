package gui

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"dicom-repopulator/internal/config"
	dcm "dicom-repopulator/internal/dicom"
	"dicom-repopulator/internal/logger"
	"dicom-repopulator/internal/mapping"
	"dicom-repopulator/internal/repopulator"
)

// maxPreviewLines caps the per-file lines shown in the preview.
const maxPreviewLines = 200

// StepBuilder handles creating UI content for each wizard step
type StepBuilder struct {
	window fyne.Window
	wizard *Wizard
	log    *logger.Logger

	// onTableStatus reports whether the mapping table loads.
	onTableStatus func(ok bool, text string)

	// Step 1: Files
	mappingEntry     *widget.Entry
	redirectionEntry *widget.Entry
	inputFolderEntry *widget.Entry
	outputEntry      *widget.Entry
	fileCountLabel   *widget.Label
	tableLabel       *widget.Label

	// Step 2: Matching
	keyFieldSelect  *widget.SelectEntry
	pathColumnEntry *widget.Entry
	workersEntry    *widget.Entry
	delimiterEntry  *widget.Entry
	anonymiseCheck  *widget.Check
	autoMapCheck    *widget.Check
	reportCheck     *widget.Check

	// Step 3: Preview
	previewProgress  *widget.ProgressBar
	previewStatus    *widget.Label
	previewCounts    *widget.Label
	previewFiles     *widget.Label
	previewContainer *fyne.Container

	// Step 4: Process
	processProgress    *widget.ProgressBar
	processStatus      *widget.Label
	processFileCount   *widget.Label
	processCurrentFile *widget.Label
	processStats       *widget.Label
	processSummary     *widget.Label
	processContainer   *fyne.Container
	processing         bool
	processingMu       sync.Mutex
}

// NewStepBuilder creates a new step builder
func NewStepBuilder(window fyne.Window, wizard *Wizard, log *logger.Logger) *StepBuilder {
	return &StepBuilder{
		window: window,
		wizard: wizard,
		log:    log,
	}
}

// SetOnTableStatus sets the callback told whether the mapping table loads.
func (s *StepBuilder) SetOnTableStatus(callback func(ok bool, text string)) {
	s.onTableStatus = callback
}

func stepTitle(text string) *canvas.Text {
	title := canvas.NewText(text, ColorTextPrimary)
	title.TextSize = 18
	title.TextStyle = fyne.TextStyle{Bold: true}
	return title
}

func fieldLabel(text string) *widget.Label {
	return widget.NewLabelWithStyle(text, fyne.TextAlignLeading, fyne.TextStyle{Bold: true})
}

// fileRow is an entry with a Browse button opening a file picker.
func (s *StepBuilder) fileRow(entry *widget.Entry) fyne.CanvasObject {
	browse := widget.NewButton("Browse", func() {
		dialog.ShowFileOpen(func(reader fyne.URIReadCloser, err error) {
			if err != nil || reader == nil {
				return
			}
			entry.SetText(reader.URI().Path())
			reader.Close()
		}, s.window)
	})
	return container.NewBorder(nil, nil, nil, browse, entry)
}

// folderRow is an entry with a Browse button opening a folder picker.
func (s *StepBuilder) folderRow(entry *widget.Entry) fyne.CanvasObject {
	browse := widget.NewButton("Browse", func() {
		dialog.ShowFolderOpen(func(uri fyne.ListableURI, err error) {
			if err != nil || uri == nil {
				return
			}
			entry.SetText(uri.Path())
		}, s.window)
	})
	return container.NewBorder(nil, nil, nil, browse, entry)
}

// BuildStep1 creates the Files step content
func (s *StepBuilder) BuildStep1() fyne.CanvasObject {
	s.mappingEntry = widget.NewEntry()
	s.mappingEntry.SetPlaceHolder("/path/to/mapping.csv")
	s.mappingEntry.OnChanged = func(string) {
		s.updateTableStatus()
	}

	s.tableLabel = widget.NewLabel("")
	s.tableLabel.Wrapping = fyne.TextWrapWord

	s.redirectionEntry = widget.NewEntry()
	s.redirectionEntry.SetPlaceHolder("Optional: one column:field pair per line")

	s.inputFolderEntry = widget.NewEntry()
	s.inputFolderEntry.SetPlaceHolder("/path/to/dicom/files")
	s.inputFolderEntry.OnChanged = func(string) {
		s.updateFileCount()
		s.autoSetOutputFolder()
	}

	s.fileCountLabel = widget.NewLabel("")
	s.fileCountLabel.Wrapping = fyne.TextWrapWord

	s.outputEntry = widget.NewEntry()
	s.outputEntry.SetPlaceHolder("Auto-set next to the input folder")

	content := container.NewVBox(
		stepTitle("Select Files"),
		widget.NewSeparator(),
		container.NewVBox(
			fieldLabel("Mapping Table"),
			s.fileRow(s.mappingEntry),
			s.tableLabel,
		),
		container.NewVBox(
			fieldLabel("Redirection File"),
			s.fileRow(s.redirectionEntry),
		),
		widget.NewSeparator(),
		container.NewVBox(
			fieldLabel("Input Folder"),
			s.folderRow(s.inputFolderEntry),
			s.fileCountLabel,
		),
		container.NewVBox(
			fieldLabel("Output Folder"),
			s.folderRow(s.outputEntry),
		),
	)

	s.wizard.Block(StepInput, noTable)
	return container.NewPadded(content)
}

// BuildStep2 creates the Matching step content
func (s *StepBuilder) BuildStep2() fyne.CanvasObject {
	keyFields := []string{config.DefaultKeyField, "StudyInstanceUID", "SOPInstanceUID", "PatientID", "AccessionNumber"}
	s.keyFieldSelect = widget.NewSelectEntry(keyFields)
	s.keyFieldSelect.SetText(config.DefaultKeyField)

	s.pathColumnEntry = widget.NewEntry()
	s.pathColumnEntry.SetPlaceHolder("Column holding file paths")
	s.pathColumnEntry.OnChanged = func(text string) {
		if strings.TrimSpace(text) == "" {
			s.keyFieldSelect.Enable()
		} else {
			s.keyFieldSelect.Disable()
		}
	}

	s.workersEntry = widget.NewEntry()
	s.workersEntry.SetPlaceHolder("CPU count")

	s.delimiterEntry = widget.NewEntry()
	s.delimiterEntry.SetText(",")

	s.anonymiseCheck = widget.NewCheck("Anonymise after repopulating", nil)
	s.autoMapCheck = widget.NewCheck("Map columns named after DICOM fields", nil)
	s.reportCheck = widget.NewCheck("Write a JSON report into the output folder", nil)

	matchHelp := widget.NewLabel("Files are matched by the key field unless a path column is given. A key field set in the redirection file takes precedence.")
	matchHelp.Wrapping = fyne.TextWrapWord

	content := container.NewVBox(
		stepTitle("Configure Matching"),
		widget.NewSeparator(),
		container.NewVBox(
			fieldLabel("Match Files By"),
			matchHelp,
			widget.NewForm(
				widget.NewFormItem("Key field", s.keyFieldSelect),
				widget.NewFormItem("Path column", s.pathColumnEntry),
			),
		),
		widget.NewSeparator(),
		container.NewVBox(
			fieldLabel("Options"),
			widget.NewForm(
				widget.NewFormItem("Workers", s.workersEntry),
				widget.NewFormItem("Delimiter", s.delimiterEntry),
			),
			s.anonymiseCheck,
			s.autoMapCheck,
			s.reportCheck,
		),
	)

	return container.NewPadded(content)
}

// BuildStep3 creates the Preview step content
func (s *StepBuilder) BuildStep3() fyne.CanvasObject {
	s.previewProgress = widget.NewProgressBar()
	s.previewProgress.SetValue(0)

	s.previewStatus = widget.NewLabel("Scanning files...")

	s.previewCounts = widget.NewLabel("")
	s.previewCounts.Wrapping = fyne.TextWrapWord

	s.previewFiles = widget.NewLabel("")
	s.previewFiles.Wrapping = fyne.TextWrapWord

	previewScroll := container.NewVScroll(s.previewFiles)
	previewScroll.SetMinSize(fyne.NewSize(0, 200))

	s.previewContainer = container.NewVBox(
		stepTitle("Preview (Dry Run)"),
		widget.NewSeparator(),
		s.previewProgress,
		s.previewStatus,
		widget.NewSeparator(),
		s.previewCounts,
		widget.NewSeparator(),
	)

	// Use border layout to make scroll expand
	return container.NewBorder(
		container.NewPadded(s.previewContainer),
		nil,
		nil,
		nil,
		container.NewPadded(previewScroll),
	)
}

// BuildStep4 creates the Process step content
func (s *StepBuilder) BuildStep4() fyne.CanvasObject {
	s.processProgress = widget.NewProgressBar()
	s.processProgress.SetValue(0)

	s.processStatus = widget.NewLabel("Ready to process")
	s.processFileCount = widget.NewLabel("")
	s.processCurrentFile = widget.NewLabel("")
	s.processCurrentFile.Wrapping = fyne.TextWrapWord

	s.processStats = widget.NewLabel("")
	s.processSummary = widget.NewLabel("")
	s.processSummary.Wrapping = fyne.TextWrapWord

	headerContent := container.NewVBox(
		stepTitle("Repopulating"),
		widget.NewSeparator(),
		s.processProgress,
		s.processStatus,
		s.processFileCount,
		s.processCurrentFile,
		widget.NewSeparator(),
	)

	processScroll := container.NewVScroll(container.NewVBox(
		s.processStats,
		s.processSummary,
	))
	processScroll.SetMinSize(fyne.NewSize(0, 150))

	s.processContainer = container.NewVBox(
		headerContent,
		processScroll,
	)

	return container.NewBorder(
		container.NewPadded(headerContent), // top (fixed)
		nil,
		nil,
		nil,
		container.NewPadded(processScroll), // center (fills remaining space, scrollable)
	)
}

// updateFileCount scans for DICOM files and updates the count label
func (s *StepBuilder) updateFileCount() {
	inputFolder := strings.TrimSpace(s.inputFolderEntry.Text)
	if inputFolder == "" {
		s.fileCountLabel.SetText("")
		return
	}

	s.fileCountLabel.SetText("Scanning...")

	go func() {
		files, err := dcm.FindDicomFiles(inputFolder, dcm.FindOptions{Recursive: true})
		count := 0
		if err == nil {
			count = len(files)
		}

		// Update UI - Fyne v2.4 handles thread safety for widget updates
		if count == 0 {
			s.fileCountLabel.SetText("No DICOM files found")
		} else {
			s.fileCountLabel.SetText(fmt.Sprintf("Found %d DICOM file(s)", count))
		}
	}()
}

// updateTableStatus loads the mapping table header to show its shape.
func (s *StepBuilder) updateTableStatus() {
	path := strings.TrimSpace(s.mappingEntry.Text)
	if path == "" {
		s.tableLabel.SetText("")
		s.reportTable(false, "Mapping: none", noTable)
		return
	}

	go func() {
		table, err := mapping.LoadTable(path, mapping.TableOptions{})
		if err != nil {
			s.tableLabel.SetText(err.Error())
			s.reportTable(false, "Mapping: invalid", "The mapping table does not load.")
			return
		}
		s.tableLabel.SetText(fmt.Sprintf("%d row(s); columns: %s", table.Len(), strings.Join(table.Columns, ", ")))
		s.reportTable(true, fmt.Sprintf("Mapping: %d rows", table.Len()), "")
	}()
}

const noTable = "Choose a mapping table to start."

// reportTable updates the status indicator and blocks the Files step until
// the mapping table loads.
func (s *StepBuilder) reportTable(ok bool, text, block string) {
	s.wizard.Block(StepInput, block)
	if s.onTableStatus != nil {
		s.onTableStatus(ok, text)
	}
}

// autoSetOutputFolder suggests an output folder next to the input folder
func (s *StepBuilder) autoSetOutputFolder() {
	inputFolder := strings.TrimSpace(s.inputFolderEntry.Text)
	if inputFolder == "" || s.outputEntry == nil {
		return
	}
	clean := filepath.Clean(inputFolder)
	s.outputEntry.SetText(filepath.Join(filepath.Dir(clean), filepath.Base(clean)+"_repopulated"))
}

// ValidateStep1 validates the files step
func (s *StepBuilder) ValidateStep1() bool {
	required := []struct {
		entry *widget.Entry
		msg   string
	}{
		{s.mappingEntry, "please choose a mapping table"},
		{s.inputFolderEntry, "please enter an input folder path"},
		{s.outputEntry, "please enter an output folder path"},
	}
	for _, r := range required {
		if strings.TrimSpace(r.entry.Text) == "" {
			dialog.ShowError(fmt.Errorf("%s", r.msg), s.window)
			return false
		}
	}
	return true
}

// ValidateStep2 validates the matching step
func (s *StepBuilder) ValidateStep2() bool {
	if _, err := s.buildConfig(); err != nil {
		dialog.ShowError(err, s.window)
		return false
	}
	return true
}

// buildConfig builds the run configuration from the current form values
func (s *StepBuilder) buildConfig() (config.Config, error) {
	cfg := config.Default()
	cfg.MappingFile = strings.TrimSpace(s.mappingEntry.Text)
	cfg.RedirectionFile = strings.TrimSpace(s.redirectionEntry.Text)
	cfg.InputRoot = strings.TrimSpace(s.inputFolderEntry.Text)
	cfg.OutputRoot = strings.TrimSpace(s.outputEntry.Text)
	cfg.PathColumn = strings.TrimSpace(s.pathColumnEntry.Text)
	cfg.Anonymise = s.anonymiseCheck.Checked
	cfg.AutoMapColumns = s.autoMapCheck.Checked

	if field := strings.TrimSpace(s.keyFieldSelect.Text); field != "" {
		cfg.KeyField = field
	}
	if delim := s.delimiterEntry.Text; delim != "" {
		cfg.Delimiter = delim
	}
	if text := strings.TrimSpace(s.workersEntry.Text); text != "" {
		n, err := strconv.Atoi(text)
		if err != nil || n < 0 {
			return cfg, fmt.Errorf("workers must be a whole number, got %q", text)
		}
		cfg.Workers = n
	}
	if s.reportCheck.Checked && cfg.OutputRoot != "" {
		cfg.ReportFile = filepath.Join(cfg.OutputRoot, "report.json")
	}

	return cfg, cfg.Validate()
}

// RunDryRun previews the run when entering step 3
func (s *StepBuilder) RunDryRun() {
	s.previewProgress.SetValue(0)
	s.previewStatus.SetText("Loading mapping table...")
	s.previewCounts.SetText("")
	s.previewFiles.SetText("")
	s.wizard.Block(StepPreview, "Checking files...")

	cfg, err := s.buildConfig()
	if err != nil {
		s.previewStatus.SetText(fmt.Sprintf("Error: %v", err))
		s.wizard.Block(StepPreview, previewFailed)
		return
	}
	cfg.ReportFile = ""

	go func() {
		coord, err := repopulator.New(cfg,
			repopulator.WithLogger(s.log),
			repopulator.WithProgress(func(current, total int, _, _ string) {
				s.previewProgress.SetValue(float64(current) / float64(total))
				s.previewStatus.SetText(fmt.Sprintf("Matching %d/%d files", current, total))
			}),
		)
		if err != nil {
			s.previewStatus.SetText("Error!")
			s.previewCounts.SetText(err.Error())
			s.wizard.Block(StepPreview, previewFailed)
			return
		}

		res, err := coord.Plan()
		if err != nil {
			s.previewStatus.SetText(fmt.Sprintf("Error: %v", err))
			s.wizard.Block(StepPreview, previewFailed)
			return
		}
		if res.Total() == 0 {
			s.previewStatus.SetText("No DICOM files found")
			s.previewCounts.SetText("Please go back and check your input folder path.")
			s.wizard.Block(StepPreview, "The input folder holds no DICOM files.")
			return
		}

		s.previewProgress.SetValue(1.0)
		s.previewStatus.SetText("Scan complete!")
		s.previewCounts.SetText(fmt.Sprintf(
			"Files found: %d\nMatched: %d\nNo mapping row: %d\nUnreadable: %d",
			res.Total(), res.Written, res.Skipped, res.Failed))
		s.previewFiles.SetText(previewText(res))

		s.wizard.Block(StepPreview, planBlock(res))
		if res.Written > 0 {
			s.wizard.SetNextText(fmt.Sprintf("Repopulate %d file(s)", res.Written))
		}
	}()
}

const previewFailed = "The preview failed. Go back and check the files and settings."

// planBlock returns why a planned run should not go ahead, or "".
func planBlock(res *repopulator.Result) string {
	if res.Written == 0 {
		return "No file matches a mapping table row."
	}
	return ""
}

// previewText lists each file with its key, skipped and failed files first.
func previewText(res *repopulator.Result) string {
	var lines []string
	for _, status := range []repopulator.Status{repopulator.Failed, repopulator.SkippedNoMatch, repopulator.Written} {
		for _, out := range res.Outcomes {
			if out.Status != status {
				continue
			}
			if len(lines) == maxPreviewLines {
				lines = append(lines, fmt.Sprintf("... and %d more", res.Total()-maxPreviewLines))
				return strings.Join(lines, "\n")
			}
			switch status {
			case repopulator.Written:
				lines = append(lines, fmt.Sprintf("  %s <- %s", out.File.RelPath, out.Key))
			default:
				lines = append(lines, fmt.Sprintf("  %s: %s", out.File.RelPath, out.Reason))
			}
		}
	}
	return "Files:\n" + strings.Join(lines, "\n") + "\n\nLooks good? Click \"Repopulate\" to continue."
}

// RunProcess executes the repopulation
func (s *StepBuilder) RunProcess() {
	s.processingMu.Lock()
	if s.processing {
		s.processingMu.Unlock()
		return
	}
	s.processing = true
	s.processingMu.Unlock()

	s.processProgress.SetValue(0)
	s.processStatus.SetText("Starting...")
	s.processFileCount.SetText("")
	s.processCurrentFile.SetText("")
	s.processStats.SetText("")
	s.processSummary.SetText("")
	s.wizard.Block(StepProcess, "Repopulating...")

	cfg, cfgErr := s.buildConfig()

	go func() {
		defer func() {
			s.processingMu.Lock()
			s.processing = false
			s.processingMu.Unlock()
		}()

		writtenCount := 0
		failedCount := 0
		skippedCount := 0

		progressCallback := func(current, total int, filename, status string) {
			switch status {
			case repopulator.Written.String():
				writtenCount++
			case repopulator.Failed.String():
				failedCount++
			case repopulator.SkippedNoMatch.String():
				skippedCount++
			}

			// Update UI - Fyne v2.4 handles thread safety for widget updates
			s.processProgress.SetValue(float64(current) / float64(total))
			s.processFileCount.SetText(fmt.Sprintf("Processing %d/%d files", current, total))
			s.processCurrentFile.SetText(fmt.Sprintf("Current: %s", filename))
			s.processStats.SetText(fmt.Sprintf("Written: %d | Skipped: %d | Failed: %d",
				writtenCount, skippedCount, failedCount))
		}

		res, err := s.process(cfg, cfgErr, progressCallback)
		if err != nil {
			s.processStatus.SetText("Error!")
			s.processSummary.SetText(fmt.Sprintf("Error: %v", err))
		} else {
			s.processProgress.SetValue(1.0)
			s.processStatus.SetText("Complete!")
			s.processStats.SetText(fmt.Sprintf("Written: %d | Skipped: %d | Failed: %d",
				res.Written, res.Skipped, res.Failed))
			summary := fmt.Sprintf("Output: %s", cfg.OutputRoot)
			if res.LogFile != "" {
				summary += fmt.Sprintf("\nLog: %s", res.LogFile)
			}
			if cfg.ReportFile != "" {
				summary += fmt.Sprintf("\nReport: %s", cfg.ReportFile)
			}
			s.processSummary.SetText(summary)
		}

		s.wizard.Block(StepProcess, "")
	}()
}

func (s *StepBuilder) process(cfg config.Config, cfgErr error, cb repopulator.ProgressCallback) (*repopulator.Result, error) {
	if cfgErr != nil {
		return nil, cfgErr
	}
	coord, err := repopulator.New(cfg, repopulator.WithLogger(s.log), repopulator.WithProgress(cb))
	if err != nil {
		return nil, err
	}
	return coord.Process()
}

// IsProcessing returns whether processing is in progress
func (s *StepBuilder) IsProcessing() bool {
	s.processingMu.Lock()
	defer s.processingMu.Unlock()
	return s.processing
}

// OutputHasFiles reports whether the output folder exists and is not empty.
func (s *StepBuilder) OutputHasFiles() bool {
	entries, err := os.ReadDir(strings.TrimSpace(s.outputEntry.Text))
	return err == nil && len(entries) > 0
}
