// Package gui is the desktop wizard started when no run is described on the
// command line.
package gui

import (
	"os"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"dicom-repopulator/internal/logger"
)

const (
	AppTitle  = "DICOM Repopulator"
	AppWidth  = 650
	AppHeight = 640
)

// App represents the GUI application
type App struct {
	fyneApp    fyne.App
	mainWindow fyne.Window
	wizard     *Wizard
	steps      *StepBuilder
	log        *logger.Logger

	// mapping table status indicator
	tableStatusCircle *canvas.Circle
	tableStatusLabel  *widget.Label
}

// NewApp creates a new GUI application
func NewApp() *App {
	a := app.New()
	a.Settings().SetTheme(&ModernTheme{})

	return &App{
		fyneApp: a,
		log:     logger.New(logger.Config{Writer: os.Stderr}),
	}
}

// Run starts the GUI application
func (a *App) Run() {
	a.mainWindow = a.fyneApp.NewWindow(AppTitle)
	a.mainWindow.Resize(fyne.NewSize(AppWidth, AppHeight))
	a.mainWindow.CenterOnScreen()

	a.wizard = NewWizard()
	a.wizard.SetStatusIndicator(a.createTableStatusIndicator())

	a.steps = NewStepBuilder(a.mainWindow, a.wizard, a.log)
	a.steps.SetOnTableStatus(a.updateTableStatus)

	// Build step content
	a.wizard.SetStepContent(StepInput, a.steps.BuildStep1())
	a.wizard.SetStepContent(StepSettings, a.steps.BuildStep2())
	a.wizard.SetStepContent(StepPreview, a.steps.BuildStep3())
	a.wizard.SetStepContent(StepProcess, a.steps.BuildStep4())

	a.wizard.SetOnStepChange(func(step WizardStep) {
		switch step {
		case StepPreview:
			a.steps.RunDryRun()
		case StepProcess:
			a.steps.RunProcess()
		}
	})

	a.wizard.SetOnLeaveStep(a.leaveStep)

	content := a.wizard.Build()
	a.mainWindow.SetContent(content)

	// Confirm before closing if processing
	a.mainWindow.SetCloseIntercept(func() {
		if a.steps.IsProcessing() {
			dialog.ShowConfirm("Confirm Exit",
				"Processing is in progress. Are you sure you want to exit?",
				func(confirm bool) {
					if confirm {
						a.mainWindow.Close()
					}
				}, a.mainWindow)
		} else {
			a.mainWindow.Close()
		}
	})

	a.mainWindow.ShowAndRun()
}

// leaveStep checks a step's form before moving on. Leaving the preview asks
// first when files at the same relative path would be replaced; leaving the
// last step closes the window.
func (a *App) leaveStep(step WizardStep, proceed func()) {
	switch step {
	case StepInput:
		if a.steps.ValidateStep1() {
			proceed()
		}
	case StepSettings:
		if a.steps.ValidateStep2() {
			proceed()
		}
	case StepPreview:
		if !a.steps.OutputHasFiles() {
			proceed()
			return
		}
		dialog.ShowConfirm("Output Folder Not Empty",
			"The output folder already contains files. Files at the same relative path will be replaced.\n\nDo you want to continue?",
			func(confirmed bool) {
				if confirmed {
					proceed()
				}
			}, a.mainWindow)
	case StepProcess:
		a.mainWindow.Close()
	}
}

// createTableStatusIndicator creates the mapping table status indicator with a colored circle
func (a *App) createTableStatusIndicator() fyne.CanvasObject {
	a.tableStatusCircle = canvas.NewCircle(ColorStatusRed)
	a.tableStatusCircle.StrokeWidth = 0

	a.tableStatusLabel = widget.NewLabel("Mapping: none")

	// Use custom layout to vertically center the circle with the label
	return container.New(&statusLayout{}, a.tableStatusCircle, a.tableStatusLabel)
}

// updateTableStatus updates the mapping table status indicator
func (a *App) updateTableStatus(ok bool, text string) {
	if ok {
		a.tableStatusCircle.FillColor = ColorStatusGreen
	} else {
		a.tableStatusCircle.FillColor = ColorStatusRed
	}
	a.tableStatusLabel.SetText(strings.TrimSpace(text))
	a.tableStatusCircle.Refresh()
	a.tableStatusLabel.Refresh()
}

// statusLayout is a custom layout that vertically centers a circle with a label
type statusLayout struct{}

func (l *statusLayout) MinSize(objects []fyne.CanvasObject) fyne.Size {
	if len(objects) < 2 {
		return fyne.NewSize(0, 0)
	}
	circleSize := float32(10)
	labelSize := objects[1].MinSize()
	return fyne.NewSize(circleSize+8+labelSize.Width, labelSize.Height)
}

func (l *statusLayout) Layout(objects []fyne.CanvasObject, size fyne.Size) {
	if len(objects) < 2 {
		return
	}
	circle := objects[0]
	label := objects[1]

	circleSize := float32(10)
	labelSize := label.MinSize()

	// Center circle vertically with the label
	circleY := (size.Height - circleSize) / 2
	circle.Resize(fyne.NewSize(circleSize, circleSize))
	circle.Move(fyne.NewPos(4, circleY))

	// Position label after circle with some spacing
	label.Resize(labelSize)
	label.Move(fyne.NewPos(circleSize+12, (size.Height-labelSize.Height)/2))
}
