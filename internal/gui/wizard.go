package gui

import (
	"fmt"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
)

// WizardStep is one page of a repopulation.
type WizardStep int

const (
	StepInput WizardStep = iota
	StepSettings
	StepPreview
	StepProcess

	stepCount = int(StepProcess) + 1
)

// StepInfo names a step and says what it is for.
type StepInfo struct {
	Title string
	Hint  string
}

var stepInfos = [stepCount]StepInfo{
	{"Files", "Choose the mapping table and the folders to read from and write to."},
	{"Matching", "Decide how files are matched to mapping table rows."},
	{"Preview", "Check which files match before anything is written."},
	{"Repopulate", "Matched files are written to the output folder."},
}

// Wizard walks the repopulation steps in order. A step can be blocked with
// a reason, shown in place of its hint; Next stays disabled while the
// current step is blocked.
type Wizard struct {
	current WizardStep
	pages   [stepCount]fyne.CanvasObject
	blocked [stepCount]string

	back   *widget.Button
	next   *widget.Button
	crumbs [stepCount]*widget.Label
	hint   *widget.Label
	status fyne.CanvasObject
	body   *fyne.Container

	onEnter func(WizardStep)
	// onLeave runs when Next is pressed; navigation continues only when it
	// calls proceed.
	onLeave func(step WizardStep, proceed func())
}

// NewWizard creates a wizard on the first step.
func NewWizard() *Wizard {
	w := &Wizard{hint: widget.NewLabel("")}
	w.hint.Alignment = fyne.TextAlignCenter
	w.hint.Wrapping = fyne.TextWrapWord

	w.back = widget.NewButton("Back", w.Previous)
	w.next = widget.NewButton("Next", w.Next)
	w.next.Importance = widget.HighImportance

	for i, info := range stepInfos {
		w.crumbs[i] = widget.NewLabel(fmt.Sprintf("%d. %s", i+1, info.Title))
	}
	w.refresh()
	return w
}

// SetStepContent sets the page shown for step.
func (w *Wizard) SetStepContent(step WizardStep, content fyne.CanvasObject) {
	w.pages[step] = content
}

// SetOnStepChange sets the callback run after a step is entered.
func (w *Wizard) SetOnStepChange(callback func(WizardStep)) {
	w.onEnter = callback
}

// SetOnLeaveStep sets the callback run when Next is pressed on a step.
func (w *Wizard) SetOnLeaveStep(callback func(step WizardStep, proceed func())) {
	w.onLeave = callback
}

// SetStatusIndicator shows indicator between the navigation buttons.
func (w *Wizard) SetStatusIndicator(indicator fyne.CanvasObject) {
	w.status = indicator
}

// Block disables Next on step and shows reason under the step list. An
// empty reason lifts the block.
func (w *Wizard) Block(step WizardStep, reason string) {
	w.blocked[step] = reason
	if step == w.current {
		w.refresh()
	}
}

// SetNextText relabels the Next button.
func (w *Wizard) SetNextText(text string) {
	w.next.SetText(text)
}

// Next leaves the current step unless it is blocked. On the last step it
// still consults the leave callback, which decides what finishing means.
func (w *Wizard) Next() {
	from := w.current
	if w.blocked[from] != "" {
		return
	}

	advance := func() {
		if w.current == from && from < StepProcess {
			w.GoToStep(from + 1)
		}
	}
	if w.onLeave != nil {
		w.onLeave(from, advance)
		return
	}
	advance()
}

// Previous returns to the step before, except while the last step is busy.
func (w *Wizard) Previous() {
	if w.canGoBack() {
		w.GoToStep(w.current - 1)
	}
}

// GoToStep shows step and runs the step-change callback.
func (w *Wizard) GoToStep(step WizardStep) {
	if step < StepInput || step > StepProcess {
		return
	}
	w.current = step
	w.refresh()
	if w.body != nil {
		w.body.Objects = nil
		if page := w.pages[step]; page != nil {
			w.body.Objects = []fyne.CanvasObject{page}
		}
		w.body.Refresh()
	}
	if w.onEnter != nil {
		w.onEnter(step)
	}
}

// GetCurrentStep returns the step on screen.
func (w *Wizard) GetCurrentStep() WizardStep {
	return w.current
}

func (w *Wizard) canGoBack() bool {
	if w.current == StepInput {
		return false
	}
	return w.current != StepProcess || w.blocked[StepProcess] == ""
}

// refresh brings the step list, hint and buttons in line with the current
// step and its block.
func (w *Wizard) refresh() {
	for i, crumb := range w.crumbs {
		crumb.TextStyle = fyne.TextStyle{Bold: WizardStep(i) == w.current}
		crumb.Importance = widget.LowImportance
		if WizardStep(i) <= w.current {
			crumb.Importance = widget.MediumImportance
		}
		crumb.Refresh()
	}

	if reason := w.blocked[w.current]; reason != "" {
		w.hint.SetText(reason)
		w.next.Disable()
	} else {
		w.hint.SetText(stepInfos[w.current].Hint)
		w.next.Enable()
	}

	switch w.current {
	case StepPreview:
		w.next.SetText("Repopulate")
	case StepProcess:
		w.next.SetText("Done")
	default:
		w.next.SetText("Next")
	}

	if w.canGoBack() {
		w.back.Enable()
	} else {
		w.back.Disable()
	}
}

// Build lays out the step list, the current page and the navigation row.
func (w *Wizard) Build() fyne.CanvasObject {
	w.body = container.NewStack()
	if page := w.pages[w.current]; page != nil {
		w.body.Objects = []fyne.CanvasObject{page}
	}

	crumbs := make([]fyne.CanvasObject, 0, 2*stepCount-1)
	for i, crumb := range w.crumbs {
		if i > 0 {
			crumbs = append(crumbs, widget.NewLabel("›"))
		}
		crumbs = append(crumbs, crumb)
	}

	rule := canvas.NewRectangle(ColorBorder)
	rule.SetMinSize(fyne.NewSize(0, 1))

	cardBg := canvas.NewRectangle(ColorCardBackground)
	cardBg.CornerRadius = 8

	var middle fyne.CanvasObject = widget.NewLabel("")
	if w.status != nil {
		middle = container.NewCenter(w.status)
	}

	return container.NewBorder(
		container.NewVBox(container.NewCenter(container.NewHBox(crumbs...)), w.hint, rule),
		container.NewPadded(container.NewBorder(nil, nil, w.back, w.next, middle)),
		nil, nil,
		container.NewPadded(container.NewStack(cardBg, container.NewPadded(w.body))),
	)
}
