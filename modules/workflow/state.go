package workflow

import (
	"cinegen-server/modules/common/model"
)

// Ticket identifies one outstanding capability call. A completion is
// committed only while its ticket is still the state's InFlight ticket.
type Ticket struct {
	ID   uint64        `json:"id"`
	Step model.AppStep `json:"step"`
}

// State - everything one wizard session holds. Transitions below are pure:
// they take a State by value and return the next one.
type State struct {
	Step        model.AppStep              `json:"step"`
	VisualStyle *model.VisualStyleTemplate `json:"visualStyle,omitempty"`
	ScriptStyle *model.ScriptStyleTemplate `json:"scriptStyle,omitempty"`
	Settings    *model.ProjectSettings     `json:"settings,omitempty"`
	Scenes      []model.GeneratedScene     `json:"scenes,omitempty"`
	Error       string                     `json:"error,omitempty"`
	InFlight    *Ticket                    `json:"inFlight,omitempty"`
	Seq         uint64                     `json:"seq"`
}

// Initial - fresh session at the image intake step
func Initial() State {
	return State{Step: model.StepIntakeImage}
}

// Processing reports whether a capability call is outstanding.
func (s State) Processing() bool {
	return s.InFlight != nil
}

// Clone - deep copy, safe to hand to observers
func (s State) Clone() State {
	out := s
	if s.VisualStyle != nil {
		v := s.VisualStyle.Clone()
		out.VisualStyle = &v
	}
	if s.ScriptStyle != nil {
		v := *s.ScriptStyle
		out.ScriptStyle = &v
	}
	if s.Settings != nil {
		v := *s.Settings
		out.Settings = &v
	}
	if s.Scenes != nil {
		out.Scenes = append([]model.GeneratedScene(nil), s.Scenes...)
	}
	if s.InFlight != nil {
		t := *s.InFlight
		out.InFlight = &t
	}
	return out
}

func (s State) current(t Ticket) bool {
	return s.InFlight != nil && *s.InFlight == t && s.Step == t.Step
}

func (s State) issue(step model.AppStep) (State, Ticket) {
	s.Seq++
	t := Ticket{ID: s.Seq, Step: step}
	s.InFlight = &t
	s.Error = ""
	return s, t
}

// SubmitVisualStyle - IntakeImage only; stores the template and moves to IntakeScript
func SubmitVisualStyle(s State, template model.VisualStyleTemplate) (State, error) {
	if s.Step != model.StepIntakeImage {
		return s, ErrInvalidStep
	}
	s = s.Clone()
	v := template.Clone()
	s.VisualStyle = &v
	s.InFlight = nil
	s.Error = ""
	s.Step = model.StepIntakeScript
	return s, nil
}

// SubmitScriptStyle - IntakeScript only; stores the template and moves to ConfigureProject
func SubmitScriptStyle(s State, template model.ScriptStyleTemplate) (State, error) {
	if s.Step != model.StepIntakeScript {
		return s, ErrInvalidStep
	}
	s = s.Clone()
	s.ScriptStyle = &template
	s.InFlight = nil
	s.Error = ""
	s.Step = model.StepConfigureProject
	return s, nil
}

// BeginAnalysis - start an analysis call for the current intake step. Any
// pending analysis ticket is superseded.
func BeginAnalysis(s State, step model.AppStep) (State, Ticket, error) {
	if step != model.StepIntakeImage && step != model.StepIntakeScript {
		return s, Ticket{}, ErrInvalidStep
	}
	if s.Step != step {
		return s, Ticket{}, ErrInvalidStep
	}
	s = s.Clone()
	s, t := s.issue(step)
	return s, t, nil
}

// CompleteImageAnalysis - commit the analysed visual style if the ticket is current
func CompleteImageAnalysis(s State, t Ticket, template model.VisualStyleTemplate) (State, error) {
	if !s.current(t) {
		return s, ErrStaleResult
	}
	return SubmitVisualStyle(s, template)
}

// CompleteScriptAnalysis - commit the analysed script style if the ticket is current
func CompleteScriptAnalysis(s State, t Ticket, template model.ScriptStyleTemplate) (State, error) {
	if !s.current(t) {
		return s, ErrStaleResult
	}
	return SubmitScriptStyle(s, template)
}

// Fail - record a failed call for the ticket's step; the step does not change
func Fail(s State, t Ticket, message string) (State, error) {
	if !s.current(t) {
		return s, ErrStaleResult
	}
	s = s.Clone()
	s.InFlight = nil
	s.Error = message
	return s, nil
}

// Reject - record a local validation failure without touching anything else
func Reject(s State, message string) State {
	s = s.Clone()
	s.Error = message
	return s
}

// BeginGeneration - ConfigureProject only, both templates present, nothing in flight
func BeginGeneration(s State, settings model.ProjectSettings) (State, Ticket, error) {
	if s.Step != model.StepConfigureProject {
		return s, Ticket{}, ErrInvalidStep
	}
	if s.Processing() {
		return s, Ticket{}, ErrBusy
	}
	if s.VisualStyle == nil || s.ScriptStyle == nil {
		return s, Ticket{}, ErrMissingTemplates
	}
	if err := settings.Validate(); err != nil {
		return s, Ticket{}, err
	}
	s = s.Clone()
	s.Settings = &settings
	s, t := s.issue(model.StepConfigureProject)
	return s, t, nil
}

// CompleteGeneration - store the scenes as returned and move to ShowResults
func CompleteGeneration(s State, t Ticket, scenes []model.GeneratedScene) (State, error) {
	if !s.current(t) {
		return s, ErrStaleResult
	}
	s = s.Clone()
	s.Scenes = append([]model.GeneratedScene{}, scenes...)
	s.InFlight = nil
	s.Error = ""
	s.Step = model.StepShowResults
	return s, nil
}

// Reset - back to IntakeImage with nothing stored. Seq survives so tickets
// issued before the reset can never match a later call.
func Reset(s State) State {
	next := Initial()
	next.Seq = s.Seq
	return next
}

// Recover - a restored snapshot cannot have a live call behind it
func Recover(s State) State {
	s = s.Clone()
	if !s.Step.Valid() {
		return Reset(s)
	}
	if s.InFlight != nil {
		s.InFlight = nil
		s.Error = MsgInterrupted
	}
	return s
}
