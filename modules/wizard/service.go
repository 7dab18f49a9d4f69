package wizard

import (
	"context"
	"errors"
	"net/http"

	"cinegen-server/modules/capability"
	"cinegen-server/modules/common/database"
	"cinegen-server/modules/common/model"
	"cinegen-server/modules/export"
	"cinegen-server/modules/session"
	"cinegen-server/modules/workflow"
)

// SessionCloser - disconnects watchers of a deleted session (*realtime.Hub)
type SessionCloser interface {
	CloseSession(sessionID string)
}

// Service - the operations behind each presentation surface
type Service struct {
	sessions *session.Manager
	exporter *export.Service
	closer   SessionCloser
}

// NewService - exporter and closer may be nil
func NewService(sessions *session.Manager, exporter *export.Service, closer SessionCloser) *Service {
	return &Service{sessions: sessions, exporter: exporter, closer: closer}
}

func (s *Service) controller(ctx context.Context, id string) (*workflow.Controller, error) {
	sess, err := s.sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return sess.Controller, nil
}

// Create - new session at the image intake step
func (s *Service) Create(ctx context.Context) (string, workflow.State, error) {
	sess, err := s.sessions.Create(ctx)
	if err != nil {
		return "", workflow.State{}, err
	}
	return sess.ID, sess.Controller.State(), nil
}

// Snapshot - current state of a session
func (s *Service) Snapshot(ctx context.Context, id string) (workflow.State, error) {
	ctrl, err := s.controller(ctx, id)
	if err != nil {
		return workflow.State{}, err
	}
	return ctrl.State(), nil
}

// Delete - discard a session and disconnect its watchers
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.sessions.Delete(ctx, id); err != nil {
		return err
	}
	if s.closer != nil {
		s.closer.CloseSession(id)
	}
	return nil
}

// AnalyzeImage - image intake surface
func (s *Service) AnalyzeImage(ctx context.Context, id string, image []byte, mimeType string) (workflow.State, error) {
	ctrl, err := s.controller(ctx, id)
	if err != nil {
		return workflow.State{}, err
	}
	return ctrl.AnalyzeImage(ctx, image, mimeType)
}

// SubmitVisualStyle - store a visual style template produced elsewhere.
// The body is held to the same field rules as a model response.
func (s *Service) SubmitVisualStyle(ctx context.Context, id string, raw []byte) (workflow.State, error) {
	ctrl, err := s.controller(ctx, id)
	if err != nil {
		return workflow.State{}, err
	}
	template, err := capability.ParseVisualStyle(string(raw))
	if err != nil {
		return ctrl.RejectInput(model.StepIntakeImage, model.NewValidationError("visualStyle", err.Error()))
	}
	return ctrl.SubmitVisualStyle(*template)
}

// AnalyzeScript - script intake surface
func (s *Service) AnalyzeScript(ctx context.Context, id string, script string) (workflow.State, error) {
	ctrl, err := s.controller(ctx, id)
	if err != nil {
		return workflow.State{}, err
	}
	return ctrl.AnalyzeScript(ctx, script)
}

// SubmitScriptStyle - store a script style template produced elsewhere
func (s *Service) SubmitScriptStyle(ctx context.Context, id string, raw []byte) (workflow.State, error) {
	ctrl, err := s.controller(ctx, id)
	if err != nil {
		return workflow.State{}, err
	}
	template, err := capability.ParseScriptStyle(string(raw))
	if err != nil {
		return ctrl.RejectInput(model.StepIntakeScript, model.NewValidationError("scriptStyle", err.Error()))
	}
	return ctrl.SubmitScriptStyle(*template)
}

// Generate - settings form surface
func (s *Service) Generate(ctx context.Context, id string, settings model.ProjectSettings) (workflow.State, error) {
	ctrl, err := s.controller(ctx, id)
	if err != nil {
		return workflow.State{}, err
	}
	return ctrl.Generate(ctx, settings)
}

// Reset - back to the image intake step
func (s *Service) Reset(ctx context.Context, id string) (workflow.State, error) {
	ctrl, err := s.controller(ctx, id)
	if err != nil {
		return workflow.State{}, err
	}
	return ctrl.Reset(), nil
}

// Export - store the finished project
func (s *Service) Export(ctx context.Context, id string) (*database.ProjectExport, error) {
	st, err := s.Snapshot(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.exporter.Export(ctx, id, st)
}

// FetchExport - previously stored export
func (s *Service) FetchExport(ctx context.Context, exportID string) (*database.ProjectExport, error) {
	return s.exporter.Get(ctx, exportID)
}

// classify maps an operation error to status, code and the message shown to the user.
func classify(err error) (int, string, string) {
	var ve *model.ValidationError
	var ae *model.AnalysisError
	var ge *model.GenerationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, ErrCodeValidation, ve.Message
	case errors.As(err, &ae):
		return http.StatusBadGateway, ErrCodeAnalysis, ae.UserMessage()
	case errors.As(err, &ge):
		return http.StatusBadGateway, ErrCodeGeneration, ge.UserMessage()
	case errors.Is(err, workflow.ErrBusy):
		return http.StatusConflict, ErrCodeBusy, "A request is already in progress."
	case errors.Is(err, workflow.ErrInvalidStep), errors.Is(err, workflow.ErrMissingTemplates):
		return http.StatusConflict, ErrCodeInvalidStep, "This action is not available at the current step."
	case errors.Is(err, workflow.ErrStaleResult):
		return http.StatusConflict, ErrCodeStaleResult, "The session changed before the request finished."
	case errors.Is(err, session.ErrNotFound), errors.Is(err, workflow.ErrClosed):
		return http.StatusNotFound, ErrCodeSessionNotFound, "Session not found."
	case errors.Is(err, export.ErrDisabled):
		return http.StatusServiceUnavailable, ErrCodeExportDisabled, "Project export is not configured."
	case errors.Is(err, export.ErrNotReady):
		return http.StatusConflict, ErrCodeInvalidStep, "Generate the project before exporting it."
	case errors.Is(err, export.ErrNotFound):
		return http.StatusNotFound, ErrCodeExportNotFound, "Export not found."
	}
	return http.StatusInternalServerError, ErrCodeInternalError, "Internal server error."
}
