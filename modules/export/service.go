package export

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"cinegen-server/modules/common/database"
	"cinegen-server/modules/common/logger"
	"cinegen-server/modules/common/model"
	"cinegen-server/modules/workflow"
)

var (
	// ErrDisabled - no export backend configured
	ErrDisabled = errors.New("project export is not configured")
	// ErrNotReady - only a session showing results can be exported
	ErrNotReady = errors.New("project has no results to export")
	// ErrNotFound - unknown export id
	ErrNotFound = errors.New("export not found")
)

// Repository - persistence for exports (*database.Client)
type Repository interface {
	InsertProjectExport(ctx context.Context, record database.ProjectExport) (*database.ProjectExport, error)
	FetchProjectExport(ctx context.Context, exportID string) (*database.ProjectExport, error)
}

// Service - explicit user export of a finished project. Sessions themselves are never written here.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService - nil repo disables export
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Enabled reports whether an export backend is configured.
func (s *Service) Enabled() bool {
	return s != nil && s.repo != nil
}

// Export - store the results of a session at ShowResults
func (s *Service) Export(ctx context.Context, sessionID string, st workflow.State) (*database.ProjectExport, error) {
	if !s.Enabled() {
		return nil, ErrDisabled
	}
	if st.Step != model.StepShowResults || st.VisualStyle == nil || st.ScriptStyle == nil || st.Settings == nil {
		return nil, ErrNotReady
	}

	record := database.ProjectExport{
		ExportID:    uuid.NewString(),
		SessionID:   sessionID,
		Title:       st.Settings.Title,
		SceneCount:  st.Settings.SceneCount,
		Characters:  st.Settings.Characters,
		VisualStyle: st.VisualStyle.Clone(),
		ScriptStyle: *st.ScriptStyle,
		Scenes:      append([]model.GeneratedScene{}, st.Scenes...),
		Markdown:    RenderMarkdown(st.View()),
		CreatedAt:   s.now().UTC(),
	}

	saved, err := s.repo.InsertProjectExport(ctx, record)
	if err != nil {
		logger.WithModule("Export").Errorf("❌ [Export] Failed to export session %s: %v", sessionID, err)
		return nil, err
	}
	logger.WithModule("Export").Infof("📦 [Export] Session %s exported as %s", sessionID, saved.ExportID)
	return saved, nil
}

// Get - previously stored export
func (s *Service) Get(ctx context.Context, exportID string) (*database.ProjectExport, error) {
	if !s.Enabled() {
		return nil, ErrDisabled
	}
	record, err := s.repo.FetchProjectExport(ctx, exportID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrNotFound
	}
	return record, nil
}
