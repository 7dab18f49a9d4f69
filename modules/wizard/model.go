package wizard

import (
	"cinegen-server/modules/common/database"
	"cinegen-server/modules/common/model"
	"cinegen-server/modules/workflow"
)

// VisualStyleRequest - POST /visual-style JSON body. Image is raw base64 or a data URL.
type VisualStyleRequest struct {
	Image    string `json:"image"`
	MimeType string `json:"mimeType,omitempty"`
}

// ScriptStyleRequest - POST /script-style body
type ScriptStyleRequest struct {
	Script string `json:"script"`
}

// GenerateRequest - POST /generate body. SceneCount defaults to 3 when omitted.
type GenerateRequest struct {
	Title      string `json:"title"`
	SceneCount *int   `json:"sceneCount,omitempty"`
	Characters string `json:"characters,omitempty"`
}

// Settings - request as project settings, with the form default applied
func (r GenerateRequest) Settings() model.ProjectSettings {
	count := model.DefaultSceneCount
	if r.SceneCount != nil {
		count = *r.SceneCount
	}
	return model.ProjectSettings{Title: r.Title, SceneCount: count, Characters: r.Characters}
}

// StateResponse - every session endpoint answers with the current view
type StateResponse struct {
	Success      bool           `json:"success"`
	SessionID    string         `json:"sessionId,omitempty"`
	State        *workflow.View `json:"state,omitempty"`
	ErrorMessage string         `json:"errorMessage,omitempty"`
	ErrorCode    string         `json:"errorCode,omitempty"`
}

// ExportResponse - export endpoints
type ExportResponse struct {
	Success      bool                    `json:"success"`
	Export       *database.ProjectExport `json:"export,omitempty"`
	ErrorMessage string                  `json:"errorMessage,omitempty"`
	ErrorCode    string                  `json:"errorCode,omitempty"`
}

// Error codes
const (
	ErrCodeValidation      = "VALIDATION_FAILED"
	ErrCodeAnalysis        = "ANALYSIS_FAILED"
	ErrCodeGeneration      = "GENERATION_FAILED"
	ErrCodeBusy            = "BUSY"
	ErrCodeInvalidStep     = "INVALID_STEP"
	ErrCodeStaleResult     = "STALE_RESULT"
	ErrCodeSessionNotFound = "SESSION_NOT_FOUND"
	ErrCodeExportDisabled  = "EXPORT_DISABLED"
	ErrCodeExportNotFound  = "EXPORT_NOT_FOUND"
	ErrCodeInvalidRequest  = "INVALID_REQUEST"
	ErrCodeInternalError   = "INTERNAL_ERROR"
)
