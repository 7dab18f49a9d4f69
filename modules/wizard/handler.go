package wizard

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"cinegen-server/modules/common/logger"
	"cinegen-server/modules/common/utils"
	"cinegen-server/modules/export"
	"cinegen-server/modules/workflow"
)

const maxJSONBody = 1 << 20 // non-image bodies

type Handler struct {
	service       *Service
	maxImageBytes int64
	log           *logrus.Entry
}

func NewHandler(service *Service, maxImageBytes int64) *Handler {
	return &Handler{
		service:       service,
		maxImageBytes: maxImageBytes,
		log:           logger.WithModule("Wizard"),
	}
}

// RegisterRoutes - session and export endpoints under /api
func (h *Handler) RegisterRoutes(r *mux.Router) {
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/sessions", h.HandleCreateSession).Methods("POST")
	api.HandleFunc("/sessions/{sessionId}", h.HandleGetSession).Methods("GET")
	api.HandleFunc("/sessions/{sessionId}", h.HandleDeleteSession).Methods("DELETE")
	api.HandleFunc("/sessions/{sessionId}/visual-style", h.HandleAnalyzeImage).Methods("POST")
	api.HandleFunc("/sessions/{sessionId}/visual-style", h.HandleSubmitVisualStyle).Methods("PUT")
	api.HandleFunc("/sessions/{sessionId}/script-style", h.HandleAnalyzeScript).Methods("POST")
	api.HandleFunc("/sessions/{sessionId}/script-style", h.HandleSubmitScriptStyle).Methods("PUT")
	api.HandleFunc("/sessions/{sessionId}/generate", h.HandleGenerate).Methods("POST")
	api.HandleFunc("/sessions/{sessionId}/reset", h.HandleReset).Methods("POST")
	api.HandleFunc("/sessions/{sessionId}/dashboard", h.HandleDashboard).Methods("GET")
	api.HandleFunc("/sessions/{sessionId}/export", h.HandleExport).Methods("POST")
	api.HandleFunc("/exports/{exportId}", h.HandleGetExport).Methods("GET")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func viewOf(st workflow.State) *workflow.View {
	if !st.Step.Valid() {
		return nil
	}
	v := st.View()
	return &v
}

// respond writes the state view, with the error classification when err is set
func (h *Handler) respond(w http.ResponseWriter, id string, st workflow.State, err error) {
	if err == nil {
		writeJSON(w, http.StatusOK, StateResponse{Success: true, SessionID: id, State: viewOf(st)})
		return
	}
	status, code, msg := classify(err)
	if status >= http.StatusInternalServerError {
		h.log.Errorf("❌ [Wizard] Session %s: %v", id, err)
	}
	writeJSON(w, status, StateResponse{
		Success:      false,
		SessionID:    id,
		State:        viewOf(st),
		ErrorMessage: msg,
		ErrorCode:    code,
	})
}

func badRequest(w http.ResponseWriter, id, msg string) {
	writeJSON(w, http.StatusBadRequest, StateResponse{
		Success:      false,
		SessionID:    id,
		ErrorMessage: msg,
		ErrorCode:    ErrCodeInvalidRequest,
	})
}

// HandleCreateSession - POST /api/sessions
func (h *Handler) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	id, st, err := h.service.Create(r.Context())
	if err != nil {
		h.respond(w, "", workflow.State{}, err)
		return
	}
	h.log.Infof("🎬 [Wizard] Session started: %s", id)
	writeJSON(w, http.StatusCreated, StateResponse{Success: true, SessionID: id, State: viewOf(st)})
}

// HandleGetSession - GET /api/sessions/{sessionId}
func (h *Handler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["sessionId"]
	st, err := h.service.Snapshot(r.Context(), id)
	h.respond(w, id, st, err)
}

// HandleDeleteSession - DELETE /api/sessions/{sessionId}
func (h *Handler) HandleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["sessionId"]
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.respond(w, id, workflow.State{}, err)
		return
	}
	writeJSON(w, http.StatusOK, StateResponse{Success: true, SessionID: id})
}

// HandleAnalyzeImage - POST /api/sessions/{sessionId}/visual-style
// Accepts multipart form field "image" or a JSON body with base64 / data URL.
func (h *Handler) HandleAnalyzeImage(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["sessionId"]

	image, mimeType, err := h.readImage(w, r)
	if err != nil {
		h.log.Warnf("⚠️  [Wizard] Invalid image upload for %s: %v", id, err)
		badRequest(w, id, err.Error())
		return
	}

	h.log.Infof("🎨 [Wizard] Image analysis requested: session=%s, bytes=%d", id, len(image))
	st, err := h.service.AnalyzeImage(r.Context(), id, image, mimeType)
	h.respond(w, id, st, err)
}

func (h *Handler) readImage(w http.ResponseWriter, r *http.Request) ([]byte, string, error) {
	// base64 grows the payload by a third
	limit := h.maxImageBytes*4/3 + maxJSONBody
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(h.maxImageBytes + maxJSONBody); err != nil {
			return nil, "", errors.New("invalid multipart form")
		}
		file, header, err := r.FormFile("image")
		if err != nil {
			return nil, "", errors.New("form field \"image\" is required")
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			return nil, "", errors.New("failed to read uploaded image")
		}
		return data, header.Header.Get("Content-Type"), nil
	}

	var req VisualStyleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, "", errors.New("invalid request format")
	}
	if strings.TrimSpace(req.Image) == "" {
		// an empty image reaches the intake validation, which records the error on the session
		return nil, req.MimeType, nil
	}
	data, mimeType, err := utils.DecodeBase64Image(req.Image)
	if err != nil {
		return nil, "", errors.New("image is not valid base64")
	}
	if mimeType == "" {
		mimeType = req.MimeType
	}
	return data, mimeType, nil
}

// HandleSubmitVisualStyle - PUT /api/sessions/{sessionId}/visual-style with a template body
func (h *Handler) HandleSubmitVisualStyle(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["sessionId"]
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err != nil {
		badRequest(w, id, "failed to read request body")
		return
	}
	st, err := h.service.SubmitVisualStyle(r.Context(), id, raw)
	h.respond(w, id, st, err)
}

// HandleAnalyzeScript - POST /api/sessions/{sessionId}/script-style
func (h *Handler) HandleAnalyzeScript(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["sessionId"]

	var req ScriptStyleRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(&req); err != nil {
		badRequest(w, id, "invalid request format")
		return
	}

	h.log.Infof("📝 [Wizard] Script analysis requested: session=%s, chars=%d", id, len([]rune(req.Script)))
	st, err := h.service.AnalyzeScript(r.Context(), id, req.Script)
	h.respond(w, id, st, err)
}

// HandleSubmitScriptStyle - PUT /api/sessions/{sessionId}/script-style with a template body
func (h *Handler) HandleSubmitScriptStyle(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["sessionId"]
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err != nil {
		badRequest(w, id, "failed to read request body")
		return
	}
	st, err := h.service.SubmitScriptStyle(r.Context(), id, raw)
	h.respond(w, id, st, err)
}

// HandleGenerate - POST /api/sessions/{sessionId}/generate
func (h *Handler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["sessionId"]

	var req GenerateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(&req); err != nil {
		badRequest(w, id, "invalid request format")
		return
	}

	settings := req.Settings()
	h.log.Infof("🎬 [Wizard] Generation requested: session=%s, title=%q, scenes=%d", id, settings.Title, settings.SceneCount)
	st, err := h.service.Generate(r.Context(), id, settings)
	h.respond(w, id, st, err)
}

// HandleReset - POST /api/sessions/{sessionId}/reset
func (h *Handler) HandleReset(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["sessionId"]
	st, err := h.service.Reset(r.Context(), id)
	if err == nil {
		h.log.Infof("🔄 [Wizard] Session %s reset", id)
	}
	h.respond(w, id, st, err)
}

// HandleDashboard - GET /api/sessions/{sessionId}/dashboard[?format=html]
func (h *Handler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["sessionId"]
	st, err := h.service.Snapshot(r.Context(), id)
	if err != nil {
		h.respond(w, id, st, err)
		return
	}

	if r.URL.Query().Get("format") == "html" {
		html, err := export.RenderHTML(st.View())
		if err != nil {
			h.respond(w, id, st, err)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.WriteString(w, html)
		return
	}

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	io.WriteString(w, export.RenderMarkdown(st.View()))
}

// HandleExport - POST /api/sessions/{sessionId}/export
func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["sessionId"]
	record, err := h.service.Export(r.Context(), id)
	if err != nil {
		status, code, msg := classify(err)
		if status >= http.StatusInternalServerError && code == ErrCodeInternalError {
			h.log.Errorf("❌ [Wizard] Export failed for %s: %v", id, err)
		}
		writeJSON(w, status, ExportResponse{Success: false, ErrorMessage: msg, ErrorCode: code})
		return
	}
	writeJSON(w, http.StatusCreated, ExportResponse{Success: true, Export: record})
}

// HandleGetExport - GET /api/exports/{exportId}
func (h *Handler) HandleGetExport(w http.ResponseWriter, r *http.Request) {
	record, err := h.service.FetchExport(r.Context(), mux.Vars(r)["exportId"])
	if err != nil {
		status, code, msg := classify(err)
		writeJSON(w, status, ExportResponse{Success: false, ErrorMessage: msg, ErrorCode: code})
		return
	}
	writeJSON(w, http.StatusOK, ExportResponse{Success: true, Export: record})
}
