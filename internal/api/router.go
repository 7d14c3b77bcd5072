package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/quentel/formulaire/internal/services"
)

// Router is the thin HTTP facade over the form engine. It owns no business
// rules: every handler decodes JSON, calls a service and maps the error
// code to a status.
type Router struct {
	forms       *services.FormService
	submissions *services.SubmissionService
}

func NewRouter(forms *services.FormService, submissions *services.SubmissionService) *Router {
	return &Router{forms: forms, submissions: submissions}
}

func (rt *Router) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/forms", rt.handleForms)         // POST
	mux.HandleFunc("/api/forms/", rt.handleFormScoped)   // GET/PATCH/DELETE + subresources
	mux.HandleFunc("/api/questions/", rt.handleQuestion) // GET stats, PATCH, DELETE
	mux.HandleFunc("/api/responses/", rt.handleResponse) // GET
}

// POST /api/forms
func (rt *Router) handleForms(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		OwnerID     string `json:"owner_id"`
		Title       string `json:"title"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	form, err := rt.forms.CreateForm(req.OwnerID, req.Title, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, form)
}

// /api/forms/{id}[/questions|/questions/reorder|/responses|/stats]
func (rt *Router) handleFormScoped(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/forms/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	id := parts[0]
	switch {
	case len(parts) == 1:
		rt.handleForm(w, r, id)
	case len(parts) == 2 && parts[1] == "questions":
		rt.handleFormQuestions(w, r, id)
	case len(parts) == 3 && parts[1] == "questions" && parts[2] == "reorder":
		rt.handleReorder(w, r, id)
	case len(parts) == 2 && parts[1] == "responses":
		rt.handleFormResponses(w, r, id)
	case len(parts) == 2 && parts[1] == "stats":
		rt.handleFormStats(w, r, id)
	default:
		http.NotFound(w, r)
	}
}

func (rt *Router) handleForm(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		form, err := rt.forms.GetForm(id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, form)
	case http.MethodPatch:
		var upd services.FormUpdate
		if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		form, err := rt.forms.UpdateForm(id, upd)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, form)
	case http.MethodDelete:
		if err := rt.forms.DeleteForm(id); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]any{"ok": true})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (rt *Router) handleFormQuestions(w http.ResponseWriter, r *http.Request, formID string) {
	switch r.Method {
	case http.MethodPost:
		var def services.QuestionDefinition
		if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		q, err := rt.forms.AddQuestion(formID, def)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, q)
	case http.MethodGet:
		questions, err := rt.forms.ListQuestions(formID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]any{"form_id": formID, "questions": questions})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// POST /api/forms/{id}/questions/reorder {"order": ["q1", "q2", ...]}
func (rt *Router) handleReorder(w http.ResponseWriter, r *http.Request, formID string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Order []string `json:"order"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := rt.forms.ReorderQuestions(formID, req.Order); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"ok": true, "count": len(req.Order)})
}

func (rt *Router) handleFormResponses(w http.ResponseWriter, r *http.Request, formID string) {
	switch r.Method {
	case http.MethodPost:
		var req struct {
			RespondentID string                 `json:"respondent_id"`
			Answers      []services.AnswerInput `json:"answers"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		result, err := rt.submissions.Submit(r.Context(), formID, req.RespondentID, req.Answers)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]any{
			"response": result.Response,
			"warnings": result.Warnings,
		})
	case http.MethodGet:
		responses, err := rt.forms.ListResponses(formID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]any{"form_id": formID, "responses": responses})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (rt *Router) handleFormStats(w http.ResponseWriter, r *http.Request, formID string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	stats, err := rt.forms.Stats(formID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, stats)
}

// /api/questions/{id}[/stats]
func (rt *Router) handleQuestion(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/questions/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	id := parts[0]
	if len(parts) == 2 && parts[1] == "stats" {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		stats, err := rt.forms.QuestionStats(id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, stats)
		return
	}
	if len(parts) != 1 {
		http.NotFound(w, r)
		return
	}
	switch r.Method {
	case http.MethodPatch:
		var upd services.QuestionUpdate
		if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		q, err := rt.forms.UpdateQuestion(id, upd)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, q)
	case http.MethodDelete:
		if err := rt.forms.DeleteQuestion(id); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]any{"ok": true})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// GET /api/responses/{id}
func (rt *Router) handleResponse(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/responses/"), "/")
	if id == "" {
		http.NotFound(w, r)
		return
	}
	resp, err := rt.forms.GetResponse(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, resp)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the engine's error taxonomy onto HTTP statuses and keeps
// the code in the body for clients.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := ""
	if ve, ok := services.AsValidationError(err); ok {
		code = string(ve.Code)
		switch ve.Code {
		case services.ErrorNotFound:
			status = http.StatusNotFound
		case services.ErrorFormClosed:
			status = http.StatusForbidden
		default:
			status = http.StatusBadRequest
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": err.Error(), "code": code})
}
