package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/tabkeep/internal/jobs"
	"github.com/starford/tabkeep/internal/models"
	"github.com/starford/tabkeep/internal/storage"
	"github.com/starford/tabkeep/internal/tasks"
)

const maxUploadBytes = 50 << 20 // 50 MB

// TaskHandler serves the import task routes.
type TaskHandler struct {
	reg      *tasks.Registry
	pipeline *jobs.Pipeline
	uploads  storage.Provider
	now      func() time.Time
}

// NewTaskHandler creates a new TaskHandler.
func NewTaskHandler(reg *tasks.Registry, pipeline *jobs.Pipeline, uploads storage.Provider) *TaskHandler {
	return &TaskHandler{reg: reg, pipeline: pipeline, uploads: uploads, now: time.Now}
}

// ListTasks handles GET /api/tasks.
//
//	@Summary	List tasks, newest first
//	@Tags		tasks
//	@Produce	json
//	@Param		status	query		string	false	"Comma separated statuses"
//	@Success	200		{object}	TaskListResponse
//	@Failure	400		{object}	errResponse
//	@Security	BearerAuth
//	@Router		/tasks [get]
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	var f tasks.Filter
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			st, err := tasks.ParseStatus(strings.TrimSpace(part))
			if err != nil {
				writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
				return
			}
			f.Statuses = append(f.Statuses, st)
		}
	}
	writeJSON(w, http.StatusOK, TaskListResponse{Tasks: h.reg.List(f)})
}

// Summary handles GET /api/tasks/summary.
func (h *TaskHandler) Summary(w http.ResponseWriter, _ *http.Request) {
	s := h.reg.Summarize(h.now())
	writeJSON(w, http.StatusOK, TaskSummaryResponse{Summary: s, Total: s.Total()})
}

// GetTask handles GET /api/tasks/{id}.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	t, ok := h.reg.Get(chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// CreateTask handles POST /api/tasks (multipart/form-data, field "file").
//
//	@Summary	Upload a CSV or XLSX file and start an import task
//	@Tags		tasks
//	@Accept		multipart/form-data
//	@Produce	json
//	@Param		file			formData	file	true	"Import file"
//	@Param		auto_commit		formData	bool	false	"Commit without preview"
//	@Param		target_type		formData	string	false	"Bound document type"
//	@Param		target_id		formData	string	false	"Bound document id"
//	@Param		target_label	formData	string	false	"Bound document label"
//	@Success	202				{object}	TaskCreatedResponse
//	@Failure	400				{object}	errResponse
//	@Security	BearerAuth
//	@Router		/tasks [post]
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	if !jobs.Formats(header.Filename) {
		writeJSON(w, http.StatusBadRequest, errorBody("only .csv and .xlsx files can be imported"))
		return
	}

	autoCommit := false
	if raw := r.FormValue("auto_commit"); raw != "" {
		autoCommit, err = strconv.ParseBool(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("auto_commit must be a boolean"))
			return
		}
	}

	var target *models.BoundTarget
	if typ, id := r.FormValue("target_type"), r.FormValue("target_id"); typ != "" || id != "" {
		if typ == "" || id == "" {
			writeJSON(w, http.StatusBadRequest, errorBody("target_type and target_id go together"))
			return
		}
		target = &models.BoundTarget{Type: typ, ID: id, Label: r.FormValue("target_label")}
	}

	stored, err := h.uploads.Save(header.Filename, file)
	if errors.Is(err, storage.ErrInvalidName) {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if err != nil {
		writeError(w, "store upload", err)
		return
	}

	id := h.pipeline.Submit(jobs.File{Name: stored.Name, Handle: stored.Path}, jobs.SubmitOptions{
		AutoCommit: autoCommit,
		Target:     target,
	})
	writeJSON(w, http.StatusAccepted, TaskCreatedResponse{ID: id})
}

// ConfirmTask handles POST /api/tasks/{id}/confirm.
func (h *TaskHandler) ConfirmTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.pipeline.Confirm(id); err != nil {
		writeError(w, "confirm task", err)
		return
	}
	t, _ := h.reg.Get(id)
	writeJSON(w, http.StatusAccepted, t)
}

// DismissTask handles DELETE /api/tasks/{id}.
func (h *TaskHandler) DismissTask(w http.ResponseWriter, r *http.Request) {
	if err := h.pipeline.Dismiss(chi.URLParam(r, "id")); err != nil {
		writeError(w, "dismiss task", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
