package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/tabkeep/internal/workspace"
)

// WorkspaceHandler serves tab, navigation and page state routes.
type WorkspaceHandler struct {
	ws *workspace.Workspace
}

// NewWorkspaceHandler creates a new WorkspaceHandler.
func NewWorkspaceHandler(ws *workspace.Workspace) *WorkspaceHandler {
	return &WorkspaceHandler{ws: ws}
}

// GetWorkspace handles GET /api/workspace.
//
//	@Summary	Current tabs, active key, location and retained pages
//	@Tags		workspace
//	@Produce	json
//	@Success	200	{object}	workspace.State
//	@Security	BearerAuth
//	@Router		/workspace [get]
func (h *WorkspaceHandler) GetWorkspace(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.ws.State())
}

// Navigate handles POST /api/navigation.
//
//	@Summary	Report a router location change
//	@Tags		workspace
//	@Accept		json
//	@Produce	json
//	@Param		body	body		NavigationRequest	true	"New location"
//	@Success	200		{object}	workspace.State
//	@Failure	400		{object}	errResponse
//	@Security	BearerAuth
//	@Router		/navigation [post]
func (h *WorkspaceHandler) Navigate(w http.ResponseWriter, r *http.Request) {
	var req NavigationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	h.dispatch(w, workspace.Action{Type: workspace.ActionNavigate, Path: req.Path})
}

// ActivateTab handles POST /api/tabs/{key}/activate.
func (h *WorkspaceHandler) ActivateTab(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, workspace.Action{Type: workspace.ActionActivate, Key: chi.URLParam(r, "key")})
}

// CloseTab handles DELETE /api/tabs/{key}.
//
//	@Summary	Close a tab and drop its retained page
//	@Tags		tabs
//	@Produce	json
//	@Param		key	path		string	true	"Route key"
//	@Success	200	{object}	workspace.State
//	@Failure	404	{object}	errResponse
//	@Failure	409	{object}	errResponse
//	@Security	BearerAuth
//	@Router		/tabs/{key} [delete]
func (h *WorkspaceHandler) CloseTab(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, workspace.Action{Type: workspace.ActionClose, Key: chi.URLParam(r, "key")})
}

// CloseOthers handles POST /api/tabs/close-others.
func (h *WorkspaceHandler) CloseOthers(w http.ResponseWriter, _ *http.Request) {
	h.dispatch(w, workspace.Action{Type: workspace.ActionCloseOthers})
}

// CloseAll handles POST /api/tabs/close-all.
func (h *WorkspaceHandler) CloseAll(w http.ResponseWriter, _ *http.Request) {
	h.dispatch(w, workspace.Action{Type: workspace.ActionCloseAll})
}

// ReorderTabs handles POST /api/tabs/reorder.
func (h *WorkspaceHandler) ReorderTabs(w http.ResponseWriter, r *http.Request) {
	var req ReorderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	h.dispatch(w, workspace.Action{Type: workspace.ActionReorder, From: req.From, To: req.To})
}

func (h *WorkspaceHandler) dispatch(w http.ResponseWriter, a workspace.Action) {
	st, err := h.ws.Dispatch(a)
	if err != nil {
		writeError(w, string(a.Type), err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// GetPageState handles GET /api/pages/{key}/state.
func (h *WorkspaceHandler) GetPageState(w http.ResponseWriter, r *http.Request) {
	state, err := h.ws.PageState(chi.URLParam(r, "key"))
	if err != nil {
		writeError(w, "get page state", err)
		return
	}
	if state == nil {
		state = json.RawMessage("null")
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(state)
}

// PutPageState handles PUT /api/pages/{key}/state. The body is stored
// verbatim and must be valid JSON.
func (h *WorkspaceHandler) PutPageState(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read body"))
		return
	}
	if !json.Valid(body) {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := h.ws.SetPageState(chi.URLParam(r, "key"), body); err != nil {
		writeError(w, "put page state", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListRoutes handles GET /api/routes.
func (h *WorkspaceHandler) ListRoutes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, RouteListResponse{Routes: h.ws.Routes().All()})
}
