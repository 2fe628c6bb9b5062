package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RouterConfig collects what the API router mounts.
type RouterConfig struct {
	Workspace   *WorkspaceHandler
	Tasks       *TaskHandler
	AuthEnabled bool
	Token       string
	// Events, if non-nil, is mounted at GET /events inside the auth group.
	Events http.Handler
}

// NewRouter creates a chi router with all API routes mounted.
func NewRouter(cfg RouterConfig) chi.Router {
	r := chi.NewRouter()
	r.Use(AuthMiddleware(cfg.AuthEnabled, cfg.Token))

	ws := cfg.Workspace
	r.Get("/workspace", ws.GetWorkspace)
	r.Post("/navigation", ws.Navigate)
	r.Get("/routes", ws.ListRoutes)

	// Tabs.
	r.Post("/tabs/close-others", ws.CloseOthers)
	r.Post("/tabs/close-all", ws.CloseAll)
	r.Post("/tabs/reorder", ws.ReorderTabs)
	r.Post("/tabs/{key}/activate", ws.ActivateTab)
	r.Delete("/tabs/{key}", ws.CloseTab)

	// Retained page state.
	r.Get("/pages/{key}/state", ws.GetPageState)
	r.Put("/pages/{key}/state", ws.PutPageState)

	// Import tasks.
	th := cfg.Tasks
	r.Get("/tasks", th.ListTasks)
	r.Post("/tasks", th.CreateTask)
	r.Get("/tasks/summary", th.Summary)
	r.Get("/tasks/{id}", th.GetTask)
	r.Post("/tasks/{id}/confirm", th.ConfirmTask)
	r.Delete("/tasks/{id}", th.DismissTask)

	if cfg.Events != nil {
		r.Get("/events", cfg.Events.ServeHTTP)
	}

	return r
}
