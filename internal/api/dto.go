package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/tabkeep/internal/models"
	"github.com/starford/tabkeep/internal/tasks"
)

// NavigationRequest reports a router location change.
type NavigationRequest struct {
	Path string `json:"path" example:"/orders"`
}

// Validate validates the request.
func (r *NavigationRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Path, validation.Required, validation.Length(1, 2048)),
	)
}

// ReorderRequest moves a tab between positions. Position 0 is the home tab.
type ReorderRequest struct {
	From int `json:"from" example:"2"`
	To   int `json:"to" example:"1"`
}

// Validate validates the request.
func (r *ReorderRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.From, validation.Min(1)),
		validation.Field(&r.To, validation.Min(1)),
	)
}

// TaskListResponse wraps a task listing.
type TaskListResponse struct {
	Tasks []models.Task `json:"tasks"`
}

// TaskSummaryResponse is the floating status surface payload.
type TaskSummaryResponse struct {
	tasks.Summary
	Total int `json:"total"`
}

// TaskCreatedResponse is returned after an upload is accepted.
type TaskCreatedResponse struct {
	ID string `json:"id" example:"8f14e45f-ceea-467f-a0e6-3f6b1d2c9a10"`
}

// RouteListResponse wraps the route table.
type RouteListResponse struct {
	Routes []models.Route `json:"routes"`
}
