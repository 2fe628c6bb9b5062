// Package models defines the domain types for tabkeep.
package models

import "time"

// Tab is one entry of the ordered, user-visible list of open pages.
type Tab struct {
	Key      string `json:"key"`
	Title    string `json:"title"`
	Path     string `json:"path"`
	Closable bool   `json:"closable"`
	Order    int    `json:"order"`
}

// Route describes a navigable page known to the application.
type Route struct {
	Key       string `json:"key" yaml:"key"`
	Path      string `json:"path" yaml:"path"`
	Title     string `json:"title" yaml:"title"`
	KeepAlive bool   `json:"keep_alive" yaml:"keep_alive"`
	Home      bool   `json:"home,omitempty" yaml:"home"`
	View      string `json:"view,omitempty" yaml:"view"`
}

// PageEntry is the externally visible view of a retained page.
type PageEntry struct {
	RouteKey  string    `json:"route_key"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}
