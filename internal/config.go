package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/tabkeep/internal/jobs"
	"github.com/starford/tabkeep/internal/models"
	"github.com/starford/tabkeep/internal/tasks"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	SQLite    SQLiteConfig      `yaml:"sqlite"`
	Auth      AuthConfig        `yaml:"auth"`
	Uploads   UploadsConfig     `yaml:"uploads"`
	Inbox     InboxConfig       `yaml:"inbox"`
	Tasks     TasksConfig       `yaml:"tasks"`
	Workspace WorkspaceConfig   `yaml:"workspace"`
	Routes    []models.Route    `yaml:"routes"`
}

// Validate validates the configuration. Route table rules beyond presence
// are checked when the table is built.
func (c *Config) Validate() error {
	for _, v := range []validation.Validatable{&c.App, &c.SQLite, &c.Auth, &c.Uploads, &c.Inbox, &c.Tasks, &c.Workspace} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	if len(c.Routes) == 0 {
		return fmt.Errorf("routes: at least one route is required")
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// UploadsConfig holds the directory uploaded import files are kept in.
type UploadsConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the uploads configuration.
func (c *UploadsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// InboxConfig controls the drop directory watcher.
type InboxConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Path       string        `yaml:"path"`
	AutoCommit bool          `yaml:"auto_commit"`
	Settle     time.Duration `yaml:"settle"`
}

// Validate validates the inbox configuration.
func (c *InboxConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.When(c.Enabled, validation.Required)),
		validation.Field(&c.Settle, validation.Min(time.Duration(0))),
	)
}

// TasksConfig tunes the task registry and the local runner.
type TasksConfig struct {
	RecentWindow time.Duration `yaml:"recent_window"`
	PreviewRows  int           `yaml:"preview_rows"`
}

// Validate validates the tasks configuration.
func (c *TasksConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.RecentWindow, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.PreviewRows, validation.Required, validation.Min(1), validation.Max(1000)),
	)
}

// WorkspaceConfig names the persisted tab session.
type WorkspaceConfig struct {
	Session string `yaml:"session"`
}

// Validate validates the workspace configuration.
func (c *WorkspaceConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Session, validation.Required, validation.Length(1, 64)),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		SQLite: SQLiteConfig{
			Path: "./tabkeep.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Uploads: UploadsConfig{
			Path: "./data/uploads",
		},
		Inbox: InboxConfig{
			Path: "./data/inbox",
		},
		Tasks: TasksConfig{
			RecentWindow: tasks.DefaultRecentWindow,
			PreviewRows:  jobs.DefaultPreviewRows,
		},
		Workspace: WorkspaceConfig{
			Session: "default",
		},
		Routes: []models.Route{
			{Key: "home", Path: "/", Title: "Home", Home: true},
		},
	}
}
