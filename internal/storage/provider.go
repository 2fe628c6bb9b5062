// Package storage keeps uploaded import files on disk until their job is
// done with them.
package storage

import "io"

// StoredFile describes a file accepted into the upload area.
type StoredFile struct {
	// Name is the original file name supplied by the user.
	Name string
	// Path is the location relative to the upload root; it doubles as the
	// job runner handle.
	Path     string
	Size     int64
	Checksum string
}

// Provider is the interface for upload file operations.
type Provider interface {
	// Save copies r into the upload area under a unique name derived from name.
	Save(name string, r io.Reader) (StoredFile, error)
	// Abs resolves a relative upload path to an absolute one.
	Abs(path string) (string, error)
	// Delete removes the stored file at path.
	Delete(path string) error
}
