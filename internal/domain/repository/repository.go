// Package repository defines the remote source unit the rest of the system
// operates on: one GitHub repository identified by owner/name.
package repository

import (
	"errors"
	"strings"
	"time"
)

// ErrInvalidFullName indicates a repository identifier that is not of the
// form "owner/name".
var ErrInvalidFullName = errors.New("invalid repository full name")

// Repository identifies a remote source unit. Instances are created
// transiently on each fetch; only derived state is persisted.
type Repository struct {
	// FullName is the unique key, format "owner/name".
	FullName string `json:"full_name"`
	// DefaultBranch is the branch detection reads entry files from.
	DefaultBranch string `json:"default_branch"`
	// Description, Language and UpdatedAt are descriptive only.
	Description string    `json:"description,omitempty"`
	Language    string    `json:"language,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

// New creates a Repository from a full name, validating its shape.
func New(fullName, defaultBranch string) (Repository, error) {
	if err := ValidateFullName(fullName); err != nil {
		return Repository{}, err
	}
	if defaultBranch == "" {
		defaultBranch = "main"
	}
	return Repository{FullName: fullName, DefaultBranch: defaultBranch}, nil
}

// ValidateFullName checks that fullName has the form "owner/name" with
// non-empty segments.
func ValidateFullName(fullName string) error {
	owner, name, ok := strings.Cut(fullName, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return ErrInvalidFullName
	}
	return nil
}

// Owner returns the account part of the full name.
func (r Repository) Owner() string {
	owner, _, _ := strings.Cut(r.FullName, "/")
	return owner
}

// Name returns the repository part of the full name.
func (r Repository) Name() string {
	_, name, _ := strings.Cut(r.FullName, "/")
	return name
}

// Branch returns the default branch, falling back to "main" when the
// source could not report one (the scrape path cannot see branches).
func (r Repository) Branch() string {
	if r.DefaultBranch == "" {
		return "main"
	}
	return r.DefaultBranch
}

// Slug derives the host-side plugin identifier from the repository name.
// WordPress slugs are the plugin directory name, which for GitHub-hosted
// plugins is the repository name lowercased.
func (r Repository) Slug() string {
	return strings.ToLower(strings.TrimSpace(r.Name()))
}
