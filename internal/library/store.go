/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package library persists loop lists to a folder of JSON files, single
// files, or a database.
package library

import (
	"context"
	"errors"
	"time"

	"github.com/friendsincode/looplearn/internal/models"
)

var (
	// ErrNotFound indicates no list is stored under the requested name.
	ErrNotFound = errors.New("loop list not found")

	// ErrPermissionDenied indicates the backing store refused access.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrCorrupt indicates stored data that does not decode to a valid list.
	ErrCorrupt = errors.New("corrupt loop list")
)

// Backend names accepted by configuration.
const (
	BackendFolder   = "folder"
	BackendDatabase = "database"
)

// Entry describes one stored list.
type Entry struct {
	Name       string    `json:"name"`
	Title      string    `json:"title,omitempty"`
	ModifiedAt time.Time `json:"modifiedAt"`
	Size       int64     `json:"size,omitempty"`
}

// Store loads and saves whole loop lists by name. Errors wrap ErrNotFound,
// ErrPermissionDenied or ErrCorrupt where they apply.
type Store interface {
	List(ctx context.Context) ([]Entry, error)
	Load(ctx context.Context, name string) (*models.LoopList, error)
	// Save stores list under name and returns the name actually used.
	Save(ctx context.Context, name string, list *models.LoopList) (string, error)
}

// Checker is implemented by stores that can verify access up front.
type Checker interface {
	CheckAccess(ctx context.Context) error
}
