/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package library

import (
	"context"
	"errors"
	"time"

	"github.com/friendsincode/looplearn/internal/models"
	"github.com/friendsincode/looplearn/internal/telemetry"
)

// Instrumented wraps a Store with metrics and tracing.
type Instrumented struct {
	next    Store
	backend string
}

// Instrument wraps next. backend labels the metrics.
func Instrument(next Store, backend string) *Instrumented {
	return &Instrumented{next: next, backend: backend}
}

// CheckAccess forwards to the wrapped store when it supports access checks.
func (s *Instrumented) CheckAccess(ctx context.Context) error {
	c, ok := s.next.(Checker)
	if !ok {
		return nil
	}
	return s.observe(ctx, "check_access", "", func(ctx context.Context) error {
		return c.CheckAccess(ctx)
	})
}

// List implements Store.
func (s *Instrumented) List(ctx context.Context) ([]Entry, error) {
	var out []Entry
	err := s.observe(ctx, "list", "", func(ctx context.Context) error {
		var err error
		out, err = s.next.List(ctx)
		return err
	})
	return out, err
}

// Load implements Store.
func (s *Instrumented) Load(ctx context.Context, name string) (*models.LoopList, error) {
	var out *models.LoopList
	err := s.observe(ctx, "load", name, func(ctx context.Context) error {
		var err error
		out, err = s.next.Load(ctx, name)
		return err
	})
	return out, err
}

// Save implements Store.
func (s *Instrumented) Save(ctx context.Context, name string, list *models.LoopList) (string, error) {
	var out string
	err := s.observe(ctx, "save", name, func(ctx context.Context) error {
		var err error
		out, err = s.next.Save(ctx, name, list)
		return err
	})
	return out, err
}

func (s *Instrumented) observe(ctx context.Context, op, name string, fn func(context.Context) error) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "library", op,
		telemetry.AttrLibraryBackend.String(s.backend),
		telemetry.AttrListName.String(name),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	start := time.Now()
	err = fn(ctx)
	telemetry.LibraryOperationDuration.WithLabelValues(s.backend, op).Observe(time.Since(start).Seconds())
	telemetry.LibraryOperationsTotal.WithLabelValues(s.backend, op, resultLabel(err)).Inc()
	return err
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, ErrCorrupt):
		return "corrupt"
	default:
		return "error"
	}
}
