/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package library

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/looplearn/internal/models"
)

// SQLStore keeps lists in a relational database through gorm. Lists are
// addressed by their unique name.
type SQLStore struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// NewSQLStore creates a database-backed store. The schema must already be
// migrated (see db.Migrate).
func NewSQLStore(db *gorm.DB, logger zerolog.Logger) *SQLStore {
	return &SQLStore{
		db:     db,
		logger: logger.With().Str("component", "library").Str("backend", BackendDatabase).Logger(),
	}
}

// CheckAccess pings the database.
func (s *SQLStore) CheckAccess(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("database handle: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}

// List returns every stored list, most recently updated first.
func (s *SQLStore) List(ctx context.Context) ([]Entry, error) {
	var rows []models.LoopList
	err := s.db.WithContext(ctx).
		Select("id", "name", "title", "updated_at").
		Order("updated_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list loop lists: %w", err)
	}

	entries := make([]Entry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, Entry{
			Name:       r.Name,
			Title:      r.Title,
			ModifiedAt: r.UpdatedAt.UTC(),
		})
	}
	return entries, nil
}

// Load fetches the named list with its loops in stored order.
func (s *SQLStore) Load(ctx context.Context, name string) (*models.LoopList, error) {
	var list models.LoopList
	err := s.db.WithContext(ctx).
		Preload("Loops", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("position ASC")
		}).
		Where("name = ?", normalizeSQLName(name)).
		First(&list).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("load %q: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("load %q: %w", name, err)
	}

	if err := list.Validate(); err != nil {
		return nil, fmt.Errorf("load %q: %w: %v", name, ErrCorrupt, err)
	}
	list.Normalize()
	return &list, nil
}

// Save replaces the named list and all of its loops in one transaction. A
// list saved under a second name is stored as an independent copy.
func (s *SQLStore) Save(ctx context.Context, name string, list *models.LoopList) (string, error) {
	name = normalizeSQLName(name)
	row := list.Clone()
	row.Name = name
	row.Renumber()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.LoopList
		err := tx.Select("id").Where("name = ?", name).First(&existing).Error
		switch {
		case err == nil:
			row.ListID = existing.ListID
		case errors.Is(err, gorm.ErrRecordNotFound):
			var count int64
			if err := tx.Model(&models.LoopList{}).Where("id = ?", row.ListID).Count(&count).Error; err != nil {
				return err
			}
			if count > 0 || row.ListID == "" {
				row.ListID = uuid.NewString()
			}
		default:
			return err
		}

		if err := tx.Where("list_id = ?", row.ListID).Delete(&models.Loop{}).Error; err != nil {
			return fmt.Errorf("clear loops: %w", err)
		}
		if err := tx.Omit("Loops").Save(row).Error; err != nil {
			return fmt.Errorf("save list: %w", err)
		}
		if len(row.Loops) == 0 {
			return nil
		}
		for i := range row.Loops {
			row.Loops[i].ListID = row.ListID
		}
		if err := tx.Create(&row.Loops).Error; err != nil {
			return fmt.Errorf("save loops: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("save %q: %w", name, err)
	}

	s.logger.Debug().Str("name", name).Str("list_id", row.ListID).Int("loops", row.Len()).Msg("loop list saved")
	return name, nil
}

func normalizeSQLName(name string) string {
	name = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(name), fileExt))
	if name == "" {
		return "untitled"
	}
	return name
}
