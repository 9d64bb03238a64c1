/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"fmt"

	"github.com/friendsincode/looplearn/internal/models"
	"gorm.io/gorm"
)

// Migrate applies database schema migrations using GORM auto-migrate.
func Migrate(database *gorm.DB) error {
	if err := database.AutoMigrate(
		&models.LoopList{},
		&models.Loop{},
	); err != nil {
		return err
	}

	if err := migrateLegacyLoopIndex(database); err != nil {
		return err
	}
	if err := backfillVideoURLs(database); err != nil {
		return err
	}

	return nil
}

// migrateLegacyLoopIndex copies the old loop_index column into position and
// drops it in one transaction, so the copy runs at most once and never
// overwrites an order saved after the upgrade. Early schemas stored the order
// under that name.
func migrateLegacyLoopIndex(database *gorm.DB) error {
	if !database.Migrator().HasColumn(&models.Loop{}, "loop_index") {
		return nil
	}

	return database.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("UPDATE loops SET position = loop_index WHERE loop_index IS NOT NULL").Error; err != nil {
			return fmt.Errorf("copy loop_index: %w", err)
		}
		// The migrator cannot drop a column the model no longer declares.
		if err := tx.Exec("ALTER TABLE loops DROP COLUMN loop_index").Error; err != nil {
			return fmt.Errorf("drop loop_index: %w", err)
		}
		return nil
	})
}

// backfillVideoURLs fills video_url for lists that only stored an id.
func backfillVideoURLs(database *gorm.DB) error {
	var lists []models.LoopList
	if err := database.
		Select("id", "video_id").
		Where("video_id != '' AND (video_url IS NULL OR video_url = '')").
		Find(&lists).Error; err != nil {
		return fmt.Errorf("backfill video urls query: %w", err)
	}

	for _, l := range lists {
		if err := database.Model(&models.LoopList{}).
			Where("id = ?", l.ListID).
			Update("video_url", models.VideoURL(l.VideoID)).Error; err != nil {
			return fmt.Errorf("backfill video url for %s: %w", l.ListID, err)
		}
	}
	return nil
}
