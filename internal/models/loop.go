/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrInvalidRange indicates a segment whose end is not after its start, or whose start is negative.
	ErrInvalidRange = errors.New("invalid loop range")

	// ErrIndexOutOfRange indicates a loop index outside 0..len-1.
	ErrIndexOutOfRange = errors.New("loop index out of range")
)

// Loop is one timestamped segment of the list's video.
//
// ID is assigned once at creation and never changes. Index is the dense
// 0-based display and playback order and is rewritten on every structural edit.
type Loop struct {
	ID            string  `gorm:"type:varchar(36);primaryKey" json:"id"`
	ListID        string  `gorm:"type:varchar(36);primaryKey" json:"-"`
	Index         int     `gorm:"column:position;index" json:"index"`
	Name          string  `json:"name"`
	StartTime     float64 `json:"startTime"`
	EndTime       float64 `json:"endTime"`
	PrimaryText   string  `gorm:"type:text" json:"primaryText"`
	SecondaryText string  `gorm:"type:text" json:"secondaryText"`
}

// Duration returns the segment length in seconds.
func (l Loop) Duration() float64 {
	return l.EndTime - l.StartTime
}

// UnmarshalJSON accepts the legacy "loopIndex" key written by older files.
// A loop with neither key gets Index -1 and is placed by Normalize.
func (l *Loop) UnmarshalJSON(data []byte) error {
	type plain Loop
	aux := struct {
		*plain
		Index     *int `json:"index"`
		LoopIndex *int `json:"loopIndex"`
	}{plain: (*plain)(l)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	switch {
	case aux.Index != nil:
		l.Index = *aux.Index
	case aux.LoopIndex != nil:
		l.Index = *aux.LoopIndex
	default:
		l.Index = -1
	}
	return nil
}

// ValidateRange checks the creation invariant end > start >= 0.
func ValidateRange(start, end float64) error {
	if start < 0 || end <= start {
		return fmt.Errorf("%w: start=%.3f end=%.3f", ErrInvalidRange, start, end)
	}
	return nil
}

// LoopList is a titled collection of loops over one video. It is loaded and
// saved wholesale.
type LoopList struct {
	ListID      string    `gorm:"column:id;type:varchar(36);primaryKey" json:"listId"`
	Name        string    `gorm:"uniqueIndex;size:255" json:"-"`
	OwnerID     string    `gorm:"index" json:"ownerId"`
	Title       string    `gorm:"index" json:"title"`
	Description string    `gorm:"type:text" json:"description"`
	VideoID     string    `gorm:"type:varchar(32)" json:"videoId"`
	VideoURL    string    `json:"videoUrl"`
	IsPublic    bool      `json:"isPublic"`
	Language    string    `gorm:"type:varchar(16)" json:"language"`
	SkillLevel  string    `gorm:"type:varchar(32)" json:"skillLevel"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	Loops       []Loop    `gorm:"foreignKey:ListID;references:ListID;constraint:OnDelete:CASCADE" json:"loops"`
}

// NewLoopList creates an empty list with a fresh id.
func NewLoopList(title string) *LoopList {
	now := time.Now().UTC()
	return &LoopList{
		ListID:    uuid.NewString(),
		Title:     title,
		Loops:     make([]Loop, 0),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy; the loops slice is not shared.
func (ll *LoopList) Clone() *LoopList {
	cp := *ll
	cp.Loops = append([]Loop(nil), ll.Loops...)
	return &cp
}

// Len returns the number of loops.
func (ll *LoopList) Len() int {
	return len(ll.Loops)
}

// At returns the loop at display index i.
func (ll *LoopList) At(i int) (Loop, error) {
	if i < 0 || i >= len(ll.Loops) {
		return Loop{}, fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}
	return ll.Loops[i], nil
}

// Find returns the loop with the given id.
func (ll *LoopList) Find(id string) (Loop, bool) {
	if i := ll.IndexOf(id); i >= 0 {
		return ll.Loops[i], true
	}
	return Loop{}, false
}

// IndexOf returns the position of the loop with the given id, or -1.
func (ll *LoopList) IndexOf(id string) int {
	for i := range ll.Loops {
		if ll.Loops[i].ID == id {
			return i
		}
	}
	return -1
}

// AddSegment appends a new loop named "Loop N".
func (ll *LoopList) AddSegment(start, end float64) (Loop, error) {
	if err := ValidateRange(start, end); err != nil {
		return Loop{}, err
	}

	n := len(ll.Loops)
	loop := Loop{
		ID:        uuid.NewString(),
		ListID:    ll.ListID,
		Index:     n,
		Name:      fmt.Sprintf("Loop %d", n+1),
		StartTime: start,
		EndTime:   end,
	}
	ll.Loops = append(ll.Loops, loop)
	ll.touch()
	return loop, nil
}

// DeleteSegment removes the loop at index and renumbers the rest.
func (ll *LoopList) DeleteSegment(index int) (Loop, error) {
	removed, err := ll.At(index)
	if err != nil {
		return Loop{}, err
	}
	ll.Loops = append(ll.Loops[:index], ll.Loops[index+1:]...)
	ll.Renumber()
	ll.touch()
	return removed, nil
}

// Reorder moves the loop at from so that it ends up at to. Every other loop
// keeps its relative order.
func (ll *LoopList) Reorder(from, to int) error {
	if _, err := ll.At(from); err != nil {
		return err
	}
	if _, err := ll.At(to); err != nil {
		return err
	}
	if from == to {
		return nil
	}

	moved := ll.Loops[from]
	rest := append(ll.Loops[:from:from], ll.Loops[from+1:]...)
	out := make([]Loop, 0, len(ll.Loops))
	out = append(out, rest[:to]...)
	out = append(out, moved)
	out = append(out, rest[to:]...)
	ll.Loops = out
	ll.Renumber()
	ll.touch()
	return nil
}

// LoopPatch carries optional edits for UpdateSegment. Nil fields are left as is.
type LoopPatch struct {
	Name          *string  `json:"name,omitempty"`
	StartTime     *float64 `json:"startTime,omitempty"`
	EndTime       *float64 `json:"endTime,omitempty"`
	PrimaryText   *string  `json:"primaryText,omitempty"`
	SecondaryText *string  `json:"secondaryText,omitempty"`
}

// UpdateSegment applies patch to the loop at index. A range change is
// validated like a new segment and nothing is written on failure.
func (ll *LoopList) UpdateSegment(index int, patch LoopPatch) (Loop, error) {
	loop, err := ll.At(index)
	if err != nil {
		return Loop{}, err
	}

	if patch.StartTime != nil {
		loop.StartTime = *patch.StartTime
	}
	if patch.EndTime != nil {
		loop.EndTime = *patch.EndTime
	}
	if patch.StartTime != nil || patch.EndTime != nil {
		if err := ValidateRange(loop.StartTime, loop.EndTime); err != nil {
			return Loop{}, err
		}
	}
	if patch.Name != nil {
		loop.Name = *patch.Name
	}
	if patch.PrimaryText != nil {
		loop.PrimaryText = *patch.PrimaryText
	}
	if patch.SecondaryText != nil {
		loop.SecondaryText = *patch.SecondaryText
	}

	ll.Loops[index] = loop
	ll.touch()
	return loop, nil
}

// Renumber rewrites Index as the slice position.
func (ll *LoopList) Renumber() {
	for i := range ll.Loops {
		ll.Loops[i].Index = i
	}
}

// Normalize brings a decoded or queried list into canonical form: loops
// ordered by stored index (unknown indices keep their position), dense
// indices, ids on every loop.
func (ll *LoopList) Normalize() {
	if ll.Loops == nil {
		ll.Loops = make([]Loop, 0)
	}
	for i := range ll.Loops {
		if ll.Loops[i].Index < 0 {
			ll.Loops[i].Index = i
		}
		if ll.Loops[i].ID == "" {
			ll.Loops[i].ID = uuid.NewString()
		}
		ll.Loops[i].ListID = ll.ListID
	}
	sort.SliceStable(ll.Loops, func(a, b int) bool {
		return ll.Loops[a].Index < ll.Loops[b].Index
	})
	ll.Renumber()
}

// Validate reports the first loop that breaks the range invariant or shares
// an id with an earlier loop.
func (ll *LoopList) Validate() error {
	seen := make(map[string]struct{}, len(ll.Loops))
	for i, l := range ll.Loops {
		if err := ValidateRange(l.StartTime, l.EndTime); err != nil {
			return fmt.Errorf("loop %d (%q): %w", i, l.Name, err)
		}
		if l.ID == "" {
			continue
		}
		if _, dup := seen[l.ID]; dup {
			return fmt.Errorf("loop %d: duplicate id %s", i, l.ID)
		}
		seen[l.ID] = struct{}{}
	}
	return nil
}

func (ll *LoopList) touch() {
	ll.UpdatedAt = time.Now().UTC()
}
