/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package library

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/friendsincode/looplearn/internal/models"
)

const fileExt = ".json"

var unsafeNameChars = regexp.MustCompile(`[<>:"/\\|?*]`)

// SanitizeName turns a user supplied name into a file name: characters that
// are unsafe on common filesystems become "-" and ".json" is appended once.
func SanitizeName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.TrimSuffix(name, fileExt)
	name = unsafeNameChars.ReplaceAllString(name, "-")
	if name == "" || name == "." || name == ".." {
		name = "untitled"
	}
	return name + fileExt
}

// DisplayName strips the file extension.
func DisplayName(fileName string) string {
	return strings.TrimSuffix(fileName, fileExt)
}

// Encode serialises a list as indented JSON. CreatedAt is set when missing.
func Encode(list *models.LoopList) ([]byte, error) {
	out := list.Clone()
	if out.CreatedAt.IsZero() {
		out.CreatedAt = time.Now().UTC()
	}
	if out.UpdatedAt.IsZero() {
		out.UpdatedAt = out.CreatedAt
	}
	out.Renumber()

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(out); err != nil {
		return nil, fmt.Errorf("encode loop list: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode parses and validates a stored list. Anything that is not a JSON
// object with a valid loops array is ErrCorrupt.
func Decode(data []byte) (*models.LoopList, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if raw, ok := probe["loops"]; ok && !bytes.HasPrefix(bytes.TrimSpace(raw), []byte("[")) && !bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, fmt.Errorf("%w: loops is not an array", ErrCorrupt)
	}

	var list models.LoopList
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if err := list.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if list.ListID == "" {
		list.ListID = models.NewLoopList("").ListID
	}
	list.Normalize()
	return &list, nil
}
