package library

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/looplearn/internal/models"
)

func sampleList(t *testing.T) *models.LoopList {
	t.Helper()
	list := models.NewLoopList("Solo practice")
	list.VideoID = "dQw4w9WgXcQ"
	list.VideoURL = models.VideoURL(list.VideoID)
	for _, r := range [][2]float64{{1, 4}, {10, 12.5}, {30, 31}} {
		if _, err := list.AddSegment(r[0], r[1]); err != nil {
			t.Fatalf("add segment: %v", err)
		}
	}
	list.Loops[1].PrimaryText = "bar 12"
	return list
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"practice", "practice.json"},
		{"practice.json", "practice.json"},
		{`a<b>c:d"e/f\g|h?i*j`, "a-b-c-d-e-f-g-h-i-j.json"},
		{"  spaced  ", "spaced.json"},
		{"", "untitled.json"},
		{"..", "untitled.json"},
	}
	for _, tt := range tests {
		if got := SanitizeName(tt.in); got != tt.want {
			t.Errorf("SanitizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFolderStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewFolderStore(dir, zerolog.Nop())
	ctx := context.Background()

	if err := store.CheckAccess(ctx); err != nil {
		t.Fatalf("check access: %v", err)
	}

	list := sampleList(t)
	name, err := store.Save(ctx, "solo: take 1", list)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if name != "solo- take 1" {
		t.Fatalf("unexpected stored name %q", name)
	}

	got, err := store.Load(ctx, name)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.ListID != list.ListID || got.Title != list.Title || got.VideoID != list.VideoID {
		t.Fatalf("metadata mismatch: %+v", got)
	}
	if got.Len() != 3 {
		t.Fatalf("expected 3 loops, got %d", got.Len())
	}
	for i, l := range got.Loops {
		want := list.Loops[i]
		if l.ID != want.ID || l.Index != i || l.StartTime != want.StartTime || l.EndTime != want.EndTime || l.PrimaryText != want.PrimaryText {
			t.Fatalf("loop %d mismatch: got %+v want %+v", i, l, want)
		}
	}
	if !got.CreatedAt.Equal(list.CreatedAt) {
		t.Fatalf("createdAt not revived: %v vs %v", got.CreatedAt, list.CreatedAt)
	}

	entries, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != name || entries[0].Size == 0 {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestFolderStoreWritesIndentedJSON(t *testing.T) {
	dir := t.TempDir()
	store := NewFolderStore(dir, zerolog.Nop())
	if _, err := store.Save(context.Background(), "x", sampleList(t)); err != nil {
		t.Fatalf("save: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "x.json"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), "\n  \"loops\": [") {
		t.Fatalf("expected two-space indentation, got:\n%s", data)
	}
}

func TestFolderStoreListIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	store := NewFolderStore(dir, zerolog.Nop())
	ctx := context.Background()

	if _, err := store.Save(ctx, "old", sampleList(t)); err != nil {
		t.Fatalf("save: %v", err)
	}
	past := time.Now().Add(-time.Hour)
	if err := os.Chtimes(filepath.Join(dir, "old.json"), past, past); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	if _, err := store.Save(ctx, "new", sampleList(t)); err != nil {
		t.Fatalf("save: %v", err)
	}
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644)
	os.Mkdir(filepath.Join(dir, "sub.json"), 0o755)

	entries, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 || entries[0].Name != "new" || entries[1].Name != "old" {
		t.Fatalf("expected [new old], got %+v", entries)
	}
}

func TestFolderStoreErrors(t *testing.T) {
	dir := t.TempDir()
	store := NewFolderStore(dir, zerolog.Nop())
	ctx := context.Background()

	if _, err := store.Load(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	corrupt := map[string]string{
		"garbage":     "not json",
		"array":       "[1,2,3]",
		"loops":       `{"loops": {"a": 1}}`,
		"bad-range":   `{"loops": [{"id": "a", "index": 0, "startTime": 5, "endTime": 2}]}`,
		"dup-id":      `{"loops": [{"id": "a", "startTime": 1, "endTime": 2}, {"id": "a", "startTime": 3, "endTime": 4}]}`,
		"wrong-types": `{"loops": [{"startTime": "soon"}]}`,
	}
	for name, body := range corrupt {
		if err := os.WriteFile(filepath.Join(dir, name+".json"), []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		if _, err := store.Load(ctx, name); !errors.Is(err, ErrCorrupt) {
			t.Errorf("%s: expected ErrCorrupt, got %v", name, err)
		}
	}

	missing := NewFolderStore(filepath.Join(dir, "nope"), zerolog.Nop())
	if err := missing.CheckAccess(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing folder, got %v", err)
	}
	if _, err := missing.List(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound listing missing folder, got %v", err)
	}
}

func TestDecodeLegacyAndMissingIndices(t *testing.T) {
	data := []byte(`{
  "title": "legacy",
  "createdAt": "2024-03-01T10:00:00Z",
  "loops": [
    {"name": "second", "loopIndex": 1, "startTime": 5, "endTime": 6},
    {"name": "first", "loopIndex": 0, "startTime": 1, "endTime": 2},
    {"name": "unindexed", "startTime": 8, "endTime": 9}
  ]
}`)
	list, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if list.ListID == "" {
		t.Fatal("expected list id to be assigned")
	}
	names := make([]string, 0, list.Len())
	for i, l := range list.Loops {
		if l.Index != i || l.ID == "" {
			t.Fatalf("loop %d not normalized: %+v", i, l)
		}
		names = append(names, l.Name)
	}
	if strings.Join(names, ",") != "first,second,unindexed" {
		t.Fatalf("unexpected order: %v", names)
	}
	if list.CreatedAt.Year() != 2024 {
		t.Fatalf("createdAt not parsed: %v", list.CreatedAt)
	}
}

func TestSaveFileLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "single.json")
	if err := SaveFile(path, sampleList(t)); err != nil {
		t.Fatalf("save file: %v", err)
	}
	if _, err := LoadFile(path); err != nil {
		t.Fatalf("load file: %v", err)
	}
	dirents, _ := os.ReadDir(dir)
	if len(dirents) != 1 {
		t.Fatalf("expected only the list file, got %d entries", len(dirents))
	}
}
