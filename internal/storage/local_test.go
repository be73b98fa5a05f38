package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type doc struct {
	VideoID string `json:"video_id"`
	Count   int    `json:"count"`
}

func TestLocalStore_PutGet(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	ctx := context.Background()
	key := "projects/p1/videos/v1/evidence.json"

	if err := store.PutJSON(ctx, key, doc{VideoID: "v1", Count: 1}); err != nil {
		t.Fatalf("PutJSON: %v", err)
	}
	if err := store.PutJSON(ctx, key, doc{VideoID: "v1", Count: 2}); err != nil {
		t.Fatalf("PutJSON overwrite: %v", err)
	}

	var got doc
	if err := store.GetJSON(ctx, key, &got); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if got.Count != 2 {
		t.Fatalf("expected overwrite to win, got %+v", got)
	}
}

func TestLocalStore_NotFound(t *testing.T) {
	store, _ := NewLocalStore(t.TempDir())

	var got doc
	err := store.GetJSON(context.Background(), "projects/p/videos/missing/evidence.json", &got)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLocalStore_KeyCannotEscapeRoot(t *testing.T) {
	root := t.TempDir()
	store, _ := NewLocalStore(root)

	if err := store.PutJSON(context.Background(), "../../outside.json", doc{}); err != nil {
		t.Fatalf("PutJSON: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "outside.json")); err != nil {
		t.Fatalf("expected traversal key to be confined to root: %v", err)
	}
}

func TestLocalStore_PresignGet(t *testing.T) {
	store, _ := NewLocalStore(t.TempDir())

	u, err := store.PresignGet(context.Background(), "uploads/clip.mp4", time.Hour)
	if err != nil {
		t.Fatalf("PresignGet: %v", err)
	}
	if !strings.HasPrefix(u, "file://") || !strings.HasSuffix(u, "/uploads/clip.mp4") {
		t.Fatalf("unexpected url %s", u)
	}
}

func TestNew_UnknownType(t *testing.T) {
	if _, err := New(context.Background(), Config{Type: "ftp"}); err == nil {
		t.Fatal("expected error for unknown storage type")
	}
}
