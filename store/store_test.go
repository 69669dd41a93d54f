package store

import (
	"errors"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "store.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutGetRoundTrip(t *testing.T) {
	s := openTestStore(t)

	image := []byte("program-image-bytes")
	hash, err := s.Put(image)
	if err != nil {
		t.Fatal(err)
	}
	if hash != Hash(image) {
		t.Errorf("hash = %q, want %q", hash, Hash(image))
	}

	back, err := s.Get(hash)
	if err != nil {
		t.Fatal(err)
	}
	if string(back) != string(image) {
		t.Errorf("image = %q, want %q", back, image)
	}
}

func TestGetMissing(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Get("deadbeef")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestPutIsIdempotent(t *testing.T) {
	s := openTestStore(t)

	image := []byte("same image")
	h1, err := s.Put(image)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := s.Put(image)
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Errorf("hashes differ: %q vs %q", h1, h2)
	}

	entries, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("entries = %d, want 1", len(entries))
	}
	if entries[0].Size != len(image) {
		t.Errorf("size = %d, want %d", entries[0].Size, len(image))
	}
	if entries[0].ID == "" {
		t.Error("entry id missing")
	}
}

func TestListOrdersNewestFirst(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Put([]byte("first")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Put([]byte("second")); err != nil {
		t.Fatal(err)
	}

	entries, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if !entries[0].CreatedAt.After(entries[1].CreatedAt) && !entries[0].CreatedAt.Equal(entries[1].CreatedAt) {
		t.Error("entries not ordered newest first")
	}
}
