package store

import (
	"context"
	"testing"
	"time"

	"github.com/murmur-app/murmur/model"
)

func TestUpsertAndGet(t *testing.T) {
	s, err := NewFileStore("")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()

	if _, ok, err := s.GetSession(ctx, "missing"); err != nil || ok {
		t.Fatalf("GetSession(missing) = ok=%v err=%v, want absent", ok, err)
	}

	rec := &model.SessionRecord{
		ID:        "abc",
		StartedAt: time.Now(),
		Words:     []model.Word{{Text: "hello", End: 500}},
	}
	if err := s.UpsertSession(ctx, rec); err != nil {
		t.Fatalf("UpsertSession: %v", err)
	}

	got, ok, err := s.GetSession(ctx, "abc")
	if err != nil || !ok {
		t.Fatalf("GetSession = ok=%v err=%v, want present", ok, err)
	}
	if len(got.Words) != 1 || got.Words[0].Text != "hello" {
		t.Fatalf("words = %+v, want the stored word", got.Words)
	}

	// mutating the returned copy must not touch store state
	got.Words[0].Text = "mutated"
	again, _, _ := s.GetSession(ctx, "abc")
	if again.Words[0].Text != "hello" {
		t.Fatal("store state mutated through a returned record")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s1, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	rec := &model.SessionRecord{ID: "sess-1", StartedAt: time.Now().UTC(), Words: []model.Word{{Text: "one"}}}
	if err := s1.UpsertSession(ctx, rec); err != nil {
		t.Fatalf("UpsertSession: %v", err)
	}

	// a fresh store over the same dir must see the snapshot
	s2, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	got, ok, err := s2.GetSession(ctx, "sess-1")
	if err != nil || !ok {
		t.Fatalf("GetSession from snapshot = ok=%v err=%v", ok, err)
	}
	if len(got.Words) != 1 || got.Words[0].Text != "one" {
		t.Fatalf("snapshot words = %+v", got.Words)
	}
}

func TestUpsertRequiresID(t *testing.T) {
	s, _ := NewFileStore("")
	if err := s.UpsertSession(context.Background(), &model.SessionRecord{}); err == nil {
		t.Fatal("UpsertSession accepted a record without an id")
	}
}
