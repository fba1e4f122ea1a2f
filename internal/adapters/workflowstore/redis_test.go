package workflowstore

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"

	"github.com/jobrunner/geoflow/internal/domain"
	"github.com/jobrunner/geoflow/internal/ports/output"
)

func newMini(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)

	store, err := NewRedisStore(ctx, RedisConfig{Address: mr.Addr(), Prefix: "test:"})
	if err != nil {
		t.Fatalf("NewRedisStore() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func record(id string) output.WorkflowRecord {
	return output.WorkflowRecord{
		ID:         id,
		Definition: []byte(`{"type":"Vector","operator":{"type":"MockPointSource","params":{"points":[]}}}`),
		Source:     "api",
		Metadata:   domain.WorkflowMetadata{Title: "Workflow " + id, Keywords: []string{"test"}},
	}
}

func TestSaveLoadDelete(t *testing.T) {
	ctx := context.Background()
	store, mr := newMini(t)

	want := record("a")
	if err := store.Save(ctx, want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if !mr.Exists("test:workflow:a") {
		t.Error("record key not written")
	}

	got, err := store.Load(ctx, "a")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if diff := cmp.Diff(want, *got); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}

	if err := store.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Load(ctx, "a"); !errors.Is(err, domain.ErrWorkflowNotFound) {
		t.Errorf("Load() after delete error = %v, want %v", err, domain.ErrWorkflowNotFound)
	}
	if err := store.Delete(ctx, "a"); err != nil {
		t.Errorf("Delete() of a missing workflow error = %v", err)
	}
}

func TestList(t *testing.T) {
	ctx := context.Background()
	store, mr := newMini(t)

	got, err := store.List(ctx)
	if err != nil || len(got) != 0 {
		t.Fatalf("List() on empty store = %v, %v", got, err)
	}

	for _, id := range []string{"c", "a", "b"} {
		if err := store.Save(ctx, record(id)); err != nil {
			t.Fatalf("Save(%s) error = %v", id, err)
		}
	}
	// dangling index entry
	if _, err := mr.SAdd("test:workflows", "orphan"); err != nil {
		t.Fatalf("SAdd: %v", err)
	}

	got, err = store.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	var ids []string
	for _, r := range got {
		ids = append(ids, r.ID)
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, ids); diff != "" {
		t.Errorf("List() ids mismatch (-want +got):\n%s", diff)
	}
}

func TestListCorruptRecord(t *testing.T) {
	store, mr := newMini(t)

	if err := mr.Set("test:workflow:bad", "{not json"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, err := mr.SAdd("test:workflows", "bad"); err != nil {
		t.Fatalf("SAdd: %v", err)
	}

	_, err := store.List(context.Background())
	var storageErr *domain.StorageError
	if !errors.As(err, &storageErr) {
		t.Fatalf("List() error = %v, want StorageError", err)
	}
}

func TestNewRedisStoreErrors(t *testing.T) {
	ctx := context.Background()

	if _, err := NewRedisStore(ctx, RedisConfig{}); err == nil {
		t.Error("NewRedisStore() without address succeeded")
	}

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	addr := mr.Addr()
	mr.Close()

	_, err = NewRedisStore(ctx, RedisConfig{Address: addr})
	if !errors.Is(err, domain.ErrStorageUnavailable) {
		t.Errorf("NewRedisStore() error = %v, want %v", err, domain.ErrStorageUnavailable)
	}
}
