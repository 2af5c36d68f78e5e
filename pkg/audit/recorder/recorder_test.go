package recorder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"mercator-hq/rampart/pkg/audit"
	"mercator-hq/rampart/pkg/audit/storage"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// blockingStorage holds every Store call until release is closed.
type blockingStorage struct {
	*storage.MemoryStorage
	release chan struct{}
	started chan struct{}
	once    sync.Once
}

func (s *blockingStorage) Store(ctx context.Context, r *audit.Record) error {
	s.once.Do(func() { close(s.started) })
	<-s.release
	return s.MemoryStorage.Store(ctx, r)
}

type failingStorage struct{ *storage.MemoryStorage }

func (failingStorage) Store(context.Context, *audit.Record) error {
	return errors.New("disk full")
}

func TestRecorderWritesOnClose(t *testing.T) {
	store := storage.NewMemoryStorage()
	r := New(store, &Config{Buffer: 10}, quietLogger())

	for i := 0; i < 5; i++ {
		if err := r.Record(&audit.Record{ID: fmt.Sprintf("r%d", i), Identifier: "a"}); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	n, err := store.Count(context.Background(), &audit.Query{})
	if err != nil || n != 5 {
		t.Errorf("stored %d records (%v), want 5", n, err)
	}
	if r.Written() != 5 || r.Dropped() != 0 {
		t.Errorf("written=%d dropped=%d, want 5 and 0", r.Written(), r.Dropped())
	}
}

func TestRecorderDropsWhenFull(t *testing.T) {
	store := &blockingStorage{
		MemoryStorage: storage.NewMemoryStorage(),
		release:       make(chan struct{}),
		started:       make(chan struct{}),
	}
	r := New(store, &Config{Buffer: 2}, quietLogger())

	// The first record is taken by the worker, which then blocks.
	if err := r.Record(&audit.Record{ID: "held"}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	<-store.started

	for i := 0; i < 2; i++ {
		if err := r.Record(&audit.Record{ID: fmt.Sprintf("q%d", i)}); err != nil {
			t.Fatalf("Record(q%d) error = %v", i, err)
		}
	}

	err := r.Record(&audit.Record{ID: "overflow"})
	if !errors.Is(err, ErrBufferFull) {
		t.Fatalf("Record() error = %v, want ErrBufferFull", err)
	}
	if r.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", r.Dropped())
	}

	close(store.release)
	r.Close()

	if r.Written() != 3 {
		t.Errorf("Written() = %d, want 3", r.Written())
	}
}

func TestRecorderStorageFailure(t *testing.T) {
	r := New(failingStorage{storage.NewMemoryStorage()}, nil, quietLogger())
	if err := r.Record(&audit.Record{ID: "x"}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	r.Close()
	if r.Failed() != 1 || r.Written() != 0 {
		t.Errorf("failed=%d written=%d, want 1 and 0", r.Failed(), r.Written())
	}
}

func TestRecorderAfterClose(t *testing.T) {
	r := New(storage.NewMemoryStorage(), nil, quietLogger())
	r.Close()

	err := r.Record(&audit.Record{ID: "late"})
	if !errors.Is(err, audit.ErrClosed) {
		t.Errorf("Record() after Close error = %v, want ErrClosed", err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestRecorderNilRecord(t *testing.T) {
	r := New(storage.NewMemoryStorage(), nil, quietLogger())
	defer r.Close()
	if err := r.Record(nil); err != nil {
		t.Errorf("Record(nil) error = %v", err)
	}
}

func TestRecorderConcurrent(t *testing.T) {
	store := storage.NewMemoryStorage()
	r := New(store, &Config{Buffer: 1000}, quietLogger())

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				r.Record(&audit.Record{ID: fmt.Sprintf("g%d-%d", g, i)})
			}
		}(g)
	}
	wg.Wait()
	r.Close()

	n, _ := store.Count(context.Background(), &audit.Query{})
	if n+r.Dropped() != 400 {
		t.Errorf("stored %d + dropped %d, want 400", n, r.Dropped())
	}
}
