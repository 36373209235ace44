package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/yourusername/pdf-genie/internal/database"
)

type storeFactory func(t *testing.T) Store

func storeFactories() map[string]storeFactory {
	return map[string]storeFactory{
		"sql": func(t *testing.T) Store {
			return NewSQLStore(database.OpenTest(t))
		},
		"redis": func(t *testing.T) Store {
			mr := miniredis.RunT(t)
			rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { rdb.Close() })
			return NewRedisStore(rdb, time.Hour)
		},
	}
}

func newTestTracker(t *testing.T, store Store) (*Tracker, *test.Hook, *time.Time) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	tr, err := NewTracker(store, logger)
	if err != nil {
		t.Fatalf("NewTracker returned error: %v", err)
	}
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return clock }
	return tr, hook, &clock
}

func TestTrackerLifecycle(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := factory(t)
			tr, _, clock := newTestTracker(t, store)

			job, err := tr.Begin(ctx, "user-1", KindSplit, []string{"doc-1"}, map[string]string{"pages": "[1,3]"})
			if err != nil {
				t.Fatalf("Begin returned error: %v", err)
			}
			if job.Status != StatusProcessing {
				t.Fatalf("status = %s, want processing", job.Status)
			}
			if job.StartedAt == nil || !job.StartedAt.Equal(job.CreatedAt) {
				t.Fatalf("started_at should equal created_at")
			}

			stored, err := tr.Get(ctx, job.ID, "user-1")
			if err != nil || stored == nil {
				t.Fatalf("Get returned %v, %v", stored, err)
			}
			if stored.CompletedAt != nil || len(stored.OutputPaths) != 0 || stored.Error != "" {
				t.Fatalf("non-terminal job has terminal fields: %+v", stored)
			}

			*clock = clock.Add(2 * time.Second)
			if err := tr.Complete(ctx, job, []string{"/out/a.pdf", "/out/b.pdf"}, 1500*time.Millisecond); err != nil {
				t.Fatalf("Complete returned error: %v", err)
			}

			stored, err = tr.Get(ctx, job.ID, "user-1")
			if err != nil || stored == nil {
				t.Fatalf("Get returned %v, %v", stored, err)
			}
			if stored.Status != StatusCompleted {
				t.Fatalf("status = %s", stored.Status)
			}
			if stored.CompletedAt == nil || stored.ProcessingTime == nil {
				t.Fatalf("completed_at/processing_time not set: %+v", stored)
			}
			if *stored.ProcessingTime != 1.5 {
				t.Fatalf("processing_time = %v", *stored.ProcessingTime)
			}
			if len(stored.OutputPaths) != 2 || stored.OutputPaths[0] != "/out/a.pdf" || stored.OutputPaths[1] != "/out/b.pdf" {
				t.Fatalf("output paths = %v", stored.OutputPaths)
			}
			if stored.Error != "" {
				t.Fatalf("completed job has error %q", stored.Error)
			}
			if stored.Parameters["pages"] != "[1,3]" {
				t.Fatalf("parameters = %v", stored.Parameters)
			}
		})
	}
}

func TestTrackerFailRecordsError(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			tr, _, clock := newTestTracker(t, factory(t))

			job, err := tr.Begin(ctx, "user-1", KindSplit, []string{"doc-1"}, nil)
			if err != nil {
				t.Fatalf("Begin returned error: %v", err)
			}
			*clock = clock.Add(3 * time.Second)
			if err := tr.Fail(ctx, job, "invalid page numbers: [5]"); err != nil {
				t.Fatalf("Fail returned error: %v", err)
			}

			stored, _ := tr.Get(ctx, job.ID, "user-1")
			if stored.Status != StatusFailed {
				t.Fatalf("status = %s", stored.Status)
			}
			if stored.Error != "invalid page numbers: [5]" {
				t.Fatalf("error = %q", stored.Error)
			}
			if len(stored.OutputPaths) != 0 {
				t.Fatalf("failed job has outputs: %v", stored.OutputPaths)
			}
			if stored.ProcessingTime == nil || *stored.ProcessingTime != 3 {
				t.Fatalf("processing_time = %v", stored.ProcessingTime)
			}
		})
	}
}

func TestTrackerCompleteOnTerminalJobIsIgnored(t *testing.T) {
	ctx := context.Background()
	tr, hook, _ := newTestTracker(t, NewSQLStore(database.OpenTest(t)))

	job, err := tr.Begin(ctx, "user-1", KindMerge, []string{"a", "b"}, nil)
	if err != nil {
		t.Fatalf("Begin returned error: %v", err)
	}
	if err := tr.Fail(ctx, job, "boom"); err != nil {
		t.Fatalf("Fail returned error: %v", err)
	}
	if err := tr.Complete(ctx, job, []string{"/out/x.pdf"}, time.Second); err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if entry := hook.LastEntry(); entry == nil || entry.Level != logrus.ErrorLevel {
		t.Fatalf("expected error log, got %+v", entry)
	}

	stored, _ := tr.Get(ctx, job.ID, "user-1")
	if stored.Status != StatusFailed || len(stored.OutputPaths) != 0 {
		t.Fatalf("terminal job was modified: %+v", stored)
	}

	// 二度目の Fail は何もしない
	if err := tr.Fail(ctx, job, "again"); err != nil {
		t.Fatalf("Fail returned error: %v", err)
	}
	stored, _ = tr.Get(ctx, job.ID, "user-1")
	if stored.Error != "boom" {
		t.Fatalf("error overwritten: %q", stored.Error)
	}
}

func TestTrackerCompleteWithoutOutputsFails(t *testing.T) {
	ctx := context.Background()
	tr, _, _ := newTestTracker(t, NewSQLStore(database.OpenTest(t)))

	job, err := tr.Begin(ctx, "user-1", KindConvert, []string{"doc"}, nil)
	if err != nil {
		t.Fatalf("Begin returned error: %v", err)
	}
	if err := tr.Complete(ctx, job, nil, time.Second); err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if job.Status != StatusFailed || job.Error != "no output produced" {
		t.Fatalf("job = %+v", job)
	}
}

func TestStoreFinalizeRefusesTerminal(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := factory(t)
			tr, _, _ := newTestTracker(t, store)

			job, err := tr.Begin(ctx, "user-1", KindCompress, []string{"doc"}, nil)
			if err != nil {
				t.Fatalf("Begin returned error: %v", err)
			}
			stale := job.clone()
			staleForTracker := job.clone()
			if err := tr.Complete(ctx, job, []string{"/out/c.pdf"}, time.Second); err != nil {
				t.Fatalf("Complete returned error: %v", err)
			}

			stale.Status = StatusFailed
			stale.Error = "late failure"
			if err := store.Finalize(ctx, stale); !errors.Is(err, ErrTerminal) {
				t.Fatalf("Finalize error = %v, want ErrTerminal", err)
			}

			// 古いコピーを通じた Tracker 経由の遷移も無視される
			if err := tr.Fail(ctx, staleForTracker, "ignored"); err != nil {
				t.Fatalf("Fail returned error: %v", err)
			}
			stored, _ := store.Get(ctx, job.ID, "user-1")
			if stored.Status != StatusCompleted {
				t.Fatalf("status = %s", stored.Status)
			}
		})
	}
}

func TestStoreOwnerFilteringAndOrder(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			tr, _, clock := newTestTracker(t, factory(t))

			first, _ := tr.Begin(ctx, "alice", KindMerge, []string{"a", "b"}, nil)
			*clock = clock.Add(time.Minute)
			second, _ := tr.Begin(ctx, "alice", KindSplit, []string{"a"}, nil)
			*clock = clock.Add(time.Minute)
			if _, err := tr.Begin(ctx, "bob", KindOCR, []string{"c"}, nil); err != nil {
				t.Fatalf("Begin returned error: %v", err)
			}

			got, err := tr.Get(ctx, first.ID, "bob")
			if err != nil || got != nil {
				t.Fatalf("foreign Get returned %v, %v", got, err)
			}

			list, err := tr.List(ctx, "alice", 10)
			if err != nil {
				t.Fatalf("List returned error: %v", err)
			}
			if len(list) != 2 || list[0].ID != second.ID || list[1].ID != first.ID {
				t.Fatalf("unexpected list order: %+v", list)
			}
		})
	}
}
