package cron

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/haasonsaas/aide/internal/storage"
	"github.com/haasonsaas/aide/pkg/models"
)

func TestFileStoreCRUD(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.yaml")
	store := NewFileStore(path, discardLogger())
	ctx := context.Background()

	jobs, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List on missing file: %v", err)
	}
	if len(jobs) != 0 {
		t.Fatalf("missing file has %d jobs", len(jobs))
	}

	daily := testJob("daily-brief", "0 9 * * *")
	if err := store.Put(ctx, &daily); err != nil {
		t.Fatalf("Put: %v", err)
	}
	heartbeat := testJob("heartbeat", "* * * * *")
	if err := store.Put(ctx, &heartbeat); err != nil {
		t.Fatalf("Put: %v", err)
	}

	jobs, err = store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(jobs) != 2 || jobs[0].Name != "daily-brief" || jobs[1].Name != "heartbeat" {
		t.Fatalf("jobs = %+v, want file order", jobs)
	}

	got, err := store.Get(ctx, "daily-brief")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Schedule != "0 9 * * *" || !got.Enabled {
		t.Fatalf("job = %+v", got)
	}

	if _, err := store.Get(ctx, "nope"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Get missing = %v, want ErrNotFound", err)
	}

	daily.Message = "updated text"
	if err := store.Put(ctx, &daily); err != nil {
		t.Fatalf("Put replace: %v", err)
	}
	jobs, _ = store.List(ctx)
	if len(jobs) != 2 {
		t.Fatalf("replace grew the file to %d jobs", len(jobs))
	}
	got, _ = store.Get(ctx, "daily-brief")
	if got.Message != "updated text" {
		t.Fatalf("message = %q after replace", got.Message)
	}

	if err := store.Delete(ctx, "heartbeat"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := store.Delete(ctx, "heartbeat"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("second Delete = %v, want ErrNotFound", err)
	}
	jobs, _ = store.List(ctx)
	if len(jobs) != 1 {
		t.Fatalf("%d jobs after delete, want 1", len(jobs))
	}
}

func TestFileStorePutValidatesSchedule(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.yaml")
	store := NewFileStore(path, discardLogger())

	bad := models.CronJob{Name: "bad", Schedule: "61 * * * *", Enabled: true}
	if err := store.Put(context.Background(), &bad); err == nil {
		t.Fatal("Put accepted an invalid schedule")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("rejected Put still wrote the file")
	}
}

func TestFileStoreYAMLShape(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.yaml")
	store := NewFileStore(path, discardLogger())

	daily := testJob("daily-brief", "0 9 * * *")
	if err := store.Put(context.Background(), &daily); err != nil {
		t.Fatalf("Put: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	for _, want := range []string{"jobs:", "name: daily-brief", "schedule:", "0 9 * * *"} {
		if !strings.Contains(string(raw), want) {
			t.Errorf("file missing %q:\n%s", want, raw)
		}
	}
}

func TestFileStoreWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.yaml")
	store := NewFileStore(path, discardLogger())

	changed := make(chan []models.CronJob, 4)
	w, err := store.Watch(context.Background(), func(jobs []models.CronJob) {
		changed <- jobs
	})
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer w.Close()

	daily := testJob("daily-brief", "0 9 * * *")
	if err := store.Put(context.Background(), &daily); err != nil {
		t.Fatalf("Put: %v", err)
	}

	select {
	case jobs := <-changed:
		if len(jobs) != 1 || jobs[0].Name != "daily-brief" {
			t.Fatalf("reloaded jobs = %+v", jobs)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after writing the jobs file")
	}
}
