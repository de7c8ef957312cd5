package cron

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/haasonsaas/aide/internal/storage"
	"github.com/haasonsaas/aide/pkg/models"
)

const fileWatchDebounce = 250 * time.Millisecond

// jobFile is the on-disk shape of a jobs.yaml file.
type jobFile struct {
	Jobs []models.CronJob `yaml:"jobs"`
}

// FileStore keeps cron jobs in a YAML file the user can edit by hand. It
// implements storage.JobStore; Watch feeds edits back into a running
// scheduler.
type FileStore struct {
	path   string
	logger *slog.Logger
	mu     sync.Mutex
}

var _ storage.JobStore = (*FileStore)(nil)

// NewFileStore creates a store over path. The file need not exist yet.
func NewFileStore(path string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{
		path:   path,
		logger: logger.With("component", "cron"),
	}
}

// List returns all jobs in file order.
func (f *FileStore) List(ctx context.Context) ([]*models.CronJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, err := f.load()
	if err != nil {
		return nil, err
	}
	out := make([]*models.CronJob, 0, len(doc.Jobs))
	for i := range doc.Jobs {
		job := doc.Jobs[i]
		out = append(out, &job)
	}
	return out, nil
}

// Get returns the job with the given name.
func (f *FileStore) Get(ctx context.Context, name string) (*models.CronJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, err := f.load()
	if err != nil {
		return nil, err
	}
	for i := range doc.Jobs {
		if doc.Jobs[i].Name == name {
			job := doc.Jobs[i]
			return &job, nil
		}
	}
	return nil, storage.ErrNotFound
}

// Put inserts or replaces a job. The schedule is validated before the file
// is touched.
func (f *FileStore) Put(ctx context.Context, job *models.CronJob) error {
	if job == nil {
		return fmt.Errorf("job is nil")
	}
	if strings.TrimSpace(job.Name) == "" {
		return fmt.Errorf("job name is required")
	}
	if _, err := Parse(job.Schedule); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	doc, err := f.load()
	if err != nil {
		return err
	}
	replaced := false
	for i := range doc.Jobs {
		if doc.Jobs[i].Name == job.Name {
			doc.Jobs[i] = *job
			replaced = true
			break
		}
	}
	if !replaced {
		doc.Jobs = append(doc.Jobs, *job)
	}
	return f.save(doc)
}

// Delete removes the named job.
func (f *FileStore) Delete(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, err := f.load()
	if err != nil {
		return err
	}
	kept := doc.Jobs[:0]
	found := false
	for _, job := range doc.Jobs {
		if job.Name == name {
			found = true
			continue
		}
		kept = append(kept, job)
	}
	if !found {
		return storage.ErrNotFound
	}
	doc.Jobs = kept
	return f.save(doc)
}

func (f *FileStore) load() (jobFile, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return jobFile{}, nil
		}
		return jobFile{}, fmt.Errorf("read jobs file: %w", err)
	}
	var doc jobFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return jobFile{}, fmt.Errorf("parse jobs file: %w", err)
	}
	return doc, nil
}

func (f *FileStore) save(doc jobFile) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode jobs file: %w", err)
	}
	if dir := filepath.Dir(f.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create jobs dir: %w", err)
		}
	}
	if err := os.WriteFile(f.path, data, 0o644); err != nil {
		return fmt.Errorf("write jobs file: %w", err)
	}
	return nil
}

// FileWatcher re-reads the jobs file when it changes on disk.
type FileWatcher struct {
	store    *FileStore
	watcher  *fsnotify.Watcher
	onChange func([]models.CronJob)

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Watch invokes onChange with the full reloaded job list after each change
// to the file. Files that fail to parse are logged and skipped, leaving the
// previous job set in effect. The parent directory is watched because
// editors typically replace the file on save.
func (f *FileStore) Watch(ctx context.Context, onChange func([]models.CronJob)) (*FileWatcher, error) {
	absPath, err := filepath.Abs(f.path)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(absPath)); err != nil {
		fsw.Close()
		return nil, err
	}

	watchCtx, cancel := context.WithCancel(ctx)
	w := &FileWatcher{
		store:    f,
		watcher:  fsw,
		onChange: onChange,
		cancel:   cancel,
	}
	w.wg.Add(1)
	go w.loop(watchCtx, absPath)
	return w, nil
}

// Close stops the watcher. Safe to call more than once.
func (w *FileWatcher) Close() error {
	w.closeOnce.Do(func() {
		w.cancel()
		_ = w.watcher.Close()
	})
	w.wg.Wait()
	return nil
}

func (w *FileWatcher) loop(ctx context.Context, absPath string) {
	defer w.wg.Done()

	var mu sync.Mutex
	var timer *time.Timer
	scheduleReload := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(fileWatchDebounce, func() {
			w.reload(ctx)
		})
	}

	for {
		select {
		case <-ctx.Done():
			mu.Lock()
			if timer != nil {
				timer.Stop()
			}
			mu.Unlock()
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != absPath {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			scheduleReload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.store.logger.Warn("jobs file watch error", "error", err)
		}
	}
}

func (w *FileWatcher) reload(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	jobs, err := w.store.List(ctx)
	if err != nil {
		w.store.logger.Warn("jobs file reload failed", "error", err)
		return
	}
	out := make([]models.CronJob, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, *job)
	}
	w.store.logger.Info("jobs file reloaded", "jobs", len(out))
	if w.onChange != nil {
		w.onChange(out)
	}
}
