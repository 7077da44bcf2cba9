// Package persistencetest holds the behavioural checks every JobStorage
// plugin must pass.
package persistencetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/osvaldoandrade/gaitkeepr/pkg/domain"
	"github.com/osvaldoandrade/gaitkeepr/pkg/persistence"
)

// RunJobStorage exercises create, lookup and status transitions on store.
func RunJobStorage(t *testing.T, store persistence.JobStorage) {
	t.Helper()
	ctx := context.Background()
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	job := &domain.JobRecord{
		ID:           "job-1",
		Status:       domain.StatusQueued,
		Filename:     "run-1a2b3c4d.mp4",
		OriginalName: "run.mp4",
		CreatedAt:    created,
		UpdatedAt:    created,
	}
	if err := store.Create(ctx, job); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := store.Create(ctx, job); !errors.Is(err, persistence.ErrAlreadyExists) {
		t.Fatalf("duplicate Create: got %v, want ErrAlreadyExists", err)
	}

	got, err := store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != domain.StatusQueued || got.Filename != job.Filename || got.OriginalName != "run.mp4" {
		t.Errorf("unexpected record %+v", got)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, created)
	}

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("Get(missing): got %v, want ErrNotFound", err)
	}
	if _, err := store.UpdateStatus(ctx, "missing", domain.StatusDone, "", created); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("UpdateStatus(missing): got %v, want ErrNotFound", err)
	}

	processingAt := created.Add(2 * time.Second)
	rec, err := store.UpdateStatus(ctx, job.ID, domain.StatusProcessing, "", processingAt)
	if err != nil {
		t.Fatalf("UpdateStatus(processing) failed: %v", err)
	}
	if rec.Status != domain.StatusProcessing || !rec.UpdatedAt.Equal(processingAt) {
		t.Errorf("unexpected record after processing %+v", rec)
	}

	doneAt := created.Add(8 * time.Second)
	if _, err := store.UpdateStatus(ctx, job.ID, domain.StatusDone, "", doneAt); err != nil {
		t.Fatalf("UpdateStatus(done) failed: %v", err)
	}

	// repeating the terminal status is a no-op
	rec, err = store.UpdateStatus(ctx, job.ID, domain.StatusDone, "", doneAt.Add(time.Minute))
	if err != nil {
		t.Fatalf("repeat done: %v", err)
	}
	if !rec.UpdatedAt.Equal(doneAt) {
		t.Errorf("repeat done must not touch UpdatedAt: %v", rec.UpdatedAt)
	}

	if _, err := store.UpdateStatus(ctx, job.ID, domain.StatusError, "boom", doneAt); !errors.Is(err, persistence.ErrTerminal) {
		t.Fatalf("done -> error: got %v, want ErrTerminal", err)
	}
	got, err = store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != domain.StatusDone || got.Error != "" {
		t.Errorf("terminal record changed: %+v", got)
	}

	failed := &domain.JobRecord{ID: "job-2", Status: domain.StatusQueued, Filename: "b.mp4", CreatedAt: created, UpdatedAt: created}
	if err := store.Create(ctx, failed); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	rec, err = store.UpdateStatus(ctx, failed.ID, domain.StatusError, "could not decode video", doneAt)
	if err != nil {
		t.Fatalf("UpdateStatus(error) failed: %v", err)
	}
	if rec.Error != "could not decode video" {
		t.Errorf("Error = %q", rec.Error)
	}

	counts, err := store.CountByStatus(ctx)
	if err != nil {
		t.Fatalf("CountByStatus failed: %v", err)
	}
	if counts[domain.StatusDone] != 1 || counts[domain.StatusError] != 1 || counts[domain.StatusQueued] != 0 {
		t.Errorf("CountByStatus = %v", counts)
	}

	runConcurrentUpdates(t, store, created)
}

// runConcurrentUpdates moves many distinct jobs at once, then races several
// pollers on a single job. No update may fail and the shared job must end
// in the first terminal status written.
func runConcurrentUpdates(t *testing.T, store persistence.JobStorage, created time.Time) {
	t.Helper()
	ctx := context.Background()
	const n = 40

	for i := 0; i < n; i++ {
		rec := &domain.JobRecord{ID: fmt.Sprintf("conc-%d", i), Status: domain.StatusQueued, Filename: "c.mp4", CreatedAt: created, UpdatedAt: created}
		if err := store.Create(ctx, rec); err != nil {
			t.Fatalf("Create(%s) failed: %v", rec.ID, err)
		}
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := store.UpdateStatus(ctx, id, domain.StatusDone, "", created.Add(time.Second)); err != nil {
				errs <- fmt.Errorf("%s: %w", id, err)
			}
		}(fmt.Sprintf("conc-%d", i))
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent UpdateStatus on distinct jobs: %v", err)
	}
	for i := 0; i < n; i++ {
		got, err := store.Get(ctx, fmt.Sprintf("conc-%d", i))
		if err != nil || got.Status != domain.StatusDone {
			t.Errorf("conc-%d = %+v, %v; want done", i, got, err)
		}
	}

	const pollers = 8
	errs = make(chan error, pollers)
	for i := 0; i < pollers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.UpdateStatus(ctx, "conc-0", domain.StatusDone, "", created.Add(time.Minute)); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent UpdateStatus on one job: %v", err)
	}
	got, err := store.Get(ctx, "conc-0")
	if err != nil {
		t.Fatalf("Get(conc-0) failed: %v", err)
	}
	if !got.UpdatedAt.Equal(created.Add(time.Second)) {
		t.Errorf("repeated done moved UpdatedAt to %v", got.UpdatedAt)
	}
}
