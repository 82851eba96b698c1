package database

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/drummonds/goshot/config"
)

func init() {
	Logger = slog.New(slog.NewTextHandler(os.Stdout, nil))
}

func newMemoryRepository(t *testing.T) *BunDB {
	t.Helper()
	db, err := NewRepository(config.ServerConfig{DatabaseType: "memory"})
	if err != nil {
		t.Fatalf("Failed to create in-memory repository: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestJobLifecycle(t *testing.T) {
	db := newMemoryRepository(t)

	job, err := db.CreateJob("report.pdf", "pdf", "png", 2)
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	if job.Status != JobStatusPending {
		t.Errorf("New job status = %s, want pending", job.Status)
	}

	if err := db.MarkJobRunning(job.ID); err != nil {
		t.Fatalf("MarkJobRunning failed: %v", err)
	}
	if err := db.CompleteJob(job.ID, 2448, 3168, 3); err != nil {
		t.Fatalf("CompleteJob failed: %v", err)
	}

	loaded, err := db.GetJob(job.ID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if loaded.Status != JobStatusCompleted {
		t.Errorf("Status = %s, want completed", loaded.Status)
	}
	if loaded.Width != 2448 || loaded.Height != 3168 {
		t.Errorf("Dimensions = %dx%d, want 2448x3168", loaded.Width, loaded.Height)
	}
	if loaded.PageCount != 3 {
		t.Errorf("PageCount = %d, want 3", loaded.PageCount)
	}
	if loaded.StartedAt == nil || loaded.DoneAt == nil {
		t.Error("StartedAt/DoneAt should be set after completion")
	}
}

func TestFailJob(t *testing.T) {
	db := newMemoryRepository(t)

	job, err := db.CreateJob("broken.xlsx", "xlsx", "png", 1)
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	if err := db.FailJob(job.ID, "render failed: workbook has no sheets"); err != nil {
		t.Fatalf("FailJob failed: %v", err)
	}

	loaded, err := db.GetJob(job.ID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if loaded.Status != JobStatusFailed {
		t.Errorf("Status = %s, want failed", loaded.Status)
	}
	if loaded.Error == "" {
		t.Error("Error message should be recorded")
	}
}

func TestGetRecentAndActiveJobs(t *testing.T) {
	db := newMemoryRepository(t)

	first, err := db.CreateJob("a.md", "markdown", "png", 1)
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	second, err := db.CreateJob("b.gpx", "gpx", "png", 1)
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	if err := db.CompleteJob(first.ID, 100, 100, 1); err != nil {
		t.Fatalf("CompleteJob failed: %v", err)
	}

	recent, err := db.GetRecentJobs(10, 0)
	if err != nil {
		t.Fatalf("GetRecentJobs failed: %v", err)
	}
	if len(recent) != 2 {
		t.Errorf("Recent jobs = %d, want 2", len(recent))
	}

	active, err := db.GetActiveJobs()
	if err != nil {
		t.Fatalf("GetActiveJobs failed: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("Active jobs = %d, want 1", len(active))
	}
	if active[0].ID != second.ID {
		t.Errorf("Active job = %s, want %s", active[0].ID, second.ID)
	}
}

func TestDeleteOldJobs(t *testing.T) {
	db := newMemoryRepository(t)

	job, err := db.CreateJob("old.pdf", "pdf", "png", 1)
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	if err := db.CompleteJob(job.ID, 10, 10, 1); err != nil {
		t.Fatalf("CompleteJob failed: %v", err)
	}

	// Nothing is older than an hour yet
	deleted, err := db.DeleteOldJobs(time.Hour)
	if err != nil {
		t.Fatalf("DeleteOldJobs failed: %v", err)
	}
	if deleted != 0 {
		t.Errorf("Deleted = %d, want 0", deleted)
	}

	// Everything finished before now+0
	deleted, err = db.DeleteOldJobs(-time.Second)
	if err != nil {
		t.Fatalf("DeleteOldJobs failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("Deleted = %d, want 1", deleted)
	}
}
