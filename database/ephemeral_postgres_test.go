package database

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/stapelberg/postgrestest"
)

// TestEphemeralPostgresRepository runs the job lifecycle against a real
// postgres started just for this test. Skipped when postgres is not
// installed locally.
func TestEphemeralPostgresRepository(t *testing.T) {
	if _, err := exec.LookPath("pg_ctl"); err != nil {
		t.Skip("postgres not installed, skipping ephemeral postgres test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	pgt, err := postgrestest.Start(ctx)
	if err != nil {
		t.Fatalf("Failed to start ephemeral postgres: %v", err)
	}
	defer pgt.Cleanup()

	dsn := pgt.DefaultDatabase()
	db, err := NewRepositoryWithDSN(dsn)
	if err != nil {
		t.Fatalf("Failed to connect repository to ephemeral postgres: %v", err)
	}
	defer db.Close()

	job, err := db.CreateJob("slides.pptx", "pptx", "png", 4)
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	if err := db.MarkJobRunning(job.ID); err != nil {
		t.Fatalf("MarkJobRunning failed: %v", err)
	}
	if err := db.CompleteJob(job.ID, 2560, 1440, 12); err != nil {
		t.Fatalf("CompleteJob failed: %v", err)
	}

	loaded, err := db.GetJob(job.ID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if loaded.Status != JobStatusCompleted {
		t.Errorf("Status = %s, want completed", loaded.Status)
	}
	if loaded.Width != 2560 || loaded.Height != 1440 || loaded.PageCount != 12 {
		t.Errorf("Job row = %dx%d pages %d, want 2560x1440 pages 12",
			loaded.Width, loaded.Height, loaded.PageCount)
	}
}
