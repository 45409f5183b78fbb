package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"PfamSurvey/internal/domain"
)

func openTemp(t *testing.T) *SQLiteRepository {
	t.Helper()

	repo, err := Open(context.Background(), filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestRunLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := openTemp(t)

	if err := repo.StartRun(ctx, "run-1", "/work"); err != nil {
		t.Fatalf("StartRun error: %v", err)
	}
	status, err := repo.RunStatus(ctx, "run-1")
	if err != nil || status != StatusRunning {
		t.Fatalf("expected running, got %q, %v", status, err)
	}

	if err := repo.FinishRun(ctx, "run-1", errors.New("boom")); err != nil {
		t.Fatalf("FinishRun error: %v", err)
	}
	status, err = repo.RunStatus(ctx, "run-1")
	if err != nil || status != StatusFailed {
		t.Fatalf("expected failed, got %q, %v", status, err)
	}
}

func TestSaveHitsBatches(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := openTemp(t)
	if err := repo.StartRun(ctx, "run-2", "/work"); err != nil {
		t.Fatalf("StartRun error: %v", err)
	}

	rows := make([]domain.SummaryRow, 0, 250)
	for i := 0; i < 250; i++ {
		rows = append(rows, domain.SummaryRow{
			Hit: domain.Hit{
				Accession:  "PF00001",
				QueryName:  "7tm_1",
				TargetName: fmt.Sprintf("ACA_%03d", i),
				EValue:     float64(i) * 1e-5,
				Score:      float64(i),
			},
			GroupKey: "ACA",
		})
	}
	if err := repo.SaveHits(ctx, "run-2", rows); err != nil {
		t.Fatalf("SaveHits error: %v", err)
	}

	back, err := repo.HitsForRun(ctx, "run-2")
	if err != nil {
		t.Fatalf("HitsForRun error: %v", err)
	}
	if len(back) != len(rows) {
		t.Fatalf("expected %d rows, got %d", len(rows), len(back))
	}
	if back[249] != rows[249] {
		t.Fatalf("last row mismatch: %+v vs %+v", back[249], rows[249])
	}
}

func TestRecordDownload(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := openTemp(t)
	if err := repo.StartRun(ctx, "run-3", "/work"); err != nil {
		t.Fatalf("StartRun error: %v", err)
	}

	if err := repo.RecordDownload(ctx, "run-3", domain.StageFetch, "PF00001", "/work/PF00001", nil); err != nil {
		t.Fatalf("RecordDownload error: %v", err)
	}
	if err := repo.RecordDownload(ctx, "run-3", domain.StageFetch, "PF00002", "/work/PF00002", errors.New("404")); err != nil {
		t.Fatalf("RecordDownload error: %v", err)
	}

	ok, err := repo.DownloadCount(ctx, "run-3", domain.StageFetch, StatusCompleted)
	if err != nil || ok != 1 {
		t.Fatalf("expected 1 completed, got %d, %v", ok, err)
	}
	failed, err := repo.DownloadCount(ctx, "run-3", domain.StageFetch, StatusFailed)
	if err != nil || failed != 1 {
		t.Fatalf("expected 1 failed, got %d, %v", failed, err)
	}
}
