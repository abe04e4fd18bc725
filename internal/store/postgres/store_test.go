package postgres

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/pagesnap/pagesnap/internal/capture"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewWithPool(mock)
	require.NoError(t, err)
	return store, mock
}

func TestCreate_InsertsRow(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()
	job := capture.Job{
		ID:            "job-1",
		OwnerID:       "owner-1",
		SeedURL:       "https://example.com",
		Devices:       []capture.Device{capture.DeviceDesktop, capture.DeviceMobile},
		PageBudget:    5,
		ExcludePopups: true,
		Status:        capture.JobStatusProcessing,
		Submitted:     now,
		ExpiresAt:     now.Add(48 * time.Hour),
	}
	devices, err := json.Marshal(job.Devices)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO capture_jobs").
		WithArgs(
			job.ID, job.OwnerID, job.SeedURL, devices, job.PageBudget, job.ExcludePopups,
			string(capture.JobStatusProcessing), 0, job.Submitted, job.ExpiresAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Create(context.Background(), job))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetProgress_GuardedUpdate(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	// Zero rows affected (terminal job or regression) is not an error.
	mock.ExpectExec("UPDATE capture_jobs SET progress").
		WithArgs("job-1", 50, string(capture.JobStatusProcessing)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.NoError(t, store.SetProgress(context.Background(), "job-1", 50))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetProgress_ClampsAboveHundred(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE capture_jobs SET progress").
		WithArgs("job-1", 100, string(capture.JobStatusProcessing)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.SetProgress(context.Background(), "job-1", 140))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestComplete_RequiresProcessing(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mapping := []capture.FileEntry{{Filename: "desktop_1_000.webp", URL: "https://example.com", Device: capture.DeviceDesktop, PageIndex: 1}}
	mappingJSON, err := json.Marshal(mapping)
	require.NoError(t, err)

	mock.ExpectExec("UPDATE capture_jobs SET status").
		WithArgs("job-1", string(capture.JobStatusCompleted), mappingJSON, string(capture.JobStatusProcessing)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = store.Complete(context.Background(), "job-1", mapping)
	require.ErrorContains(t, err, "not processing")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFail_TerminalJobTolerated(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE capture_jobs SET status").
		WithArgs("job-1", string(capture.JobStatusError), "boom", string(capture.JobStatusProcessing)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.NoError(t, store.Fail(context.Background(), "job-1", "boom"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestCancel_NotCancellable(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()

	mock.ExpectExec("UPDATE capture_jobs SET status").
		WithArgs("job-1", string(capture.JobStatusCancelled), string(capture.JobStatusProcessing)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	mock.ExpectQuery("SELECT id, owner_id").
		WithArgs("job-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "owner_id", "seed_url", "devices", "page_budget", "exclude_popups",
			"status", "progress", "error_text", "page_count", "file_mapping",
			"download_count", "submitted_at", "expires_at",
		}).AddRow(
			"job-1", "owner-1", "https://example.com", []byte(`["desktop"]`), 1, false,
			string(capture.JobStatusCompleted), 100, "", 1, []byte(`[]`),
			0, now, now.Add(48*time.Hour),
		))

	err := store.RequestCancel(context.Background(), "job-1")
	require.ErrorIs(t, err, capture.ErrNotCancellable)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestCancel_Processing(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE capture_jobs SET status").
		WithArgs("job-1", string(capture.JobStatusCancelled), string(capture.JobStatusProcessing)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.RequestCancel(context.Background(), "job-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGet_NotFound(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT id, owner_id").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := store.Get(context.Background(), "missing")
	require.ErrorIs(t, err, capture.ErrJobNotFound)
}

func TestIncrementDownloads_NotFound(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE capture_jobs SET download_count").
		WithArgs("missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := store.IncrementDownloads(context.Background(), "missing")
	require.ErrorIs(t, err, capture.ErrJobNotFound)
}

func TestDelete(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	mock.ExpectExec("DELETE FROM capture_jobs").
		WithArgs("job-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	require.NoError(t, store.Delete(context.Background(), "job-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}
