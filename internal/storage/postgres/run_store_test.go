package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/thread-harvester/internal/store"
)

var runCols = []string{
	"id", "subject", "started_at", "finished_at", "status", "state", "pages", "records", "total", "error_message",
}

func newMockStore(t *testing.T) (*RunStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	s, err := NewRunStoreWithPool(mock)
	require.NoError(t, err)
	return s, mock
}

func TestRunLifecycleWrites(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	id := uuid.New()
	started := time.Unix(1700000000, 0).UTC()
	finished := started.Add(time.Minute)
	note := "boom"

	mock.ExpectExec("INSERT INTO harvest_runs").
		WithArgs(id, "golang", started, store.RunRunning, int64(12)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("UPDATE harvest_runs").
		WithArgs(int64(1), int64(3), int64(15), id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE harvest_runs").
		WithArgs(finished, store.RunError, "", &note, id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	ctx := context.Background()
	require.NoError(t, s.StartRun(ctx, id, "golang", started, 12))
	require.NoError(t, s.RecordPages(ctx, id, 1, 3, 15))
	require.NoError(t, s.FinishRun(ctx, id, finished, store.RunError, "", &note))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordPagesUnknownRun(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	id := uuid.New()
	mock.ExpectExec("UPDATE harvest_runs").
		WithArgs(int64(1), int64(0), int64(0), id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.RecordPages(context.Background(), id, 1, 0, 0)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRun(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	id := uuid.New()
	started := time.Unix(1700000000, 0).UTC()
	finished := started.Add(time.Hour)

	mock.ExpectQuery("SELECT (.+) FROM harvest_runs WHERE id").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(runCols).AddRow(
			id.String(), "golang", started, &finished, "completed", "EXHAUSTED",
			int64(4), int64(1800), int64(2400), (*string)(nil),
		))

	run, err := s.GetRun(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, id, run.ID)
	require.Equal(t, store.RunCompleted, run.Status)
	require.Equal(t, "EXHAUSTED", run.State)
	require.Equal(t, int64(1800), run.Records)
	require.NotNil(t, run.FinishedAt)
	require.Nil(t, run.ErrorMessage)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRunNotFound(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	id := uuid.New()
	mock.ExpectQuery("SELECT (.+) FROM harvest_runs WHERE id").
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRun(context.Background(), id)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestListRuns(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	started := time.Unix(1700000000, 0).UTC()
	first, second := uuid.New(), uuid.New()

	mock.ExpectQuery("FROM harvest_runs").
		WithArgs("golang", 10, 0).
		WillReturnRows(pgxmock.NewRows(runCols).
			AddRow(first.String(), "golang", started, (*time.Time)(nil), "running", "",
				int64(1), int64(10), int64(10), (*string)(nil)).
			AddRow(second.String(), "golang", started.Add(-time.Hour), &started, "cancelled", "CANCELLED",
				int64(2), int64(20), int64(20), (*string)(nil)))

	runs, err := s.ListRuns(context.Background(), "golang", 10, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, first, runs[0].ID)
	require.Equal(t, store.RunRunning, runs[0].Status)
	require.Equal(t, store.RunCancelled, runs[1].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS harvest_runs").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	require.NoError(t, s.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConstructorsValidate(t *testing.T) {
	t.Parallel()

	_, err := NewRunStoreWithPool(nil)
	require.Error(t, err)
	_, err = NewRunStore(context.Background(), Config{})
	require.Error(t, err)
	_, err = NewRunStore(context.Background(), Config{DSN: "postgres://%zz"})
	require.Error(t, err)
}
