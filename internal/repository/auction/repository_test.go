package auction

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"github.com/Additional-Code/auctioneer/internal/database"
	"github.com/Additional-Code/auctioneer/internal/entity"
)

func newMockRepository(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	db := bun.NewDB(sqlDB, pgdialect.New())
	t.Cleanup(func() { _ = db.Close() })

	return NewRepository(&database.Connections{Driver: "postgres", Writer: db, Reader: db}), mock
}

func TestRepository_UpdateStatusApplied(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectExec(`UPDATE "auctions"`).WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateStatus(context.Background(), "a-1", entity.StatusUpcoming, entity.StatusActive, time.Now())
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_UpdateStatusConflict(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectExec(`UPDATE "auctions"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT "a"."status"`).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("closed"))

	err := repo.UpdateStatus(context.Background(), "a-1", entity.StatusUpcoming, entity.StatusActive, time.Now())
	assert.ErrorIs(t, err, ErrStatusConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_UpdateStatusRejectsBackwardsMove(t *testing.T) {
	repo, mock := newMockRepository(t)

	err := repo.UpdateStatus(context.Background(), "a-1", entity.StatusClosed, entity.StatusActive, time.Now())
	assert.ErrorIs(t, err, ErrInvalidTransition)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_SetWinnerIsIdempotent(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectExec(`UPDATE "auctions"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT "a"."status"`).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("closed"))

	bidID := "bid-1"
	err := repo.SetWinner(context.Background(), "a-1", &bidID, time.Now())
	assert.ErrorIs(t, err, ErrAlreadyResolved)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_SetWinnerApplied(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectExec(`UPDATE "auctions"`).WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.SetWinner(context.Background(), "a-1", nil, time.Now())
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_GetNotFound(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery(`SELECT (.+) FROM "auctions" AS "a"`).WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_PatchAfterOpenIsRejected(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectExec(`UPDATE "auctions"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT "a"."status"`).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("active"))

	name := "renamed"
	err := repo.Patch(context.Background(), "a-1", Patch{Name: &name}, time.Now())
	assert.ErrorIs(t, err, ErrNotEditable)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_ListFiltersByEffectiveStatus(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery(`a\.status = 'active' AND a\.end_time > .+ OR \(a\.status = 'upcoming' AND a\.start_time <= `).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status"}).AddRow("a-1", "upcoming"))

	got, err := repo.List(context.Background(), Filter{
		Statuses: []entity.Status{entity.StatusActive},
		AsOf:     time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a-1", got[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `50\%\_off`, escapeLike("50%_off"))
}
