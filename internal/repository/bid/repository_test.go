package bid

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
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

func sampleBid() *entity.Bid {
	return &entity.Bid{
		ID:        "bid-1",
		AuctionID: "a-1",
		BidderID:  "u-2",
		Amount:    decimal.RequireFromString("150.00"),
		PlacedAt:  time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestRepository_AppendAssignsSequence(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "auctions"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT MAX\(b.sequence\)`).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(int64(3)))
	mock.ExpectExec(`INSERT INTO "bids"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	bid := sampleBid()
	require.NoError(t, repo.Append(context.Background(), bid))
	assert.Equal(t, int64(4), bid.Sequence)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_AppendStale(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "auctions"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT "a"."status"`).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("active"))
	mock.ExpectRollback()

	err := repo.Append(context.Background(), sampleBid())
	assert.ErrorIs(t, err, ErrStaleBid)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_AppendAfterClose(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "auctions"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT "a"."status"`).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("closed"))
	mock.ExpectRollback()

	err := repo.Append(context.Background(), sampleBid())
	assert.ErrorIs(t, err, ErrAuctionNotOpen)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_CountBids(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery(`SELECT count\(\*\) FROM "bids"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	n, err := repo.Count(context.Background(), "a-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_AllBidsReadsFromWriter(t *testing.T) {
	writerDB, writerMock, err := sqlmock.New()
	require.NoError(t, err)
	readerDB, readerMock, err := sqlmock.New()
	require.NoError(t, err)

	writer := bun.NewDB(writerDB, pgdialect.New())
	reader := bun.NewDB(readerDB, pgdialect.New())
	t.Cleanup(func() {
		_ = writer.Close()
		_ = reader.Close()
	})
	repo := NewRepository(&database.Connections{Driver: "postgres", Writer: writer, Reader: reader})

	placed := time.Date(2026, 5, 4, 10, 1, 0, 0, time.UTC)
	writerMock.ExpectQuery(`SELECT (.+) FROM "bids" AS "b"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "auction_id", "bidder_id", "amount", "sequence", "placed_at", "idempotency_key"}).
			AddRow("bid-1", "a-1", "bidder-1", "150.00", int64(1), placed, nil))

	bids, err := repo.AllBids(context.Background(), "a-1")
	require.NoError(t, err)
	require.Len(t, bids, 1)
	assert.Equal(t, "bid-1", bids[0].ID)
	assert.True(t, bids[0].Amount.Equal(decimal.RequireFromString("150")))

	require.NoError(t, writerMock.ExpectationsWereMet())
	require.NoError(t, readerMock.ExpectationsWereMet())
}
