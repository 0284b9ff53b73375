package auction

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/auctioneer/internal/database"
	"github.com/Additional-Code/auctioneer/internal/entity"
)

var repoTracer = otel.Tracer("github.com/Additional-Code/auctioneer/repository/auction")

const defaultListLimit = 100

// Repository is the SQL-backed Store.
type Repository struct {
	writer *bun.DB
	reader *bun.DB
}

var _ Store = (*Repository)(nil)

// NewRepository wires a repository backed by configured database connections.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{
		writer: conns.Writer,
		reader: conns.Reader,
	}
}

// Create persists a new auction using the write connection.
func (r *Repository) Create(ctx context.Context, auction *entity.Auction) error {
	if auction == nil {
		return errors.New("nil auction")
	}
	ctx, span := repoTracer.Start(ctx, "AuctionRepository.Create", trace.WithAttributes(attribute.String("auction.id", auction.ID)))
	defer span.End()

	_, err := r.writer.NewInsert().Model(auction).Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
	}
	return err
}

// Get reads from the writer: lifecycle decisions must not act on replica lag.
func (r *Repository) Get(ctx context.Context, id string) (*entity.Auction, error) {
	ctx, span := repoTracer.Start(ctx, "AuctionRepository.Get", trace.WithAttributes(attribute.String("auction.id", id)))
	defer span.End()

	auction := new(entity.Auction)
	err := r.writer.NewSelect().Model(auction).
		Where("a.id = ?", id).
		Where("a.removed_at IS NULL").
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return auction, nil
}

// List serves browse queries from the read replica.
func (r *Repository) List(ctx context.Context, filter Filter) ([]entity.Auction, error) {
	ctx, span := repoTracer.Start(ctx, "AuctionRepository.List")
	defer span.End()

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	var auctions []entity.Auction
	q := r.reader.NewSelect().Model(&auctions).Where("a.removed_at IS NULL")
	if filter.Location != nil {
		q = q.Where("a.location = ?", *filter.Location)
	}
	if filter.CategoryID != nil {
		q = q.Where("a.category_id = ?", *filter.CategoryID)
	}
	if filter.NameContains != nil {
		q = q.Where("LOWER(a.name) LIKE ?", "%"+escapeLike(strings.ToLower(*filter.NameContains))+"%")
	}
	switch {
	case len(filter.Statuses) > 0 && filter.AsOf.IsZero():
		q = q.Where("a.status IN (?)", bun.In(filter.Statuses))
	case len(filter.Statuses) > 0:
		q = q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return effectiveStatusIn(q, filter.Statuses, filter.AsOf)
		})
	}
	err := q.OrderExpr("a.end_time ASC").OrderExpr("a.id ASC").
		Limit(limit).
		Offset(filter.Offset).
		Scan(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return auctions, nil
}

// UpdateStatus applies a compare-and-set on the status column.
func (r *Repository) UpdateStatus(ctx context.Context, id string, from, to entity.Status, at time.Time) error {
	if !from.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	ctx, span := repoTracer.Start(ctx, "AuctionRepository.UpdateStatus", trace.WithAttributes(
		attribute.String("auction.id", id),
		attribute.String("auction.status.from", string(from)),
		attribute.String("auction.status.to", string(to)),
	))
	defer span.End()

	res, err := r.writer.NewUpdate().Model((*entity.Auction)(nil)).
		Set("status = ?", to).
		Set("updated_at = ?", at).
		Where("id = ?", id).
		Where("status = ?", from).
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return err
	}
	if affected(res) > 0 {
		return nil
	}

	current, err := r.currentStatus(ctx, id)
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.String("auction.status.current", string(current)))
	return fmt.Errorf("%w: expected %s, found %s", ErrStatusConflict, from, current)
}

// SetWinner stamps the resolution once; later calls report ErrAlreadyResolved.
func (r *Repository) SetWinner(ctx context.Context, id string, bidID *string, at time.Time) error {
	ctx, span := repoTracer.Start(ctx, "AuctionRepository.SetWinner", trace.WithAttributes(attribute.String("auction.id", id)))
	defer span.End()

	res, err := r.writer.NewUpdate().Model((*entity.Auction)(nil)).
		Set("winner_bid_id = ?", bidID).
		Set("resolved_at = ?", at).
		Set("updated_at = ?", at).
		Where("id = ?", id).
		Where("status = ?", entity.StatusClosed).
		Where("resolved_at IS NULL").
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return err
	}
	if affected(res) > 0 {
		return nil
	}

	current, err := r.currentStatus(ctx, id)
	if err != nil {
		return err
	}
	if current != entity.StatusClosed {
		return fmt.Errorf("%w: winner requires closed auction, found %s", ErrInvalidTransition, current)
	}
	return ErrAlreadyResolved
}

// Patch applies a sparse update while the auction is still upcoming.
func (r *Repository) Patch(ctx context.Context, id string, patch Patch, at time.Time) error {
	ctx, span := repoTracer.Start(ctx, "AuctionRepository.Patch", trace.WithAttributes(attribute.String("auction.id", id)))
	defer span.End()

	q := r.writer.NewUpdate().Model((*entity.Auction)(nil)).Set("updated_at = ?", at)
	if patch.Name != nil {
		q = q.Set("name = ?", *patch.Name)
	}
	if patch.Description != nil {
		q = q.Set("description = ?", *patch.Description)
	}
	if patch.Location != nil {
		q = q.Set("location = ?", *patch.Location)
	}
	if patch.CategoryID != nil {
		q = q.Set("category_id = ?", *patch.CategoryID)
	}
	if patch.ImageURL != nil {
		q = q.Set("image_url = ?", *patch.ImageURL)
	}

	res, err := q.Where("id = ?", id).
		Where("status = ?", entity.StatusUpcoming).
		Where("removed_at IS NULL").
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return err
	}
	if affected(res) > 0 {
		return nil
	}
	if _, err := r.currentStatus(ctx, id); err != nil {
		return err
	}
	return ErrNotEditable
}

// Remove soft-deletes an auction that has no bids.
func (r *Repository) Remove(ctx context.Context, id string, at time.Time) error {
	ctx, span := repoTracer.Start(ctx, "AuctionRepository.Remove", trace.WithAttributes(attribute.String("auction.id", id)))
	defer span.End()

	err := r.writer.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		// Locks the row so a concurrent first bid either commits before the
		// count or observes removed_at afterwards.
		auction := new(entity.Auction)
		err := tx.NewSelect().Model(auction).
			Where("a.id = ?", id).
			Where("a.removed_at IS NULL").
			For("UPDATE").
			Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		bids, err := tx.NewSelect().Model((*entity.Bid)(nil)).Where("auction_id = ?", id).Count(ctx)
		if err != nil {
			return err
		}
		if bids > 0 {
			return ErrHasBids
		}

		_, err = tx.NewUpdate().Model((*entity.Auction)(nil)).
			Set("removed_at = ?", at).
			Set("updated_at = ?", at).
			Where("id = ?", id).
			Exec(ctx)
		return err
	})
	if err != nil && !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrHasBids) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "remove failed")
	}
	return err
}

// ListDue finds auctions whose persisted status is behind the clock.
func (r *Repository) ListDue(ctx context.Context, now time.Time, limit int) ([]string, error) {
	ctx, span := repoTracer.Start(ctx, "AuctionRepository.ListDue")
	defer span.End()

	if limit <= 0 {
		limit = defaultListLimit
	}

	var ids []string
	err := r.writer.NewSelect().Model((*entity.Auction)(nil)).
		Column("a.id").
		Where("a.removed_at IS NULL").
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				WhereOr("a.status = ? AND a.start_time <= ?", entity.StatusUpcoming, now).
				WhereOr("a.status = ? AND a.end_time <= ?", entity.StatusActive, now).
				WhereOr("a.status = ? AND a.resolved_at IS NULL", entity.StatusClosed)
		}).
		OrderExpr("a.end_time ASC").
		Limit(limit).
		Scan(ctx, &ids)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	span.SetAttributes(attribute.Int("auction.due", len(ids)))
	return ids, nil
}

// effectiveStatusIn matches rows whose stored status, moved forward to the
// one derived from now, is one of statuses.
func effectiveStatusIn(q *bun.SelectQuery, statuses []entity.Status, now time.Time) *bun.SelectQuery {
	for _, st := range statuses {
		switch st {
		case entity.StatusUpcoming:
			q = q.WhereOr("a.status = ? AND a.start_time > ?", entity.StatusUpcoming, now)
		case entity.StatusActive:
			q = q.WhereOr("a.status = ? AND a.end_time > ?", entity.StatusActive, now).
				WhereOr("a.status = ? AND a.start_time <= ? AND a.end_time > ?", entity.StatusUpcoming, now, now)
		case entity.StatusClosed:
			q = q.WhereOr("a.status = ?", entity.StatusClosed).
				WhereOr("a.end_time <= ?", now)
		}
	}
	return q
}

func (r *Repository) currentStatus(ctx context.Context, id string) (entity.Status, error) {
	var status entity.Status
	err := r.writer.NewSelect().Model((*entity.Auction)(nil)).
		Column("a.status").
		Where("a.id = ?", id).
		Where("a.removed_at IS NULL").
		Scan(ctx, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return status, err
}

func affected(res sql.Result) int64 {
	if res == nil {
		return 0
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return n
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
