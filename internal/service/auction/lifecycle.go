package auction

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Additional-Code/auctioneer/internal/entity"
	auctionrepo "github.com/Additional-Code/auctioneer/internal/repository/auction"
	"github.com/Additional-Code/auctioneer/pkg/errorbank"
)

// maxTransitionAttempts bounds re-reads after losing a status compare-and-set.
const maxTransitionAttempts = 3

// DeriveStatus returns the status implied by the window [start, end) at now.
func DeriveStatus(start, end, now time.Time) entity.Status {
	return entity.StatusAt(start, end, now)
}

// effectiveStatus is the later of the persisted and the time-derived status.
// A recorded closure wins even when the clock has moved backwards.
func effectiveStatus(a *entity.Auction, now time.Time) entity.Status {
	return a.EffectiveStatus(now)
}

// Reconcile brings the persisted status of one auction in line with the
// clock and resolves the winner when it has closed. Applying it again is a
// no-op.
func (s *Service) Reconcile(ctx context.Context, id string) (*entity.Auction, error) {
	ctx, span := serviceTracer.Start(ctx, "AuctionService.Reconcile", trace.WithAttributes(attribute.String("auction.id", id)))
	defer span.End()

	unlock := s.locks.Lock(id)
	defer unlock()

	auction, err := s.loadAuction(ctx, id)
	if err != nil {
		return nil, err
	}
	auction, err = s.reconcileLocked(ctx, auction)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reconcile failed")
		return nil, err
	}
	span.SetAttributes(attribute.String("auction.status", string(auction.Status)))
	return auction, nil
}

// reconcileLocked must run while the auction's lock is held.
func (s *Service) reconcileLocked(ctx context.Context, auction *entity.Auction) (*entity.Auction, error) {
	for attempt := 1; ; attempt++ {
		target := DeriveStatus(auction.StartTime, auction.EndTime, s.clock.Now())
		if !auction.Status.CanTransition(target) {
			break
		}

		err := s.transition(ctx, auction, target)
		if err == nil {
			break
		}
		if !errors.Is(err, auctionrepo.ErrStatusConflict) || attempt >= maxTransitionAttempts {
			return nil, storageError("failed to update auction status", err)
		}

		// Another replica moved it first.
		s.logger.Debug("status changed concurrently; reloading", zap.String("auction_id", auction.ID))
		if auction, err = s.loadAuction(ctx, auction.ID); err != nil {
			return nil, err
		}
	}

	if auction.Status == entity.StatusClosed && !auction.Resolved() {
		if _, err := s.resolveLocked(ctx, auction); err != nil {
			return nil, err
		}
	}
	return auction, nil
}

func (s *Service) transition(ctx context.Context, auction *entity.Auction, to entity.Status) error {
	from := auction.Status
	now := s.clock.Now()
	if err := s.auctions.UpdateStatus(ctx, auction.ID, from, to, now); err != nil {
		return err
	}
	auction.Status = to
	auction.UpdatedAt = now

	s.metrics.transitioned(ctx, from, to)
	s.logger.Info("auction status changed",
		zap.String("auction_id", auction.ID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	s.publish(ctx, EventStatusChanged, auction.ID, StatusChangedEvent{
		AuctionID: auction.ID,
		From:      from,
		To:        to,
		At:        now,
	})
	return nil
}

// CloseResult is the outcome of closing an auction.
type CloseResult struct {
	Auction *entity.Auction `json:"auction"`
	Winner  *entity.Bid     `json:"winner"`
}

// Close ends an auction now, even before its end time, and resolves the
// winner. Closing an already closed auction returns the same result.
func (s *Service) Close(ctx context.Context, actor entity.Actor, id string) (*CloseResult, error) {
	ctx, span := serviceTracer.Start(ctx, "AuctionService.Close", trace.WithAttributes(attribute.String("auction.id", id)))
	defer span.End()

	if !actor.IsAdmin() {
		return nil, forbiddenError("only admins can close auctions")
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	auction, err := s.loadAuction(ctx, id)
	if err != nil {
		return nil, err
	}
	if auction, err = s.reconcileLocked(ctx, auction); err != nil {
		return nil, err
	}

	for attempt := 1; auction.Status != entity.StatusClosed; attempt++ {
		err := s.transition(ctx, auction, entity.StatusClosed)
		if err == nil {
			s.logger.Info("auction closed early", zap.String("auction_id", id), zap.String("actor_id", actor.ID))
			break
		}
		if !errors.Is(err, auctionrepo.ErrStatusConflict) || attempt >= maxTransitionAttempts {
			span.RecordError(err)
			span.SetStatus(codes.Error, "close failed")
			return nil, storageError("failed to close auction", err)
		}
		if auction, err = s.loadAuction(ctx, id); err != nil {
			return nil, err
		}
	}

	winner, err := s.resolveLocked(ctx, auction)
	if err != nil {
		return nil, err
	}
	return &CloseResult{Auction: auction, Winner: winner}, nil
}

func invalidTransitionError(id string, status entity.Status) error {
	return errorbank.Conflict("auction is not closed",
		errorbank.WithCode(CodeInvalidTransition),
		errorbank.WithCause(ErrInvalidTransition),
		errorbank.WithDetail("auction_id", id),
		errorbank.WithDetail("status", string(status)),
	)
}
