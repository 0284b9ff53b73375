package auction

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/auctioneer/internal/cache"
	"github.com/Additional-Code/auctioneer/internal/clock"
	"github.com/Additional-Code/auctioneer/internal/config"
	"github.com/Additional-Code/auctioneer/internal/entity"
	"github.com/Additional-Code/auctioneer/internal/media"
	"github.com/Additional-Code/auctioneer/internal/messaging"
	auctionrepo "github.com/Additional-Code/auctioneer/internal/repository/auction"
	bidrepo "github.com/Additional-Code/auctioneer/internal/repository/bid"
	"github.com/Additional-Code/auctioneer/internal/repository/directory"
	"github.com/Additional-Code/auctioneer/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/Additional-Code/auctioneer/service/auction")

const maxListLimit = 100

// Service is the composition root of the auction core: it owns the
// per-auction critical sections and orchestrates lifecycle, admission and
// winner resolution over the storage ports.
type Service struct {
	auctions     auctionrepo.Store
	bids         bidrepo.Ledger
	directory    directory.Directory
	media        media.Store
	cache        cache.Store
	cacheTTL     time.Duration
	clock        clock.Clock
	publisher    messaging.Client
	logger       *zap.Logger
	validate     *validator.Validate
	locks        *keyedMutex
	minIncrement decimal.Decimal
	metrics      instruments
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Auctions  auctionrepo.Store
	Bids      bidrepo.Ledger
	Directory directory.Directory
	Media     media.Store
	Cache     cache.Store
	Clock     clock.Clock
	Publisher messaging.Client
	Config    config.Config
	Logger    *zap.Logger
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	store := p.Cache
	if store == nil {
		store = cache.NewNoop()
	}

	return &Service{
		auctions:     p.Auctions,
		bids:         p.Bids,
		directory:    p.Directory,
		media:        p.Media,
		cache:        store,
		cacheTTL:     p.Config.Cache.DefaultTTL,
		clock:        p.Clock,
		publisher:    p.Publisher,
		logger:       logger,
		validate:     newValidator(),
		locks:        newKeyedMutex(),
		minIncrement: p.Config.Auction.MinIncrement,
		metrics:      newInstruments(logger),
	}
}

// Image is an uploaded picture awaiting storage.
type Image struct {
	Name string
	Data []byte
}

// CreateInput describes a new listing. Either Image or ImageURL is required.
type CreateInput struct {
	Name          string          `json:"name" validate:"required,max=200"`
	Description   string          `json:"description" validate:"required,max=5000"`
	CategoryID    string          `json:"category_id" validate:"required,max=64"`
	Location      string          `json:"location" validate:"required,max=200"`
	ImageURL      string          `json:"image_url" validate:"omitempty,url,max=1024"`
	Image         *Image          `json:"-"`
	StartingPrice decimal.Decimal `json:"starting_price"`
	StartTime     time.Time       `json:"start_time"`
	EndTime       time.Time       `json:"end_time"`
}

// PatchInput carries the fields a seller may change before the auction opens.
type PatchInput struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=200"`
	Description *string `json:"description" validate:"omitempty,min=1,max=5000"`
	Location    *string `json:"location" validate:"omitempty,min=1,max=200"`
	CategoryID  *string `json:"category_id" validate:"omitempty,min=1,max=64"`
	ImageURL    *string `json:"image_url" validate:"omitempty,url,max=1024"`
}

// View is an auction with its display fields resolved.
type View struct {
	Auction  *entity.Auction  `json:"auction"`
	Seller   *entity.User     `json:"seller,omitempty"`
	Category *entity.Category `json:"category,omitempty"`
	HighBid  *entity.Bid      `json:"high_bid,omitempty"`
	Winner   *entity.Bid      `json:"winner,omitempty"`
	BidCount int              `json:"bid_count"`
}

// Create validates and persists a listing. The image is stored first; a
// failed upload aborts before anything is written.
func (s *Service) Create(ctx context.Context, actor entity.Actor, in CreateInput) (*entity.Auction, error) {
	ctx, span := serviceTracer.Start(ctx, "AuctionService.Create")
	defer span.End()

	if actor.ID == "" || (actor.Role != entity.RoleSeller && !actor.IsAdmin()) {
		return nil, forbiddenError("only sellers can create auctions")
	}

	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	in.CategoryID = strings.TrimSpace(in.CategoryID)
	in.Location = strings.TrimSpace(in.Location)
	in.ImageURL = strings.TrimSpace(in.ImageURL)

	now := s.clock.Now()
	if err := s.validateCreate(in, now); err != nil {
		return nil, err
	}

	imageURL := in.ImageURL
	if in.Image != nil {
		url, err := s.media.Store(ctx, in.Image.Name, in.Image.Data)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "image upload failed")
			if errors.Is(err, media.ErrEmpty) || errors.Is(err, media.ErrTooLarge) || errors.Is(err, media.ErrUnsupportedType) {
				return nil, validationError("invalid image", map[string]any{"image": err.Error()})
			}
			return nil, errorbank.Internal("failed to store image",
				errorbank.WithCode(CodeImageUpload),
				errorbank.WithCause(errors.Join(ErrStorage, err)),
			)
		}
		imageURL = url
	}

	auction := &entity.Auction{
		ID:            uuid.NewString(),
		SellerID:      actor.ID,
		CategoryID:    in.CategoryID,
		Name:          in.Name,
		Description:   in.Description,
		Location:      in.Location,
		ImageURL:      imageURL,
		StartingPrice: in.StartingPrice,
		StartTime:     in.StartTime.UTC(),
		EndTime:       in.EndTime.UTC(),
		Status:        DeriveStatus(in.StartTime, in.EndTime, now),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	span.SetAttributes(attribute.String("auction.id", auction.ID), attribute.String("auction.status", string(auction.Status)))

	if err := s.auctions.Create(ctx, auction); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, storageError("failed to create auction", err)
	}

	s.logger.Info("auction created",
		zap.String("auction_id", auction.ID),
		zap.String("seller_id", auction.SellerID),
		zap.String("status", string(auction.Status)),
	)
	return auction, nil
}

func (s *Service) validateCreate(in CreateInput, now time.Time) error {
	details := structErrors(s.validate.Struct(in))

	if in.Image == nil && in.ImageURL == "" {
		details["image"] = "required"
	}
	if in.StartTime.IsZero() {
		details["start_time"] = "required"
	}
	if in.EndTime.IsZero() {
		details["end_time"] = "required"
	}
	if !in.StartTime.IsZero() && !in.EndTime.IsZero() {
		if !in.StartTime.Before(in.EndTime) {
			details["end_time"] = "must be after start_time"
		} else if !now.Before(in.EndTime) {
			details["end_time"] = "must be in the future"
		}
	}
	if msg := priceProblem(in.StartingPrice); msg != "" {
		details["starting_price"] = msg
	}

	if len(details) > 0 {
		return validationError("invalid auction", details)
	}
	return nil
}

// priceProblem describes why an amount is not a valid price, or returns "".
func priceProblem(amount decimal.Decimal) string {
	switch {
	case !amount.IsPositive():
		return "must be greater than 0"
	case !amount.Equal(amount.Truncate(2)):
		return "at most 2 decimal places"
	default:
		return ""
	}
}

// List returns auctions matching filter. It takes no per-auction locks; the
// status shown is moved forward to the time-derived one when it lags.
func (s *Service) List(ctx context.Context, filter auctionrepo.Filter) ([]entity.Auction, error) {
	ctx, span := serviceTracer.Start(ctx, "AuctionService.List")
	defer span.End()

	for _, st := range filter.Statuses {
		if !st.Valid() {
			return nil, validationError("invalid filter", map[string]any{"status": fmt.Sprintf("unknown status %q", st)})
		}
	}
	if filter.Limit <= 0 || filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	now := s.clock.Now()
	filter.AsOf = now

	auctions, err := s.auctions.List(ctx, filter)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, storageError("failed to list auctions", err)
	}

	for i := range auctions {
		auctions[i].Status = effectiveStatus(&auctions[i], now)
	}
	span.SetAttributes(attribute.Int("auction.count", len(auctions)))
	return auctions, nil
}

// Get returns one auction after lazily reconciling its status. Resolved
// closed auctions never change again and are served from cache.
func (s *Service) Get(ctx context.Context, id string) (*View, error) {
	ctx, span := serviceTracer.Start(ctx, "AuctionService.Get", trace.WithAttributes(attribute.String("auction.id", id)))
	defer span.End()

	var cached View
	err := cache.GetJSON(ctx, s.cache, s.cacheKey(id), &cached)
	if err == nil && cached.Auction != nil {
		return &cached, nil
	}
	if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("auction cache read failed", zap.String("auction_id", id), zap.Error(err))
	}

	auction, err := s.Reconcile(ctx, id)
	if err != nil {
		return nil, err
	}

	view, err := s.buildView(ctx, auction)
	if err != nil {
		return nil, err
	}

	if auction.Status == entity.StatusClosed && auction.Resolved() {
		if err := cache.SetJSON(ctx, s.cache, s.cacheKey(id), view, s.cacheTTL); err != nil {
			s.logger.Warn("auction cache write failed", zap.String("auction_id", id), zap.Error(err))
		}
	}
	return view, nil
}

func (s *Service) buildView(ctx context.Context, auction *entity.Auction) (*View, error) {
	view := &View{Auction: auction}

	if s.directory != nil {
		if seller, err := s.directory.User(ctx, auction.SellerID); err == nil {
			view.Seller = seller
		} else if !errors.Is(err, directory.ErrNotFound) {
			s.logger.Warn("seller lookup failed", zap.String("seller_id", auction.SellerID), zap.Error(err))
		}
		if category, err := s.directory.Category(ctx, auction.CategoryID); err == nil {
			view.Category = category
		} else if !errors.Is(err, directory.ErrNotFound) {
			s.logger.Warn("category lookup failed", zap.String("category_id", auction.CategoryID), zap.Error(err))
		}
	}

	count, err := s.bids.Count(ctx, auction.ID)
	if err != nil {
		return nil, storageError("failed to count bids", err)
	}
	view.BidCount = count
	if count == 0 {
		return view, nil
	}

	high, err := s.bids.HighBid(ctx, auction.ID)
	if err != nil && !errors.Is(err, bidrepo.ErrNotFound) {
		return nil, storageError("failed to load high bid", err)
	}
	view.HighBid = high
	if auction.WinnerBidID != nil && high != nil && high.ID == *auction.WinnerBidID {
		view.Winner = high
	}
	return view, nil
}

// Bids lists the ledger of an auction in admission order.
func (s *Service) Bids(ctx context.Context, id string) ([]entity.Bid, error) {
	ctx, span := serviceTracer.Start(ctx, "AuctionService.Bids", trace.WithAttributes(attribute.String("auction.id", id)))
	defer span.End()

	if _, err := s.loadAuction(ctx, id); err != nil {
		return nil, err
	}
	bids, err := s.bids.AllBids(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, storageError("failed to list bids", err)
	}
	return bids, nil
}

// Patch edits descriptive fields while the auction is still upcoming.
func (s *Service) Patch(ctx context.Context, actor entity.Actor, id string, in PatchInput) (*entity.Auction, error) {
	ctx, span := serviceTracer.Start(ctx, "AuctionService.Patch", trace.WithAttributes(attribute.String("auction.id", id)))
	defer span.End()

	patch := auctionrepo.Patch{
		Name:        trimmed(in.Name),
		Description: trimmed(in.Description),
		Location:    trimmed(in.Location),
		CategoryID:  trimmed(in.CategoryID),
		ImageURL:    trimmed(in.ImageURL),
	}
	in = PatchInput(patch)
	if details := structErrors(s.validate.Struct(in)); len(details) > 0 {
		return nil, validationError("invalid patch", details)
	}
	if patch.Empty() {
		return nil, validationError("nothing to update", nil)
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	auction, err := s.loadAuction(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && !actor.Owns(auction) {
		return nil, forbiddenError("only the seller can edit this auction")
	}
	if auction, err = s.reconcileLocked(ctx, auction); err != nil {
		return nil, err
	}

	if err := s.auctions.Patch(ctx, id, patch, s.clock.Now()); err != nil {
		switch {
		case errors.Is(err, auctionrepo.ErrNotFound):
			return nil, notFoundError(id)
		case errors.Is(err, auctionrepo.ErrNotEditable):
			return nil, errorbank.Conflict("auction can only be edited before it starts",
				errorbank.WithCode(CodeNotEditable),
				errorbank.WithDetail("auction_id", id),
				errorbank.WithDetail("status", string(auction.Status)),
			)
		default:
			span.RecordError(err)
			span.SetStatus(codes.Error, "repository error")
			return nil, storageError("failed to update auction", err)
		}
	}
	return s.loadAuction(ctx, id)
}

// Remove soft-deletes an auction nobody has bid on.
func (s *Service) Remove(ctx context.Context, actor entity.Actor, id string) error {
	ctx, span := serviceTracer.Start(ctx, "AuctionService.Remove", trace.WithAttributes(attribute.String("auction.id", id)))
	defer span.End()

	unlock := s.locks.Lock(id)
	defer unlock()

	auction, err := s.loadAuction(ctx, id)
	if err != nil {
		return err
	}
	if !actor.IsAdmin() && !actor.Owns(auction) {
		return forbiddenError("only the seller can remove this auction")
	}

	if err := s.auctions.Remove(ctx, id, s.clock.Now()); err != nil {
		switch {
		case errors.Is(err, auctionrepo.ErrNotFound):
			return notFoundError(id)
		case errors.Is(err, auctionrepo.ErrHasBids):
			return errorbank.Conflict("auction has bids and cannot be removed",
				errorbank.WithCode(CodeHasBids),
				errorbank.WithDetail("auction_id", id),
			)
		default:
			span.RecordError(err)
			span.SetStatus(codes.Error, "repository error")
			return storageError("failed to remove auction", err)
		}
	}

	if err := s.cache.Delete(ctx, s.cacheKey(id)); err != nil {
		s.logger.Warn("auction cache delete failed", zap.String("auction_id", id), zap.Error(err))
	}
	s.logger.Info("auction removed", zap.String("auction_id", id), zap.String("actor_id", actor.ID))
	return nil
}

func (s *Service) loadAuction(ctx context.Context, id string) (*entity.Auction, error) {
	auction, err := s.auctions.Get(ctx, id)
	if errors.Is(err, auctionrepo.ErrNotFound) {
		return nil, notFoundError(id)
	}
	if err != nil {
		return nil, storageError("failed to load auction", err)
	}
	return auction, nil
}

func (s *Service) cacheKey(id string) string {
	return cache.Key("auction", "view", id)
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	return &t
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// structErrors flattens validator output into field -> rule details.
func structErrors(err error) map[string]any {
	details := make(map[string]any)
	if err == nil {
		return details
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		details["_"] = err.Error()
		return details
	}
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		details[fe.Field()] = rule
	}
	return details
}
