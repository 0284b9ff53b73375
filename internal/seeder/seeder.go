package seeder

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/auctioneer/internal/clock"
	"github.com/Additional-Code/auctioneer/internal/database"
	"github.com/Additional-Code/auctioneer/internal/entity"
	auctionrepo "github.com/Additional-Code/auctioneer/internal/repository/auction"
	"github.com/Additional-Code/auctioneer/internal/repository/directory"
	auctionsvc "github.com/Additional-Code/auctioneer/internal/service/auction"
)

// Module provides the Seeder to Fx.
var Module = fx.Provide(New)

// DemoSeller owns every seeded auction.
var DemoSeller = entity.Actor{ID: "user-seller-demo", Role: entity.RoleSeller}

// staticDirectory is satisfied by the in-process directory.
type staticDirectory interface {
	PutUser(entity.User)
	PutCategory(entity.Category)
}

// Params collects dependencies via Fx.
type Params struct {
	fx.In

	Conns     *database.Connections
	Directory directory.Directory
	Auctions  *auctionsvc.Service
	Clock     clock.Clock
	Logger    *zap.Logger
}

// Seeder inserts demo categories, users and auctions for local/dev setups.
type Seeder struct {
	db        *bun.DB
	driver    string
	directory directory.Directory
	auctions  *auctionsvc.Service
	clock     clock.Clock
	logger    *zap.Logger
}

// New constructs a Seeder. db is nil for the memory driver.
func New(p Params) *Seeder {
	s := &Seeder{
		directory: p.Directory,
		auctions:  p.Auctions,
		clock:     p.Clock,
		logger:    p.Logger,
	}
	if p.Conns.Enabled() {
		s.db = p.Conns.Writer
		s.driver = p.Conns.Driver
	}
	return s
}

// Categories returns the demo categories.
func Categories() []entity.Category {
	return []entity.Category{
		{ID: "cat-antiques", Name: "Antiques"},
		{ID: "cat-art", Name: "Art"},
		{ID: "cat-electronics", Name: "Electronics"},
		{ID: "cat-furniture", Name: "Furniture"},
	}
}

// Users returns the demo accounts.
func Users() []entity.User {
	return []entity.User{
		{ID: DemoSeller.ID, FullName: "Dana Seller", Email: "dana.seller@example.com", Phone: "+351 900 000 001"},
		{ID: "user-bidder-1", FullName: "Alex Bidder", Email: "alex.bidder@example.com"},
		{ID: "user-bidder-2", FullName: "Rui Bidder", Email: "rui.bidder@example.com"},
		{ID: "user-admin", FullName: "Ops Admin", Email: "ops@example.com"},
	}
}

// All seeds the directory and then the demo auctions.
func (s *Seeder) All(ctx context.Context) error {
	if err := s.Directory(ctx); err != nil {
		return err
	}
	return s.Auctions(ctx)
}

// Directory inserts categories and users if they are missing.
func (s *Seeder) Directory(ctx context.Context) error {
	categories := Categories()
	users := Users()

	if s.db == nil {
		static, ok := s.directory.(staticDirectory)
		if !ok {
			return fmt.Errorf("directory %T cannot be seeded", s.directory)
		}
		for _, c := range categories {
			static.PutCategory(c)
		}
		for _, u := range users {
			static.PutUser(u)
		}
	} else {
		for i := range categories {
			if err := s.insertIgnore(ctx, &categories[i]); err != nil {
				return fmt.Errorf("seed category %s: %w", categories[i].ID, err)
			}
		}
		for i := range users {
			if err := s.insertIgnore(ctx, &users[i]); err != nil {
				return fmt.Errorf("seed user %s: %w", users[i].ID, err)
			}
		}
	}

	if s.logger != nil {
		s.logger.Info("seeded directory", zap.Int("categories", len(categories)), zap.Int("users", len(users)))
	}
	return nil
}

func (s *Seeder) insertIgnore(ctx context.Context, model any) error {
	q := s.db.NewInsert().Model(model)
	if s.driver == "mysql" {
		q = q.Ignore()
	} else {
		q = q.On("CONFLICT (id) DO NOTHING")
	}
	_, err := q.Exec(ctx)
	return err
}

// Auctions creates demo auctions relative to now: one running, one about to
// start and one starting tomorrow. Auctions whose name already exists are
// skipped.
func (s *Seeder) Auctions(ctx context.Context) error {
	now := s.clock.Now().Truncate(time.Minute)
	samples := []auctionsvc.CreateInput{
		{
			Name:          "Art deco brass lamp",
			Description:   "Restored 1930s desk lamp, rewired.",
			CategoryID:    "cat-antiques",
			Location:      "Lisbon",
			ImageURL:      "https://images.example.com/demo/lamp.jpg",
			StartingPrice: decimal.RequireFromString("80.00"),
			StartTime:     now.Add(-10 * time.Minute),
			EndTime:       now.Add(2 * time.Hour),
		},
		{
			Name:          "Walnut lounge chair",
			Description:   "Mid-century lounge chair, original upholstery.",
			CategoryID:    "cat-furniture",
			Location:      "Porto",
			ImageURL:      "https://images.example.com/demo/chair.jpg",
			StartingPrice: decimal.RequireFromString("250.00"),
			StartTime:     now.Add(5 * time.Minute),
			EndTime:       now.Add(3 * time.Hour),
		},
		{
			Name:          "Film camera kit",
			Description:   "35mm rangefinder with two lenses.",
			CategoryID:    "cat-electronics",
			Location:      "Lisbon",
			ImageURL:      "https://images.example.com/demo/camera.jpg",
			StartingPrice: decimal.RequireFromString("120.50"),
			StartTime:     now.Add(24 * time.Hour),
			EndTime:       now.Add(48 * time.Hour),
		},
	}

	created := 0
	for _, in := range samples {
		name := in.Name
		existing, err := s.auctions.List(ctx, auctionrepo.Filter{NameContains: &name, Limit: 1})
		if err != nil {
			return fmt.Errorf("check auction %q: %w", name, err)
		}
		if len(existing) > 0 {
			continue
		}
		if _, err := s.auctions.Create(ctx, DemoSeller, in); err != nil {
			return fmt.Errorf("seed auction %q: %w", name, err)
		}
		created++
	}

	if s.logger != nil {
		s.logger.Info("seeded auctions", zap.Int("created", created), zap.Int("skipped", len(samples)-created))
	}
	return nil
}
