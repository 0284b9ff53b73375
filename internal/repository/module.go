package repository

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/auctioneer/internal/database"
	"github.com/Additional-Code/auctioneer/internal/repository/auction"
	"github.com/Additional-Code/auctioneer/internal/repository/bid"
	"github.com/Additional-Code/auctioneer/internal/repository/directory"
	"github.com/Additional-Code/auctioneer/internal/repository/memory"
)

// Module selects the storage implementation matching the database driver.
var Module = fx.Provide(New)

// Stores groups the storage ports handed to services.
type Stores struct {
	fx.Out

	Auctions  auction.Store
	Bids      bid.Ledger
	Directory directory.Directory
}

// New returns SQL repositories when a database is configured and a shared
// in-process store otherwise.
func New(conns *database.Connections, logger *zap.Logger) Stores {
	if !conns.Enabled() {
		logger.Warn("using in-process auction storage; data is lost on restart")
		mem := memory.New()
		return Stores{
			Auctions:  mem,
			Bids:      mem,
			Directory: directory.NewStatic(),
		}
	}

	return Stores{
		Auctions:  auction.NewRepository(conns),
		Bids:      bid.NewRepository(conns),
		Directory: directory.NewRepository(conns),
	}
}
