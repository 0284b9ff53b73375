package app

import (
	"go.uber.org/fx"

	"github.com/Additional-Code/auctioneer/internal/cache"
	"github.com/Additional-Code/auctioneer/internal/clock"
	"github.com/Additional-Code/auctioneer/internal/config"
	"github.com/Additional-Code/auctioneer/internal/database"
	"github.com/Additional-Code/auctioneer/internal/lease"
	"github.com/Additional-Code/auctioneer/internal/logger"
	"github.com/Additional-Code/auctioneer/internal/media"
	"github.com/Additional-Code/auctioneer/internal/messaging"
	"github.com/Additional-Code/auctioneer/internal/observability"
	"github.com/Additional-Code/auctioneer/internal/repository"
	"github.com/Additional-Code/auctioneer/internal/scheduler"
	grpcserver "github.com/Additional-Code/auctioneer/internal/server/grpc"
	httpserver "github.com/Additional-Code/auctioneer/internal/server/http"
	serviceauction "github.com/Additional-Code/auctioneer/internal/service/auction"
	transporthttp "github.com/Additional-Code/auctioneer/internal/transport/http"
	"github.com/Additional-Code/auctioneer/internal/worker"
	workerauction "github.com/Additional-Code/auctioneer/internal/worker/auction"
)

// Core provides the foundational modules shared across executables.
var Core = fx.Options(
	config.Module,
	clock.Module,
	cache.Module,
	database.Module,
	logger.Module,
	messaging.Module,
	observability.Module,
	media.Module,
	repository.Module,
	serviceauction.Module,
)

// Lifecycle adds the lease manager and the sweep used by both the scheduler
// and the reconcile workers.
var Lifecycle = fx.Options(
	Core,
	lease.Module,
	scheduler.Module,
)

// HTTP wires the HTTP and gRPC servers on top of the core modules. The sweep
// runs in-process when AUCTION_SCHEDULER_ENABLED is set.
var HTTP = fx.Options(
	Lifecycle,
	scheduler.RunModule,
	httpserver.Module,
	grpcserver.Module,
	transporthttp.Module,
)

// Worker exposes background worker processing.
var Worker = fx.Options(
	Lifecycle,
	worker.Module,
	workerauction.Module,
)

// Scheduler runs only the lifecycle sweep.
var Scheduler = fx.Options(
	Lifecycle,
	scheduler.RunModule,
)

// Module is the default application wiring (HTTP only).
var Module = HTTP
