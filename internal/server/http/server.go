package http

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	echo "github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/auctioneer/internal/config"
	"github.com/Additional-Code/auctioneer/internal/observability"
	"github.com/Additional-Code/auctioneer/internal/presentation/http/response"
	"github.com/Additional-Code/auctioneer/pkg/errorbank"
)

// Module exposes the HTTP server lifecycle to Fx.
var Module = fx.Module("http_server",
	fx.Provide(NewEcho),
	fx.Invoke(Run),
)

// NewEcho configures the Echo router with basic middleware.
func NewEcho(cfg config.Config, obs *observability.Manager, logger *zap.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(logger)

	e.Use(middleware.RequestID())
	e.Use(middleware.Recover())
	if cfg.Media.MaxBytes > 0 {
		// The limit covers the largest image plus its multipart envelope.
		e.Use(middleware.BodyLimit(fmt.Sprintf("%dK", cfg.Media.MaxBytes/1024+64)))
	}

	if obs != nil && obs.TracingEnabled() {
		e.Use(otelecho.Middleware(cfg.Observability.ServiceName))
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	if obs != nil && obs.MetricsEnabled() && obs.MetricsHandler() != nil {
		e.GET(cfg.Observability.PrometheusPath, echo.WrapHandler(obs.MetricsHandler()))
	}

	if prefix := mediaPrefix(cfg.Media); prefix != "" {
		e.Static(prefix, cfg.Media.Dir)
	}

	return e
}

// errorHandler renders router errors (unknown route, body too large) in the
// same envelope as handler errors.
func errorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var appErr error = err
		if he, ok := err.(*echo.HTTPError); ok {
			msg := http.StatusText(he.Code)
			if s, ok := he.Message.(string); ok {
				msg = s
			}
			switch {
			case he.Code == http.StatusNotFound:
				appErr = errorbank.NotFound(msg, errorbank.WithCode("route_not_found"))
			case he.Code < http.StatusInternalServerError:
				appErr = errorbank.BadRequest(msg, errorbank.WithCode("bad_request"))
			}
			if he.Code >= http.StatusInternalServerError {
				logger.Error("http request failed", zap.Error(err))
			}
			if err := response.New(c).WithStatus(he.Code).WithError(appErr).Build(); err != nil {
				logger.Warn("write error response", zap.Error(err))
			}
			return
		}

		logger.Error("http request failed", zap.Error(err))
		if err := response.New(c).WithError(appErr).Build(); err != nil {
			logger.Warn("write error response", zap.Error(err))
		}
	}
}

// mediaPrefix returns the route under which stored images are served, or ""
// when images are not stored on local disk.
func mediaPrefix(cfg config.Media) string {
	if cfg.Driver != "disk" || cfg.Dir == "" {
		return ""
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return ""
	}
	path := strings.TrimRight(u.Path, "/")
	if path == "" {
		return ""
	}
	return path
}

// Run starts the HTTP server and ties it to the Fx lifecycle.
func Run(lc fx.Lifecycle, cfg config.Config, e *echo.Echo, logger *zap.Logger) {
	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)

	server := &http.Server{
		Addr:    addr,
		Handler: e,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("starting HTTP server", zap.String("addr", addr))
			go func() {
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Fatal("http server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("stopping HTTP server")
			return server.Shutdown(ctx)
		},
	})
}
