package auction

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/auctioneer/internal/dto"
	"github.com/Additional-Code/auctioneer/internal/entity"
	"github.com/Additional-Code/auctioneer/internal/presentation/http/principal"
	"github.com/Additional-Code/auctioneer/internal/presentation/http/response"
	auctionrepo "github.com/Additional-Code/auctioneer/internal/repository/auction"
	service "github.com/Additional-Code/auctioneer/internal/service/auction"
	"github.com/Additional-Code/auctioneer/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/auctioneer/transport/http/auction")

// HeaderIdempotencyKey identifies retries of one logical bid.
const HeaderIdempotencyKey = "Idempotency-Key"

// Handler exposes auction endpoints over HTTP.
type Handler struct {
	svc *service.Service
}

// NewHandler constructs an auction Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register routes with provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	g := e.Group("/auctions", principal.Middleware())
	g.POST("", h.create)
	g.GET("", h.list)
	g.POST("/search", h.search)
	g.GET("/:id", h.get)
	g.PATCH("/:id", h.patch)
	g.DELETE("/:id", h.remove)
	g.POST("/:id/bids", h.placeBid)
	g.GET("/:id/bids", h.bids)
	g.POST("/:id/close", h.close)
}

func (h *Handler) create(c echo.Context) error {
	b := response.New(c)

	actor, err := principal.Require(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	var in service.CreateInput
	if isMultipart(c) {
		in, err = createFromForm(c)
	} else {
		in, err = createFromJSON(c)
	}
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "auctions.create")
	span.SetAttributes(attribute.String("auction.name", in.Name))
	defer span.End()

	auction, err := h.svc.Create(ctx, actor, in)
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithStatus(http.StatusCreated).
		WithHeader(echo.HeaderLocation, "/auctions/"+auction.ID).
		WithData(dto.FromAuction(auction)).
		Build()
}

func (h *Handler) list(c echo.Context) error {
	b := response.New(c)

	var statuses []string
	for _, raw := range c.QueryParams()["status"] {
		statuses = append(statuses, strings.Split(raw, ",")...)
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		return b.WithError(err).Build()
	}
	offset, err := queryInt(c, "offset")
	if err != nil {
		return b.WithError(err).Build()
	}

	return h.respondList(c, b, dto.SearchRequest{
		Location: c.QueryParam("location"),
		Category: c.QueryParam("category"),
		Name:     c.QueryParam("name"),
		Status:   statuses,
		Limit:    limit,
		Offset:   offset,
	})
}

func (h *Handler) search(c echo.Context) error {
	b := response.New(c)

	var payload dto.SearchRequest
	if err := c.Bind(&payload); err != nil {
		return b.WithError(invalidPayload(err)).Build()
	}
	return h.respondList(c, b, payload)
}

func (h *Handler) respondList(c echo.Context, b *response.Builder, req dto.SearchRequest) error {
	filter := toFilter(req)

	ctx, span := httpTracer.Start(c.Request().Context(), "auctions.list")
	defer span.End()

	auctions, err := h.svc.List(ctx, filter)
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithData(dto.FromAuctions(auctions)).
		WithMeta("count", len(auctions)).
		WithMeta("limit", filter.Limit).
		WithMeta("offset", filter.Offset).
		Build()
}

func (h *Handler) get(c echo.Context) error {
	b := response.New(c)
	id := c.Param("id")

	ctx, span := httpTracer.Start(c.Request().Context(), "auctions.get", trace.WithAttributes(attribute.String("auction.id", id)))
	defer span.End()

	view, err := h.svc.Get(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithData(dto.AuctionDetailResponse{
		AuctionResponse: dto.FromAuction(view.Auction),
		Seller:          dto.FromSeller(view.Seller),
		Category:        dto.FromCategory(view.Category),
		HighBid:         dto.FromBid(view.HighBid),
		Winner:          dto.FromBid(view.Winner),
		BidCount:        view.BidCount,
	}).Build()
}

func (h *Handler) patch(c echo.Context) error {
	b := response.New(c)
	id := c.Param("id")

	actor, err := principal.Require(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	var payload dto.PatchAuctionRequest
	if err := c.Bind(&payload); err != nil {
		return b.WithError(invalidPayload(err)).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "auctions.patch", trace.WithAttributes(attribute.String("auction.id", id)))
	defer span.End()

	auction, err := h.svc.Patch(ctx, actor, id, service.PatchInput{
		Name:        payload.Name,
		Description: payload.Description,
		Location:    payload.Location,
		CategoryID:  payload.CategoryID,
		ImageURL:    payload.ImageURL,
	})
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithData(dto.FromAuction(auction)).Build()
}

func (h *Handler) remove(c echo.Context) error {
	b := response.New(c)
	id := c.Param("id")

	actor, err := principal.Require(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "auctions.remove", trace.WithAttributes(attribute.String("auction.id", id)))
	defer span.End()

	if err := h.svc.Remove(ctx, actor, id); err != nil {
		return b.WithError(err).Build()
	}

	return b.WithStatus(http.StatusNoContent).Build()
}

func (h *Handler) placeBid(c echo.Context) error {
	b := response.New(c)
	id := c.Param("id")

	actor, err := principal.Require(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	var payload dto.PlaceBidRequest
	if err := c.Bind(&payload); err != nil {
		return b.WithError(invalidPayload(err)).Build()
	}
	amount, err := parseMoney("amount", payload.Amount)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "auctions.placeBid", trace.WithAttributes(attribute.String("auction.id", id)))
	defer span.End()

	bid, err := h.svc.PlaceBid(ctx, service.BidRequest{
		AuctionID:      id,
		BidderID:       actor.ID,
		Amount:         amount,
		IdempotencyKey: c.Request().Header.Get(HeaderIdempotencyKey),
	})
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithStatus(http.StatusCreated).WithData(dto.FromBid(bid)).Build()
}

func (h *Handler) bids(c echo.Context) error {
	b := response.New(c)
	id := c.Param("id")

	ctx, span := httpTracer.Start(c.Request().Context(), "auctions.bids", trace.WithAttributes(attribute.String("auction.id", id)))
	defer span.End()

	bids, err := h.svc.Bids(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithData(dto.FromBids(bids)).WithMeta("count", len(bids)).Build()
}

func (h *Handler) close(c echo.Context) error {
	b := response.New(c)
	id := c.Param("id")

	actor, err := principal.Require(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "auctions.close", trace.WithAttributes(attribute.String("auction.id", id)))
	defer span.End()

	result, err := h.svc.Close(ctx, actor, id)
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithData(dto.CloseResponse{
		Auction: dto.FromAuction(result.Auction),
		Winner:  dto.FromBid(result.Winner),
	}).Build()
}

func createFromJSON(c echo.Context) (service.CreateInput, error) {
	var payload dto.CreateAuctionRequest
	if err := c.Bind(&payload); err != nil {
		return service.CreateInput{}, invalidPayload(err)
	}
	price, err := parseMoney("starting_price", payload.StartingPrice)
	if err != nil {
		return service.CreateInput{}, err
	}
	return service.CreateInput{
		Name:          payload.Name,
		Description:   payload.Description,
		CategoryID:    payload.CategoryID,
		Location:      payload.Location,
		ImageURL:      payload.ImageURL,
		StartingPrice: price,
		StartTime:     payload.StartTime,
		EndTime:       payload.EndTime,
	}, nil
}

func createFromForm(c echo.Context) (service.CreateInput, error) {
	price, err := parseMoney("starting_price", c.FormValue("starting_price"))
	if err != nil {
		return service.CreateInput{}, err
	}
	start, err := parseTime("start_time", c.FormValue("start_time"))
	if err != nil {
		return service.CreateInput{}, err
	}
	end, err := parseTime("end_time", c.FormValue("end_time"))
	if err != nil {
		return service.CreateInput{}, err
	}

	in := service.CreateInput{
		Name:          c.FormValue("name"),
		Description:   c.FormValue("description"),
		CategoryID:    c.FormValue("category_id"),
		Location:      c.FormValue("location"),
		ImageURL:      c.FormValue("image_url"),
		StartingPrice: price,
		StartTime:     start,
		EndTime:       end,
	}

	file, err := c.FormFile("image")
	switch {
	case errors.Is(err, http.ErrMissingFile):
		return in, nil
	case err != nil:
		return service.CreateInput{}, invalidPayload(err)
	}
	image, err := readImage(file)
	if err != nil {
		return service.CreateInput{}, invalidPayload(err)
	}
	in.Image = image
	return in, nil
}

func readImage(file *multipart.FileHeader) (*service.Image, error) {
	src, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return nil, err
	}
	return &service.Image{Name: file.Filename, Data: data}, nil
}

func toFilter(req dto.SearchRequest) auctionrepo.Filter {
	filter := auctionrepo.Filter{
		Location:     nonEmpty(req.Location),
		CategoryID:   nonEmpty(req.Category),
		NameContains: nonEmpty(req.Name),
		Limit:        req.Limit,
		Offset:       req.Offset,
	}
	for _, raw := range req.Status {
		if st := strings.ToLower(strings.TrimSpace(raw)); st != "" {
			filter.Statuses = append(filter.Statuses, entity.Status(st))
		}
	}
	return filter
}

func nonEmpty(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

func isMultipart(c echo.Context) bool {
	return strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm)
}

func queryInt(c echo.Context, name string) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fieldError(name, "must be a non-negative integer")
	}
	return v, nil
}

func parseMoney(field, raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, fieldError(field, "required")
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fieldError(field, "must be a decimal number")
	}
	return v, nil
}

func parseTime(field, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	v, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fieldError(field, "must be an RFC 3339 timestamp")
	}
	return v, nil
}

func fieldError(field, problem string) error {
	return errorbank.BadRequest("invalid request",
		errorbank.WithCode(service.CodeValidation),
		errorbank.WithCause(service.ErrValidation),
		errorbank.WithDetail(field, problem),
	)
}

func invalidPayload(err error) error {
	return errorbank.BadRequest("invalid payload",
		errorbank.WithCode(service.CodeValidation),
		errorbank.WithCause(errors.Join(service.ErrValidation, err)),
	)
}
