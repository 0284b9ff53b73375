package response

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/auctioneer/pkg/errorbank"
)

// Envelope is the JSON body of every auction API response.
type Envelope struct {
	Success bool           `json:"success"`
	Data    any            `json:"data,omitempty"`
	Error   *ErrorBody     `json:"error,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// ErrorBody describes a failed request. Code is the machine-readable
// rejection reason (bid_too_low, not_started, ...).
type ErrorBody struct {
	Kind    string         `json:"kind"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Builder assembles an Envelope for a single request.
type Builder struct {
	ctx     echo.Context
	status  int
	data    any
	err     error
	meta    map[string]any
	headers http.Header
}

// New instantiates a Builder for the provided request context.
func New(ctx echo.Context) *Builder {
	return &Builder{ctx: ctx, status: http.StatusOK}
}

// WithStatus overrides the response status code.
func (b *Builder) WithStatus(status int) *Builder {
	if status > 0 {
		b.status = status
	}
	return b
}

// WithData attaches a success payload.
func (b *Builder) WithData(data any) *Builder {
	b.data = data
	return b
}

// WithError records an error to be rendered.
func (b *Builder) WithError(err error) *Builder {
	b.err = err
	return b
}

// WithMeta appends auxiliary metadata to the response.
func (b *Builder) WithMeta(key string, value any) *Builder {
	if key == "" {
		return b
	}
	if b.meta == nil {
		b.meta = make(map[string]any)
	}
	b.meta[key] = value
	return b
}

// WithHeader sets a response header, e.g. Location on create.
func (b *Builder) WithHeader(key, value string) *Builder {
	if key == "" || value == "" {
		return b
	}
	if b.headers == nil {
		b.headers = make(http.Header)
	}
	b.headers.Set(key, value)
	return b
}

// Build finalises and emits the HTTP response.
func (b *Builder) Build() error {
	res := b.ctx.Response()
	for key, values := range b.headers {
		for _, v := range values {
			res.Header().Add(key, v)
		}
	}
	if b.err != nil {
		return b.buildError()
	}
	return b.buildSuccess()
}

func (b *Builder) buildSuccess() error {
	if b.status == http.StatusNoContent {
		return b.ctx.NoContent(b.status)
	}
	return b.ctx.JSON(b.status, Envelope{
		Success: true,
		Data:    b.data,
		Meta:    b.meta,
	})
}

func (b *Builder) buildError() error {
	appErr := errorbank.From(b.err)
	status := b.status
	if status < 400 {
		status = appErr.StatusCode()
	}

	if id := b.ctx.Response().Header().Get(echo.HeaderXRequestID); id != "" {
		b.WithMeta("request_id", id)
	}

	span := trace.SpanFromContext(b.ctx.Request().Context())
	span.SetAttributes(
		attribute.String("error.kind", string(appErr.Kind())),
		attribute.String("error.code", appErr.Code()),
	)
	if status >= http.StatusInternalServerError {
		span.RecordError(b.err)
		span.SetStatus(otelcodes.Error, appErr.Message())
	}

	return b.ctx.JSON(status, Envelope{
		Success: false,
		Error: &ErrorBody{
			Kind:    string(appErr.Kind()),
			Code:    appErr.Code(),
			Message: appErr.Message(),
			Details: appErr.Details(),
		},
		Meta: b.meta,
	})
}
