package auction

import (
	"errors"

	"github.com/Additional-Code/auctioneer/pkg/errorbank"
)

// Machine-readable error codes surfaced to clients.
const (
	CodeValidation        = "validation_error"
	CodeForbidden         = "forbidden"
	CodeAuctionNotFound   = "auction_not_found"
	CodeAuctionNotActive  = "auction_not_active"
	CodeBidTooLow         = "bid_too_low"
	CodeSelfBid           = "self_bid"
	CodeInvalidTransition = "invalid_transition"
	CodeNotEditable       = "auction_not_editable"
	CodeHasBids           = "auction_has_bids"
	CodeImageUpload       = "image_upload_failed"
	CodeStorage           = "storage_error"
)

// Reasons attached to auction_not_active errors.
const (
	ReasonNotStarted = "not_started"
	ReasonClosed     = "closed"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrForbidden         = errors.New("operation not permitted")
	ErrAuctionNotFound   = errors.New("auction not found")
	ErrAuctionNotActive  = errors.New("auction is not active")
	ErrBidTooLow         = errors.New("bid too low")
	ErrSelfBid           = errors.New("seller cannot bid on own auction")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrStorage           = errors.New("storage failure")
)

func validationError(message string, details map[string]any) error {
	return errorbank.BadRequest(message,
		errorbank.WithCode(CodeValidation),
		errorbank.WithCause(ErrValidation),
		errorbank.WithDetails(details),
	)
}

func forbiddenError(message string) error {
	return errorbank.Forbidden(message,
		errorbank.WithCode(CodeForbidden),
		errorbank.WithCause(ErrForbidden),
	)
}

func notFoundError(id string) error {
	return errorbank.NotFound("auction not found",
		errorbank.WithCode(CodeAuctionNotFound),
		errorbank.WithCause(ErrAuctionNotFound),
		errorbank.WithDetail("auction_id", id),
	)
}

func notActiveError(id string, reason string) error {
	return errorbank.Conflict("auction is not accepting bids",
		errorbank.WithCode(CodeAuctionNotActive),
		errorbank.WithCause(ErrAuctionNotActive),
		errorbank.WithDetail("auction_id", id),
		errorbank.WithDetail("reason", reason),
	)
}

func storageError(message string, err error) error {
	return errorbank.Internal(message,
		errorbank.WithCode(CodeStorage),
		errorbank.WithCause(errors.Join(ErrStorage, err)),
	)
}
