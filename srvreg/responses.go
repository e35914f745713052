package srvreg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/ribon-matchalatte/backend/inventory"
	"github.com/ribon-matchalatte/backend/shop"
)

var defaultHeaders = map[string]string{"Content-Type": "application/json"}

// ErrorBody is the JSON shape of every failed response
type ErrorBody struct {
	Error     string               `json:"error"`
	Kind      string               `json:"kind"`
	Shortages []inventory.Shortage `json:"shortages,omitempty"`
}

// Error kinds clients can branch on
const (
	KindInsufficientStock  = "insufficient_stock"
	KindNotReconciled      = "not_reconciled"
	KindNotFound           = "not_found"
	KindEmptyOrder         = "empty_order"
	KindInvalidInput       = "invalid_input"
	KindInvalidBody        = "invalid_body"
	KindAlreadyReconciled  = "already_reconciled"
	KindInvalidTransition  = "invalid_transition"
	KindInUse              = "in_use"
	KindDuplicate          = "duplicate"
	KindProductUnavailable = "product_unavailable"
	KindTimeout            = "timeout"
	KindInternal           = "internal"
)

type malformedBodyError struct{ err error }

func (e malformedBodyError) Error() string { return "invalid body format: " + e.err.Error() }

func decodeBody[T any](req *Request) (T, error) {
	var v T
	if req.Body == "" {
		return v, malformedBodyError{err: errors.New("empty body")}
	}
	if err := json.Unmarshal([]byte(req.Body), &v); err != nil {
		return v, malformedBodyError{err: err}
	}
	return v, nil
}

func jsonResponse(status int, v any) (*Response, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding response: %w", err)
	}
	return &Response{
		StatusCode: status,
		Headers:    defaultHeaders,
		Body:       string(body),
	}, nil
}

func errorBody(status int, kind, message string, shortages []inventory.Shortage) *Response {
	body, _ := json.Marshal(ErrorBody{Error: message, Kind: kind, Shortages: shortages})
	return &Response{
		StatusCode: status,
		Headers:    defaultHeaders,
		Body:       string(body),
		Error:      message,
	}
}

// errorResponse maps domain errors to HTTP statuses
func (sr *ServiceRegistry) errorResponse(req *Request, err error) *Response {
	if insufficient, ok := inventory.AsInsufficientStock(err); ok {
		return errorBody(http.StatusConflict, KindInsufficientStock,
			"Không đủ nguyên liệu / order cannot be fulfilled: not enough ingredients in stock",
			insufficient.Shortages)
	}

	var malformed malformedBodyError
	switch {
	case errors.As(err, &malformed):
		return errorBody(http.StatusUnprocessableEntity, KindInvalidBody, malformed.Error(), nil)
	case shop.IsValidation(err), errors.Is(err, inventory.ErrInvalidAmount):
		return errorBody(http.StatusBadRequest, KindInvalidInput, err.Error(), nil)
	case errors.Is(err, inventory.ErrNotFound):
		return errorBody(http.StatusNotFound, KindNotFound, err.Error(), nil)
	case errors.Is(err, inventory.ErrEmptyOrder):
		return errorBody(http.StatusUnprocessableEntity, KindEmptyOrder, err.Error(), nil)
	case errors.Is(err, inventory.ErrConflict):
		sr.logger.Error("Inventory not reconciled", "path", req.Path, "err", err)
		return errorBody(http.StatusServiceUnavailable, KindNotReconciled,
			"order placed but inventory not yet reconciled, retry later", nil)
	case errors.Is(err, inventory.ErrAlreadyReconciled):
		return errorBody(http.StatusConflict, KindAlreadyReconciled, err.Error(), nil)
	case errors.Is(err, inventory.ErrInvalidTransition):
		return errorBody(http.StatusConflict, KindInvalidTransition, err.Error(), nil)
	case errors.Is(err, inventory.ErrInUse):
		return errorBody(http.StatusConflict, KindInUse, err.Error(), nil)
	case errors.Is(err, inventory.ErrDuplicate):
		return errorBody(http.StatusConflict, KindDuplicate, err.Error(), nil)
	case errors.Is(err, shop.ErrProductUnavailable):
		return errorBody(http.StatusConflict, KindProductUnavailable, err.Error(), nil)
	case errors.Is(err, context.DeadlineExceeded):
		return errorBody(http.StatusGatewayTimeout, KindTimeout, "request timed out", nil)
	}

	sr.logger.Error("Request failed", "method", req.Method, "path", req.Path, "err", err)
	return errorBody(http.StatusInternalServerError, KindInternal, "Internal server error", nil)
}
