package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// upstreamErrorBody covers the error shapes returned by the upstreams this
// service talks to:
//
//	{"error": {"code": "...", "description": "..."}}   payment gateway
//	{"error": {"code": "...", "message": "..."}}
//	{"errors": [{"message": "..."}]} / {"errors": "..."}  commerce platform REST/GraphQL
//	{"message": "..."}                                  logistics
type upstreamErrorBody struct {
	Error *struct {
		Code        string `json:"code"`
		Message     string `json:"message"`
		Description string `json:"description"`
	} `json:"error"`
	Errors  json.RawMessage `json:"errors"`
	Message string          `json:"message"`
}

// extractMessage returns the most specific error message found in body, or
// "" when the body is not one of the known shapes.
func extractMessage(body []byte) (code, message string) {
	var b upstreamErrorBody
	if json.Unmarshal(body, &b) != nil {
		return "", ""
	}
	if b.Error != nil {
		msg := b.Error.Description
		if msg == "" {
			msg = b.Error.Message
		}
		return b.Error.Code, msg
	}
	if len(b.Errors) > 0 {
		var list []struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(b.Errors, &list) == nil && len(list) > 0 {
			msgs := make([]string, 0, len(list))
			for _, e := range list {
				msgs = append(msgs, e.Message)
			}
			return "", strings.Join(msgs, "; ")
		}
		var s string
		if json.Unmarshal(b.Errors, &s) == nil {
			return "", s
		}
	}
	return "", b.Message
}

// ParseResponseError reads the body of a non-2xx HTTP response and translates
// it into an AppError. The upstream's own message is kept. The response body
// is fully consumed and closed.
func ParseResponseError(resp *http.Response, upstream string) error {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return apperrors.BadGateway(upstream, fmt.Sprintf("status %d", resp.StatusCode),
			fmt.Errorf("read body: %w", err))
	}
	return mapUpstreamError(resp.StatusCode, body, upstream)
}

// MapTransportError converts an error returned by CircuitBreakerClient.Do into
// an AppError. AppErrors (e.g. from a fallback) and context errors pass through.
func MapTransportError(err error, upstream string) error {
	var appErr *apperrors.AppError
	var se *StatusError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &appErr):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", upstream, err)
	case errors.Is(err, ErrCircuitOpen):
		return apperrors.ServiceUnavailable(upstream)
	case errors.As(err, &se):
		return mapUpstreamError(se.StatusCode, se.Body, upstream)
	default:
		return apperrors.BadGateway(upstream, "request failed", err)
	}
}

func mapUpstreamError(status int, body []byte, upstream string) error {
	_, msg := extractMessage(body)
	if msg == "" {
		msg = http.StatusText(status)
	}
	statusErr := fmt.Errorf("status %d", status)

	switch {
	case status == http.StatusNotFound:
		e := apperrors.NotFound(upstream, "resource")
		e.Message = fmt.Sprintf("%s: %s", upstream, msg)
		return e
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return apperrors.InvalidInput(fmt.Sprintf("%s: %s", upstream, msg))
	case status == http.StatusConflict:
		return apperrors.Conflict("UPSTREAM_CONFLICT", fmt.Sprintf("%s: %s", upstream, msg))
	case status == http.StatusTooManyRequests, status == http.StatusServiceUnavailable:
		e := apperrors.ServiceUnavailable(upstream)
		e.Err = fmt.Errorf("%w: %s", apperrors.ErrServiceUnavail, msg)
		return e
	default:
		// 401/403 here mean our own credentials were rejected, which is a
		// gateway problem from the client's point of view.
		return apperrors.BadGateway(upstream, msg, statusErr)
	}
}
