package commerce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/httpclient"
	"github.com/utafrali/storefront/pkg/tracing"
)

// Doer sends an HTTP request. *httpclient.CircuitBreakerClient satisfies it.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// GraphQLClient posts GraphQL documents to one commerce platform endpoint.
type GraphQLClient struct {
	http        Doer
	endpoint    string
	tokenHeader string
	token       string
	upstream    string
	logger      *slog.Logger
	tracer      trace.Tracer
}

// NewGraphQLClient creates a client for endpoint that authenticates with
// token sent in tokenHeader. upstream names the API in errors and metrics.
func NewGraphQLClient(doer Doer, endpoint, tokenHeader, token, upstream string, logger *slog.Logger) *GraphQLClient {
	return &GraphQLClient{
		http:        doer,
		endpoint:    endpoint,
		tokenHeader: tokenHeader,
		token:       token,
		upstream:    upstream,
		logger:      logger,
		tracer:      tracing.Tracer("commerce"),
	}
}

// Endpoint builds a GraphQL URL for storeDomain. A domain that already
// carries a scheme is used as the base as-is.
func Endpoint(storeDomain, path string) string {
	base := strings.TrimSuffix(storeDomain, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + base
	}
	return base + path
}

type gqlRequest struct {
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables,omitempty"`
	OperationName string         `json:"operationName,omitempty"`
}

type gqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []gqlError      `json:"errors"`
}

type gqlError struct {
	Message    string `json:"message"`
	Extensions struct {
		Code string `json:"code"`
	} `json:"extensions"`
}

// Query runs a read operation. Reads are retried by the HTTP client.
func (c *GraphQLClient) Query(ctx context.Context, op, query string, vars map[string]any, out any) error {
	return c.do(ctx, op, query, vars, out)
}

// Mutate runs a write operation exactly once.
func (c *GraphQLClient) Mutate(ctx context.Context, op, query string, vars map[string]any, out any) error {
	return c.do(httpclient.NoRetry(ctx), op, query, vars, out)
}

func (c *GraphQLClient) do(ctx context.Context, op, query string, vars map[string]any, out any) (err error) {
	ctx, span := c.tracer.Start(ctx, "commerce."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("commerce.upstream", c.upstream),
			attribute.String("graphql.operation.name", op),
		),
	)
	start := time.Now()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		c.logger.DebugContext(ctx, "graphql call",
			slog.String("upstream", c.upstream),
			slog.String("operation", op),
			slog.Duration("duration", time.Since(start)),
			slog.Bool("ok", err == nil),
		)
	}()

	body, err := json.Marshal(gqlRequest{Query: query, Variables: vars, OperationName: op})
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(c.tokenHeader, c.token)

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return httpclient.MapTransportError(err, c.upstream)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return httpclient.ParseResponseError(resp, c.upstream)
	}
	defer resp.Body.Close()

	var gr gqlResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return apperrors.BadGateway(c.upstream, "malformed response", fmt.Errorf("decode %s: %w", op, err))
	}
	if len(gr.Errors) > 0 {
		return c.graphQLError(ctx, op, gr.Errors)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(gr.Data, out); err != nil {
		return apperrors.BadGateway(c.upstream, "unexpected response shape", fmt.Errorf("decode %s data: %w", op, err))
	}
	return nil
}

// graphQLError classifies top-level GraphQL errors. Throttling is reported
// as unavailable; anything else is a gateway failure.
func (c *GraphQLClient) graphQLError(ctx context.Context, op string, errs []gqlError) error {
	msgs := make([]string, 0, len(errs))
	throttled := false
	for _, e := range errs {
		msgs = append(msgs, e.Message)
		if e.Extensions.Code == "THROTTLED" {
			throttled = true
		}
	}
	msg := strings.Join(msgs, "; ")

	c.logger.WarnContext(ctx, "graphql errors",
		slog.String("upstream", c.upstream),
		slog.String("operation", op),
		slog.String("errors", msg),
	)

	if throttled {
		e := apperrors.ServiceUnavailable(c.upstream)
		e.Err = fmt.Errorf("%w: %s", apperrors.ErrServiceUnavail, msg)
		return e
	}
	return apperrors.BadGateway(c.upstream, msg, fmt.Errorf("%s: graphql errors", op))
}

// UserError is a business-rule rejection returned inside a mutation payload.
type UserError struct {
	Code    string   `json:"code"`
	Field   []string `json:"field"`
	Message string   `json:"message"`
}

// userErrors converts a mutation's user errors into an AppError:
// unknown credentials and invalid tokens become 401, a taken email 409,
// everything else a 400 with per-field messages.
func userErrors(op string, errs []UserError) error {
	if len(errs) == 0 {
		return nil
	}

	fields := make(map[string]string, len(errs))
	for _, e := range errs {
		switch e.Code {
		case "UNIDENTIFIED_CUSTOMER":
			return apperrors.Unauthorized("invalid email or password")
		case "TOKEN_INVALID", "CUSTOMER_DISABLED":
			return apperrors.Unauthorized(e.Message)
		case "TAKEN":
			conflict := apperrors.Conflict("ALREADY_EXISTS", e.Message)
			conflict.Fields = map[string]string{fieldName(e.Field): e.Message}
			return conflict
		}
		fields[fieldName(e.Field)] = e.Message
	}
	return apperrors.InvalidFields(op+" rejected", fields)
}

// fieldName turns a GraphQL field path such as ["input", "firstName"] into
// the request field name "first_name".
func fieldName(path []string) string {
	if len(path) == 0 {
		return "base"
	}
	name := path[len(path)-1]
	var b strings.Builder
	for i, r := range name {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}
