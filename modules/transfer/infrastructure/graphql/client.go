// Package graphql is the Entity Store Client backed by the catalog's GraphQL API.
package graphql

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

const (
	defaultTimeout         = 30 * time.Second
	defaultRequestIDHeader = "X-Request-Id"
	idempotencyHeader      = "Idempotency-Key"
)

type ClientOptions struct {
	Endpoint        string
	Token           string
	Timeout         time.Duration
	RequestIDHeader string
	HTTPClient      *http.Client
	Logger          *logrus.Entry
}

func (o *ClientOptions) setDefaults() {
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.RequestIDHeader == "" {
		o.RequestIDHeader = defaultRequestIDHeader
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: o.Timeout}
	}
	if o.Logger == nil {
		o.Logger = logrusNop()
	}
}

type Client struct {
	endpoint        *url.URL
	authorization   string
	httpClient      *http.Client
	requestIDHeader string
	log             *logrus.Entry
}

func NewClient(opts ClientOptions) (*Client, error) {
	opts.setDefaults()
	endpoint := strings.TrimSpace(opts.Endpoint)
	u, err := url.Parse(endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.Errorf("invalid graphql endpoint: %q", endpoint)
	}
	auth := strings.TrimSpace(opts.Token)
	if auth != "" && !strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		auth = "Bearer " + auth
	}
	return &Client{
		endpoint:        u,
		authorization:   auth,
		httpClient:      opts.HTTPClient,
		requestIDHeader: opts.RequestIDHeader,
		log:             opts.Logger,
	}, nil
}

type Request struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
}

type response struct {
	Data   json.RawMessage `json:"data"`
	Errors gqlerror.List   `json:"errors"`
}

// ResponseError carries the errors the API reported for one operation. It
// unwraps to the gqlerror.List so callers can inspect paths and extensions.
type ResponseError struct {
	Operation string
	Status    int
	Errors    gqlerror.List
}

func (e *ResponseError) Error() string {
	return e.Operation + ": " + strings.Join(e.ReportedMessages(), "; ")
}

func (e *ResponseError) ReportedMessages() []string {
	out := make([]string, 0, len(e.Errors))
	for _, ge := range e.Errors {
		if ge == nil || ge.Message == "" {
			continue
		}
		out = append(out, ge.Message)
	}
	return out
}

func (e *ResponseError) Unwrap() error {
	return e.Errors
}

// Do posts one operation and returns the raw "data" member. A non-empty
// "errors" member always fails the call, even when partial data came back.
func (c *Client) Do(ctx context.Context, req Request, idempotencyKey string) (json.RawMessage, error) {
	b, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "marshal request")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint.String(), bytes.NewReader(b))
	if err != nil {
		return nil, errors.Wrap(err, "http request")
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Content-Type", "application/json")
	requestID := uuid.NewString()
	if c.requestIDHeader != "" {
		httpReq.Header.Set(c.requestIDHeader, requestID)
	}
	if c.authorization != "" {
		httpReq.Header.Set("Authorization", c.authorization)
	}
	if idempotencyKey != "" {
		httpReq.Header.Set(idempotencyHeader, idempotencyKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "http do")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "http read")
	}
	c.log.WithFields(logrus.Fields{
		"operation":   req.OperationName,
		"status":      resp.StatusCode,
		"request_id":  requestID,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("graphql call")

	var out response
	decodeErr := json.Unmarshal(body, &out)
	if decodeErr == nil && len(out.Errors) > 0 {
		return nil, &ResponseError{Operation: req.OperationName, Status: resp.StatusCode, Errors: out.Errors}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.Errorf("http status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if decodeErr != nil {
		return nil, errors.Wrap(decodeErr, "json unmarshal response")
	}
	return out.Data, nil
}

func logrusNop() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}
