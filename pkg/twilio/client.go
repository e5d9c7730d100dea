// Package twilio reads paginated collections from the Twilio REST API.
//
// Every resource in the catalog is exposed as a stream.Accessor whose pages
// follow Twilio's own next-page links, so the walker in pkg/stream can
// traverse a collection without knowing which API generation serves it.
package twilio

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ajitpratap0/tap-twilio/pkg/clients"
	"github.com/ajitpratap0/tap-twilio/pkg/errors"
	"github.com/ajitpratap0/tap-twilio/pkg/json"
	"github.com/ajitpratap0/tap-twilio/pkg/stream"
)

const (
	// DefaultBaseURL serves the 2010-04-01 account API.
	DefaultBaseURL = "https://api.twilio.com"
	// DefaultMessagingBaseURL serves the v1 messaging API.
	DefaultMessagingBaseURL = "https://messaging.twilio.com"

	// SpanName names the span recorded for every page request.
	SpanName = "twilio.page"

	tracerName = "github.com/ajitpratap0/tap-twilio/pkg/twilio"
)

// Instance is one record exactly as the API returned it.
type Instance = json.RawMessage

// Client is an authenticated Twilio API client.
type Client struct {
	accountSID       string
	authToken        string
	baseURL          string
	messagingBaseURL string

	http   *clients.HTTPClient
	logger *zap.Logger
	tracer trace.Tracer
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the account API root.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithMessagingBaseURL overrides the messaging API root.
func WithMessagingBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.messagingBaseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithHTTPClient sets the transport used for every request.
func WithHTTPClient(h *clients.HTTPClient) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithTracerProvider records page spans on tp instead of the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) {
		if tp != nil {
			c.tracer = tp.Tracer(tracerName)
		}
	}
}

// NewClient creates a client authenticating as accountSID with authToken.
func NewClient(accountSID, authToken string, opts ...Option) *Client {
	c := &Client{
		accountSID:       accountSID,
		authToken:        authToken,
		baseURL:          DefaultBaseURL,
		messagingBaseURL: DefaultMessagingBaseURL,
		logger:           zap.NewNop(),
		tracer:           otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = clients.NewHTTPClient(nil, c.logger)
	}
	c.logger = c.logger.With(zap.String("component", "twilio_client"))
	return c
}

// Accessor returns the accessor for the named catalog resource.
func (c *Client) Accessor(resource string) (stream.Accessor[Instance], error) {
	res, ok := catalog[resource]
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeInvalidConfig, "unknown Twilio resource %q", resource).
			WithDetail("known", Resources())
	}
	return &accessor{client: c, resource: res}, nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	return c.http.Close()
}

// fetch requests one page of res at rawURL.
func (c *Client) fetch(ctx context.Context, res *resource, rawURL string, opts stream.PageOptions) (*page, error) {
	target, err := withPageSize(rawURL, opts)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeUpstreamFetch, "invalid page URL").
			WithDetail("url", rawURL)
	}

	ctx, span := c.tracer.Start(ctx, SpanName,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("twilio.resource", res.name),
			attribute.String("http.method", http.MethodGet),
			attribute.String("url.path", target.Path),
		))
	defer span.End()

	req, err := c.http.NewRequest(ctx, http.MethodGet, target.String(), nil, nil)
	if err != nil {
		return nil, c.fail(span, errors.Wrap(err, errors.ErrorTypeUpstreamFetch, "failed to build request"))
	}
	req.SetBasicAuth(c.accountSID, c.authToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.fail(span, errors.Wrap(err, errors.ErrorTypeUpstreamFetch, "request to Twilio failed").
			WithDetail("resource", res.name))
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.fail(span, errors.Wrap(err, errors.ErrorTypeUpstreamFetch, "failed to read response body").
			WithDetail("resource", res.name))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.fail(span, newAPIError(resp.StatusCode, body).asError(res.name))
	}

	l, err := res.decode(res.root(c), body)
	if err != nil {
		return nil, c.fail(span, err)
	}

	span.SetAttributes(
		attribute.Int("twilio.instances", len(l.instances)),
		attribute.Bool("twilio.has_next", l.next != ""),
	)

	c.logger.Debug("page fetched",
		zap.String("resource", res.name),
		zap.Int("instances", len(l.instances)),
		zap.Bool("has_next", l.next != ""))

	return &page{client: c, resource: res, listing: l}, nil
}

func (c *Client) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// withPageSize sets the PageSize query parameter when opts carries one.
// Next-page links already carry the size of the first request; the value
// is overwritten so every request asks for the same size.
func withPageSize(rawURL string, opts stream.PageOptions) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	if opts.PageSize > 0 {
		q := u.Query()
		q.Set("PageSize", strconv.Itoa(opts.PageSize))
		u.RawQuery = q.Encode()
	}
	return u, nil
}
