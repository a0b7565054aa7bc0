// rocketshoes-cartservice/catalog/client.go

// Package catalog talks to the storefront API for stock and product lookups.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/norun9/rocketshoes-cartservice/cart"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

const defaultTimeout = 10 * time.Second

// StatusError is returned when the API answers with a non-2xx status.
type StatusError struct {
	Path       string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.Path, e.StatusCode)
}

// Client implements cart.StockService and cart.ProductService over HTTP.
type Client struct {
	base   *url.URL
	http   *http.Client
	group  singleflight.Group
	tracer trace.Tracer
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// NewClient returns a client for the API rooted at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrapf(err, "parse API base URL %q", baseURL)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, errors.Errorf("API base URL %q must be absolute", baseURL)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}

	c := &Client{
		base:   base,
		http:   &http.Client{Timeout: defaultTimeout},
		tracer: otel.Tracer("github.com/norun9/rocketshoes-cartservice/catalog"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

var (
	_ cart.StockService   = (*Client)(nil)
	_ cart.ProductService = (*Client)(nil)
)

// GetStock fetches stock/{productID}.
func (c *Client) GetStock(ctx context.Context, productID int) (cart.Stock, error) {
	var stock cart.Stock
	if err := c.get(ctx, fmt.Sprintf("stock/%d", productID), &stock); err != nil {
		return cart.Stock{}, err
	}
	return stock, nil
}

// GetProduct fetches products/{productID}.
func (c *Client) GetProduct(ctx context.Context, productID int) (cart.Product, error) {
	var product cart.Product
	if err := c.get(ctx, fmt.Sprintf("products/%d", productID), &product); err != nil {
		return cart.Product{}, err
	}
	return product, nil
}

// get decodes the JSON body at path into out. Concurrent requests for the
// same path share one round trip. The shared request ignores the callers'
// cancellation; each caller stops waiting when its own ctx is done.
func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	ch := c.group.DoChan(path, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout())
		defer cancel()
		return c.fetch(fetchCtx, path)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return errors.Wrapf(ctx.Err(), "GET %s", path)
	case res = <-ch:
	}
	if res.Err != nil {
		return res.Err
	}
	if err := json.Unmarshal(res.Val.([]byte), out); err != nil {
		return errors.Wrapf(err, "GET %s: decode response", path)
	}
	return nil
}

func (c *Client) fetchTimeout() time.Duration {
	if c.http.Timeout > 0 {
		return c.http.Timeout
	}
	return defaultTimeout
}

func (c *Client) fetch(ctx context.Context, path string) ([]byte, error) {
	ctx, span := c.tracer.Start(ctx, "GET "+path, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	target := c.base.ResolveReference(&url.URL{Path: path})
	span.SetAttributes(attribute.String("http.url", target.String()))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, errors.Wrapf(err, "GET %s: build request", path)
	}
	req.Header.Set("Accept", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, errors.Wrapf(err, "GET %s", path)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := &StatusError{Path: path, StatusCode: resp.StatusCode}
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		span.RecordError(err)
		return nil, errors.Wrapf(err, "GET %s: read response", path)
	}
	return raw, nil
}
