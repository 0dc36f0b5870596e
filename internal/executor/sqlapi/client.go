// Package sqlapi executes statements against the CARTO SQL API over HTTP.
package sqlapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/mohammed-shakir/cartodb-adapter/internal/core/model"
	"github.com/mohammed-shakir/cartodb-adapter/internal/core/observability"
	"github.com/mohammed-shakir/cartodb-adapter/internal/sqlgen"
)

const (
	DefaultDomain = "cartodb.com"
	DefaultScheme = "https"

	apiPath = "/api/v2/sql"
	// label for upstream latency metrics
	upstreamName = "carto_sql"
)

var (
	ErrNoAccount = errors.New("cartodb: account name is not configured")
	ErrNoAPIKey  = errors.New("cartodb: API key is required for write operations")
)

type Config struct {
	Account string
	APIKey  string
	Domain  string
	Scheme  string
}

// Format selects the response encoding requested from the API.
type Format string

const (
	FormatJSON    Format = ""
	FormatGeoJSON Format = "geojson"
)

type Option func(*Client)

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithRateLimit paces outbound calls; rps <= 0 disables pacing
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

type Client struct {
	cfg      Config
	client   *http.Client
	logger   *slog.Logger
	limiter  *rate.Limiter
	startNow func() time.Time // for tests
}

func New(cfg Config, client *http.Client, opts ...Option) *Client {
	if client == nil {
		client = http.DefaultClient
	}
	c := &Client{
		cfg:      cfg,
		client:   client,
		logger:   slog.New(slog.DiscardHandler),
		startNow: time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Endpoint returns the SQL API endpoint of the configured account.
func Endpoint(cfg Config) (*url.URL, error) {
	account := strings.TrimSpace(cfg.Account)
	if account == "" {
		return nil, ErrNoAccount
	}
	scheme := strings.TrimSpace(cfg.Scheme)
	if scheme == "" {
		scheme = DefaultScheme
	}
	domain := strings.Trim(strings.TrimSpace(cfg.Domain), ".")
	if domain == "" {
		domain = DefaultDomain
	}
	raw := scheme + "://" + account + "." + domain + apiPath
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint %q: %w", raw, err)
	}
	return u, nil
}

// BuildURL inlines the statement and encodes it as the q parameter.
// api_key is appended whenever one is configured.
func BuildURL(cfg Config, st sqlgen.Statement, format Format) (string, error) {
	u, err := Endpoint(cfg)
	if err != nil {
		return "", err
	}
	q, err := sqlgen.Inline(st)
	if err != nil {
		return "", fmt.Errorf("inline statement: %w", err)
	}
	params := url.Values{}
	params.Set("q", q)
	if format != FormatJSON {
		params.Set("format", string(format))
	}
	if key := strings.TrimSpace(cfg.APIKey); key != "" {
		params.Set("api_key", key)
	}
	u.RawQuery = params.Encode()
	return u.String(), nil
}

func (c *Client) CheckWrite() error {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return ErrNoAPIKey
	}
	return nil
}

func (c *Client) QueryFeatures(ctx context.Context, st sqlgen.Statement) (model.FeatureCollection, error) {
	var fc model.FeatureCollection
	if err := c.get(ctx, st, FormatGeoJSON, &fc); err != nil {
		return model.FeatureCollection{}, err
	}
	if fc.Features == nil {
		fc.Features = []model.Record{}
	}
	return fc, nil
}

func (c *Client) Exec(ctx context.Context, st sqlgen.Statement) (model.WriteResult, error) {
	if err := c.CheckWrite(); err != nil {
		return model.WriteResult{}, err
	}
	var res model.WriteResult
	if err := c.get(ctx, st, FormatJSON, &res); err != nil {
		return model.WriteResult{}, err
	}
	return res, nil
}

// apiError is the body CARTO sends with 4xx/5xx responses
type apiError struct {
	Error []string `json:"error"`
}

func (c *Client) get(ctx context.Context, st sqlgen.Statement, format Format, out any) error {
	target, err := BuildURL(c.cfg, st, format)
	if err != nil {
		return err
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	c.logger.DebugContext(ctx, "carto sql request", "table", st.Table, "sql", st.SQL, "format", string(format))

	start := c.startNow()
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	dur := time.Since(start)
	observability.ObserveUpstreamLatency(upstreamName, dur.Seconds())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		var ae apiError
		if json.Unmarshal(b, &ae) == nil && len(ae.Error) > 0 {
			return fmt.Errorf("upstream status %d: %s", resp.StatusCode, strings.Join(ae.Error, "; "))
		}
		return fmt.Errorf("upstream status %d: %s", resp.StatusCode, string(b))
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	c.logger.DebugContext(ctx, "carto sql done", "table", st.Table, "status", resp.StatusCode, "duration", dur.String())
	return nil
}
