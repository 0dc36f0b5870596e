// Package httpclient configures the HTTP client used to call the SQL API.
package httpclient

import (
	"net"
	"net/http"
	"time"
)

const defaultUserAgent = "cartodb-adapter"

type Option func(*options)

type options struct {
	userAgent       string
	maxConnsPerHost int
}

// WithUserAgent sets the User-Agent sent when a request carries none.
func WithUserAgent(ua string) Option {
	return func(o *options) {
		if ua != "" {
			o.userAgent = ua
		}
	}
}

func WithMaxConnsPerHost(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxConnsPerHost = n
		}
	}
}

// NewOutbound returns a pooled client; timeout <= 0 falls back to 30s.
// Every request targets the same CARTO host, so the idle pool is sized per host.
func NewOutbound(timeout time.Duration, opts ...Option) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	o := options{userAgent: defaultUserAgent, maxConnsPerHost: 32}
	for _, fn := range opts {
		fn(&o)
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          o.maxConnsPerHost,
		MaxIdleConnsPerHost:   o.maxConnsPerHost,
		MaxConnsPerHost:       o.maxConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{
		Transport: userAgent{next: transport, ua: o.userAgent},
		Timeout:   timeout,
	}
}

type userAgent struct {
	next http.RoundTripper
	ua   string
}

func (u userAgent) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return u.next.RoundTrip(req)
	}
	out := req.Clone(req.Context())
	out.Header.Set("User-Agent", u.ua)
	return u.next.RoundTrip(out)
}
