package httpclient

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func TestNewOutbound_Defaults(t *testing.T) {
	c := NewOutbound(0)
	if c.Timeout != 30*time.Second {
		t.Fatalf("timeout=%v want 30s", c.Timeout)
	}
	if NewOutbound(2*time.Second).Timeout != 2*time.Second {
		t.Fatalf("explicit timeout ignored")
	}
}

func TestNewOutbound_UserAgent(t *testing.T) {
	var (
		mu  sync.Mutex
		got []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		got = append(got, r.UserAgent())
		mu.Unlock()
	}))
	defer srv.Close()

	c := NewOutbound(time.Second, WithUserAgent("gateway/1.2"))
	resp, err := c.Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	_ = resp.Body.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	req.Header.Set("User-Agent", "custom")
	resp, err = c.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	_ = resp.Body.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 || got[0] != "gateway/1.2" || got[1] != "custom" {
		t.Fatalf("user agents=%v", got)
	}
}
