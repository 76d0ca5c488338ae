package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const maxGatewayBody = 1 << 20

// Doer performs one outbound HTTP request. resilience.HTTPClient satisfies it.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

type plainDoer struct{ c *http.Client }

func (p plainDoer) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	return p.c.Do(req.WithContext(ctx))
}

// PlainDoer adapts an *http.Client to Doer without retries.
func PlainDoer(c *http.Client) Doer {
	if c == nil {
		c = http.DefaultClient
	}
	return plainDoer{c: c}
}

func doerOrDefault(d Doer) Doer {
	if d == nil {
		return PlainDoer(nil)
	}
	return d
}

// statusError is returned for non-2xx gateway replies; Body is kept for diagnostics.
type statusError struct {
	Status int
	Body   []byte
}

func (e *statusError) Error() string {
	return fmt.Sprintf("gateway responded %d: %s", e.Status, truncate(string(e.Body), 200))
}

// exchange sends an optional JSON body and decodes a JSON reply into out. The raw
// reply is returned even on failure.
func exchange(ctx context.Context, d Doer, method, url string, headers map[string]string, in, out any) ([]byte, error) {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return send(ctx, d, req, out)
}

func send(ctx context.Context, d Doer, req *http.Request, out any) ([]byte, error) {
	resp, err := doerOrDefault(d).Do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxGatewayBody))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return raw, &statusError{Status: resp.StatusCode, Body: raw}
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return raw, fmt.Errorf("decode response: %w", err)
		}
	}
	return raw, nil
}

func envBase(override, sandbox, production string, isProduction bool) string {
	if v := strings.TrimSpace(override); v != "" {
		return strings.TrimRight(v, "/")
	}
	if isProduction {
		return production
	}
	return sandbox
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func parseOrigin(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("not an absolute url: %q", raw)
	}
	return u.Scheme + "://" + u.Host, nil
}
