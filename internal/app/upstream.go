// internal/app/upstream.go
package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"zvit_agent/internal/domain/storage"
)

// Upstream performs a GET against the origin. err is non-nil only when no
// response was received; any HTTP status is a successful fetch.
type Upstream interface {
	Fetch(ctx context.Context, target *url.URL, header http.Header) (*storage.Entry, error)
}

// Headers that belong to the hop between the window and the agent.
var hopHeaders = []string{"Connection", "Keep-Alive", "Proxy-Connection", "Te", "Trailer", "Transfer-Encoding", "Upgrade", "Accept-Encoding"}

// HTTPUpstream fetches from the backend origin over net/http.
type HTTPUpstream struct {
	origin string
	client *http.Client
}

func NewHTTPUpstream(origin string, client *http.Client) *HTTPUpstream {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPUpstream{origin: strings.TrimRight(origin, "/"), client: client}
}

func (u *HTTPUpstream) Fetch(ctx context.Context, target *url.URL, header http.Header) (*storage.Entry, error) {
	key := storage.RequestKey(target)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.origin+key, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build upstream request: %w", err)
	}
	if header != nil {
		req.Header = header.Clone()
		for _, h := range hopHeaders {
			req.Header.Del(h)
		}
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream fetch %s: %w", key, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("upstream read %s: %w", key, err)
	}
	respHeader := resp.Header.Clone()
	for _, h := range hopHeaders {
		respHeader.Del(h)
	}
	respHeader.Del("Content-Length")

	return &storage.Entry{
		Key:      key,
		URL:      req.URL.String(),
		Status:   resp.StatusCode,
		Header:   respHeader,
		Body:     body,
		StoredAt: time.Now(),
	}, nil
}
