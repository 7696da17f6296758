// Package sources produce the raw record streams an import consumes.
package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
	"time"

	"github.com/okian/scorepipe/pkg/logger"
)

const defaultRequestTimeout = 30 * time.Second

// TokenFunc returns a bearer token. refresh=true asks for a new one after
// the previous token was rejected.
type TokenFunc func(ctx context.Context, refresh bool) (string, error)

// StaticToken always returns token.
func StaticToken(token string) TokenFunc {
	return func(context.Context, bool) (string, error) { return token, nil }
}

type kaiPage struct {
	Links struct {
		Next *string `json:"_next"`
	} `json:"_links"`
	Items []json.RawMessage `json:"_items"`
}

// KaiAPI walks the partner API's paginated score feed.
type KaiAPI struct {
	baseURL *url.URL
	token   TokenFunc
	client  *http.Client
	timeout time.Duration
	logger  logger.Logger
}

// NewKaiAPI creates a source rooted at baseURL.
func NewKaiAPI(baseURL string, token TokenFunc, opts ...KaiOption) (*KaiAPI, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse kai base url: %w", err)
	}
	k := &KaiAPI{
		baseURL: u,
		token:   token,
		client:  http.DefaultClient,
		timeout: defaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(k)
	}
	if k.logger == nil {
		k.logger = logger.Get().Named("kai-source")
	}
	return k, nil
}

// Records yields every item from path onwards, following _next links. A
// fetch error is yielded once and ends the sequence.
func (k *KaiAPI) Records(ctx context.Context, path string) iter.Seq2[json.RawMessage, error] {
	return func(yield func(json.RawMessage, error) bool) {
		next, err := k.baseURL.Parse(path)
		if err != nil {
			yield(nil, fmt.Errorf("parse path %q: %w", path, err))
			return
		}
		token, err := k.token(ctx, false)
		if err != nil {
			yield(nil, fmt.Errorf("kai token: %w", err))
			return
		}

		for pages := 0; next != nil; pages++ {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			var page *kaiPage
			page, token, err = k.fetch(ctx, next, token)
			if err != nil {
				yield(nil, err)
				return
			}
			for _, item := range page.Items {
				if !yield(item, nil) {
					return
				}
			}
			next = nil
			if n := page.Links.Next; n != nil && *n != "" {
				if next, err = k.baseURL.Parse(*n); err != nil {
					yield(nil, fmt.Errorf("parse next link %q: %w", *n, err))
					return
				}
			}
			k.logger.Debug(ctx, "kai page fetched", logger.Int("page", pages), logger.Int("items", len(page.Items)))
		}
	}
}

// fetch loads one page, re-authenticating once on 401. It returns the token
// in use afterwards.
func (k *KaiAPI) fetch(ctx context.Context, u *url.URL, token string) (*kaiPage, string, error) {
	resp, err := k.get(ctx, u, token)
	if err != nil {
		return nil, token, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		_ = resp.Body.Close()
		k.logger.Info(ctx, "kai token rejected, re-authenticating")
		if token, err = k.token(ctx, true); err != nil {
			return nil, token, fmt.Errorf("kai reauth: %w", err)
		}
		if resp, err = k.get(ctx, u, token); err != nil {
			return nil, token, err
		}
		if resp.StatusCode == http.StatusUnauthorized {
			_ = resp.Body.Close()
			return nil, token, fmt.Errorf("%w: %s", ErrUnauthorized, u.Redacted())
		}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, token, fmt.Errorf("%w: %s from %s", ErrBadStatus, resp.Status, u.Redacted())
	}
	var page kaiPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, token, fmt.Errorf("decode kai page: %w", err)
	}
	return &page, token, nil
}

// get issues one request. The body is read before the per-request timeout
// is released, so the timeout covers the whole exchange.
func (k *KaiAPI) get(ctx context.Context, u *url.URL, token string) (*http.Response, error) {
	reqCtx, cancel := context.WithTimeout(ctx, k.timeout)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, u.String(), nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := k.client.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("request %s: %w", u.Redacted(), err)
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel func()
}

func (c *cancelOnClose) Close() error {
	defer c.cancel()
	return c.ReadCloser.Close()
}
