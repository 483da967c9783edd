// Package photo picks a random cover image for new groups.
package photo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"splitgroups/pkg/platform/circuit"
)

const defaultTimeout = 3 * time.Second

// Client fetches GET <baseURL>/photos/random and returns urls.regular.
type Client struct {
	baseURL   string
	accessKey string
	client    *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		if c != nil {
			cl.client = c
		}
	}
}

func WithTimeout(d time.Duration) ClientOption {
	return func(cl *Client) {
		if d > 0 {
			cl.client.Timeout = d
		}
	}
}

func NewClient(baseURL, accessKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		accessKey: accessKey,
		client:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

type randomPhotoResponse struct {
	URLs struct {
		Regular string `json:"regular"`
	} `json:"urls"`
}

// RandomURL returns the URL of a random photo.
func (c *Client) RandomURL(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/photos/random", nil)
	if err != nil {
		return "", fmt.Errorf("build photo request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.accessKey != "" {
		req.Header.Set("Authorization", "Client-ID "+c.accessKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call photo api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("photo api returned %d: %s", resp.StatusCode, body)
	}

	var photo randomPhotoResponse
	if err := json.NewDecoder(resp.Body).Decode(&photo); err != nil {
		return "", fmt.Errorf("decode photo response: %w", err)
	}
	if photo.URLs.Regular == "" {
		return "", errors.New("photo api returned no url")
	}
	return photo.URLs.Regular, nil
}

// Fetcher is the outbound call a Picker guards.
type Fetcher interface {
	RandomURL(ctx context.Context) (string, error)
}

// Picker returns a photo URL, falling back to a fixed image when the photo
// API is failing or its circuit is open. It never fails.
type Picker struct {
	fetcher  Fetcher
	breaker  *circuit.Breaker
	fallback string
	logger   *slog.Logger
}

// Option configures a Picker.
type Option func(*Picker)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Picker) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func NewPicker(fetcher Fetcher, breaker *circuit.Breaker, fallbackURL string, opts ...Option) *Picker {
	p := &Picker{
		fetcher:  fetcher,
		breaker:  breaker,
		fallback: fallbackURL,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

func (p *Picker) Pick(ctx context.Context) string {
	if !p.breaker.CanRequest() {
		p.logger.DebugContext(ctx, "photo circuit open, using fallback image")
		return p.fallback
	}

	url, err := p.fetcher.RandomURL(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return p.fallback
		}
		p.breaker.RecordFailure()
		p.logger.WarnContext(ctx, "photo fetch failed, using fallback image",
			"breaker", p.breaker.Name(),
			"state", p.breaker.State().String(),
			"error", err,
		)
		return p.fallback
	}
	p.breaker.RecordSuccess()
	return url
}
