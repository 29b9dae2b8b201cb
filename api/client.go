// Package api implements the client side of the video service's HTTP surface.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/reelcast/reelcast/key"
	"github.com/reelcast/reelcast/network"
	"github.com/reelcast/reelcast/video"
	"github.com/samber/mo"
	"github.com/spf13/viper"
)

const videosPath = "/api/videos"

// DefaultPageSize mirrors the service's own default listing size.
const DefaultPageSize = 20

// Error is a non-2xx answer from the service.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("video service: %s", http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("video service: %s (%d)", e.Message, e.StatusCode)
}

// IsNotFound reports whether err is a 404 from the service.
func IsNotFound(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Client talks to one video service origin.
type Client struct {
	base *url.URL
	http *http.Client
}

// New creates a client for the service rooted at baseURL.
func New(baseURL string, httpClient *http.Client) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}
	if httpClient == nil {
		httpClient = network.Client
	}
	return &Client{base: u, http: httpClient}, nil
}

// FromConfig creates a client for the configured service origin.
func FromConfig() (*Client, error) {
	return New(viper.GetString(key.APIBaseURL), nil)
}

// ListOptions selects one page of the library.
type ListOptions struct {
	Limit  int
	Offset int
	Status mo.Option[video.Status]
}

// List returns one page of the library.
func (c *Client) List(ctx context.Context, opts ListOptions) (*video.Page, error) {
	if opts.Limit <= 0 {
		opts.Limit = DefaultPageSize
	}

	q := url.Values{}
	q.Set("limit", strconv.Itoa(opts.Limit))
	q.Set("offset", strconv.Itoa(opts.Offset))
	if s, ok := opts.Status.Get(); ok {
		q.Set("status", string(s))
	}

	var page video.Page
	if err := c.do(ctx, http.MethodGet, c.endpoint(q), nil, "", &page); err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	return &page, nil
}

// Get returns the full record of one video.
func (c *Client) Get(ctx context.Context, id string) (*video.Record, error) {
	var rec video.Record
	if err := c.do(ctx, http.MethodGet, c.endpoint(nil, id), nil, "", &rec); err != nil {
		return nil, fmt.Errorf("get video %s: %w", id, err)
	}
	return &rec, nil
}

// Status returns the lightweight status projection of one video.
func (c *Client) Status(ctx context.Context, id string) (*video.StatusProjection, error) {
	var st video.StatusProjection
	if err := c.do(ctx, http.MethodGet, c.endpoint(nil, id, "status"), nil, "", &st); err != nil {
		return nil, fmt.Errorf("video %s status: %w", id, err)
	}
	return &st, nil
}

// Update changes the editable metadata of one video.
func (c *Client) Update(ctx context.Context, id string, patch video.Patch) (*video.Record, error) {
	body, err := json.Marshal(patch)
	if err != nil {
		return nil, err
	}

	var rec video.Record
	if err := c.do(ctx, http.MethodPut, c.endpoint(nil, id), bytes.NewReader(body), "application/json", &rec); err != nil {
		return nil, fmt.Errorf("update video %s: %w", id, err)
	}
	return &rec, nil
}

// Delete removes one video.
func (c *Client) Delete(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, c.endpoint(nil, id), nil, "", nil); err != nil {
		return fmt.Errorf("delete video %s: %w", id, err)
	}
	return nil
}

// Create posts a multipart upload body and returns the record the service created.
// body is streamed; size may be -1 when unknown.
func (c *Client) Create(ctx context.Context, body io.Reader, contentType string, size int64) (*video.Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(nil), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if size >= 0 {
		req.ContentLength = size
	}

	var rec video.Record
	if err := c.send(req, &rec); err != nil {
		return nil, fmt.Errorf("create video: %w", err)
	}
	return &rec, nil
}

func (c *Client) endpoint(q url.Values, segments ...string) string {
	u := *c.base
	u.Path = c.base.Path + videosPath
	for _, s := range segments {
		u.Path += "/" + url.PathEscape(s)
	}
	if q != nil {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func (c *Client) do(ctx context.Context, method, endpoint string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &Error{StatusCode: resp.StatusCode}

	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if json.Unmarshal(data, &body) == nil {
		apiErr.Message = body.Error
		if apiErr.Message == "" {
			apiErr.Message = body.Message
		}
	}
	return apiErr
}
