// Package client provides the REST client for the local live store, the
// running activity-tracking server that is the source of truth for this
// device. It implements the same store.AccessMethod surface as file-backed
// datastores so the sync engine can treat both identically.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/venkatasai2714/aw-sync/internal/models"
	"github.com/venkatasai2714/aw-sync/internal/store"
)

// Client talks to the live server's REST API.
type Client struct {
	baseURL string
	name    string
	http    *http.Client
}

var _ store.AccessMethod = (*Client)(nil)

// New creates a client for the live server at host:port. The clientName
// identifies this tool in requests; it does not affect behavior.
func New(host string, port int, clientName string) *Client {
	transport := &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Client{
		baseURL: fmt.Sprintf("http://%s:%d/api/0", host, port),
		name:    clientName,
		http:    &http.Client{Transport: transport},
	}
}

// GetInfo fetches the server's identity. A transport-level failure here is
// what the sync pass treats as its fatal connectivity error.
func (c *Client) GetInfo(ctx context.Context) (*models.Info, error) {
	var info models.Info
	if err := c.get(ctx, "/info", &info); err != nil {
		return nil, fmt.Errorf("failed to reach live server: %w", err)
	}
	return &info, nil
}

// GetBuckets returns all buckets keyed by id.
func (c *Client) GetBuckets(ctx context.Context) (map[string]*models.Bucket, error) {
	buckets := make(map[string]*models.Bucket)
	if err := c.get(ctx, "/buckets/", &buckets); err != nil {
		return nil, fmt.Errorf("failed to get buckets: %w", err)
	}
	return buckets, nil
}

// GetBucket retrieves a single bucket by id.
// Returns store.ErrNoSuchBucket if the server answers 404.
func (c *Client) GetBucket(ctx context.Context, id string) (*models.Bucket, error) {
	var bucket models.Bucket
	if err := c.get(ctx, "/buckets/"+url.PathEscape(id), &bucket); err != nil {
		return nil, err
	}
	return &bucket, nil
}

// CreateBucket creates a bucket on the server.
// Returns store.ErrBucketAlreadyExists if the id is taken.
func (c *Client) CreateBucket(ctx context.Context, bucket *models.Bucket) error {
	if err := bucket.Validate(); err != nil {
		return fmt.Errorf("invalid bucket: %w", err)
	}
	return c.post(ctx, "/buckets/"+url.PathEscape(bucket.ID), bucket, nil)
}

// GetEvents returns a bucket's events newest-first. The half-open window
// [start, end) and limit map onto the server's query parameters.
func (c *Client) GetEvents(ctx context.Context, bucketID string, start, end *time.Time, limit int) ([]*models.Event, error) {
	params := url.Values{}
	if start != nil {
		params.Set("start", start.UTC().Format(time.RFC3339Nano))
	}
	if end != nil {
		params.Set("end", end.UTC().Format(time.RFC3339Nano))
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	path := "/buckets/" + url.PathEscape(bucketID) + "/events"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var events []*models.Event
	if err := c.get(ctx, path, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// GetEventCount returns the number of events in a bucket.
func (c *Client) GetEventCount(ctx context.Context, bucketID string) (int, error) {
	var count int
	if err := c.get(ctx, "/buckets/"+url.PathEscape(bucketID)+"/events/count", &count); err != nil {
		return 0, err
	}
	return count, nil
}

// InsertEvents appends events to a bucket.
func (c *Client) InsertEvents(ctx context.Context, bucketID string, events []*models.Event) error {
	return c.post(ctx, "/buckets/"+url.PathEscape(bucketID)+"/events", events, nil)
}

// Heartbeat posts a heartbeat event with the given pulse window, expressed
// in seconds on the wire.
func (c *Client) Heartbeat(ctx context.Context, bucketID string, event *models.Event, pulse time.Duration) (*models.Event, error) {
	path := fmt.Sprintf("/buckets/%s/heartbeat?pulsetime=%s",
		url.PathEscape(bucketID), strconv.FormatFloat(pulse.Seconds(), 'f', -1, 64))

	var stored models.Event
	if err := c.post(ctx, path, event, &stored); err != nil {
		return nil, err
	}
	return &stored, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

// do executes the request and decodes the reply, translating the server's
// status conventions into the shared store sentinels: 404 means the bucket
// is absent, 304 on create means it already exists.
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s failed: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %w", req.URL.Path, store.ErrNoSuchBucket)
	case resp.StatusCode == http.StatusNotModified:
		return fmt.Errorf("%s: %w", req.URL.Path, store.ErrBucketAlreadyExists)
	case resp.StatusCode >= 400:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("server returned %d for %s %s: %s",
			resp.StatusCode, req.Method, req.URL.Path, bytes.TrimSpace(msg))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", req.URL.Path, err)
	}
	return nil
}
