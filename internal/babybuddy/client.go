// Package babybuddy writes normalized childcare events into a Baby
// Buddy instance over its token-authenticated REST API, with an
// optional skip-if-present existence check per record.
package babybuddy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Endpoints, one per record kind.
const (
	notesPath    = "/api/notes/"
	sleepPath    = "/api/sleep/"
	feedingsPath = "/api/feedings/"
	changesPath  = "/api/changes/"
)

// StatusError reports a non-2xx response from the sink.
type StatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("babybuddy: status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

// IsConflict reports whether the rejection is the validation class
// the sink uses for records it considers duplicates.
func (e *StatusError) IsConflict() bool {
	return e.StatusCode == http.StatusBadRequest
}

// WriteResult is the outcome of a write attempt.
type WriteResult int

const (
	// Written means the create call succeeded.
	Written WriteResult = iota
	// Skipped means an equivalent record already existed.
	Skipped
)

func (r WriteResult) String() string {
	switch r {
	case Written:
		return "written"
	case Skipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Config holds Baby Buddy client configuration.
type Config struct {
	// BaseURL is the instance origin, e.g. https://baby.example.com.
	BaseURL string

	// Token is the user's API token.
	Token string

	// ChildID identifies the destination child.
	ChildID int

	// Timeout applies to each individual request.
	Timeout time.Duration
}

// Client writes records to one Baby Buddy instance. It uses its own
// connection, never the feed session.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

// NewClient creates a Baby Buddy client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: timeout},
		logger: logger,
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	u := c.cfg.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Token "+c.cfg.Token)
	return req, nil
}

// exists runs the existence query for one record kind, scoped by the
// given filters plus the provenance tag.
func (c *Client) exists(ctx context.Context, path string, filters url.Values) (bool, error) {
	query := url.Values{}
	query.Set("limit", "1")
	query.Set("child", strconv.Itoa(c.cfg.ChildID))
	query.Set("tags", ProvenanceTag)
	for k, vs := range filters {
		for _, v := range vs {
			query.Add(k, v)
		}
	}

	req, err := c.newRequest(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return false, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return false, &StatusError{StatusCode: resp.StatusCode, URL: req.URL.String(), Body: string(body)}
	}

	var result struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, fmt.Errorf("decoding existence query response: %w", err)
	}
	return result.Count > 0, nil
}

func (c *Client) create(ctx context.Context, path string, record any) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, path, nil, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{StatusCode: resp.StatusCode, URL: req.URL.String(), Body: string(body)}
	}
	return nil
}

// write performs the existence check (when enabled) followed by the
// create call. A pre-existing record short-circuits with Skipped and
// no create call.
func (c *Client) write(ctx context.Context, path string, filters url.Values, record any, skipExisting bool) (WriteResult, error) {
	if skipExisting {
		found, err := c.exists(ctx, path, filters)
		if err != nil {
			return Written, fmt.Errorf("checking for existing record: %w", err)
		}
		if found {
			c.logger.Info("record already exists, skipping", "path", path)
			return Skipped, nil
		}
	}
	if err := c.create(ctx, path, record); err != nil {
		return Written, err
	}
	return Written, nil
}

// CreateNote writes a free-text note, keyed for existence checks by
// its timestamp.
func (c *Client) CreateNote(ctx context.Context, note Note, skipExisting bool) (WriteResult, error) {
	note.Child = c.cfg.ChildID
	filters := url.Values{"date": {note.Time}}
	return c.write(ctx, notesPath, filters, note, skipExisting)
}

// CreateSleep writes a sleep interval, keyed by its start/end window.
func (c *Client) CreateSleep(ctx context.Context, sleep Sleep, skipExisting bool) (WriteResult, error) {
	sleep.Child = c.cfg.ChildID
	filters := url.Values{"start": {sleep.Start}, "end": {sleep.End}}
	return c.write(ctx, sleepPath, filters, sleep, skipExisting)
}

// CreateFeeding writes a feeding, keyed by its start/end window.
func (c *Client) CreateFeeding(ctx context.Context, feeding Feeding, skipExisting bool) (WriteResult, error) {
	feeding.Child = c.cfg.ChildID
	filters := url.Values{"start": {feeding.Start}, "end": {feeding.End}}
	return c.write(ctx, feedingsPath, filters, feeding, skipExisting)
}

// CreateChange writes a diaper change, keyed by its timestamp.
func (c *Client) CreateChange(ctx context.Context, change Change, skipExisting bool) (WriteResult, error) {
	change.Child = c.cfg.ChildID
	filters := url.Values{"date": {change.Time}}
	return c.write(ctx, changesPath, filters, change, skipExisting)
}
