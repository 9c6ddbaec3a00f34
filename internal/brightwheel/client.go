// Package brightwheel is a read-only client for the Brightwheel
// guardian web API: session login (with optional 2FA), student
// lookup, and a paginated activity feed iterator.
package brightwheel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"time"
)

// ErrAuthFailed is returned when the login call is rejected.
var ErrAuthFailed = errors.New("brightwheel: authentication failed")

// StatusError reports a non-2xx response from the API.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("brightwheel: unexpected status %d from %s", e.StatusCode, e.URL)
}

// Config holds Brightwheel client configuration.
type Config struct {
	// BaseURL is the API origin.
	BaseURL string

	// PageSize is the activity feed page size.
	PageSize int

	// Timeout applies to each individual request.
	Timeout time.Duration
}

// DefaultConfig returns sensible defaults for the client.
func DefaultConfig() Config {
	return Config{
		BaseURL:  "https://schools.mybrightwheel.com",
		PageSize: 10,
		Timeout:  60 * time.Second,
	}
}

// Client is a session-holding Brightwheel API client. After Login it
// carries the session cookie and echoes the anti-forgery token on
// every request.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
	csrf   string
}

// NewClient creates a client with a fresh cookie jar.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}

	return &Client{
		cfg: cfg,
		http: &http.Client{
			Jar:     jar,
			Timeout: cfg.Timeout,
		},
		logger: logger,
	}, nil
}

// The web API rejects requests that do not look like its own browser
// client, so every call carries this header set.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Accept-Language", "en")
	req.Header.Set("Origin", c.cfg.BaseURL)
	req.Header.Set("Referer", c.cfg.BaseURL+"/sign-in")
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.5.2 Safari/605.1.15")
	req.Header.Set("X-Client-Name", "web")
	req.Header.Set("X-Client-Version", "225")
	if c.csrf != "" {
		req.Header.Set("X-CSRF-Token", c.csrf)
	}
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.cfg.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var payload io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		payload = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, payload)
	if err != nil {
		return err
	}
	c.setHeaders(req)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{StatusCode: resp.StatusCode, URL: u}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response from %s: %w", u, err)
		}
	}
	return nil
}

// TwoFactorChallenge describes the server's answer to the 2FA probe.
type TwoFactorChallenge struct {
	Required bool     `json:"2fa_required"`
	SentTo   []string `json:"2fa_code_sent_to"`
}

type loginRequest struct {
	User          credentials `json:"user"`
	TwoFactorCode string      `json:"2fa_code,omitempty"`
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Trigger2FA asks the server to start a login session, which sends a
// second-factor code to the account's contact when 2FA is enabled.
func (c *Client) Trigger2FA(ctx context.Context, email, password string) (*TwoFactorChallenge, error) {
	c.logger.Debug("checking for two factor requirement")

	var challenge TwoFactorChallenge
	req := loginRequest{User: credentials{Email: email, Password: password}}
	if err := c.do(ctx, http.MethodPost, "/api/v1/sessions/start", nil, req, &challenge); err != nil {
		return nil, fmt.Errorf("triggering 2fa: %w", err)
	}
	return &challenge, nil
}

// Login establishes the session and captures the CSRF token. code may
// be empty when the account has no second factor.
func (c *Client) Login(ctx context.Context, email, password, code string) error {
	req := loginRequest{
		User:          credentials{Email: email, Password: password},
		TwoFactorCode: code,
	}

	var resp struct {
		CSRF string `json:"csrf"`
	}
	err := c.do(ctx, http.MethodPost, "/api/v1/sessions", nil, req, &resp)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && (se.StatusCode == http.StatusUnauthorized || se.StatusCode == http.StatusForbidden) {
			return fmt.Errorf("%w: %v", ErrAuthFailed, err)
		}
		return fmt.Errorf("logging in: %w", err)
	}

	c.csrf = resp.CSRF
	c.logger.Debug("logged in", "csrf_present", resp.CSRF != "")
	return nil
}

// Students returns all students associated with the logged-in
// guardian account.
func (c *Client) Students(ctx context.Context) ([]Student, error) {
	var me struct {
		ObjectID string `json:"object_id"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/users/me", nil, nil, &me); err != nil {
		return nil, fmt.Errorf("looking up guardian profile: %w", err)
	}

	var resp struct {
		Students []struct {
			Student Student `json:"student"`
		} `json:"students"`
	}
	path := "/api/v1/guardians/" + me.ObjectID + "/students"
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &resp); err != nil {
		return nil, fmt.Errorf("listing students: %w", err)
	}

	students := make([]Student, 0, len(resp.Students))
	for _, record := range resp.Students {
		students = append(students, record.Student)
	}
	return students, nil
}

// Get issues a plain authenticated GET, used for media hosted behind
// the session. The caller owns the response body.
func (c *Client) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: rawURL}
	}
	return resp, nil
}

// Activities returns an iterator over the student's activity feed in
// server order (chronological, oldest first). The iterator is not
// resumable; restarting means constructing a new one.
func (c *Client) Activities(studentID string) *ActivityIterator {
	return &ActivityIterator{c: c, studentID: studentID}
}

// ActivityIterator walks the paginated feed one activity at a time,
// in the style of bufio.Scanner. It stops at the first empty page.
type ActivityIterator struct {
	c         *Client
	studentID string

	page int
	buf  []json.RawMessage
	idx  int
	cur  *Activity
	done bool
	err  error
}

// Next advances to the next activity. It returns false when the feed
// is exhausted or an error occurred; check Err afterwards.
func (it *ActivityIterator) Next(ctx context.Context) bool {
	if it.done || it.err != nil {
		return false
	}

	if it.idx >= len(it.buf) {
		if !it.fetchPage(ctx) {
			return false
		}
	}

	raw := it.buf[it.idx]
	it.idx++

	var a Activity
	if err := json.Unmarshal(raw, &a); err != nil {
		it.err = fmt.Errorf("decoding activity: %w", err)
		return false
	}
	a.Raw = raw
	it.cur = &a
	return true
}

func (it *ActivityIterator) fetchPage(ctx context.Context) bool {
	pageSize := it.c.cfg.PageSize

	query := url.Values{}
	query.Set("page", strconv.Itoa(it.page))
	query.Set("page_size", strconv.Itoa(pageSize))
	query.Set("offset", strconv.Itoa(it.page*pageSize))
	query.Set("include_parent_actions", "true")

	var resp struct {
		Activities []json.RawMessage `json:"activities"`
	}
	path := "/api/v1/students/" + it.studentID + "/activities"
	if err := it.c.do(ctx, http.MethodGet, path, query, nil, &resp); err != nil {
		it.err = fmt.Errorf("fetching activities page %d: %w", it.page, err)
		return false
	}

	it.c.logger.Debug("fetched activity page", "page", it.page, "count", len(resp.Activities))

	if len(resp.Activities) == 0 {
		it.done = true
		return false
	}

	it.buf = resp.Activities
	it.idx = 0
	it.page++
	return true
}

// Activity returns the activity produced by the last call to Next.
func (it *ActivityIterator) Activity() *Activity { return it.cur }

// Err returns the first error encountered while iterating, if any.
func (it *ActivityIterator) Err() error { return it.err }
