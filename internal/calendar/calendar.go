// Package calendar implements the HTTP client contract a calendar server
// exposes: submit a digest and later retrieve the (possibly more complete)
// Timestamp it committed to. It also enforces the URL whitelist semantics
// used before ever contacting a URL an attestation itself names.
package calendar

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"golang.org/x/time/rate"

	"chronoproof/internal/fanout"
	"chronoproof/internal/proof"
	"chronoproof/internal/serialize"
)

// MaxResponseSize bounds a calendar response body, per spec.md §4.H.
const MaxResponseSize = 10_000

// UserAgent identifies this client to calendar servers.
const UserAgent = "chronoproof/1.0"

// Errors for the calendar error taxonomy.
var (
	ErrCommitmentNotFound = errors.New("calendar: commitment not found")
	ErrUnexpectedStatus   = errors.New("calendar: unexpected response status")
	ErrResponseTooLarge   = errors.New("calendar: response exceeds maximum size")
	ErrURLNotWhitelisted  = errors.New("calendar: url not whitelisted")
)

// Client talks to one calendar server identified by baseURL.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// New returns a Client for baseURL with a sane default timeout.
func New(baseURL string) *Client {
	return &Client{BaseURL: baseURL, HTTPClient: &http.Client{Timeout: 30 * time.Second}}
}

// Submit POSTs digest to {base}/digest and returns the Timestamp the
// calendar committed it under.
func (c *Client) Submit(ctx context.Context, digest []byte) (*proof.Timestamp, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/digest", bytes.NewReader(digest))
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/vnd.opentimestamps.v1")

	body, status, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, status)
	}
	return deserializeBody(body, digest)
}

// GetTimestamp fetches {base}/timestamp/{hex(commitment)}. A 404 maps to
// ErrCommitmentNotFound.
func (c *Client) GetTimestamp(ctx context.Context, commitment []byte) (*proof.Timestamp, error) {
	u := c.BaseURL + "/timestamp/" + hex.EncodeToString(commitment)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/vnd.opentimestamps.v1")

	body, status, err := c.do(req)
	if err != nil {
		return nil, err
	}
	switch status {
	case http.StatusOK:
		return deserializeBody(body, commitment)
	case http.StatusNotFound:
		return nil, ErrCommitmentNotFound
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, status)
	}
}

// SubmitAll fans out one rate-limited Submit per calendar URL, per
// spec.md §5 and §4.M: each submission shares c's HTTPClient but targets
// its own base URL, and is throttled through limiter (nil disables
// throttling). Results are delivered on the channel fanout.Dispatch
// returns; drain it with fanout.Collect to apply the m-of-n contract.
func (c *Client) SubmitAll(ctx context.Context, digest []byte, calendarURLs []string, limiter *rate.Limiter) <-chan fanout.Result {
	submit := func(ctx context.Context, calendarURL string) (*proof.Timestamp, error) {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		target := &Client{BaseURL: calendarURL, HTTPClient: c.HTTPClient}
		return target.Submit(ctx, digest)
	}
	return fanout.Dispatch(ctx, calendarURLs, submit)
}

func (c *Client) do(req *http.Request) ([]byte, int, error) {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, MaxResponseSize+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, 0, err
	}
	if len(body) > MaxResponseSize {
		return nil, 0, ErrResponseTooLarge
	}
	return body, resp.StatusCode, nil
}

func deserializeBody(body, rootMsg []byte) (*proof.Timestamp, error) {
	r := serialize.NewReader(body)
	ts, err := proof.Deserialize(r, rootMsg)
	if err != nil {
		return nil, err
	}
	if err := r.AssertEOF(); err != nil {
		return nil, err
	}
	return ts, nil
}

// Whitelist enforces spec.md §4.H's URL matching rule: glob-match on
// netloc, exact match on scheme and path, and a blanket rejection of any
// URL carrying params, query, or fragment.
type Whitelist struct {
	entries []whitelistEntry
}

type whitelistEntry struct {
	scheme     string
	netlocGlob string
	pathExact  string
}

// NewWhitelist builds a Whitelist from raw URL strings. A URL given
// without a scheme is expanded into both an http:// and an https://
// entry.
func NewWhitelist(rawURLs []string) (*Whitelist, error) {
	w := &Whitelist{}
	for _, raw := range rawURLs {
		if err := w.add(raw); err != nil {
			return nil, err
		}
	}
	return w, nil
}

func (w *Whitelist) add(raw string) error {
	if !containsScheme(raw) {
		if err := w.addOne("http://" + raw); err != nil {
			return err
		}
		return w.addOne("https://" + raw)
	}
	return w.addOne(raw)
}

func containsScheme(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.Scheme != ""
}

func (w *Whitelist) addOne(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("calendar: invalid whitelist url %q: %w", raw, err)
	}
	w.entries = append(w.entries, whitelistEntry{scheme: u.Scheme, netlocGlob: u.Host, pathExact: u.Path})
	return nil
}

// Allowed reports whether rawURL matches an entry and carries none of
// params, query, or fragment.
func (w *Whitelist) Allowed(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if u.RawQuery != "" || u.Fragment != "" || hasParams(u.Path) {
		return false
	}
	for _, e := range w.entries {
		if e.scheme != u.Scheme {
			continue
		}
		if e.pathExact != u.Path {
			continue
		}
		if ok, _ := path.Match(e.netlocGlob, u.Host); ok {
			return true
		}
	}
	return false
}

func hasParams(p string) bool {
	for i := 0; i < len(p); i++ {
		if p[i] == ';' {
			return true
		}
	}
	return false
}
