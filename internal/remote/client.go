package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"loomtrack-backend/internal/model"
)

const defaultTimeout = 15 * time.Second

// Client talks to the remote record store over HTTP JSON. CRUD calls run
// against /api/v1 with a request timeout; the realtime subscription is a
// long-lived GET streaming one JSON event per line, so it uses a separate
// client with no overall timeout. Only the subscription handshake (waiting
// for response headers) is bounded.
type Client struct {
	base       string
	credential string
	http       *http.Client
	stream     *http.Client
}

// NewClient creates a client for the given endpoint and credential.
func NewClient(endpoint, credential string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		base:       strings.TrimRight(endpoint, "/"),
		credential: credential,
		http:       &http.Client{Timeout: timeout},
		// The stream client must never time out an established stream,
		// but the handshake itself is bounded: a remote that accepts the
		// request and then never answers would otherwise block the
		// connection attempt forever.
		stream: &http.Client{
			Transport: &http.Transport{ResponseHeaderTimeout: timeout},
		},
	}
}

// NewDialer returns a Dialer producing HTTP clients with the given timeout.
func NewDialer(timeout time.Duration) Dialer {
	return func(endpoint, credential string) Store {
		return NewClient(endpoint, credential, timeout)
	}
}

// FetchSettings returns the remote settings singleton, or nil when the
// remote store has never been seeded.
func (c *Client) FetchSettings(ctx context.Context) (*model.Settings, error) {
	var row settingsRow
	found, err := c.getJSON(ctx, "/api/v1/settings", &row)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	s := mapSettings(row)
	return &s, nil
}

// UpsertSettings writes the settings singleton.
func (c *Client) UpsertSettings(ctx context.Context, s model.Settings) error {
	return c.send(ctx, http.MethodPut, "/api/v1/settings", toSettingsRow(s))
}

// FetchAllRecords returns the complete remote record set. Rows that fail
// boundary validation are skipped with a log line rather than failing the
// whole fetch.
func (c *Client) FetchAllRecords(ctx context.Context) ([]model.Record, error) {
	var rows []recordRow
	if _, err := c.getJSON(ctx, "/api/v1/records", &rows); err != nil {
		return nil, err
	}

	records := make([]model.Record, 0, len(rows))
	for _, row := range rows {
		rec, err := mapRecord(row)
		if err != nil {
			log.Printf("remote: skipping invalid row: %v", err)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// UpsertRecord writes one record. Idempotent: the remote store treats an
// update for an unseen id as an insert.
func (c *Client) UpsertRecord(ctx context.Context, r model.Record) error {
	return c.send(ctx, http.MethodPut, "/api/v1/records/"+url.PathEscape(r.ID), toRecordRow(r))
}

// DeleteRecord removes one record. Deleting an absent id succeeds.
func (c *Client) DeleteRecord(ctx context.Context, id string) error {
	return c.send(ctx, http.MethodDelete, "/api/v1/records/"+url.PathEscape(id), nil)
}

// DeleteAllRecords removes the whole remote record set.
func (c *Client) DeleteAllRecords(ctx context.Context) error {
	return c.send(ctx, http.MethodDelete, "/api/v1/records", nil)
}

// Subscribe opens the realtime event stream. The returned func cancels the
// stream; onError fires when the stream drops for any other reason.
func (c *Client) Subscribe(onEvent func(Event), onError func(error)) (func(), error) {
	ctx, cancel := context.WithCancel(context.Background())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/api/v1/events", nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create subscribe request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.stream.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		cancel()
		return nil, statusError(resp.StatusCode, body)
	}

	go func() {
		defer resp.Body.Close()
		dec := json.NewDecoder(resp.Body)
		for {
			var row eventRow
			if err := dec.Decode(&row); err != nil {
				if ctx.Err() == nil {
					onError(fmt.Errorf("event stream closed: %w", err))
				}
				return
			}
			ev, err := mapEvent(row)
			if err != nil {
				log.Printf("remote: ignoring malformed event: %v", err)
				continue
			}
			onEvent(ev)
		}
	}()

	return cancel, nil
}

// getJSON issues a GET and decodes the body into out. Returns found=false
// on 404.
func (c *Client) getJSON(ctx context.Context, path string, out any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return false, statusError(resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("failed to decode response: %w", err)
	}
	return true, nil
}

// send issues a mutating request with an optional JSON body and discards
// the response body.
func (c *Client) send(ctx context.Context, method, path string, payload any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return statusError(resp.StatusCode, respBody)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	if c.credential != "" {
		req.Header.Set("Authorization", "Bearer "+c.credential)
	}
	if req.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
}

// statusError classifies a non-2xx response. Client errors are rejections
// and never retried; timeouts, rate limits and server errors stay
// retryable transport failures.
func statusError(status int, body []byte) error {
	if status >= 400 && status < 500 &&
		status != http.StatusRequestTimeout && status != http.StatusTooManyRequests {
		return &RejectionError{Status: status, Body: strings.TrimSpace(string(body))}
	}
	return fmt.Errorf("received non-200 status code: %d", status)
}
