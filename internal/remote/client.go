// Package remote implements the engine's Transport and Resyncer over HTTP.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/roach88/invsync/internal/engine"
	"github.com/roach88/invsync/internal/inventory"
	"github.com/roach88/invsync/internal/wire"
)

// DefaultTimeout bounds one HTTP exchange when no client is supplied.
const DefaultTimeout = 15 * time.Second

// HTTPError is a non-2xx response.
type HTTPError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("http %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

// Rejected reports whether the authority refused the request itself, as
// opposed to failing to process it.
func (e *HTTPError) Rejected() bool {
	return e.StatusCode >= 400 && e.StatusCode <= 499
}

// Client talks to the authority for one user.
type Client struct {
	baseURL    string
	userID     string
	rules      inventory.Rules
	httpClient *http.Client
}

var (
	_ engine.Transport = (*Client)(nil)
	_ engine.Resyncer  = (*Client)(nil)
)

// NewClient creates a client. Snapshots are decoded under rules.
func NewClient(baseURL, userID string, rules inventory.Rules, httpClient *http.Client) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "http://127.0.0.1:8080"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{
		baseURL:    baseURL,
		userID:     strings.TrimSpace(userID),
		rules:      rules,
		httpClient: httpClient,
	}
}

// Send posts one command. It never retries: a command that may have been
// applied must not be submitted twice.
func (c *Client) Send(ctx context.Context, req engine.SendRequest) (engine.SendResult, error) {
	body := wire.NewSyncRequest(req.ID, req.Command, req.SyncedAt)
	var out wire.SyncResponse
	if err := c.doJSON(ctx, http.MethodPost, wire.SyncPath, req.ID, body, &out); err != nil {
		return engine.SendResult{}, fmt.Errorf("send %s: %w", req.Command.Action(), err)
	}
	return engine.SendResult{SyncedAt: out.SyncedAt}, nil
}

// FetchSnapshot fetches the authoritative inventory.
func (c *Client) FetchSnapshot(ctx context.Context) (engine.Snapshot, error) {
	var out wire.ResyncResponse
	if err := c.doJSON(ctx, http.MethodGet, wire.ResyncPath, "", nil, &out); err != nil {
		return engine.Snapshot{}, fmt.Errorf("fetch snapshot: %w", err)
	}
	inv, err := inventory.Decode(out.Inventory, c.rules)
	if err != nil {
		return engine.Snapshot{}, fmt.Errorf("fetch snapshot: %w", err)
	}
	return engine.Snapshot{Inventory: inv, SyncedAt: out.SyncedAt}, nil
}

func (c *Client) doJSON(ctx context.Context, method, path, correlationID string, body, out any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return err
	}
	req.Header.Set(wire.HeaderUser, c.userID)
	req.Header.Set("Accept", "application/json")
	if correlationID != "" {
		req.Header.Set(wire.HeaderCorrelationID, correlationID)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	payload, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return readErr
	}

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}

	var errPayload wire.ErrorResponse
	_ = json.Unmarshal(payload, &errPayload)
	if errPayload.Message == "" {
		errPayload.Message = http.StatusText(resp.StatusCode)
	}
	return &HTTPError{
		StatusCode: resp.StatusCode,
		Code:       errPayload.Code,
		Message:    errPayload.Message,
	}
}
