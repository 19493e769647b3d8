// Package sessionclient calls the session API and keeps local listeners up
// to date by polling it.
package sessionclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/christopherjohns/blanc/internal/session"
)

// StatusError is an unexpected HTTP response from the API.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("sessionclient: unexpected status %d", e.Code)
	}
	return fmt.Sprintf("sessionclient: status %d: %s", e.Code, e.Message)
}

// AddResult is the outcome of a join.
type AddResult struct {
	Added        bool     `json:"added"`
	Participants []string `json:"participants"`
}

// Client is a thin wrapper over the session HTTP routes.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a Client for the API at baseURL. A nil httpClient uses one
// with a 10s timeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("sessionclient: encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("sessionclient: new request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("sessionclient: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&e)
		if resp.StatusCode == http.StatusNotFound {
			return session.ErrNotFound
		}
		return &StatusError{Code: resp.StatusCode, Message: e.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("sessionclient: decode response: %w", err)
	}
	return nil
}

// CreateSession registers a session and returns its ID. An empty id asks
// the server to generate one.
func (c *Client) CreateSession(ctx context.Context, id, creator string) (string, error) {
	var out struct {
		SessionID string `json:"sessionId"`
	}
	in := map[string]string{"sessionId": id, "creator": creator}
	if err := c.do(ctx, http.MethodPost, "/api/sessions", in, &out); err != nil {
		return "", err
	}
	return out.SessionID, nil
}

// AddParticipant joins participant to the session. Unknown sessions yield
// session.ErrNotFound.
func (c *Client) AddParticipant(ctx context.Context, id, participant string) (*AddResult, error) {
	var out AddResult
	path := "/api/sessions/" + url.PathEscape(id) + "/participants"
	if err := c.do(ctx, http.MethodPost, path, map[string]string{"participant": participant}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetSession fetches the current state of a session.
func (c *Client) GetSession(ctx context.Context, id string) (*session.Session, error) {
	var out session.Session
	path := "/api/sessions?sessionId=" + url.QueryEscape(id)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		out.ID = id
	}
	return &out, nil
}
