// Package rest implements the client for the NihinConnect REST backend.
//
// Consumed operations:
//   - GET  /auth/messages/conversations/ - conversation summaries
//   - GET  /auth/friends/                - friends fallback listing
//   - GET  /auth/messages/?user_id=<id>  - conversation history
//   - POST /auth/messages/send/          - create a message
//   - POST /auth/messages/mark-read/     - mark a conversation read
//   - POST /auth/notifications/mark-all-read/
//   - GET  /auth/notifications/
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// DefaultTimeout is the default HTTP request timeout.
const DefaultTimeout = 10 * time.Second

// maxResponseSize limits response body reads.
const maxResponseSize = 10 * 1024 * 1024 // 10MB

// Error is a non-2xx backend response.
type Error struct {
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("backend error (status %d): %s", e.StatusCode, e.Body)
}

// IsAuthError reports whether err is a 401 from the backend, which the UI
// surfaces as a login prompt rather than a generic load failure.
func IsAuthError(err error) bool {
	re, ok := err.(*Error)
	return ok && re.StatusCode == http.StatusUnauthorized
}

// Client is the REST backend client.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	accessToken string
	// Free ngrok tunnels serve an HTML interstitial unless this header is
	// present, so it is added whenever the base URL is an ngrok host.
	tunnelBypass bool
}

// New creates a client for the given base URL with Bearer authentication.
func New(baseURL, accessToken string) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	return &Client{
		baseURL:      baseURL,
		httpClient:   &http.Client{Timeout: DefaultTimeout},
		accessToken:  accessToken,
		tunnelBypass: strings.Contains(baseURL, "ngrok"),
	}
}

// Conversations fetches the conversation summary listing.
func (c *Client) Conversations(ctx context.Context) ([]Conversation, error) {
	var resp conversationsResponse
	if err := c.get(ctx, "/auth/messages/conversations/", &resp); err != nil {
		return nil, err
	}
	return resp.Conversations, nil
}

// Friends fetches the plain friends listing, used as a fallback when the
// conversations endpoint returns nothing or fails.
func (c *Client) Friends(ctx context.Context) ([]User, error) {
	var resp friendsResponse
	if err := c.get(ctx, "/auth/friends/", &resp); err != nil {
		return nil, err
	}
	return resp.Friends, nil
}

// History fetches the ordered message history for a conversation.
func (c *Client) History(ctx context.Context, userID int64) ([]Message, error) {
	var resp messagesResponse
	if err := c.get(ctx, "/auth/messages/?user_id="+strconv.FormatInt(userID, 10), &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// Send creates a message addressed to receiverID and returns the persisted
// record with its server-assigned id.
func (c *Client) Send(ctx context.Context, receiverID int64, text string) (*Message, error) {
	req := map[string]any{"receiver_id": receiverID, "text": text}
	var resp sendResponse
	if err := c.post(ctx, "/auth/messages/send/", req, &resp); err != nil {
		return nil, err
	}
	if resp.Message == nil {
		return nil, fmt.Errorf("send: backend returned no message")
	}
	return resp.Message, nil
}

// MarkRead marks the conversation with userID as read.
func (c *Client) MarkRead(ctx context.Context, userID int64) error {
	return c.post(ctx, "/auth/messages/mark-read/", map[string]any{"user_id": userID}, nil)
}

// MarkAllNotificationsRead clears all unread notifications.
func (c *Client) MarkAllNotificationsRead(ctx context.Context) error {
	return c.post(ctx, "/auth/notifications/mark-all-read/", struct{}{}, nil)
}

// Notifications fetches the notification listing.
func (c *Client) Notifications(ctx context.Context) ([]Notification, error) {
	var resp notificationsResponse
	if err := c.get(ctx, "/auth/notifications/", &resp); err != nil {
		return nil, err
	}
	return resp.Notifications, nil
}

// get sends a GET request and decodes the JSON response.
func (c *Client) get(ctx context.Context, path string, respBody any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return c.do(req, respBody)
}

// post sends a POST request and decodes the JSON response. respBody may be
// nil for operations whose response is not interesting.
func (c *Client) post(ctx context.Context, path string, reqBody, respBody any) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return c.do(req, respBody)
}

func (c *Client) do(req *http.Request, respBody any) error {
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}
	if c.tunnelBypass {
		req.Header.Set("ngrok-skip-browser-warning", "1")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Error{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	if respBody == nil {
		return nil
	}
	if err := json.Unmarshal(raw, respBody); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
