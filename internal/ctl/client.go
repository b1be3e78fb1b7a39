// Package ctl is the client side of the daemon control API, used by chatctl.
package ctl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/nihinconnect/chatd/internal/api"
)

// Client talks to a session daemon over its unix socket.
type Client struct {
	http *http.Client
}

// New creates a client for the daemon behind the given socket path.
func New(socketPath string) *Client {
	return &Client{
		http: &http.Client{
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, "unix", socketPath)
				},
			},
			Timeout: 15 * time.Second,
		},
	}
}

func (c *Client) Status(ctx context.Context) (*api.StatusResponse, error) {
	var resp api.StatusResponse
	if err := c.get(ctx, "/v1/status", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Conversations(ctx context.Context) ([]api.SummaryResponse, error) {
	var resp []api.SummaryResponse
	if err := c.get(ctx, "/v1/conversations", &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) Messages(ctx context.Context, friendID int64) ([]api.MessageResponse, error) {
	path := "/v1/messages"
	if friendID != 0 {
		path += "?friend_id=" + strconv.FormatInt(friendID, 10)
	}
	var resp []api.MessageResponse
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) OpenConversation(ctx context.Context, req api.OpenRequest) ([]api.MessageResponse, error) {
	var resp []api.MessageResponse
	if err := c.post(ctx, "/v1/conversations/open", req, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) Send(ctx context.Context, text string) ([]api.MessageResponse, error) {
	var resp []api.MessageResponse
	if err := c.post(ctx, "/v1/messages", api.SendRequest{Text: text}, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) Typing(ctx context.Context, friendID int64) error {
	return c.post(ctx, "/v1/typing", api.TypingRequest{FriendID: friendID}, nil)
}

func (c *Client) Refresh(ctx context.Context) error {
	return c.post(ctx, "/v1/refresh", nil, nil)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://unix"+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://unix"+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("daemon request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			return fmt.Errorf("daemon: %s", e.Error)
		}
		return fmt.Errorf("daemon: unexpected status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
