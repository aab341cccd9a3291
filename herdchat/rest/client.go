package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client provides REST API access to the HerdChat backend: the auth/session
// provider the messaging core depends on, plus message-history backfill.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a new REST API client.
// baseURL should be the base URL of the API, e.g., "https://farm.example.com/api".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SetHTTPClient allows setting a custom HTTP client.
func (c *Client) SetHTTPClient(client *http.Client) {
	if client != nil {
		c.httpClient = client
	}
}

// SetToken sets the access token for authenticated requests.
func (c *Client) SetToken(token string) {
	c.token = token
}

// Authentication endpoints

// Login authenticates with farm-account credentials and returns the session
// token plus user id that Connect needs.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*TokenResponse, error) {
	var resp TokenResponse
	if err := c.post(ctx, "/login", req, &resp, false); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GuestLogin creates a temporary guest session, used by demo setups.
func (c *Client) GuestLogin(ctx context.Context) (*TokenResponse, error) {
	var resp TokenResponse
	if err := c.post(ctx, "/guest", nil, &resp, false); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Conversation endpoints

// ListConversations returns all conversations visible to the authenticated
// user: direct chats, herd channels, and the farm-wide channel.
func (c *Client) ListConversations(ctx context.Context) ([]ConversationInfo, error) {
	var resp []ConversationInfo
	if err := c.get(ctx, "/conversations", &resp, true); err != nil {
		return nil, err
	}
	return resp, nil
}

// CreateDirectConversation opens a direct conversation with another user.
// Idempotent: repeated calls with the same peer return the same conversation.
func (c *Client) CreateDirectConversation(ctx context.Context, req CreateDirectConversationRequest) (*ConversationInfo, error) {
	var resp ConversationInfo
	if err := c.post(ctx, "/conversations/direct", req, &resp, true); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Message history endpoints

// GetMessages retrieves message history for a conversation with
// cursor-based pagination.
// limit: maximum number of messages to return (default: 20, max: 100).
// before: if provided, returns messages before this message ID.
func (c *Client) GetMessages(ctx context.Context, conversationID string, limit int, before *string) (*MessagesPage, error) {
	path := fmt.Sprintf("/conversations/%s/messages?limit=%d", url.PathEscape(conversationID), limit)
	if before != nil {
		path += "&before=" + url.QueryEscape(*before)
	}

	var resp MessagesPage
	if err := c.get(ctx, path, &resp, true); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Helper methods

func (c *Client) post(ctx context.Context, path string, body, dest any, requireAuth bool) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if requireAuth && c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	return c.do(req, dest)
}

func (c *Client) get(ctx context.Context, path string, dest any, requireAuth bool) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+path, http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	if requireAuth && c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	return c.do(req, dest)
}

func (c *Client) do(req *http.Request, dest any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp ErrorResponse
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
			return fmt.Errorf("api error (status %d): %s", resp.StatusCode, errResp.Error)
		}
		return fmt.Errorf("http error: %s (status %d)", string(body), resp.StatusCode)
	}

	if dest != nil {
		if err := json.Unmarshal(body, dest); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}
