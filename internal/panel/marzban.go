package panel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/orbitvpn/sentinel/internal/config"
)

// MarzbanClient is the adapter for Marzban panels. Authentication is a
// bearer token from the admin token endpoint; clients are flat user objects
// whose username carries the client UUID, with no inbound dimension.
type MarzbanClient struct {
	name     string
	baseURL  string
	username string
	password string
	http     *http.Client

	mu    sync.Mutex
	token string
}

// NewMarzbanClient creates an adapter for one Marzban panel.
func NewMarzbanClient(cfg config.PanelEntry, timeout time.Duration) *MarzbanClient {
	return &MarzbanClient{
		name:     cfg.Name,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		username: cfg.Username,
		password: cfg.Password,
		http:     &http.Client{Timeout: timeout},
	}
}

type marzbanUser struct {
	Username    string `json:"username"`
	Status      string `json:"status"`
	UsedTraffic int64  `json:"used_traffic"`
	DataLimit   int64  `json:"data_limit"`
	Expire      int64  `json:"expire"` // unix seconds, 0 = no expiry
	OnlineAt    string `json:"online_at"`
}

func (u marzbanUser) toUsage() ClientUsage {
	usage := ClientUsage{
		ClientUUID: u.Username,
		UsedBytes:  u.UsedTraffic,
		TotalBytes: u.DataLimit,
		Enabled:    u.Status == "active",
		Email:      u.Username,
	}
	if u.Expire > 0 {
		usage.ExpiryMs = u.Expire * 1000
	}
	if t, err := time.Parse(time.RFC3339, u.OnlineAt); err == nil {
		usage.LastActivityMs = t.UnixMilli()
	}
	return usage
}

// Login obtains an admin bearer token. Idempotent while the token is valid;
// a 401 on any later call clears it so the next cycle re-authenticates.
func (c *MarzbanClient) Login(ctx context.Context) error {
	c.mu.Lock()
	have := c.token != ""
	c.mu.Unlock()
	if have {
		return nil
	}

	form := url.Values{
		"username":   {c.username},
		"password":   {c.password},
		"grant_type": {"password"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/admin/token", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("marzban %s: login: %w", c.name, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("marzban %s: login: %w", c.name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("marzban %s: login: unexpected status %d", c.name, resp.StatusCode)
	}

	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("marzban %s: login: decode token: %w", c.name, err)
	}
	if out.AccessToken == "" {
		return fmt.Errorf("marzban %s: login: empty access token", c.name)
	}

	c.mu.Lock()
	c.token = out.AccessToken
	c.mu.Unlock()
	return nil
}

// ListAllClients fetches every user in one call.
func (c *MarzbanClient) ListAllClients(ctx context.Context) (map[string]ClientUsage, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/users", nil)
	if err != nil {
		return nil, fmt.Errorf("marzban %s: list users: %w", c.name, err)
	}
	var out struct {
		Users []marzbanUser `json:"users"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("marzban %s: decode users: %w", c.name, err)
	}

	index := make(map[string]ClientUsage, len(out.Users))
	for _, u := range out.Users {
		if u.Username == "" {
			continue
		}
		index[u.Username] = u.toUsage()
	}
	return index, nil
}

// ClientDetail fetches a single user. Marzban has no inbound dimension, so
// inboundID is ignored.
func (c *MarzbanClient) ClientDetail(ctx context.Context, inboundID int64, clientUUID string) (ClientUsage, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/user/"+url.PathEscape(clientUUID), nil)
	if err != nil {
		return ClientUsage{}, fmt.Errorf("marzban %s: user %s: %w", c.name, clientUUID, err)
	}
	var u marzbanUser
	if err := json.Unmarshal(body, &u); err != nil {
		return ClientUsage{}, fmt.Errorf("marzban %s: decode user %s: %w", c.name, clientUUID, err)
	}
	return u.toUsage(), nil
}

// DisableClient sets the user status to disabled.
func (c *MarzbanClient) DisableClient(ctx context.Context, inboundID int64, clientUUID string) error {
	payload := []byte(`{"status":"disabled"}`)
	if _, err := c.do(ctx, http.MethodPut, "/api/user/"+url.PathEscape(clientUUID), payload); err != nil {
		return fmt.Errorf("marzban %s: disable %s: %w", c.name, clientUUID, err)
	}
	return nil
}

// DeleteClient removes the user.
func (c *MarzbanClient) DeleteClient(ctx context.Context, inboundID int64, clientUUID string) error {
	if _, err := c.do(ctx, http.MethodDelete, "/api/user/"+url.PathEscape(clientUUID), nil); err != nil {
		return fmt.Errorf("marzban %s: delete %s: %w", c.name, clientUUID, err)
	}
	return nil
}

func (c *MarzbanClient) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		c.mu.Lock()
		c.token = ""
		c.mu.Unlock()
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrClientNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}
