package panel

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/orbitvpn/sentinel/internal/config"
)

// XUIClient is the adapter for 3x-ui style panels. Authentication is a
// cookie session established by the login form.
type XUIClient struct {
	name     string
	baseURL  string
	username string
	password string
	http     *http.Client

	mu       sync.Mutex
	loggedIn bool
}

// NewXUIClient creates an adapter for one 3x-ui panel.
func NewXUIClient(cfg config.PanelEntry, timeout time.Duration) *XUIClient {
	jar, _ := cookiejar.New(nil)
	return &XUIClient{
		name:     cfg.Name,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		username: cfg.Username,
		password: cfg.Password,
		http:     &http.Client{Jar: jar, Timeout: timeout},
	}
}

// apiResponse is the envelope every 3x-ui endpoint answers with.
type apiResponse struct {
	Success bool            `json:"success"`
	Msg     string          `json:"msg"`
	Obj     json.RawMessage `json:"obj"`
}

// Login authenticates and caches the session cookie. Idempotent; a second
// concurrent login is harmless, so the lock is not held across the request.
func (c *XUIClient) Login(ctx context.Context) error {
	c.mu.Lock()
	already := c.loggedIn
	c.mu.Unlock()
	if already {
		return nil
	}

	form := url.Values{"username": {c.username}, "password": {c.password}}
	resp, err := c.postForm(ctx, "/login", form)
	if err != nil {
		return fmt.Errorf("xui %s: login: %w", c.name, err)
	}
	if !resp.Success {
		return fmt.Errorf("xui %s: login rejected: %s", c.name, resp.Msg)
	}

	c.mu.Lock()
	c.loggedIn = true
	c.mu.Unlock()
	return nil
}

// ListAllClients fetches every inbound in one call and reconciles the dump
// into a usage index.
func (c *XUIClient) ListAllClients(ctx context.Context) (map[string]ClientUsage, error) {
	inbounds, err := c.listInbounds(ctx)
	if err != nil {
		return nil, err
	}
	return BuildClientIndex(inbounds), nil
}

// ClientDetail scans the inbound dump for one client. The panel has no
// single-client endpoint keyed by UUID, so this reuses the list call; the
// returned InboundID may differ from the caller's if the client moved.
func (c *XUIClient) ClientDetail(ctx context.Context, inboundID int64, clientUUID string) (ClientUsage, error) {
	inbounds, err := c.listInbounds(ctx)
	if err != nil {
		return ClientUsage{}, err
	}
	index := BuildClientIndex(inbounds)
	usage, ok := index[clientUUID]
	if !ok {
		return ClientUsage{}, fmt.Errorf("xui %s: client %s: %w", c.name, clientUUID, ErrClientNotFound)
	}
	return usage, nil
}

// DisableClient flips the client's enable flag via the update endpoint.
// 3x-ui expects the full client object back, so the current one is fetched
// from the inbound dump first.
func (c *XUIClient) DisableClient(ctx context.Context, inboundID int64, clientUUID string) error {
	raw, foundInbound, err := c.findRawClient(ctx, clientUUID)
	if err != nil {
		return err
	}
	raw.Enable = false

	clientJSON, err := json.Marshal(inboundSettings{Clients: []RawClient{raw}})
	if err != nil {
		return fmt.Errorf("xui %s: marshal client %s: %w", c.name, clientUUID, err)
	}
	form := url.Values{
		"id":       {fmt.Sprintf("%d", foundInbound)},
		"settings": {string(clientJSON)},
	}
	resp, err := c.postForm(ctx, "/panel/api/inbounds/updateClient/"+url.PathEscape(clientUUID), form)
	if err != nil {
		return fmt.Errorf("xui %s: disable %s: %w", c.name, clientUUID, err)
	}
	if !resp.Success {
		return fmt.Errorf("xui %s: disable %s rejected: %s", c.name, clientUUID, resp.Msg)
	}
	return nil
}

// DeleteClient removes the client from its inbound.
func (c *XUIClient) DeleteClient(ctx context.Context, inboundID int64, clientUUID string) error {
	path := fmt.Sprintf("/panel/api/inbounds/%d/delClient/%s", inboundID, url.PathEscape(clientUUID))
	resp, err := c.postForm(ctx, path, url.Values{})
	if err != nil {
		return fmt.Errorf("xui %s: delete %s: %w", c.name, clientUUID, err)
	}
	if !resp.Success {
		return fmt.Errorf("xui %s: delete %s rejected: %s", c.name, clientUUID, resp.Msg)
	}
	return nil
}

func (c *XUIClient) listInbounds(ctx context.Context) ([]Inbound, error) {
	resp, err := c.get(ctx, "/panel/api/inbounds/list")
	if err != nil {
		return nil, fmt.Errorf("xui %s: list inbounds: %w", c.name, err)
	}
	if !resp.Success {
		return nil, fmt.Errorf("xui %s: list inbounds rejected: %s", c.name, resp.Msg)
	}
	var inbounds []Inbound
	if err := json.Unmarshal(resp.Obj, &inbounds); err != nil {
		return nil, fmt.Errorf("xui %s: decode inbounds: %w", c.name, err)
	}
	return inbounds, nil
}

func (c *XUIClient) findRawClient(ctx context.Context, clientUUID string) (RawClient, int64, error) {
	inbounds, err := c.listInbounds(ctx)
	if err != nil {
		return RawClient{}, 0, err
	}
	for _, in := range inbounds {
		for _, raw := range inboundClients(in) {
			if raw.ID == clientUUID {
				return raw, in.ID, nil
			}
		}
	}
	return RawClient{}, 0, fmt.Errorf("xui %s: client %s: %w", c.name, clientUUID, ErrClientNotFound)
}

func (c *XUIClient) get(ctx context.Context, path string) (*apiResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

func (c *XUIClient) postForm(ctx context.Context, path string, form url.Values) (*apiResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req)
}

func (c *XUIClient) do(req *http.Request) (*apiResponse, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		// Session expired; force a fresh login on the next cycle.
		c.invalidateSession()
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var out apiResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

func (c *XUIClient) invalidateSession() {
	c.mu.Lock()
	c.loggedIn = false
	c.mu.Unlock()
}
