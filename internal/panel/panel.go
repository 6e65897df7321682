// Package panel defines the remote provisioning panel adapters: one Client
// implementation per panel flavor, plus the batch reconciliation helpers that
// turn a raw panel dump into a per-client usage index.
package panel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/orbitvpn/sentinel/internal/config"
)

// ErrClientNotFound indicates the panel has no client with the given identity.
var ErrClientNotFound = errors.New("panel: client not found")

// ClientUsage is the reconciled live state of one panel client.
// TotalBytes <= 0 means unlimited traffic.
type ClientUsage struct {
	ClientUUID     string
	InboundID      int64
	TotalBytes     int64
	UsedBytes      int64
	ExpiryMs       int64 // unix millis, 0 = no expiry
	LastActivityMs int64 // unix millis, 0 = unknown
	Enabled        bool
	Email          string
}

// Client is the adapter over one remote panel. Implementations isolate all
// flavor-specific quirks; callers depend only on this interface.
type Client interface {
	// Login authenticates against the panel. Idempotent: an already
	// authenticated session is reused.
	Login(ctx context.Context) error

	// ListAllClients fetches every client on the panel in one batch call and
	// returns them keyed by client UUID. An empty map with nil error means
	// the panel answered but exposed no usable batch data.
	ListAllClients(ctx context.Context) (map[string]ClientUsage, error)

	// ClientDetail fetches a single client. Fallback path when batch data is
	// missing or reports zero usage.
	ClientDetail(ctx context.Context, inboundID int64, clientUUID string) (ClientUsage, error)

	// DisableClient suspends the client on the panel.
	DisableClient(ctx context.Context, inboundID int64, clientUUID string) error

	// DeleteClient removes the client from the panel.
	DeleteClient(ctx context.Context, inboundID int64, clientUUID string) error
}

// Registry holds one Client per configured panel, keyed by panel ID.
type Registry struct {
	clients *xsync.Map[int64, Client]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{clients: xsync.NewMap[int64, Client]()}
}

// NewRegistryFromConfig builds adapters for every configured panel.
// timeout bounds each HTTP round trip to a panel.
func NewRegistryFromConfig(panels []config.PanelEntry, timeout time.Duration) (*Registry, error) {
	r := NewRegistry()
	for _, p := range panels {
		var c Client
		switch p.Flavor {
		case config.PanelFlavorXUI:
			c = NewXUIClient(p, timeout)
		case config.PanelFlavorMarzban:
			c = NewMarzbanClient(p, timeout)
		default:
			return nil, fmt.Errorf("panel registry: unknown flavor %q for panel %d", p.Flavor, p.ID)
		}
		r.Register(p.ID, c)
	}
	return r, nil
}

// Register adds or replaces the adapter for a panel ID.
func (r *Registry) Register(panelID int64, c Client) {
	r.clients.Store(panelID, c)
}

// Get returns the adapter for a panel ID.
func (r *Registry) Get(panelID int64) (Client, bool) {
	return r.clients.Load(panelID)
}

// Size returns the number of registered panels.
func (r *Registry) Size() int {
	return r.clients.Size()
}
