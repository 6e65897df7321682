// Package model defines domain structs shared across the persistence layer.
package model

// Service status values.
const (
	StatusActive   = "active"
	StatusDisabled = "disabled"
)

// Service represents a provisioned network-access account on a remote panel.
//
// A service is either volume-based (ProductID == 0, no expiry) or plan-based
// (ProductID != 0, ExpiresAtNs set). TotalGB <= 0 means unlimited traffic.
type Service struct {
	ID         int64  `json:"id"`
	UserID     int64  `json:"user_id"`
	PanelID    int64  `json:"panel_id"`
	InboundID  int64  `json:"inbound_id"`
	ClientUUID string `json:"client_uuid"`
	ClientName string `json:"client_name"`

	ProductID   int64 `json:"product_id"`
	ExpiresAtNs int64 `json:"expires_at_ns"`

	TotalGB float64 `json:"total_gb"`
	UsedGB  float64 `json:"used_gb"`

	Status   string `json:"status"`
	IsActive bool   `json:"is_active"`

	// Grace-period anchors, set once on first disable. ExhaustedAtNs is used
	// for volume services, ExpiredAtNs for plan services.
	ExhaustedAtNs int64 `json:"exhausted_at_ns"`
	ExpiredAtNs   int64 `json:"expired_at_ns"`

	Flags WarningFlags `json:"flags"`

	CreatedAtNs int64 `json:"created_at_ns"`
	UpdatedAtNs int64 `json:"updated_at_ns"`
}

// IsPlan reports whether the service is time-boxed (plan) rather than
// open-ended (volume).
func (s *Service) IsPlan() bool { return s.ProductID != 0 }

// WarningFlags are the one-shot notification guards of a service.
// Once set, a flag is never cleared by the monitor; renewal (external)
// resets them together with the status.
type WarningFlags struct {
	Warned70Percent  bool `json:"warned_70_percent"`
	Warned100Percent bool `json:"warned_100_percent"`
	WarnedThreeDays  bool `json:"warned_three_days"`
	WarnedExpired    bool `json:"warned_expired"`
}

// User represents an end user that owns services and receives notifications.
type User struct {
	ID          int64  `json:"id"`
	TelegramID  int64  `json:"telegram_id"`
	Username    string `json:"username"`
	FirstName   string `json:"first_name"`
	CreatedAtNs int64  `json:"created_at_ns"`
}
