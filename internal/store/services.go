package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/orbitvpn/sentinel/internal/model"
)

// ErrServiceNotFound is returned when a service row does not exist.
var ErrServiceNotFound = errors.New("store: service not found")

const serviceColumns = `id, user_id, panel_id, inbound_id, client_uuid, client_name,
	product_id, expires_at_ns, total_gb, used_gb, status, is_active,
	exhausted_at_ns, expired_at_ns,
	warned_70_percent, warned_100_percent, warned_three_days, warned_expired,
	created_at_ns, updated_at_ns`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanService(row rowScanner) (model.Service, error) {
	var svc model.Service
	err := row.Scan(
		&svc.ID, &svc.UserID, &svc.PanelID, &svc.InboundID, &svc.ClientUUID, &svc.ClientName,
		&svc.ProductID, &svc.ExpiresAtNs, &svc.TotalGB, &svc.UsedGB, &svc.Status, &svc.IsActive,
		&svc.ExhaustedAtNs, &svc.ExpiredAtNs,
		&svc.Flags.Warned70Percent, &svc.Flags.Warned100Percent,
		&svc.Flags.WarnedThreeDays, &svc.Flags.WarnedExpired,
		&svc.CreatedAtNs, &svc.UpdatedAtNs,
	)
	return svc, err
}

func (s *Store) queryServices(query string, args ...any) ([]model.Service, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query services: %w", err)
	}
	defer rows.Close()

	var out []model.Service
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, fmt.Errorf("scan service: %w", err)
		}
		out = append(out, svc)
	}
	return out, rows.Err()
}

// CreateService inserts a new service row and returns its ID.
// Used by the purchase flow; the monitor only mutates existing rows.
func (s *Store) CreateService(svc *model.Service) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixNano()
	res, err := s.db.Exec(`
		INSERT INTO services (user_id, panel_id, inbound_id, client_uuid, client_name,
		                      product_id, expires_at_ns, total_gb, used_gb, status, is_active,
		                      exhausted_at_ns, expired_at_ns,
		                      warned_70_percent, warned_100_percent, warned_three_days, warned_expired,
		                      created_at_ns, updated_at_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0, 0, 0, 0, 0, ?, ?)
	`, svc.UserID, svc.PanelID, svc.InboundID, svc.ClientUUID, svc.ClientName,
		svc.ProductID, svc.ExpiresAtNs, svc.TotalGB, svc.UsedGB,
		model.StatusActive, true, now, now)
	if err != nil {
		return 0, fmt.Errorf("insert service: %w", err)
	}
	return res.LastInsertId()
}

// ServiceByID loads one service.
func (s *Store) ServiceByID(id int64) (*model.Service, error) {
	row := s.db.QueryRow(`SELECT `+serviceColumns+` FROM services WHERE id = ?`, id)
	svc, err := scanService(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrServiceNotFound
		}
		return nil, fmt.Errorf("scan service %d: %w", id, err)
	}
	return &svc, nil
}

// GetAllActiveServices returns every service still visible to users,
// including disabled services inside their grace period.
func (s *Store) GetAllActiveServices() ([]model.Service, error) {
	return s.queryServices(`SELECT ` + serviceColumns + ` FROM services WHERE is_active = 1`)
}

// CounterUpdate is one staged usage-counter write.
type CounterUpdate struct {
	ID     int64
	UsedGB float64
}

// BulkUpdateCounters applies all staged usage counters in a single transaction.
func (s *Store) BulkUpdateCounters(updates []CounterUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("bulk counters begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.Prepare(`UPDATE services SET used_gb = ?, updated_at_ns = ? WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("bulk counters prepare: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UnixNano()
	for _, u := range updates {
		if _, err := stmt.Exec(u.UsedGB, now, u.ID); err != nil {
			return fmt.Errorf("bulk counters update %d: %w", u.ID, err)
		}
	}
	return tx.Commit()
}

// UpdateStatus sets the lifecycle status of a service.
func (s *Store) UpdateStatus(id int64, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`UPDATE services SET status = ?, updated_at_ns = ? WHERE id = ?`,
		status, time.Now().UnixNano(), id)
	if err != nil {
		return fmt.Errorf("update status %d: %w", id, err)
	}
	return nil
}

// MarkExhausted stamps the volume grace-period anchor. The anchor is set once;
// a second call during the same grace period is a no-op.
func (s *Store) MarkExhausted(id int64) error {
	return s.markAnchor(id, "exhausted_at_ns")
}

// MarkExpired stamps the plan grace-period anchor. Set once, like MarkExhausted.
func (s *Store) MarkExpired(id int64) error {
	return s.markAnchor(id, "expired_at_ns")
}

func (s *Store) markAnchor(id int64, column string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixNano()
	_, err := s.db.Exec(
		`UPDATE services SET `+column+` = ?, updated_at_ns = ? WHERE id = ? AND `+column+` = 0`,
		now, now, id)
	if err != nil {
		return fmt.Errorf("mark %s %d: %w", column, id, err)
	}
	return nil
}

// UpdateInboundID corrects a service's inbound after the client was located
// under a different inbound on the panel.
func (s *Store) UpdateInboundID(id, inboundID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`UPDATE services SET inbound_id = ?, updated_at_ns = ? WHERE id = ?`,
		inboundID, time.Now().UnixNano(), id)
	if err != nil {
		return fmt.Errorf("update inbound %d: %w", id, err)
	}
	return nil
}

// warningFlagColumns whitelists the flag names accepted by SetWarningFlag.
var warningFlagColumns = map[string]string{
	"warned_70_percent":  "warned_70_percent",
	"warned_100_percent": "warned_100_percent",
	"warned_three_days":  "warned_three_days",
	"warned_expired":     "warned_expired",
}

// WarningFlags reads the current notification guards straight from the
// database. Lifecycle re-checks these immediately before each guarded send.
func (s *Store) WarningFlags(id int64) (model.WarningFlags, error) {
	row := s.db.QueryRow(`
		SELECT warned_70_percent, warned_100_percent, warned_three_days, warned_expired
		FROM services WHERE id = ?`, id)
	var f model.WarningFlags
	if err := row.Scan(&f.Warned70Percent, &f.Warned100Percent, &f.WarnedThreeDays, &f.WarnedExpired); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return f, ErrServiceNotFound
		}
		return f, fmt.Errorf("scan flags %d: %w", id, err)
	}
	return f, nil
}

// SetWarningFlag sets one notification guard by name.
func (s *Store) SetWarningFlag(id int64, name string, value bool) error {
	column, ok := warningFlagColumns[name]
	if !ok {
		return fmt.Errorf("set flag %d: unknown flag %q", id, name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`UPDATE services SET `+column+` = ?, updated_at_ns = ? WHERE id = ?`,
		value, time.Now().UnixNano(), id)
	if err != nil {
		return fmt.Errorf("set flag %s on %d: %w", name, id, err)
	}
	return nil
}

// DeleteService deactivates and removes a service record. The panel-side
// client is deleted separately (best-effort); the store is authoritative.
func (s *Store) DeleteService(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("delete service begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`UPDATE services SET is_active = 0 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deactivate service %d: %w", id, err)
	}
	if _, err := tx.Exec(`DELETE FROM services WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete service %d: %w", id, err)
	}
	return tx.Commit()
}

// ServicesPastGracePeriod returns disabled volume services whose exhaustion
// anchor is at least grace old.
func (s *Store) ServicesPastGracePeriod(grace time.Duration) ([]model.Service, error) {
	cutoff := time.Now().Add(-grace).UnixNano()
	return s.queryServices(`
		SELECT `+serviceColumns+` FROM services
		WHERE status = ? AND product_id = 0 AND exhausted_at_ns > 0 AND exhausted_at_ns <= ?`,
		model.StatusDisabled, cutoff)
}

// ExpiredPlanServicesPastGracePeriod returns plan services whose expiry anchor
// is at least grace old.
func (s *Store) ExpiredPlanServicesPastGracePeriod(grace time.Duration) ([]model.Service, error) {
	cutoff := time.Now().Add(-grace).UnixNano()
	return s.queryServices(`
		SELECT `+serviceColumns+` FROM services
		WHERE product_id != 0 AND expired_at_ns > 0 AND expired_at_ns <= ?`,
		cutoff)
}

// UsageSummary aggregates fleet-wide counters for the daily report.
type UsageSummary struct {
	TotalServices    int
	ActiveServices   int
	DisabledServices int
	TotalUsedGB      float64
}

// Summary computes the current fleet usage summary.
func (s *Store) Summary() (UsageSummary, error) {
	var sum UsageSummary
	row := s.db.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(used_gb), 0)
		FROM services WHERE is_active = 1`,
		model.StatusActive, model.StatusDisabled)
	if err := row.Scan(&sum.TotalServices, &sum.ActiveServices, &sum.DisabledServices, &sum.TotalUsedGB); err != nil {
		return sum, fmt.Errorf("scan summary: %w", err)
	}
	return sum, nil
}
