package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/orbitvpn/sentinel/internal/model"
)

// ErrUserNotFound is returned when a user row does not exist.
var ErrUserNotFound = errors.New("store: user not found")

// CreateUser inserts a new user and returns its ID.
func (s *Store) CreateUser(u *model.User) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		INSERT INTO users (telegram_id, username, first_name, created_at_ns)
		VALUES (?, ?, ?, ?)`,
		u.TelegramID, u.Username, u.FirstName, time.Now().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	s.userCache.Delete(id)
	return id, nil
}

// UserByID loads a user, served from the read cache when possible.
func (s *Store) UserByID(id int64) (*model.User, error) {
	if u, ok := s.userCache.Get(id); ok {
		return &u, nil
	}

	row := s.db.QueryRow(`
		SELECT id, telegram_id, username, first_name, created_at_ns
		FROM users WHERE id = ?`, id)
	var u model.User
	if err := row.Scan(&u.ID, &u.TelegramID, &u.Username, &u.FirstName, &u.CreatedAtNs); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("scan user %d: %w", id, err)
	}
	s.userCache.Set(id, u)
	return &u, nil
}
