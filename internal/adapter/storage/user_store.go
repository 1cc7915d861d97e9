package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rl1809/ticket-marketplace/internal/core/domain"
)

const userColumns = `id, email, name, role, status, created_at, updated_at`

func scanUser(row rowScanner) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.Status, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func (m *MySQLAdapter) RegisterUser(ctx context.Context, u domain.User) error {
	status := u.Status
	if status == "" {
		status = domain.UserActive
	}
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE email = VALUES(email), name = VALUES(name),
			role = VALUES(role), updated_at = VALUES(updated_at)`,
		u.ID, u.Email, u.Name, u.Role, status, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("register user: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	row := m.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, userID)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (m *MySQLAdapter) ListUsers(ctx context.Context, filter domain.UserFilter) ([]domain.User, int, error) {
	clause := ` WHERE status <> ?`
	args := []any{domain.UserDeleted}
	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		clause += ` AND (name LIKE ? OR email LIKE ?)`
		args = append(args, pattern, pattern)
	}

	var total int
	if err := m.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	rows, err := m.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users`+clause+` ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		append(args, filter.Limit, filter.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, total, rows.Err()
}

func (m *MySQLAdapter) SetUserStatus(ctx context.Context, userID string, status domain.UserStatus) (bool, error) {
	result, err := m.db.ExecContext(ctx,
		`UPDATE users SET status = ?, updated_at = ? WHERE id = ? AND status <> ?`,
		status, time.Now(), userID, domain.UserDeleted,
	)
	if err != nil {
		return false, fmt.Errorf("update user status: %w", err)
	}

	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// DeleteUser drops the user's events in the same transaction as the
// tombstone. Tiers and tickets of those events go with them by cascade.
// Tickets the user bought for other organizers' events are kept.
func (m *MySQLAdapter) DeleteUser(ctx context.Context, userID string) (bool, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE users SET status = ?, updated_at = ? WHERE id = ? AND status <> ?`,
		domain.UserDeleted, time.Now(), userID, domain.UserDeleted,
	)
	if err != nil {
		return false, fmt.Errorf("tombstone user: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE organizer_id = ?`, userID); err != nil {
		return false, fmt.Errorf("delete user events: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}
