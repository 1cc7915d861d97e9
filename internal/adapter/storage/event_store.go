package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rl1809/ticket-marketplace/internal/core/domain"
)

const eventColumns = `id, organizer_id, title, description, category, other_category, image_url,
	start_date, start_time, end_date, end_time, venue_name, address, city, state, zip_code,
	status, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*domain.Event, error) {
	var e domain.Event
	err := row.Scan(
		&e.ID, &e.OrganizerID, &e.Title, &e.Description, &e.Category, &e.OtherCategory, &e.ImageURL,
		&e.StartDate, &e.StartTime, &e.EndDate, &e.EndTime, &e.VenueName, &e.Address, &e.City, &e.State, &e.ZipCode,
		&e.Status, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (m *MySQLAdapter) CreateEvent(ctx context.Context, e domain.Event) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO events (`+eventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.OrganizerID, e.Title, e.Description, e.Category, e.OtherCategory, e.ImageURL,
		e.StartDate, e.StartTime, e.EndDate, e.EndTime, e.VenueName, e.Address, e.City, e.State, e.ZipCode,
		e.Status, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	for _, t := range e.Tiers {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO ticket_tiers (event_id, tier_name, unit_price, remaining, allocated)
			VALUES (?, ?, ?, ?, ?)`,
			e.ID, t.Name, t.UnitPrice, t.Remaining, t.Allocated,
		)
		if err != nil {
			return fmt.Errorf("insert tier %s: %w", t.Name, err)
		}
	}

	return tx.Commit()
}

func (m *MySQLAdapter) GetEvent(ctx context.Context, eventID string) (*domain.Event, error) {
	e, err := scanEvent(m.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = ?`, eventID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query event: %w", err)
	}

	tiers, err := m.loadTiers(ctx, []string{e.ID})
	if err != nil {
		return nil, err
	}
	e.Tiers = tiers[e.ID]
	return e, nil
}

func (m *MySQLAdapter) ListEvents(ctx context.Context, status domain.EventStatus, organizerID string) ([]domain.Event, error) {
	var (
		where []string
		args  []any
	)
	if status != "" {
		where = append(where, "status = ?")
		args = append(args, status)
	}
	if organizerID != "" {
		where = append(where, "organizer_id = ?")
		args = append(args, organizerID)
	}
	query := `SELECT ` + eventColumns + ` FROM events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY start_date ASC, created_at ASC"

	return m.queryEvents(ctx, query, args...)
}

func (m *MySQLAdapter) SearchEvents(ctx context.Context, filter domain.EventFilter) ([]domain.Event, int, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Category != "" {
		where = append(where, "category = ?")
		args = append(args, filter.Category)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := m.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count events: %w", err)
	}

	events, err := m.queryEvents(ctx,
		`SELECT `+eventColumns+` FROM events`+clause+` ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		append(args, filter.Limit, filter.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

func (m *MySQLAdapter) queryEvents(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var (
		events []domain.Event
		ids    []string
	)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, *e)
		ids = append(ids, e.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	tiers, err := m.loadTiers(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range events {
		events[i].Tiers = tiers[events[i].ID]
	}
	return events, nil
}

func (m *MySQLAdapter) loadTiers(ctx context.Context, eventIDs []string) (map[string][]domain.Tier, error) {
	out := make(map[string][]domain.Tier, len(eventIDs))
	if len(eventIDs) == 0 {
		return out, nil
	}

	args := make([]any, len(eventIDs))
	for i, id := range eventIDs {
		args[i] = id
	}
	rows, err := m.db.QueryContext(ctx, `
		SELECT event_id, tier_name, unit_price, remaining, allocated
		FROM ticket_tiers WHERE event_id IN (`+placeholders(len(eventIDs))+`)
		ORDER BY event_id, unit_price DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("query tiers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			eventID string
			t       domain.Tier
		)
		if err := rows.Scan(&eventID, &t.Name, &t.UnitPrice, &t.Remaining, &t.Allocated); err != nil {
			return nil, fmt.Errorf("scan tier: %w", err)
		}
		out[eventID] = append(out[eventID], t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tiers: %w", err)
	}
	return out, nil
}

func (m *MySQLAdapter) UpdateEventDetails(ctx context.Context, eventID string, d domain.EventDetails) (bool, error) {
	result, err := m.db.ExecContext(ctx, `
		UPDATE events
		SET title = ?, description = ?, category = ?, other_category = ?, image_url = ?,
			start_date = ?, start_time = ?, end_date = ?, end_time = ?,
			venue_name = ?, address = ?, city = ?, state = ?, zip_code = ?, updated_at = ?
		WHERE id = ?`,
		d.Title, d.Description, d.Category, d.OtherCategory, d.ImageURL,
		d.StartDate, d.StartTime, d.EndDate, d.EndTime,
		d.VenueName, d.Address, d.City, d.State, d.ZipCode, time.Now(),
		eventID,
	)
	if err != nil {
		return false, fmt.Errorf("update event: %w", err)
	}

	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

func (m *MySQLAdapter) UpdateEventStatus(ctx context.Context, eventID, organizerID string, status domain.EventStatus) (bool, error) {
	query := `UPDATE events SET status = ?, updated_at = ? WHERE id = ?`
	args := []any{status, time.Now(), eventID}
	if organizerID != "" {
		query += ` AND organizer_id = ?`
		args = append(args, organizerID)
	}

	result, err := m.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("update event status: %w", err)
	}

	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// DeleteEvent relies on ON DELETE CASCADE for tiers, tickets and line items.
func (m *MySQLAdapter) DeleteEvent(ctx context.Context, eventID string) (bool, error) {
	result, err := m.db.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, eventID)
	if err != nil {
		return false, fmt.Errorf("delete event: %w", err)
	}

	rows, _ := result.RowsAffected()
	return rows > 0, nil
}
