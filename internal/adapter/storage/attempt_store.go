package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rl1809/ticket-marketplace/internal/core/domain"
	"github.com/rl1809/ticket-marketplace/internal/port"
)

const attemptColumns = `intent_id, buyer_id, event_id, tier_name, quantity, unit_price, amount_minor,
	currency, state, ticket_id, created_at, updated_at`

func scanAttempt(row rowScanner) (*domain.PurchaseAttempt, error) {
	var (
		a        domain.PurchaseAttempt
		ticketID sql.NullString
	)
	err := row.Scan(
		&a.IntentID, &a.BuyerID, &a.EventID, &a.TierName, &a.Quantity, &a.UnitPrice, &a.AmountMinor,
		&a.Currency, &a.State, &ticketID, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.TicketID = ticketID.String
	return &a, nil
}

func (m *MySQLAdapter) SaveAttempt(ctx context.Context, a domain.PurchaseAttempt) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO purchase_attempts (`+attemptColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.IntentID, a.BuyerID, a.EventID, a.TierName, a.Quantity, a.UnitPrice, a.AmountMinor,
		a.Currency, a.State, sql.NullString{String: a.TicketID, Valid: a.TicketID != ""}, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) GetAttempt(ctx context.Context, intentID string) (*domain.PurchaseAttempt, error) {
	a, err := scanAttempt(m.db.QueryRowContext(ctx,
		`SELECT `+attemptColumns+` FROM purchase_attempts WHERE intent_id = ?`, intentID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query attempt: %w", err)
	}
	return a, nil
}

// MarkAttempt is a compare-and-set on the attempt's state.
func (m *MySQLAdapter) MarkAttempt(ctx context.Context, intentID string, from, to domain.AttemptState, ticketID string) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE purchase_attempts
		SET state = ?, ticket_id = COALESCE(?, ticket_id), updated_at = ?
		WHERE intent_id = ? AND state = ?`,
		to, sql.NullString{String: ticketID, Valid: ticketID != ""}, time.Now(), intentID, from,
	)
	if err != nil {
		return fmt.Errorf("update attempt: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return port.ErrAttemptConflict
	}
	return nil
}

// ListAttempts returns the oldest attempts in state first.
func (m *MySQLAdapter) ListAttempts(ctx context.Context, state domain.AttemptState, limit int) ([]domain.PurchaseAttempt, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT `+attemptColumns+` FROM purchase_attempts
		WHERE state = ? ORDER BY created_at ASC LIMIT ?`, state, limit)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var out []domain.PurchaseAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}
