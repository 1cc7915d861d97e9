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

const ticketColumns = `id, buyer_id, event_id, organizer_id, amount, currency, payment_method,
	payment_intent_id, status, created_at, updated_at`

func scanTicket(row rowScanner) (*domain.Ticket, error) {
	var t domain.Ticket
	err := row.Scan(
		&t.ID, &t.BuyerID, &t.EventID, &t.OrganizerID, &t.Amount, &t.Currency, &t.PaymentMethod,
		&t.PaymentIntentID, &t.Status, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// RecordPurchase decrements every tier and inserts the ticket in one
// transaction. Nothing is written unless all of it succeeds.
func (m *MySQLAdapter) RecordPurchase(ctx context.Context, t domain.Ticket) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, li := range t.LineItems {
		result, err := tx.ExecContext(ctx, `
			UPDATE ticket_tiers
			SET remaining = remaining - ?
			WHERE event_id = ? AND tier_name = ? AND remaining >= ?`,
			li.Quantity, t.EventID, li.TierName, li.Quantity,
		)
		if err != nil {
			return fmt.Errorf("decrement tier: %w", err)
		}

		rows, _ := result.RowsAffected()
		if rows == 0 {
			return port.ErrInsufficientInventory
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO tickets (`+ticketColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.BuyerID, t.EventID, t.OrganizerID, t.Amount, t.Currency, t.PaymentMethod,
		t.PaymentIntentID, t.Status, t.CreatedAt, t.UpdatedAt,
	)
	if isDuplicateEntry(err) {
		return port.ErrDuplicateTicket
	}
	if err != nil {
		return fmt.Errorf("insert ticket: %w", err)
	}

	for _, li := range t.LineItems {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO ticket_line_items (ticket_id, tier_name, quantity, unit_price)
			VALUES (?, ?, ?, ?)`,
			t.ID, li.TierName, li.Quantity, li.UnitPrice,
		)
		if err != nil {
			return fmt.Errorf("insert line item: %w", err)
		}
	}

	return tx.Commit()
}

// RefundTicket flips success to refunded and restores inventory, bounded by
// each tier's allocation.
func (m *MySQLAdapter) RefundTicket(ctx context.Context, ticketID string) (*domain.Ticket, []domain.LineItem, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE tickets SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		domain.TicketStatusRefunded, time.Now(), ticketID, domain.TicketStatusSuccess,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("update ticket status: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return nil, nil, port.ErrTicketNotRefundable
	}

	ticket, err := scanTicket(tx.QueryRowContext(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE id = ?`, ticketID))
	if err != nil {
		return nil, nil, fmt.Errorf("query ticket: %w", err)
	}
	items, err := loadLineItems(ctx, tx, []string{ticketID})
	if err != nil {
		return nil, nil, err
	}
	ticket.LineItems = items[ticketID]

	var misses []domain.LineItem
	for _, li := range ticket.LineItems {
		result, err := tx.ExecContext(ctx, `
			UPDATE ticket_tiers
			SET remaining = remaining + ?
			WHERE event_id = ? AND tier_name = ? AND remaining + ? <= allocated`,
			li.Quantity, ticket.EventID, li.TierName, li.Quantity,
		)
		if err != nil {
			return nil, nil, fmt.Errorf("restore tier: %w", err)
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			misses = append(misses, li)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit refund: %w", err)
	}
	return ticket, misses, nil
}

func (m *MySQLAdapter) GetTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	t, err := scanTicket(m.db.QueryRowContext(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE id = ?`, ticketID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query ticket: %w", err)
	}

	items, err := loadLineItems(ctx, m.db, []string{t.ID})
	if err != nil {
		return nil, err
	}
	t.LineItems = items[t.ID]
	return t, nil
}

func (m *MySQLAdapter) ListTicketsByBuyer(ctx context.Context, buyerID string, status domain.TicketStatus) ([]domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE buyer_id = ?`
	args := []any{buyerID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	return m.queryTickets(ctx, query, args...)
}

func (m *MySQLAdapter) ListTicketsByEvent(ctx context.Context, eventID string) ([]domain.Ticket, error) {
	return m.queryTickets(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE event_id = ? ORDER BY created_at DESC`, eventID)
}

func (m *MySQLAdapter) ListTickets(ctx context.Context, filter domain.TicketFilter) ([]domain.Ticket, int, error) {
	where := ""
	var args []any
	if filter.Status != "" {
		where = ` WHERE status = ?`
		args = append(args, filter.Status)
	}

	var total int
	if err := m.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tickets`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count tickets: %w", err)
	}

	tickets, err := m.queryTickets(ctx,
		`SELECT `+ticketColumns+` FROM tickets`+where+` ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		append(args, filter.Limit, filter.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	return tickets, total, nil
}

func (m *MySQLAdapter) queryTickets(ctx context.Context, query string, args ...any) ([]domain.Ticket, error) {
	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tickets: %w", err)
	}
	defer rows.Close()

	var (
		tickets []domain.Ticket
		ids     []string
	)
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ticket: %w", err)
		}
		tickets = append(tickets, *t)
		ids = append(ids, t.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tickets: %w", err)
	}

	items, err := loadLineItems(ctx, m.db, ids)
	if err != nil {
		return nil, err
	}
	for i := range tickets {
		tickets[i].LineItems = items[tickets[i].ID]
	}
	return tickets, nil
}

func loadLineItems(ctx context.Context, q querier, ticketIDs []string) (map[string][]domain.LineItem, error) {
	out := make(map[string][]domain.LineItem, len(ticketIDs))
	if len(ticketIDs) == 0 {
		return out, nil
	}

	args := make([]any, len(ticketIDs))
	for i, id := range ticketIDs {
		args[i] = id
	}
	rows, err := q.QueryContext(ctx, `
		SELECT ticket_id, tier_name, quantity, unit_price
		FROM ticket_line_items WHERE ticket_id IN (`+placeholders(len(ticketIDs))+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("query line items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			ticketID string
			li       domain.LineItem
		)
		if err := rows.Scan(&ticketID, &li.TierName, &li.Quantity, &li.UnitPrice); err != nil {
			return nil, fmt.Errorf("scan line item: %w", err)
		}
		out[ticketID] = append(out[ticketID], li)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate line items: %w", err)
	}
	return out, nil
}
