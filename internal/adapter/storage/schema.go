package storage

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS events (
		id CHAR(36) NOT NULL PRIMARY KEY,
		organizer_id VARCHAR(64) NOT NULL,
		title VARCHAR(255) NOT NULL,
		description TEXT NOT NULL,
		category VARCHAR(32) NOT NULL,
		other_category VARCHAR(64) NOT NULL DEFAULT '',
		image_url VARCHAR(512) NOT NULL DEFAULT '',
		start_date DATE NOT NULL,
		start_time VARCHAR(5) NOT NULL,
		end_date DATE NOT NULL,
		end_time VARCHAR(5) NOT NULL DEFAULT '',
		venue_name VARCHAR(255) NOT NULL,
		address VARCHAR(255) NOT NULL,
		city VARCHAR(128) NOT NULL DEFAULT '',
		state VARCHAR(128) NOT NULL DEFAULT '',
		zip_code VARCHAR(16) NOT NULL DEFAULT '',
		status VARCHAR(16) NOT NULL DEFAULT 'pending',
		created_at DATETIME(6) NOT NULL,
		updated_at DATETIME(6) NOT NULL,
		INDEX idx_events_status (status),
		INDEX idx_events_organizer (organizer_id)
	)`,
	`CREATE TABLE IF NOT EXISTS ticket_tiers (
		event_id CHAR(36) NOT NULL,
		tier_name VARCHAR(16) NOT NULL,
		unit_price DECIMAL(12,2) NOT NULL,
		remaining INT NOT NULL,
		allocated INT NOT NULL,
		PRIMARY KEY (event_id, tier_name),
		CONSTRAINT chk_tier_remaining CHECK (remaining >= 0 AND remaining <= allocated),
		CONSTRAINT fk_tier_event FOREIGN KEY (event_id) REFERENCES events (id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS tickets (
		id CHAR(36) NOT NULL PRIMARY KEY,
		buyer_id VARCHAR(64) NOT NULL,
		event_id CHAR(36) NOT NULL,
		organizer_id VARCHAR(64) NOT NULL,
		amount DECIMAL(12,2) NOT NULL,
		currency VARCHAR(8) NOT NULL,
		payment_method VARCHAR(32) NOT NULL,
		payment_intent_id VARCHAR(255) NOT NULL,
		status VARCHAR(16) NOT NULL,
		created_at DATETIME(6) NOT NULL,
		updated_at DATETIME(6) NOT NULL,
		UNIQUE KEY uq_tickets_intent (payment_intent_id),
		INDEX idx_tickets_buyer (buyer_id, status),
		INDEX idx_tickets_status (status),
		CONSTRAINT fk_ticket_event FOREIGN KEY (event_id) REFERENCES events (id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS ticket_line_items (
		ticket_id CHAR(36) NOT NULL,
		tier_name VARCHAR(16) NOT NULL,
		quantity INT NOT NULL,
		unit_price DECIMAL(12,2) NOT NULL,
		PRIMARY KEY (ticket_id, tier_name),
		CONSTRAINT fk_line_ticket FOREIGN KEY (ticket_id) REFERENCES tickets (id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS purchase_attempts (
		intent_id VARCHAR(255) NOT NULL PRIMARY KEY,
		buyer_id VARCHAR(64) NOT NULL,
		event_id CHAR(36) NOT NULL,
		tier_name VARCHAR(16) NOT NULL,
		quantity INT NOT NULL,
		unit_price DECIMAL(12,2) NOT NULL,
		amount_minor BIGINT NOT NULL,
		currency VARCHAR(8) NOT NULL,
		state VARCHAR(32) NOT NULL,
		ticket_id CHAR(36) NULL,
		created_at DATETIME(6) NOT NULL,
		updated_at DATETIME(6) NOT NULL,
		INDEX idx_attempts_state (state, created_at)
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id VARCHAR(64) NOT NULL PRIMARY KEY,
		email VARCHAR(255) NOT NULL DEFAULT '',
		name VARCHAR(255) NOT NULL DEFAULT '',
		role VARCHAR(16) NOT NULL,
		status VARCHAR(16) NOT NULL DEFAULT 'active',
		created_at DATETIME(6) NOT NULL,
		updated_at DATETIME(6) NOT NULL,
		INDEX idx_users_status (status, created_at)
	)`,
}

// Migrate creates the tables if they do not exist.
func (m *MySQLAdapter) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
