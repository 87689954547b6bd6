package crdb

import "context"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS seats (
		id UUID PRIMARY KEY,
		tenant_id UUID NOT NULL,
		event_id UUID NOT NULL,
		section TEXT NOT NULL,
		row_no INT NOT NULL,
		seat_number INT NOT NULL,
		tier TEXT NOT NULL,
		price_minor INT8 NOT NULL,
		status TEXT NOT NULL DEFAULT 'AVAILABLE' CHECK (status IN ('AVAILABLE', 'HELD', 'CONFIRMED', 'BLOCKED')),
		hold_id UUID NULL,
		holder_ref TEXT NULL,
		hold_expiry TIMESTAMPTZ NULL,
		UNIQUE (tenant_id, event_id, section, row_no, seat_number)
	)`,
	`CREATE INDEX IF NOT EXISTS seats_event_status_idx ON seats (tenant_id, event_id, status)`,
	`CREATE TABLE IF NOT EXISTS ticket_classes (
		id UUID PRIMARY KEY,
		tenant_id UUID NOT NULL,
		event_id UUID NOT NULL,
		name TEXT NOT NULL,
		quantity INT NOT NULL,
		sold INT NOT NULL DEFAULT 0,
		held INT NOT NULL DEFAULT 0,
		price_minor INT8 NOT NULL,
		min_per_order INT NOT NULL DEFAULT 0,
		max_per_order INT NOT NULL DEFAULT 0,
		sales_start_at TIMESTAMPTZ NULL,
		sales_end_at TIMESTAMPTZ NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (tenant_id, event_id, name),
		CHECK (held >= 0 AND held <= sold AND sold <= quantity)
	)`,
	`CREATE TABLE IF NOT EXISTS holds (
		id UUID PRIMARY KEY,
		tenant_id UUID NOT NULL,
		event_id UUID NOT NULL,
		kind TEXT NOT NULL CHECK (kind IN ('seat', 'ticket_class')),
		seat_id UUID NULL,
		ticket_class TEXT NULL,
		quantity INT NOT NULL,
		holder_ref TEXT NOT NULL,
		unit_price_minor INT8 NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('HELD', 'CONFIRMED', 'RELEASED', 'EXPIRED')),
		release_reason TEXT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL,
		confirmed_at TIMESTAMPTZ NULL,
		subtotal_minor INT8 NULL,
		tax_minor INT8 NULL,
		total_minor INT8 NULL,
		tax_rate TEXT NULL,
		currency TEXT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS holds_status_expiry_idx ON holds (status, expires_at)`,
	`CREATE INDEX IF NOT EXISTS holds_event_idx ON holds (tenant_id, event_id, status)`,
	`CREATE TABLE IF NOT EXISTS floor_plan_configs (
		tenant_id UUID NOT NULL,
		event_id UUID NOT NULL,
		definition JSONB NOT NULL,
		tier_counts JSONB NOT NULL,
		total_seats INT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (tenant_id, event_id)
	)`,
	`CREATE TABLE IF NOT EXISTS event_settings (
		tenant_id UUID NOT NULL,
		event_id UUID NOT NULL,
		tax_rate TEXT NOT NULL DEFAULT '0',
		hold_ttl_seconds INT NOT NULL DEFAULT 0,
		currency TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (tenant_id, event_id)
	)`,
	`CREATE TABLE IF NOT EXISTS outbox (
		id UUID PRIMARY KEY,
		aggregate_type TEXT NOT NULL,
		aggregate_id UUID NOT NULL,
		event_type TEXT NOT NULL,
		payload_json JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		published_at TIMESTAMPTZ NULL,
		status TEXT NOT NULL CHECK (status IN ('NEW', 'PUBLISHED', 'FAILED')),
		dedupe_key TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS outbox_status_idx ON outbox (status, created_at)`,
}

// Migrate creates the tables if they are missing.
func (r *Repository) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
