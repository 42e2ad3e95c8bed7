package postgres

// Schema is the DDL for this core's five tables. It is applied once by
// cmd/migrate; there is no online ALTER/rollback story here, just
// CREATE TABLE IF NOT EXISTS so re-running migrate is a no-op on an
// already-provisioned database.
const Schema = `
CREATE TABLE IF NOT EXISTS telemetry_events (
	event_id        TEXT PRIMARY KEY,
	event_type      TEXT NOT NULL,
	customer_id     TEXT NOT NULL,
	event_time      TIMESTAMPTZ NOT NULL,
	ingestion_time  TIMESTAMPTZ NOT NULL,
	metadata        JSONB,
	source          TEXT
);

CREATE INDEX IF NOT EXISTS idx_telemetry_events_customer_time
	ON telemetry_events (customer_id, event_time);

CREATE TABLE IF NOT EXISTS aggregated_usage (
	aggregation_id    TEXT PRIMARY KEY,
	customer_id       TEXT NOT NULL,
	metric_type       TEXT NOT NULL,
	window_start      TIMESTAMPTZ NOT NULL,
	window_end        TIMESTAMPTZ NOT NULL,
	value             NUMERIC(20,6) NOT NULL,
	unit              TEXT NOT NULL,
	event_count       INTEGER NOT NULL DEFAULT 0,
	event_ids         TEXT[] NOT NULL DEFAULT '{}',
	is_final          BOOLEAN NOT NULL DEFAULT false,
	version           INTEGER NOT NULL DEFAULT 0,
	computed_at       TIMESTAMPTZ NOT NULL,
	rerating_job_id   TEXT
);

-- One open-or-final row per (customer, metric, window) outside the
-- re-rating path; a non-null rerating_job_id lets a superseding
-- aggregation coexist with the original for the same window.
CREATE UNIQUE INDEX IF NOT EXISTS idx_aggregated_usage_window
	ON aggregated_usage (customer_id, metric_type, window_start)
	WHERE rerating_job_id IS NULL;

CREATE INDEX IF NOT EXISTS idx_aggregated_usage_expiry
	ON aggregated_usage (is_final, window_end);

CREATE TABLE IF NOT EXISTS price_books (
	price_book_id    TEXT PRIMARY KEY,
	name             TEXT NOT NULL,
	version          INTEGER NOT NULL,
	effective_from   TIMESTAMPTZ NOT NULL,
	effective_until  TIMESTAMPTZ,
	currency         TEXT NOT NULL,
	parent_id        TEXT,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_price_books_effective
	ON price_books (effective_from, effective_until);

CREATE TABLE IF NOT EXISTS price_rules (
	rule_id          TEXT PRIMARY KEY,
	price_book_id    TEXT NOT NULL REFERENCES price_books (price_book_id),
	metric_type      TEXT NOT NULL,
	pricing_model    TEXT NOT NULL,
	tiers            JSONB NOT NULL,
	unit             TEXT NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (price_book_id, metric_type)
);

CREATE TABLE IF NOT EXISTS rated_charges (
	charge_id             TEXT PRIMARY KEY,
	customer_id           TEXT NOT NULL,
	aggregation_id        TEXT REFERENCES aggregated_usage (aggregation_id),
	price_book_id         TEXT NOT NULL REFERENCES price_books (price_book_id),
	price_version         INTEGER NOT NULL,
	rule_id               TEXT NOT NULL REFERENCES price_rules (rule_id),
	quantity              NUMERIC(20,6) NOT NULL,
	unit_price            NUMERIC(20,6) NOT NULL,
	subtotal              NUMERIC(20,2) NOT NULL,
	currency              TEXT NOT NULL,
	calculation_metadata  JSONB,
	calculated_at         TIMESTAMPTZ NOT NULL,
	rerating_job_id       TEXT,
	supersedes_charge_id  TEXT REFERENCES rated_charges (charge_id)
);

CREATE INDEX IF NOT EXISTS idx_rated_charges_customer_period
	ON rated_charges (customer_id, calculated_at);

CREATE INDEX IF NOT EXISTS idx_rated_charges_aggregation
	ON rated_charges (aggregation_id);
`
