package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"gestaofiscal/ms_nfe_core/internal/core/event"
)

// ErrNotFound is returned when an update matches no row.
var ErrNotFound = event.ErrNotFound

// Repository implements event.Repository over PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// NewRepository creates a PostgreSQL event repository.
func NewRepository(pool *pgxpool.Pool, log *slog.Logger) event.Repository {
	return &Repository{pool: pool, log: log}
}

// SaveEvent inserts a new event record.
func (r *Repository) SaveEvent(ctx context.Context, e *event.FiscalEvent) error {
	query := `
		INSERT INTO fiscal_events (
			access_key, code, sequence, event_at, body, auth_protocol,
			status, protocol, raw_request, raw_response
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at`

	err := r.pool.QueryRow(ctx, query,
		e.AccessKey, string(e.Code), e.Sequence, e.Timestamp, e.Body, e.AuthProtocol,
		e.Status, e.Protocol, e.RawRequest, e.RawResponse,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// UpdateEvent persists the result fields of an event.
func (r *Repository) UpdateEvent(ctx context.Context, e *event.FiscalEvent) error {
	query := `
		UPDATE fiscal_events SET
			status = $1, protocol = $2, raw_request = $3, raw_response = $4
		WHERE id = $5`

	tag, err := r.pool.Exec(ctx, query, e.Status, e.Protocol, e.RawRequest, e.RawResponse, e.ID)
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// NextSequence returns 1 + the highest homologated sequence for the access
// key and code. Rejected attempts do not consume a sequence.
func (r *Repository) NextSequence(ctx context.Context, accessKey string, code event.Code) (int, error) {
	var max int
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(sequence), 0) FROM fiscal_events
		 WHERE access_key = $1 AND code = $2 AND status = $3`,
		accessKey, string(code), event.StatusAuthorized,
	).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("query event sequence: %w", err)
	}
	return max + 1, nil
}

// ListByAccessKey returns every event registered for a document, oldest
// first.
func (r *Repository) ListByAccessKey(ctx context.Context, accessKey string) ([]event.FiscalEvent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, access_key, code, sequence, event_at, body, auth_protocol,
		        status, protocol, raw_request, raw_response, created_at
		 FROM fiscal_events WHERE access_key = $1 ORDER BY created_at`,
		accessKey)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []event.FiscalEvent
	for rows.Next() {
		var e event.FiscalEvent
		if err := rows.Scan(
			&e.ID, &e.AccessKey, &e.Code, &e.Sequence, &e.Timestamp, &e.Body, &e.AuthProtocol,
			&e.Status, &e.Protocol, &e.RawRequest, &e.RawResponse, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// SaveInutilization inserts a new inutilization record.
func (r *Repository) SaveInutilization(ctx context.Context, inut *event.Inutilization) error {
	query := `
		INSERT INTO inutilizations (
			emitter_id, year, model, serie, number_first, number_last,
			justification, status, protocol, raw_request, raw_response
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at`

	err := r.pool.QueryRow(ctx, query,
		inut.EmitterID, inut.Year, inut.Model, inut.Serie, inut.NumberFirst, inut.NumberLast,
		inut.Justification, inut.Status, inut.Protocol, inut.RawRequest, inut.RawResponse,
	).Scan(&inut.ID, &inut.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert inutilization: %w", err)
	}
	return nil
}

// UpdateInutilization persists the result fields of an inutilization.
func (r *Repository) UpdateInutilization(ctx context.Context, inut *event.Inutilization) error {
	query := `
		UPDATE inutilizations SET
			status = $1, protocol = $2, raw_request = $3, raw_response = $4
		WHERE id = $5`

	tag, err := r.pool.Exec(ctx, query, inut.Status, inut.Protocol, inut.RawRequest, inut.RawResponse, inut.ID)
	if err != nil {
		return fmt.Errorf("update inutilization: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// IsNumberInutilized reports whether a homologated inutilization covers the
// (emitter, serie, number) triple.
func (r *Repository) IsNumberInutilized(ctx context.Context, emitterID int64, serie int, number int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM inutilizations
			WHERE emitter_id = $1 AND serie = $2 AND status = $3
			  AND $4 BETWEEN number_first AND number_last
		 )`,
		emitterID, serie, event.StatusAuthorized, number,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query inutilizations: %w", err)
	}
	return exists, nil
}
