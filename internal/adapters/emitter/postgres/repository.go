package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"gestaofiscal/ms_nfe_core/internal/core/emitter"
)

// ErrNotFound is returned when no emitter matches the lookup.
var ErrNotFound = emitter.ErrNotFound

// Repository implements emitter.Repository over PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// NewRepository creates a PostgreSQL emitter repository.
func NewRepository(pool *pgxpool.Pool, log *slog.Logger) emitter.Repository {
	return &Repository{pool: pool, log: log}
}

const emitterColumns = `
	id, legal_name, trade_name, cnpj, state_registration, city_registration,
	tax_regime, street, number, complement, district, city_code, city, uf,
	zip_code, phone, email, serie, last_number, environment,
	resptec_cnpj, resptec_contact, resptec_email, resptec_phone,
	certificate_ref, created_at, updated_at`

func scanEmitter(row pgx.Row) (*emitter.Emitter, error) {
	var e emitter.Emitter
	err := row.Scan(
		&e.ID, &e.LegalName, &e.TradeName, &e.CNPJ, &e.StateRegistration, &e.CityRegistration,
		&e.Regime, &e.Address.Street, &e.Address.Number, &e.Address.Complement, &e.Address.District,
		&e.Address.CityCode, &e.Address.City, &e.Address.UF,
		&e.Address.ZipCode, &e.Phone, &e.Email, &e.Serie, &e.LastNumber, &e.Environment,
		&e.RespTec.CNPJ, &e.RespTec.Contact, &e.RespTec.Email, &e.RespTec.Phone,
		&e.CertificateRef, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan emitter: %w", err)
	}
	return &e, nil
}

// FindByID fetches an emitter by primary key.
func (r *Repository) FindByID(ctx context.Context, id int64) (*emitter.Emitter, error) {
	query := `SELECT` + emitterColumns + ` FROM emitters WHERE id = $1`
	return scanEmitter(r.pool.QueryRow(ctx, query, id))
}

// FindByCNPJ fetches an emitter by its 14-digit CNPJ.
func (r *Repository) FindByCNPJ(ctx context.Context, cnpj string) (*emitter.Emitter, error) {
	query := `SELECT` + emitterColumns + ` FROM emitters WHERE cnpj = $1`
	return scanEmitter(r.pool.QueryRow(ctx, query, cnpj))
}

// AllocateNumber reserves the next sequential number of (emitter, serie)
// under a row lock, so concurrent emissions never draw the same number and
// the sequence has no gaps beyond explicit inutilizations.
func (r *Repository) AllocateNumber(ctx context.Context, emitterID int64, serie int) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var last int64
	err = tx.QueryRow(ctx,
		`SELECT last_number FROM emitter_series WHERE emitter_id = $1 AND serie = $2 FOR UPDATE`,
		emitterID, serie,
	).Scan(&last)
	if errors.Is(err, pgx.ErrNoRows) {
		// first emission of this series
		err = tx.QueryRow(ctx,
			`INSERT INTO emitter_series (emitter_id, serie, last_number) VALUES ($1, $2, 0) RETURNING last_number`,
			emitterID, serie,
		).Scan(&last)
	}
	if err != nil {
		return 0, fmt.Errorf("lock series counter: %w", err)
	}

	next := last + 1
	if _, err := tx.Exec(ctx,
		`UPDATE emitter_series SET last_number = $1, updated_at = now() WHERE emitter_id = $2 AND serie = $3`,
		next, emitterID, serie,
	); err != nil {
		return 0, fmt.Errorf("advance series counter: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit number allocation: %w", err)
	}

	r.log.Debug("allocated invoice number",
		"emitter_id", emitterID,
		"serie", serie,
		"number", next)
	return next, nil
}
