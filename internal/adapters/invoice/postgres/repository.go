package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"gestaofiscal/ms_nfe_core/internal/core/invoice"
)

// ErrNotFound is returned when no invoice matches the lookup.
var ErrNotFound = invoice.ErrNotFound

// Repository implements invoice.Repository over PostgreSQL. Items, the
// destination snapshot and the totals block are stored as JSONB next to the
// lifecycle columns that are queried relationally.
type Repository struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// NewRepository creates a PostgreSQL invoice repository.
func NewRepository(pool *pgxpool.Pool, log *slog.Logger) invoice.Repository {
	return &Repository{pool: pool, log: log}
}

type documentBlob struct {
	NatOp          string                `json:"nat_op"`
	Operation      invoice.OperationType `json:"operation"`
	Purpose        invoice.Purpose       `json:"purpose"`
	FinalConsumer  int                   `json:"final_consumer"`
	Presence       int                   `json:"presence"`
	Destination    invoice.Destination   `json:"destination"`
	Freight        invoice.FreightModality `json:"freight"`
	Transporter    *invoice.Transporter  `json:"transporter,omitempty"`
	Payment        invoice.Payment       `json:"payment"`
	Discount       decimal.Decimal       `json:"discount"`
	AdditionalInfo string                `json:"additional_info,omitempty"`
	FiscalInfo     string                `json:"fiscal_info,omitempty"`
	Totals         invoice.Totals        `json:"totals"`
	Items          []invoice.Item        `json:"items"`
	RejectionCode  string                `json:"rejection_code,omitempty"`
}

func blobOf(inv *invoice.Invoice) documentBlob {
	return documentBlob{
		NatOp:          inv.NatOp,
		Operation:      inv.Operation,
		Purpose:        inv.Purpose,
		FinalConsumer:  inv.FinalConsumer,
		Presence:       inv.Presence,
		Destination:    inv.Destination,
		Freight:        inv.Freight,
		Transporter:    inv.Transporter,
		Payment:        inv.Payment,
		Discount:       inv.Discount,
		AdditionalInfo: inv.AdditionalInfo,
		FiscalInfo:     inv.FiscalInfo,
		Totals:         inv.Totals,
		Items:          inv.Items,
		RejectionCode:  inv.RejectionCode,
	}
}

func (b documentBlob) fill(inv *invoice.Invoice) {
	inv.NatOp = b.NatOp
	inv.Operation = b.Operation
	inv.Purpose = b.Purpose
	inv.FinalConsumer = b.FinalConsumer
	inv.Presence = b.Presence
	inv.Destination = b.Destination
	inv.Freight = b.Freight
	inv.Transporter = b.Transporter
	inv.Payment = b.Payment
	inv.Discount = b.Discount
	inv.AdditionalInfo = b.AdditionalInfo
	inv.FiscalInfo = b.FiscalInfo
	inv.Totals = b.Totals
	inv.Items = b.Items
	inv.RejectionCode = b.RejectionCode
}

// Save inserts a new invoice with its document payload.
func (r *Repository) Save(ctx context.Context, inv *invoice.Invoice) error {
	payload, err := json.Marshal(blobOf(inv))
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	query := `
		INSERT INTO invoices (
			emitter_id, access_key, serie, number, model, emitted_at,
			status, protocol, authorized_at, raw_request, raw_response, document
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at, updated_at`

	err = r.pool.QueryRow(ctx, query,
		inv.EmitterID, nullable(inv.AccessKey), inv.Serie, inv.Number, inv.Model, inv.EmittedAt,
		inv.Status, nullable(inv.Protocol), inv.AuthorizedAt, inv.RawRequest, inv.RawResponse, payload,
	).Scan(&inv.ID, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert invoice: %w", err)
	}
	return nil
}

// Update persists the lifecycle fields and the refreshed document payload.
func (r *Repository) Update(ctx context.Context, inv *invoice.Invoice) error {
	payload, err := json.Marshal(blobOf(inv))
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	query := `
		UPDATE invoices SET
			access_key = $1, status = $2, protocol = $3, authorized_at = $4,
			raw_request = $5, raw_response = $6, document = $7, updated_at = now()
		WHERE id = $8`

	tag, err := r.pool.Exec(ctx, query,
		nullable(inv.AccessKey), inv.Status, nullable(inv.Protocol), inv.AuthorizedAt,
		inv.RawRequest, inv.RawResponse, payload, inv.ID,
	)
	if err != nil {
		return fmt.Errorf("update invoice: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const invoiceColumns = `
	id, emitter_id, COALESCE(access_key, ''), serie, number, model, emitted_at,
	status, COALESCE(protocol, ''), authorized_at, raw_request, raw_response,
	document, created_at, updated_at`

func scanInvoice(row pgx.Row) (*invoice.Invoice, error) {
	var inv invoice.Invoice
	var payload []byte
	err := row.Scan(
		&inv.ID, &inv.EmitterID, &inv.AccessKey, &inv.Serie, &inv.Number, &inv.Model, &inv.EmittedAt,
		&inv.Status, &inv.Protocol, &inv.AuthorizedAt, &inv.RawRequest, &inv.RawResponse,
		&payload, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan invoice: %w", err)
	}

	var blob documentBlob
	if err := json.Unmarshal(payload, &blob); err != nil {
		return nil, fmt.Errorf("unmarshal document: %w", err)
	}
	blob.fill(&inv)
	return &inv, nil
}

// FindByAccessKey returns the invoice with the given 44-digit key.
func (r *Repository) FindByAccessKey(ctx context.Context, accessKey string) (*invoice.Invoice, error) {
	query := `SELECT` + invoiceColumns + ` FROM invoices WHERE access_key = $1`
	return scanInvoice(r.pool.QueryRow(ctx, query, accessKey))
}

// FindBySeriesNumber returns the invoice with the given emitter, serie and
// sequential number.
func (r *Repository) FindBySeriesNumber(ctx context.Context, emitterID int64, serie int, number int64) (*invoice.Invoice, error) {
	query := `SELECT` + invoiceColumns + ` FROM invoices WHERE emitter_id = $1 AND serie = $2 AND number = $3`
	return scanInvoice(r.pool.QueryRow(ctx, query, emitterID, serie, number))
}

// nullable maps empty strings to NULL so partial unique indexes on access_key
// and protocol ignore unset values.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
