package invoice

import (
	"context"
	"errors"
)

// ErrNotFound is returned by lookups that match no invoice.
var ErrNotFound = errors.New("invoice not found")

// Repository persists invoices and their items.
type Repository interface {
	// Save inserts a new invoice with its items.
	Save(ctx context.Context, inv *Invoice) error

	// Update persists lifecycle fields of an existing invoice: status,
	// access key, protocol, authorization timestamp, raw request/response.
	Update(ctx context.Context, inv *Invoice) error

	// FindByAccessKey returns the invoice with the given 44-digit key.
	FindByAccessKey(ctx context.Context, accessKey string) (*Invoice, error)

	// FindBySeriesNumber returns the invoice with the given emitter, serie
	// and sequential number.
	FindBySeriesNumber(ctx context.Context, emitterID int64, serie int, number int64) (*Invoice, error)
}
