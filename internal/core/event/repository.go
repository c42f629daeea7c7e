package event

import (
	"context"
	"errors"
)

// ErrNotFound is returned by updates that match no stored record.
var ErrNotFound = errors.New("event not found")

// Repository persists fiscal events and inutilizations.
type Repository interface {
	// SaveEvent inserts a new event record.
	SaveEvent(ctx context.Context, e *FiscalEvent) error

	// UpdateEvent persists result fields: status, protocol, raw XML.
	UpdateEvent(ctx context.Context, e *FiscalEvent) error

	// NextSequence returns 1 + the highest homologated sequence for the given
	// access key and event code. Rejected sequences may be reused.
	NextSequence(ctx context.Context, accessKey string, code Code) (int, error)

	// ListByAccessKey returns every event registered for a document.
	ListByAccessKey(ctx context.Context, accessKey string) ([]FiscalEvent, error)

	// SaveInutilization inserts a new inutilization record.
	SaveInutilization(ctx context.Context, inut *Inutilization) error

	// UpdateInutilization persists result fields of an inutilization.
	UpdateInutilization(ctx context.Context, inut *Inutilization) error

	// IsNumberInutilized reports whether a homologated inutilization covers
	// the given (emitter, serie, number).
	IsNumberInutilized(ctx context.Context, emitterID int64, serie int, number int64) (bool, error)
}
