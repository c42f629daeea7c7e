package emitter

import (
	"context"
	"errors"
)

// ErrNotFound is returned by lookups that match no emitter.
var ErrNotFound = errors.New("emitter not found")

// Repository persists emitters and owns the per-series number counter.
type Repository interface {
	// FindByID returns the emitter with the given id.
	FindByID(ctx context.Context, id int64) (*Emitter, error)

	// FindByCNPJ returns the emitter with the given 14-digit CNPJ.
	FindByCNPJ(ctx context.Context, cnpj string) (*Emitter, error)

	// AllocateNumber atomically reserves the next sequential number for
	// (emitter, serie). Implementations must hold a row lock on the emitter's
	// counter for the duration of the allocation so that the sequence is
	// strictly monotonic with no duplicates under concurrent emission.
	AllocateNumber(ctx context.Context, emitterID int64, serie int) (int64, error)
}
