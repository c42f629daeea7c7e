package testutil

import (
	"context"

	"gestaofiscal/ms_nfe_core/internal/core/emitter"
	"gestaofiscal/ms_nfe_core/internal/core/event"
	"gestaofiscal/ms_nfe_core/internal/core/invoice"
)

// MockEmitterRepo is a mock implementation of emitter.Repository for testing.
type MockEmitterRepo struct {
	FindByIDFunc       func(ctx context.Context, id int64) (*emitter.Emitter, error)
	FindByCNPJFunc     func(ctx context.Context, cnpj string) (*emitter.Emitter, error)
	AllocateNumberFunc func(ctx context.Context, emitterID int64, serie int) (int64, error)
}

// FindByID calls the mock function if set, otherwise reports not found.
func (m *MockEmitterRepo) FindByID(ctx context.Context, id int64) (*emitter.Emitter, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, id)
	}
	return nil, emitter.ErrNotFound
}

// FindByCNPJ calls the mock function if set, otherwise reports not found.
func (m *MockEmitterRepo) FindByCNPJ(ctx context.Context, cnpj string) (*emitter.Emitter, error) {
	if m.FindByCNPJFunc != nil {
		return m.FindByCNPJFunc(ctx, cnpj)
	}
	return nil, emitter.ErrNotFound
}

// AllocateNumber calls the mock function if set, otherwise returns 1.
func (m *MockEmitterRepo) AllocateNumber(ctx context.Context, emitterID int64, serie int) (int64, error) {
	if m.AllocateNumberFunc != nil {
		return m.AllocateNumberFunc(ctx, emitterID, serie)
	}
	return 1, nil
}

// MockInvoiceRepo is a mock implementation of invoice.Repository for testing.
type MockInvoiceRepo struct {
	SaveFunc               func(ctx context.Context, inv *invoice.Invoice) error
	UpdateFunc             func(ctx context.Context, inv *invoice.Invoice) error
	FindByAccessKeyFunc    func(ctx context.Context, accessKey string) (*invoice.Invoice, error)
	FindBySeriesNumberFunc func(ctx context.Context, emitterID int64, serie int, number int64) (*invoice.Invoice, error)
}

// Save calls the mock function if set, otherwise succeeds.
func (m *MockInvoiceRepo) Save(ctx context.Context, inv *invoice.Invoice) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, inv)
	}
	return nil
}

// Update calls the mock function if set, otherwise succeeds.
func (m *MockInvoiceRepo) Update(ctx context.Context, inv *invoice.Invoice) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, inv)
	}
	return nil
}

// FindByAccessKey calls the mock function if set, otherwise reports not found.
func (m *MockInvoiceRepo) FindByAccessKey(ctx context.Context, accessKey string) (*invoice.Invoice, error) {
	if m.FindByAccessKeyFunc != nil {
		return m.FindByAccessKeyFunc(ctx, accessKey)
	}
	return nil, invoice.ErrNotFound
}

// FindBySeriesNumber calls the mock function if set, otherwise reports not found.
func (m *MockInvoiceRepo) FindBySeriesNumber(ctx context.Context, emitterID int64, serie int, number int64) (*invoice.Invoice, error) {
	if m.FindBySeriesNumberFunc != nil {
		return m.FindBySeriesNumberFunc(ctx, emitterID, serie, number)
	}
	return nil, invoice.ErrNotFound
}

// MockEventRepo is a mock implementation of event.Repository for testing.
type MockEventRepo struct {
	SaveEventFunc           func(ctx context.Context, e *event.FiscalEvent) error
	UpdateEventFunc         func(ctx context.Context, e *event.FiscalEvent) error
	NextSequenceFunc        func(ctx context.Context, accessKey string, code event.Code) (int, error)
	ListByAccessKeyFunc     func(ctx context.Context, accessKey string) ([]event.FiscalEvent, error)
	SaveInutilizationFunc   func(ctx context.Context, inut *event.Inutilization) error
	UpdateInutilizationFunc func(ctx context.Context, inut *event.Inutilization) error
	IsNumberInutilizedFunc  func(ctx context.Context, emitterID int64, serie int, number int64) (bool, error)
}

// SaveEvent calls the mock function if set, otherwise succeeds.
func (m *MockEventRepo) SaveEvent(ctx context.Context, e *event.FiscalEvent) error {
	if m.SaveEventFunc != nil {
		return m.SaveEventFunc(ctx, e)
	}
	return nil
}

// UpdateEvent calls the mock function if set, otherwise succeeds.
func (m *MockEventRepo) UpdateEvent(ctx context.Context, e *event.FiscalEvent) error {
	if m.UpdateEventFunc != nil {
		return m.UpdateEventFunc(ctx, e)
	}
	return nil
}

// NextSequence calls the mock function if set, otherwise returns 1.
func (m *MockEventRepo) NextSequence(ctx context.Context, accessKey string, code event.Code) (int, error) {
	if m.NextSequenceFunc != nil {
		return m.NextSequenceFunc(ctx, accessKey, code)
	}
	return 1, nil
}

// ListByAccessKey calls the mock function if set, otherwise returns an empty slice.
func (m *MockEventRepo) ListByAccessKey(ctx context.Context, accessKey string) ([]event.FiscalEvent, error) {
	if m.ListByAccessKeyFunc != nil {
		return m.ListByAccessKeyFunc(ctx, accessKey)
	}
	return []event.FiscalEvent{}, nil
}

// SaveInutilization calls the mock function if set, otherwise succeeds.
func (m *MockEventRepo) SaveInutilization(ctx context.Context, inut *event.Inutilization) error {
	if m.SaveInutilizationFunc != nil {
		return m.SaveInutilizationFunc(ctx, inut)
	}
	return nil
}

// UpdateInutilization calls the mock function if set, otherwise succeeds.
func (m *MockEventRepo) UpdateInutilization(ctx context.Context, inut *event.Inutilization) error {
	if m.UpdateInutilizationFunc != nil {
		return m.UpdateInutilizationFunc(ctx, inut)
	}
	return nil
}

// IsNumberInutilized calls the mock function if set, otherwise returns false.
func (m *MockEventRepo) IsNumberInutilized(ctx context.Context, emitterID int64, serie int, number int64) (bool, error) {
	if m.IsNumberInutilizedFunc != nil {
		return m.IsNumberInutilizedFunc(ctx, emitterID, serie, number)
	}
	return false, nil
}
