package testutil

import (
	"context"

	"gestaofiscal/ms_nfe_core/internal/adapters/sefaz"
	"gestaofiscal/ms_nfe_core/internal/core/emitter"
	"gestaofiscal/ms_nfe_core/internal/core/outcome"
)

// MockTransmitter is a mock implementation of the SEFAZ exchange surface.
type MockTransmitter struct {
	AuthorizeFunc    func(ctx context.Context, uf string, env emitter.Environment, lote int64, signedNFe []byte) (*sefaz.AuthorizeReply, error)
	QueryReceiptFunc func(ctx context.Context, uf string, env emitter.Environment, receipt string) (*outcome.Result, error)
	ConsultFunc      func(ctx context.Context, uf string, env emitter.Environment, accessKey string) (*outcome.Result, error)
	StatusFunc       func(ctx context.Context, uf string, env emitter.Environment) (*outcome.Result, error)
	SendEventFunc    func(ctx context.Context, uf string, env emitter.Environment, lote int64, signedEvento []byte) (*outcome.Result, error)
	InutilizeFunc    func(ctx context.Context, uf string, env emitter.Environment, signedInut []byte) (*outcome.Result, error)
}

func (m *MockTransmitter) Authorize(ctx context.Context, uf string, env emitter.Environment, lote int64, signedNFe []byte) (*sefaz.AuthorizeReply, error) {
	if m.AuthorizeFunc != nil {
		return m.AuthorizeFunc(ctx, uf, env, lote, signedNFe)
	}
	return &sefaz.AuthorizeReply{Outcome: &outcome.Result{Kind: outcome.KindAuthorized, Code: "100"}}, nil
}

func (m *MockTransmitter) QueryReceipt(ctx context.Context, uf string, env emitter.Environment, receipt string) (*outcome.Result, error) {
	if m.QueryReceiptFunc != nil {
		return m.QueryReceiptFunc(ctx, uf, env, receipt)
	}
	return &outcome.Result{Kind: outcome.KindAuthorized, Code: "100"}, nil
}

func (m *MockTransmitter) Consult(ctx context.Context, uf string, env emitter.Environment, accessKey string) (*outcome.Result, error) {
	if m.ConsultFunc != nil {
		return m.ConsultFunc(ctx, uf, env, accessKey)
	}
	return &outcome.Result{Kind: outcome.KindAuthorized, Code: "100"}, nil
}

func (m *MockTransmitter) Status(ctx context.Context, uf string, env emitter.Environment) (*outcome.Result, error) {
	if m.StatusFunc != nil {
		return m.StatusFunc(ctx, uf, env)
	}
	return &outcome.Result{Kind: outcome.KindServiceUp, Code: "107"}, nil
}

func (m *MockTransmitter) SendEvent(ctx context.Context, uf string, env emitter.Environment, lote int64, signedEvento []byte) (*outcome.Result, error) {
	if m.SendEventFunc != nil {
		return m.SendEventFunc(ctx, uf, env, lote, signedEvento)
	}
	return &outcome.Result{Kind: outcome.KindEventAccepted, Code: "135"}, nil
}

func (m *MockTransmitter) Inutilize(ctx context.Context, uf string, env emitter.Environment, signedInut []byte) (*outcome.Result, error) {
	if m.InutilizeFunc != nil {
		return m.InutilizeFunc(ctx, uf, env, signedInut)
	}
	return &outcome.Result{Kind: outcome.KindEventAccepted, Code: "102"}, nil
}

// MockSigner is a mock signer that marks the payload instead of producing a
// real XML-DSIG envelope.
type MockSigner struct {
	SignFunc   func(doc []byte, referenceURI string) ([]byte, error)
	VerifyFunc func(signed []byte) error
}

func (m *MockSigner) Sign(doc []byte, referenceURI string) ([]byte, error) {
	if m.SignFunc != nil {
		return m.SignFunc(doc, referenceURI)
	}
	return doc, nil
}

func (m *MockSigner) Verify(signed []byte) error {
	if m.VerifyFunc != nil {
		return m.VerifyFunc(signed)
	}
	return nil
}
