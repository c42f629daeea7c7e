package fiscal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"gestaofiscal/ms_nfe_core/internal/adapters/sefaz"
	"gestaofiscal/ms_nfe_core/internal/adapters/sefaz/layout"
	"gestaofiscal/ms_nfe_core/internal/core/emitter"
	"gestaofiscal/ms_nfe_core/internal/core/event"
	"gestaofiscal/ms_nfe_core/internal/core/invoice"
	"gestaofiscal/ms_nfe_core/internal/core/outcome"
)

// Transmitter is the SEFAZ exchange surface the service depends on.
// *sefaz.Client satisfies it; tests substitute fakes.
type Transmitter interface {
	Authorize(ctx context.Context, uf string, env emitter.Environment, lote int64, signedNFe []byte) (*sefaz.AuthorizeReply, error)
	QueryReceipt(ctx context.Context, uf string, env emitter.Environment, receipt string) (*outcome.Result, error)
	Consult(ctx context.Context, uf string, env emitter.Environment, accessKey string) (*outcome.Result, error)
	Status(ctx context.Context, uf string, env emitter.Environment) (*outcome.Result, error)
	SendEvent(ctx context.Context, uf string, env emitter.Environment, lote int64, signedEvento []byte) (*outcome.Result, error)
	Inutilize(ctx context.Context, uf string, env emitter.Environment, signedInut []byte) (*outcome.Result, error)
}

// Signer attaches an enveloped signature over the element carrying the
// referenced Id attribute. Verify recomputes the reference digest and checks
// the signature value of a document produced by Sign; no document advances to
// signed without passing it.
type Signer interface {
	Sign(doc []byte, referenceURI string) ([]byte, error)
	Verify(signed []byte) error
}

// SchemaValidator checks serialized documents against the official XSD set.
type SchemaValidator interface {
	Validate(xml []byte) error
}

// Config carries the orchestration knobs of the fiscal service.
type Config struct {
	// ReceiptPollAttempts bounds how many times an asynchronous batch
	// receipt is polled before giving up and leaving the invoice as
	// transmitted for a later consult.
	ReceiptPollAttempts int
	// ReceiptPollInterval is the pause between receipt polls.
	ReceiptPollInterval time.Duration
	// BatchWorkers sizes the emission worker pool.
	BatchWorkers int
}

const (
	defaultReceiptPollAttempts = 5
	defaultReceiptPollInterval = 2 * time.Second
	defaultBatchWorkers        = 4

	// codeBatchProcessing is cStat 105: lote em processamento.
	codeBatchProcessing = "105"
)

// StateError reports an operation refused by the document's current lifecycle
// state, as opposed to malformed input or an upstream failure.
type StateError struct {
	Msg string
}

func (e *StateError) Error() string { return e.Msg }

func stateErrorf(format string, args ...any) *StateError {
	return &StateError{Msg: fmt.Sprintf(format, args...)}
}

// Service orchestrates the full emission lifecycle: numbering, layout
// building, signing, transmission and the resulting state transitions.
type Service struct {
	emitters emitter.Repository
	invoices invoice.Repository
	events   event.Repository
	builder  *layout.Builder
	signer   Signer
	schema   SchemaValidator
	client   Transmitter
	log      *slog.Logger
	cfg      Config

	lote atomic.Int64
}

// NewService wires the fiscal orchestrator.
func NewService(
	emitters emitter.Repository,
	invoices invoice.Repository,
	events event.Repository,
	builder *layout.Builder,
	signer Signer,
	schema SchemaValidator,
	client Transmitter,
	log *slog.Logger,
	cfg Config,
) *Service {
	if cfg.ReceiptPollAttempts <= 0 {
		cfg.ReceiptPollAttempts = defaultReceiptPollAttempts
	}
	if cfg.ReceiptPollInterval <= 0 {
		cfg.ReceiptPollInterval = defaultReceiptPollInterval
	}
	if cfg.BatchWorkers <= 0 {
		cfg.BatchWorkers = defaultBatchWorkers
	}
	s := &Service{
		emitters: emitters,
		invoices: invoices,
		events:   events,
		builder:  builder,
		signer:   signer,
		schema:   schema,
		client:   client,
		log:      log,
		cfg:      cfg,
	}
	// lot identifiers only need to be unique per emitter connection
	s.lote.Store(time.Now().UnixMilli())
	return s
}

// EmitResult pairs the persisted invoice with the authority's verdict. After
// a transport failure Outcome is nil and the invoice stays signed, ready for
// an idempotent retransmission of the same bytes.
type EmitResult struct {
	Invoice *invoice.Invoice
	Outcome *outcome.Result
}

// EmitInvoice runs one document through the whole pipeline. The sequential
// number is only drawn after local validation passes, so validation failures
// never consume numbers.
func (s *Service) EmitInvoice(ctx context.Context, emitterID int64, inv *invoice.Invoice) (*EmitResult, error) {
	em, err := s.emitters.FindByID(ctx, emitterID)
	if err != nil {
		return nil, fmt.Errorf("loading emitter %d: %w", emitterID, err)
	}

	inv.EmitterID = em.ID
	inv.Model = 55
	if inv.Serie == 0 {
		inv.Serie = em.Serie
	}
	if inv.EmittedAt.IsZero() {
		inv.EmittedAt = time.Now()
	}
	inv.Status = invoice.StatusDraft

	if err := inv.Validate(); err != nil {
		return nil, outcome.NewBuildError("invoice", err.Error())
	}
	s.advance(inv, invoice.StatusValidated)

	if err := s.allocateNumber(ctx, em, inv); err != nil {
		return nil, err
	}

	if err := s.buildAndSign(em, inv); err != nil {
		return nil, err
	}

	if err := s.invoices.Save(ctx, inv); err != nil {
		return nil, fmt.Errorf("persisting signed invoice: %w", err)
	}

	res, err := s.transmit(ctx, em, inv)
	if err != nil {
		// transport failure: the signed bytes stay persisted for retry
		s.log.Warn("transmission failed, invoice left signed",
			"access_key", inv.AccessKey,
			"error", err)
		return &EmitResult{Invoice: inv}, err
	}

	s.applyAuthorizeOutcome(inv, res)
	if err := s.invoices.Update(ctx, inv); err != nil {
		return nil, fmt.Errorf("persisting outcome: %w", err)
	}

	s.log.Info("invoice emission finished",
		"access_key", inv.AccessKey,
		"status", string(inv.Status),
		"cstat", res.Code)
	return &EmitResult{Invoice: inv, Outcome: res}, nil
}

// RetransmitInvoice resubmits the exact signed bytes of an invoice stuck in
// signed or transmitted after a transport failure. SEFAZ de-duplicates by
// access key, so replaying the same document is safe.
func (s *Service) RetransmitInvoice(ctx context.Context, accessKey string) (*EmitResult, error) {
	inv, err := s.invoices.FindByAccessKey(ctx, accessKey)
	if err != nil {
		return nil, err
	}
	if inv.Status != invoice.StatusSigned && inv.Status != invoice.StatusTransmitted {
		return nil, stateErrorf("invoice %s is %s, not awaiting transmission", accessKey, inv.Status)
	}
	if len(inv.RawRequest) == 0 {
		return nil, stateErrorf("invoice %s has no signed document stored", accessKey)
	}
	em, err := s.emitters.FindByID(ctx, inv.EmitterID)
	if err != nil {
		return nil, fmt.Errorf("loading emitter %d: %w", inv.EmitterID, err)
	}

	// a previous attempt may already have reached transmitted
	inv.Status = invoice.StatusSigned
	res, err := s.transmit(ctx, em, inv)
	if err != nil {
		return &EmitResult{Invoice: inv}, err
	}

	s.applyAuthorizeOutcome(inv, res)
	if err := s.invoices.Update(ctx, inv); err != nil {
		return nil, fmt.Errorf("persisting outcome: %w", err)
	}
	return &EmitResult{Invoice: inv, Outcome: res}, nil
}

// ResubmitInvoice rebuilds a rejected document and submits it again under the
// same (serie, number) pair. Correctable rejections leave the reserved number
// usable; only the cNF nonce, and with it the access key, is drawn fresh. The
// stored row is updated in place, so the rejected version leaves no orphan.
func (s *Service) ResubmitInvoice(ctx context.Context, accessKey string) (*EmitResult, error) {
	inv, err := s.invoices.FindByAccessKey(ctx, accessKey)
	if err != nil {
		return nil, err
	}
	if inv.Status != invoice.StatusRejected {
		return nil, stateErrorf("invoice %s is %s, not rejected", accessKey, inv.Status)
	}
	if inv.RejectionCode != "" && !invoice.CorrectableRejection(inv.RejectionCode) {
		return nil, stateErrorf("rejection %s burned number %d of serie %d; emit a new document",
			inv.RejectionCode, inv.Number, inv.Serie)
	}
	em, err := s.emitters.FindByID(ctx, inv.EmitterID)
	if err != nil {
		return nil, fmt.Errorf("loading emitter %d: %w", inv.EmitterID, err)
	}

	s.advance(inv, invoice.StatusValidated)
	inv.RejectionCode = ""
	inv.Protocol = ""
	inv.RawResponse = nil

	if err := s.buildAndSign(em, inv); err != nil {
		return nil, err
	}
	if err := s.invoices.Update(ctx, inv); err != nil {
		return nil, fmt.Errorf("persisting rebuilt invoice: %w", err)
	}

	res, err := s.transmit(ctx, em, inv)
	if err != nil {
		s.log.Warn("resubmission failed in transit, invoice left signed",
			"access_key", inv.AccessKey,
			"error", err)
		return &EmitResult{Invoice: inv}, err
	}

	s.applyAuthorizeOutcome(inv, res)
	if err := s.invoices.Update(ctx, inv); err != nil {
		return nil, fmt.Errorf("persisting outcome: %w", err)
	}

	s.log.Info("invoice resubmitted",
		"access_key", inv.AccessKey,
		"serie", inv.Serie,
		"number", inv.Number,
		"status", string(inv.Status),
		"cstat", res.Code)
	return &EmitResult{Invoice: inv, Outcome: res}, nil
}

// CancelInvoice registers event 110111 against an authorized document.
func (s *Service) CancelInvoice(ctx context.Context, accessKey, justification string) (*event.FiscalEvent, error) {
	inv, err := s.invoices.FindByAccessKey(ctx, accessKey)
	if err != nil {
		return nil, err
	}
	if !inv.Status.Authorized() {
		return nil, stateErrorf("invoice %s is %s and cannot be cancelled", accessKey, inv.Status)
	}

	ev := &event.FiscalEvent{
		AccessKey:    accessKey,
		Code:         event.CodeCancellation,
		Sequence:     1,
		Timestamp:    time.Now(),
		Body:         justification,
		AuthProtocol: inv.Protocol,
		Status:       event.StatusPending,
	}

	res, err := s.sendEvent(ctx, inv, ev)
	if err != nil {
		return ev, err
	}

	if ev.Status == event.StatusAuthorized {
		inv.Status = invoice.StatusCancelled
		inv.RawResponse = res.RawXML
		if err := s.invoices.Update(ctx, inv); err != nil {
			return ev, fmt.Errorf("persisting cancellation: %w", err)
		}
	}
	return ev, nil
}

// CorrectInvoice registers a correction letter (event 110110). Sequences
// advance only over homologated letters, up to the authority's limit of 20.
func (s *Service) CorrectInvoice(ctx context.Context, accessKey, text string) (*event.FiscalEvent, error) {
	inv, err := s.invoices.FindByAccessKey(ctx, accessKey)
	if err != nil {
		return nil, err
	}
	if !inv.Status.Authorized() {
		return nil, stateErrorf("invoice %s is %s and cannot receive a correction letter", accessKey, inv.Status)
	}

	seq, err := s.events.NextSequence(ctx, accessKey, event.CodeCorrection)
	if err != nil {
		return nil, fmt.Errorf("drawing correction sequence: %w", err)
	}
	if seq > event.MaxCorrectionSequence {
		return nil, stateErrorf("correction limit of %d letters reached for %s", event.MaxCorrectionSequence, accessKey)
	}

	ev := &event.FiscalEvent{
		AccessKey: accessKey,
		Code:      event.CodeCorrection,
		Sequence:  seq,
		Timestamp: time.Now(),
		Body:      text,
		Status:    event.StatusPending,
	}

	res, err := s.sendEvent(ctx, inv, ev)
	if err != nil {
		return ev, err
	}

	if ev.Status == event.StatusAuthorized && inv.Status != invoice.StatusCorrected {
		inv.Status = invoice.StatusCorrected
		inv.RawResponse = res.RawXML
		if err := s.invoices.Update(ctx, inv); err != nil {
			return ev, fmt.Errorf("persisting correction: %w", err)
		}
	}
	return ev, nil
}

// InutilizeRange formally burns a never-used number range. The series
// counter is left untouched: numbers below an inutilized range that were
// already drawn keep their documents, and the counter keeps advancing past
// the burned range naturally.
func (s *Service) InutilizeRange(ctx context.Context, emitterID int64, serie int, first, last int64, justification string) (*event.Inutilization, error) {
	em, err := s.emitters.FindByID(ctx, emitterID)
	if err != nil {
		return nil, fmt.Errorf("loading emitter %d: %w", emitterID, err)
	}

	inut := &event.Inutilization{
		EmitterID:     em.ID,
		Year:          time.Now().Year() % 100,
		Model:         55,
		Serie:         serie,
		NumberFirst:   first,
		NumberLast:    last,
		Justification: justification,
		Status:        event.StatusPending,
	}
	if err := inut.Validate(); err != nil {
		return nil, outcome.NewBuildError("inutilization", err.Error())
	}
	if err := s.ensureRangeUnused(ctx, em.ID, serie, first, last); err != nil {
		return nil, err
	}

	body, id, err := sefaz.BuildInutNFe(inut, em.Address.UF, em.CNPJ, em.Environment)
	if err != nil {
		return nil, err
	}
	signed, err := s.signer.Sign(body, "#"+id)
	if err != nil {
		return nil, err
	}
	if err := s.signer.Verify(signed); err != nil {
		return nil, fmt.Errorf("signed inutilization does not verify: %w", err)
	}
	inut.RawRequest = signed

	if err := s.events.SaveInutilization(ctx, inut); err != nil {
		return nil, fmt.Errorf("persisting inutilization: %w", err)
	}

	res, err := s.client.Inutilize(ctx, em.Address.UF, em.Environment, signed)
	if err != nil {
		return inut, err
	}
	inut.RawResponse = res.RawXML
	res.RequestXML = inut.RawRequest
	if res.Kind == outcome.KindEventAccepted {
		inut.Status = event.StatusAuthorized
		inut.Protocol = res.Protocol
	} else {
		inut.Status = event.StatusRejected
	}
	if err := s.events.UpdateInutilization(ctx, inut); err != nil {
		return inut, fmt.Errorf("persisting inutilization outcome: %w", err)
	}

	s.log.Info("inutilization processed",
		"emitter_id", em.ID,
		"serie", serie,
		"first", first,
		"last", last,
		"cstat", res.Code)
	return inut, nil
}

// CheckStatus probes the authorizer serving the emitter's state.
func (s *Service) CheckStatus(ctx context.Context, emitterID int64) (*outcome.Result, error) {
	em, err := s.emitters.FindByID(ctx, emitterID)
	if err != nil {
		return nil, fmt.Errorf("loading emitter %d: %w", emitterID, err)
	}
	return s.client.Status(ctx, em.Address.UF, em.Environment)
}

// ConsultInvoice fetches the authority's view of a document and reconciles
// the local record when a timed-out transmission actually went through.
func (s *Service) ConsultInvoice(ctx context.Context, accessKey string) (*invoice.Invoice, *outcome.Result, error) {
	inv, err := s.invoices.FindByAccessKey(ctx, accessKey)
	if err != nil {
		return nil, nil, err
	}
	em, err := s.emitters.FindByID(ctx, inv.EmitterID)
	if err != nil {
		return nil, nil, fmt.Errorf("loading emitter %d: %w", inv.EmitterID, err)
	}

	res, err := s.client.Consult(ctx, em.Address.UF, em.Environment, accessKey)
	if err != nil {
		return inv, nil, err
	}

	if s.reconcile(inv, res) {
		if err := s.invoices.Update(ctx, inv); err != nil {
			return inv, res, fmt.Errorf("persisting reconciled status: %w", err)
		}
		s.log.Info("invoice reconciled from consult",
			"access_key", accessKey,
			"status", string(inv.Status),
			"cstat", res.Code)
	}
	return inv, res, nil
}

// ListEvents returns every event registered for a document, oldest first.
func (s *Service) ListEvents(ctx context.Context, accessKey string) ([]event.FiscalEvent, error) {
	return s.events.ListByAccessKey(ctx, accessKey)
}

// FindInvoice returns the stored invoice with the given access key.
func (s *Service) FindInvoice(ctx context.Context, accessKey string) (*invoice.Invoice, error) {
	return s.invoices.FindByAccessKey(ctx, accessKey)
}

// allocateNumber draws sequential numbers until one outside every
// homologated inutilization range comes up.
func (s *Service) allocateNumber(ctx context.Context, em *emitter.Emitter, inv *invoice.Invoice) error {
	for {
		number, err := s.emitters.AllocateNumber(ctx, em.ID, inv.Serie)
		if err != nil {
			return fmt.Errorf("allocating number: %w", err)
		}
		burned, err := s.events.IsNumberInutilized(ctx, em.ID, inv.Serie, number)
		if err != nil {
			return fmt.Errorf("checking inutilizations: %w", err)
		}
		if !burned {
			inv.Number = number
			return nil
		}
		s.log.Warn("skipping inutilized number",
			"emitter_id", em.ID,
			"serie", inv.Serie,
			"number", number)
	}
}

// buildAndSign produces the layout XML, optionally schema-validates it and
// attaches the enveloped signature over infNFe. The invoice only advances to
// signed after the attached signature's digest re-verifies against the
// canonical form of the referenced element.
func (s *Service) buildAndSign(em *emitter.Emitter, inv *invoice.Invoice) error {
	built, err := s.builder.Build(em, inv)
	if err != nil {
		return err
	}
	if s.schema != nil {
		if err := s.schema.Validate(built.XML); err != nil {
			return outcome.NewBuildError("xml", err.Error())
		}
	}
	signed, err := s.signer.Sign(built.XML, "#NFe"+built.AccessKey)
	if err != nil {
		return err
	}
	if err := s.signer.Verify(signed); err != nil {
		return fmt.Errorf("signed document for %s does not verify: %w", built.AccessKey, err)
	}
	inv.RawRequest = signed
	s.advance(inv, invoice.StatusSigned)
	return nil
}

// transmit submits the signed document and, on the asynchronous path, polls
// the receipt until the batch leaves processing or attempts run out.
func (s *Service) transmit(ctx context.Context, em *emitter.Emitter, inv *invoice.Invoice) (*outcome.Result, error) {
	reply, err := s.client.Authorize(ctx, em.Address.UF, em.Environment, s.nextLote(), inv.RawRequest)
	if err != nil {
		return nil, err
	}
	if reply.Receipt == "" {
		return reply.Outcome, nil
	}

	s.log.Info("batch accepted for asynchronous processing",
		"access_key", inv.AccessKey,
		"receipt", reply.Receipt)

	var last *outcome.Result
	for attempt := 0; attempt < s.cfg.ReceiptPollAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, &outcome.TransportError{Reason: "receipt poll cancelled", Err: ctx.Err()}
			case <-time.After(s.cfg.ReceiptPollInterval):
			}
		}
		res, err := s.client.QueryReceipt(ctx, em.Address.UF, em.Environment, reply.Receipt)
		if err != nil {
			return nil, err
		}
		if res.Code != codeBatchProcessing {
			return res, nil
		}
		last = res
	}
	// still processing; surface the processing reply so the invoice lands
	// in transmitted and a later consult resolves it
	return last, nil
}

// applyAuthorizeOutcome moves the invoice through transmitted into its final
// state and records the authority's protocol data.
func (s *Service) applyAuthorizeOutcome(inv *invoice.Invoice, res *outcome.Result) {
	s.advance(inv, invoice.StatusTransmitted)
	inv.RawResponse = res.RawXML
	res.RequestXML = inv.RawRequest

	// a batch still in processing after poll exhaustion is not a verdict
	if res.Code == codeBatchProcessing {
		return
	}

	switch res.Kind {
	case outcome.KindAuthorized:
		s.advance(inv, invoice.StatusAuthorized)
		inv.Protocol = res.Protocol
		inv.AuthorizedAt = res.Timestamp
	case outcome.KindDenied:
		s.advance(inv, invoice.StatusDenied)
	case outcome.KindRejected:
		s.advance(inv, invoice.StatusRejected)
		inv.RejectionCode = res.Code
		s.log.Warn("invoice rejected",
			"access_key", inv.AccessKey,
			"cstat", res.Code,
			"motive", res.Motive,
			"number_reusable", invoice.CorrectableRejection(res.Code))
	}
}

// sendEvent builds, signs, persists and transmits one event, updating its
// stored record with the authority's verdict.
func (s *Service) sendEvent(ctx context.Context, inv *invoice.Invoice, ev *event.FiscalEvent) (*outcome.Result, error) {
	if err := ev.Validate(); err != nil {
		return nil, outcome.NewBuildError("event", err.Error())
	}
	em, err := s.emitters.FindByID(ctx, inv.EmitterID)
	if err != nil {
		return nil, fmt.Errorf("loading emitter %d: %w", inv.EmitterID, err)
	}

	body, id, err := sefaz.BuildEvento(ev, em.CNPJ, em.Environment, ev.Timestamp)
	if err != nil {
		return nil, err
	}
	signed, err := s.signer.Sign(body, "#"+id)
	if err != nil {
		return nil, err
	}
	if err := s.signer.Verify(signed); err != nil {
		return nil, fmt.Errorf("signed event does not verify: %w", err)
	}
	ev.RawRequest = signed

	if err := s.events.SaveEvent(ctx, ev); err != nil {
		return nil, fmt.Errorf("persisting event: %w", err)
	}

	res, err := s.client.SendEvent(ctx, em.Address.UF, em.Environment, s.nextLote(), signed)
	if err != nil {
		return nil, err
	}
	ev.RawResponse = res.RawXML
	res.RequestXML = ev.RawRequest
	switch res.Kind {
	case outcome.KindEventAccepted, outcome.KindCancelled:
		ev.Status = event.StatusAuthorized
		ev.Protocol = res.Protocol
	default:
		ev.Status = event.StatusRejected
	}
	if err := s.events.UpdateEvent(ctx, ev); err != nil {
		return res, fmt.Errorf("persisting event outcome: %w", err)
	}

	s.log.Info("event processed",
		"access_key", ev.AccessKey,
		"code", string(ev.Code),
		"sequence", ev.Sequence,
		"cstat", res.Code)
	return res, nil
}

// reconcile folds a consult verdict into a locally stale invoice. Only
// documents stuck before a final state are touched.
func (s *Service) reconcile(inv *invoice.Invoice, res *outcome.Result) bool {
	pending := inv.Status == invoice.StatusSigned || inv.Status == invoice.StatusTransmitted
	switch res.Kind {
	case outcome.KindAuthorized:
		if !pending {
			return false
		}
		inv.Status = invoice.StatusAuthorized
		inv.Protocol = res.Protocol
		inv.AuthorizedAt = res.Timestamp
	case outcome.KindCancelled:
		if inv.Status == invoice.StatusCancelled {
			return false
		}
		inv.Status = invoice.StatusCancelled
	case outcome.KindDenied:
		if !pending {
			return false
		}
		inv.Status = invoice.StatusDenied
	default:
		return false
	}
	inv.RawResponse = res.RawXML
	return true
}

// ensureRangeUnused rejects inutilization of numbers that already carry a
// document. SEFAZ enforces the same rule; failing locally saves a signature
// and a round trip.
func (s *Service) ensureRangeUnused(ctx context.Context, emitterID int64, serie int, first, last int64) error {
	for n := first; n <= last; n++ {
		_, err := s.invoices.FindBySeriesNumber(ctx, emitterID, serie, n)
		switch {
		case err == nil:
			return stateErrorf("number %d of serie %d already carries a document", n, serie)
		case errors.Is(err, invoice.ErrNotFound):
		default:
			return fmt.Errorf("checking number %d: %w", n, err)
		}
	}
	return nil
}

// advance moves the invoice along the state machine, logging any illegal
// jump instead of silently corrupting the lifecycle.
func (s *Service) advance(inv *invoice.Invoice, to invoice.Status) {
	if !invoice.CanTransition(inv.Status, to) {
		s.log.Error("illegal status transition",
			"access_key", inv.AccessKey,
			"from", string(inv.Status),
			"to", string(to))
		return
	}
	inv.Status = to
}

func (s *Service) nextLote() int64 {
	return s.lote.Add(1)
}
