package fiscal

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"gestaofiscal/ms_nfe_core/internal/adapters/sefaz"
	"gestaofiscal/ms_nfe_core/internal/adapters/sefaz/layout"
	"gestaofiscal/ms_nfe_core/internal/core/emitter"
	"gestaofiscal/ms_nfe_core/internal/core/event"
	"gestaofiscal/ms_nfe_core/internal/core/invoice"
	"gestaofiscal/ms_nfe_core/internal/core/outcome"
)

// --- fakes ---------------------------------------------------------------

type fakeEmitterRepo struct {
	mu          sync.Mutex
	emitters    map[int64]*emitter.Emitter
	counters    map[string]int64
	allocations int
}

func newFakeEmitterRepo(ems ...*emitter.Emitter) *fakeEmitterRepo {
	r := &fakeEmitterRepo{
		emitters: make(map[int64]*emitter.Emitter),
		counters: make(map[string]int64),
	}
	for _, em := range ems {
		r.emitters[em.ID] = em
	}
	return r
}

func (r *fakeEmitterRepo) FindByID(_ context.Context, id int64) (*emitter.Emitter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	em, ok := r.emitters[id]
	if !ok {
		return nil, emitter.ErrNotFound
	}
	return em, nil
}

func (r *fakeEmitterRepo) FindByCNPJ(_ context.Context, cnpj string) (*emitter.Emitter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, em := range r.emitters {
		if em.CNPJ == cnpj {
			return em, nil
		}
	}
	return nil, emitter.ErrNotFound
}

func (r *fakeEmitterRepo) AllocateNumber(_ context.Context, emitterID int64, serie int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := strconv.FormatInt(emitterID, 10) + "/" + strconv.Itoa(serie)
	r.counters[key]++
	r.allocations++
	return r.counters[key], nil
}

// fakeInvoiceRepo keys rows by ID the way the real table does, so an update
// that changes the access key lands on the same row.
type fakeInvoiceRepo struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*invoice.Invoice
}

func newFakeInvoiceRepo() *fakeInvoiceRepo {
	return &fakeInvoiceRepo{byID: make(map[int64]*invoice.Invoice)}
}

func (r *fakeInvoiceRepo) Save(_ context.Context, inv *invoice.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	inv.ID = r.nextID
	cp := *inv
	r.byID[inv.ID] = &cp
	return nil
}

func (r *fakeInvoiceRepo) Update(_ context.Context, inv *invoice.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[inv.ID]; !ok {
		return invoice.ErrNotFound
	}
	cp := *inv
	r.byID[inv.ID] = &cp
	return nil
}

func (r *fakeInvoiceRepo) FindByAccessKey(_ context.Context, accessKey string) (*invoice.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inv := range r.byID {
		if inv.AccessKey == accessKey {
			cp := *inv
			return &cp, nil
		}
	}
	return nil, invoice.ErrNotFound
}

func (r *fakeInvoiceRepo) FindBySeriesNumber(_ context.Context, emitterID int64, serie int, number int64) (*invoice.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inv := range r.byID {
		if inv.EmitterID == emitterID && inv.Serie == serie && inv.Number == number {
			cp := *inv
			return &cp, nil
		}
	}
	return nil, invoice.ErrNotFound
}

func (r *fakeInvoiceRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

func (r *fakeInvoiceRepo) stored(t *testing.T, accessKey string) *invoice.Invoice {
	t.Helper()
	inv, err := r.FindByAccessKey(context.Background(), accessKey)
	if err != nil {
		t.Fatalf("invoice %s not stored: %v", accessKey, err)
	}
	return inv
}

type fakeEventRepo struct {
	mu      sync.Mutex
	nextID  int64
	events  []*event.FiscalEvent
	inuts   []*event.Inutilization
	nextSeq map[string]int
}

func newFakeEventRepo() *fakeEventRepo {
	return &fakeEventRepo{nextSeq: make(map[string]int)}
}

func (r *fakeEventRepo) SaveEvent(_ context.Context, e *event.FiscalEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	e.ID = r.nextID
	r.events = append(r.events, e)
	return nil
}

func (r *fakeEventRepo) UpdateEvent(_ context.Context, e *event.FiscalEvent) error {
	return nil
}

func (r *fakeEventRepo) NextSequence(_ context.Context, accessKey string, code event.Code) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if seq, ok := r.nextSeq[accessKey+string(code)]; ok {
		return seq, nil
	}
	n := 0
	for _, e := range r.events {
		if e.AccessKey == accessKey && e.Code == code && e.Status == event.StatusAuthorized && e.Sequence > n {
			n = e.Sequence
		}
	}
	return n + 1, nil
}

func (r *fakeEventRepo) ListByAccessKey(_ context.Context, accessKey string) ([]event.FiscalEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []event.FiscalEvent
	for _, e := range r.events {
		if e.AccessKey == accessKey {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (r *fakeEventRepo) SaveInutilization(_ context.Context, inut *event.Inutilization) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	inut.ID = r.nextID
	r.inuts = append(r.inuts, inut)
	return nil
}

func (r *fakeEventRepo) UpdateInutilization(_ context.Context, inut *event.Inutilization) error {
	return nil
}

func (r *fakeEventRepo) IsNumberInutilized(_ context.Context, emitterID int64, serie int, number int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, i := range r.inuts {
		if i.EmitterID == emitterID && i.Serie == serie && i.Status == event.StatusAuthorized && i.Contains(number) {
			return true, nil
		}
	}
	return false, nil
}

// fakeSigner appends a marker instead of a real signature; the orchestration
// under test treats signed bytes as opaque.
type fakeSigner struct {
	calls       int
	verifyCalls int
	verifyErr   error
}

func (s *fakeSigner) Sign(doc []byte, referenceURI string) ([]byte, error) {
	s.calls++
	out := append([]byte{}, doc...)
	return append(out, []byte("<!--"+referenceURI+"-->")...), nil
}

func (s *fakeSigner) Verify(signed []byte) error {
	s.verifyCalls++
	return s.verifyErr
}

type fakeTransmitter struct {
	mu sync.Mutex

	authorizeReplies []*sefaz.AuthorizeReply
	authorizeErrs    []error
	authorizeCalls   int

	receiptResults []*outcome.Result
	receiptCalls   int

	eventResult   *outcome.Result
	eventErr      error
	inutResult    *outcome.Result
	consultResult *outcome.Result
	statusResult  *outcome.Result
}

func (f *fakeTransmitter) Authorize(_ context.Context, _ string, _ emitter.Environment, _ int64, _ []byte) (*sefaz.AuthorizeReply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.authorizeCalls
	f.authorizeCalls++
	if i < len(f.authorizeErrs) && f.authorizeErrs[i] != nil {
		return nil, f.authorizeErrs[i]
	}
	if i < len(f.authorizeReplies) {
		return f.authorizeReplies[i], nil
	}
	return f.authorizeReplies[len(f.authorizeReplies)-1], nil
}

func (f *fakeTransmitter) QueryReceipt(_ context.Context, _ string, _ emitter.Environment, _ string) (*outcome.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.receiptCalls
	f.receiptCalls++
	if i >= len(f.receiptResults) {
		i = len(f.receiptResults) - 1
	}
	return f.receiptResults[i], nil
}

func (f *fakeTransmitter) Consult(_ context.Context, _ string, _ emitter.Environment, _ string) (*outcome.Result, error) {
	return f.consultResult, nil
}

func (f *fakeTransmitter) Status(_ context.Context, _ string, _ emitter.Environment) (*outcome.Result, error) {
	return f.statusResult, nil
}

func (f *fakeTransmitter) SendEvent(_ context.Context, _ string, _ emitter.Environment, _ int64, _ []byte) (*outcome.Result, error) {
	return f.eventResult, f.eventErr
}

func (f *fakeTransmitter) Inutilize(_ context.Context, _ string, _ emitter.Environment, _ []byte) (*outcome.Result, error) {
	return f.inutResult, nil
}

// --- fixtures ------------------------------------------------------------

func testEmitter() *emitter.Emitter {
	return &emitter.Emitter{
		ID:                1,
		LegalName:         "Comercio de Pecas Gaucho LTDA",
		CNPJ:              "11415660000109",
		StateRegistration: "1234567890",
		Regime:            emitter.RegimeNormal,
		Address: emitter.Address{
			Street:   "Av Ipiranga",
			Number:   "1200",
			District: "Centro",
			CityCode: "4314902",
			City:     "Porto Alegre",
			UF:       "RS",
			ZipCode:  "90040-000",
		},
		Serie:       1,
		Environment: emitter.EnvironmentProduction,
	}
}

func testInvoice() *invoice.Invoice {
	return &invoice.Invoice{
		Operation: invoice.OperationOut,
		Purpose:   invoice.PurposeNormal,
		Destination: invoice.Destination{
			Name:        "Distribuidora Sul Ltda",
			TaxID:       "98765432000121",
			IEIndicator: invoice.IndicatorNonTaxpayer,
			Street:      "Rua dos Andradas",
			Number:      "500",
			District:    "Centro",
			CityCode:    "4314902",
			City:        "Porto Alegre",
			UF:          "RS",
			ZipCode:     "90020-000",
		},
		Freight: invoice.FreightNone,
		Payment: invoice.Payment{MethodCode: "01", Value: decimal.RequireFromString("100.00")},
		Items: []invoice.Item{
			{
				Sequence:    1,
				Code:        "P-001",
				Description: "Filtro de oleo",
				NCM:         "84212300",
				CFOP:        "5102",
				Unit:        "UN",
				Quantity:    decimal.NewFromInt(2),
				UnitPrice:   decimal.NewFromInt(50),
			},
		},
	}
}

func authorizedResult() *outcome.Result {
	now := time.Now()
	return &outcome.Result{
		Kind:      outcome.KindAuthorized,
		Code:      "100",
		Motive:    "Autorizado o uso da NF-e",
		Protocol:  "143260000000001",
		Timestamp: &now,
		RawXML:    []byte("<protNFe/>"),
	}
}

type fixture struct {
	svc      *Service
	emitters *fakeEmitterRepo
	invoices *fakeInvoiceRepo
	events   *fakeEventRepo
	client   *fakeTransmitter
	signer   *fakeSigner
}

func newFixture(client *fakeTransmitter) *fixture {
	return newFixtureWithNonce(client, func() string { return "12345678" })
}

// newFixtureWithNonce lets a test observe access-key changes across rebuilds
// by feeding the builder distinct nonces.
func newFixtureWithNonce(client *fakeTransmitter, nonce func() string) *fixture {
	f := &fixture{
		emitters: newFakeEmitterRepo(testEmitter()),
		invoices: newFakeInvoiceRepo(),
		events:   newFakeEventRepo(),
		client:   client,
		signer:   &fakeSigner{},
	}
	f.svc = NewService(
		f.emitters, f.invoices, f.events,
		layout.NewBuilder(nonce, "test-1.0"),
		f.signer, nil, client,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		Config{ReceiptPollInterval: time.Millisecond, BatchWorkers: 2},
	)
	return f
}

// seedAuthorized pushes one invoice through a synchronous authorization.
func (f *fixture) seedAuthorized(t *testing.T) *invoice.Invoice {
	t.Helper()
	f.client.mu.Lock()
	f.client.authorizeReplies = []*sefaz.AuthorizeReply{{Outcome: authorizedResult()}}
	f.client.mu.Unlock()

	res, err := f.svc.EmitInvoice(context.Background(), 1, testInvoice())
	if err != nil {
		t.Fatalf("EmitInvoice() error = %v", err)
	}
	return res.Invoice
}

// --- tests ---------------------------------------------------------------

func TestEmitInvoiceAuthorized(t *testing.T) {
	f := newFixture(&fakeTransmitter{
		authorizeReplies: []*sefaz.AuthorizeReply{{Outcome: authorizedResult()}},
	})

	res, err := f.svc.EmitInvoice(context.Background(), 1, testInvoice())
	if err != nil {
		t.Fatalf("EmitInvoice() error = %v", err)
	}

	inv := res.Invoice
	if inv.Status != invoice.StatusAuthorized {
		t.Errorf("status = %s, want authorized", inv.Status)
	}
	if inv.Number != 1 {
		t.Errorf("number = %d, want 1", inv.Number)
	}
	if len(inv.AccessKey) != 44 {
		t.Errorf("access key %q does not have 44 digits", inv.AccessKey)
	}
	if inv.Protocol != "143260000000001" {
		t.Errorf("protocol = %q", inv.Protocol)
	}
	if inv.AuthorizedAt == nil {
		t.Error("authorization timestamp not recorded")
	}
	if f.signer.calls != 1 {
		t.Errorf("signer calls = %d, want 1", f.signer.calls)
	}
	if len(res.Outcome.RequestXML) == 0 {
		t.Error("outcome does not carry the submitted document")
	}

	stored := f.invoices.stored(t, inv.AccessKey)
	if stored.Status != invoice.StatusAuthorized {
		t.Errorf("stored status = %s, want authorized", stored.Status)
	}
}

func TestEmitInvoiceUnverifiableSignatureBlocksTransmission(t *testing.T) {
	f := newFixture(&fakeTransmitter{
		authorizeReplies: []*sefaz.AuthorizeReply{{Outcome: authorizedResult()}},
	})
	f.signer.verifyErr = errors.New("digest mismatch over infNFe")

	if _, err := f.svc.EmitInvoice(context.Background(), 1, testInvoice()); err == nil {
		t.Fatal("expected error for a signature that does not verify")
	}
	if f.signer.verifyCalls != 1 {
		t.Errorf("verify calls = %d, want 1", f.signer.verifyCalls)
	}
	if f.client.authorizeCalls != 0 {
		t.Errorf("authorize calls = %d, an unverifiable document must never reach SEFAZ", f.client.authorizeCalls)
	}
	if f.invoices.count() != 0 {
		t.Errorf("stored invoices = %d, an unverifiable document must not be persisted", f.invoices.count())
	}
}

func TestEmitInvoiceValidationFailureConsumesNoNumber(t *testing.T) {
	f := newFixture(&fakeTransmitter{})
	inv := testInvoice()
	inv.Items = nil

	if _, err := f.svc.EmitInvoice(context.Background(), 1, inv); err == nil {
		t.Fatal("expected validation error")
	}
	if f.emitters.allocations != 0 {
		t.Errorf("allocations = %d, validation failures must not draw numbers", f.emitters.allocations)
	}
}

func TestEmitInvoiceTransportFailureLeavesSignedForRetransmit(t *testing.T) {
	f := newFixture(&fakeTransmitter{
		authorizeErrs:    []error{&outcome.TransportError{Reason: "timeout"}},
		authorizeReplies: []*sefaz.AuthorizeReply{nil, {Outcome: authorizedResult()}},
	})

	res, err := f.svc.EmitInvoice(context.Background(), 1, testInvoice())
	if !outcome.IsTransportError(err) {
		t.Fatalf("err = %v, want transport error", err)
	}
	key := res.Invoice.AccessKey

	stored := f.invoices.stored(t, key)
	if stored.Status != invoice.StatusSigned {
		t.Fatalf("stored status = %s, want signed", stored.Status)
	}
	if len(stored.RawRequest) == 0 {
		t.Fatal("signed bytes not persisted")
	}

	retry, err := f.svc.RetransmitInvoice(context.Background(), key)
	if err != nil {
		t.Fatalf("RetransmitInvoice() error = %v", err)
	}
	if retry.Invoice.Status != invoice.StatusAuthorized {
		t.Errorf("status after retry = %s, want authorized", retry.Invoice.Status)
	}
	if retry.Invoice.Number != 1 || f.emitters.allocations != 1 {
		t.Error("retransmission must reuse the reserved number")
	}
}

func TestEmitInvoiceRejected(t *testing.T) {
	f := newFixture(&fakeTransmitter{
		authorizeReplies: []*sefaz.AuthorizeReply{{Outcome: &outcome.Result{
			Kind:   outcome.KindRejected,
			Code:   "539",
			Motive: "Duplicidade de NF-e com diferenca na chave de acesso",
		}}},
	})

	res, err := f.svc.EmitInvoice(context.Background(), 1, testInvoice())
	if err != nil {
		t.Fatalf("EmitInvoice() error = %v", err)
	}
	if res.Invoice.Status != invoice.StatusRejected {
		t.Errorf("status = %s, want rejected", res.Invoice.Status)
	}
	if res.Outcome.Code != "539" {
		t.Errorf("outcome code = %q", res.Outcome.Code)
	}
	if res.Invoice.RejectionCode != "539" {
		t.Errorf("rejection code = %q, want 539", res.Invoice.RejectionCode)
	}
}

func TestResubmitRejectedInvoiceReusesNumber(t *testing.T) {
	nonces := []string{"11111111", "22222222"}
	draws := 0
	f := newFixtureWithNonce(&fakeTransmitter{
		authorizeReplies: []*sefaz.AuthorizeReply{
			{Outcome: &outcome.Result{
				Kind:   outcome.KindRejected,
				Code:   "539",
				Motive: "Duplicidade de NF-e com diferenca na chave de acesso",
			}},
			{Outcome: authorizedResult()},
		},
	}, func() string {
		n := nonces[draws%len(nonces)]
		draws++
		return n
	})

	res, err := f.svc.EmitInvoice(context.Background(), 1, testInvoice())
	if err != nil {
		t.Fatalf("EmitInvoice() error = %v", err)
	}
	if res.Invoice.Status != invoice.StatusRejected {
		t.Fatalf("precondition failed: status = %s", res.Invoice.Status)
	}
	firstKey := res.Invoice.AccessKey

	retry, err := f.svc.ResubmitInvoice(context.Background(), firstKey)
	if err != nil {
		t.Fatalf("ResubmitInvoice() error = %v", err)
	}
	if retry.Invoice.Status != invoice.StatusAuthorized {
		t.Errorf("status after resubmit = %s, want authorized", retry.Invoice.Status)
	}
	if retry.Invoice.AccessKey == firstKey {
		t.Error("resubmission must draw a fresh access key")
	}
	if retry.Invoice.Serie != res.Invoice.Serie || retry.Invoice.Number != res.Invoice.Number {
		t.Errorf("resubmitted as serie %d number %d, must retain serie %d number %d",
			retry.Invoice.Serie, retry.Invoice.Number, res.Invoice.Serie, res.Invoice.Number)
	}
	if f.emitters.allocations != 1 {
		t.Errorf("allocations = %d, resubmission must not draw a new number", f.emitters.allocations)
	}
	if retry.Invoice.RejectionCode != "" {
		t.Errorf("rejection code = %q, want cleared", retry.Invoice.RejectionCode)
	}

	if f.invoices.count() != 1 {
		t.Errorf("stored invoices = %d, resubmission must update the existing row", f.invoices.count())
	}
	if _, err := f.invoices.FindByAccessKey(context.Background(), firstKey); !errors.Is(err, invoice.ErrNotFound) {
		t.Error("rejected access key still resolves after resubmission")
	}
	stored := f.invoices.stored(t, retry.Invoice.AccessKey)
	if stored.Status != invoice.StatusAuthorized {
		t.Errorf("stored status = %s, want authorized", stored.Status)
	}
}

func TestResubmitTerminalRejectionBurnsNumber(t *testing.T) {
	f := newFixture(&fakeTransmitter{
		authorizeReplies: []*sefaz.AuthorizeReply{{Outcome: &outcome.Result{
			Kind:   outcome.KindRejected,
			Code:   "204",
			Motive: "Duplicidade de NF-e",
		}}},
	})

	res, err := f.svc.EmitInvoice(context.Background(), 1, testInvoice())
	if err != nil {
		t.Fatalf("EmitInvoice() error = %v", err)
	}

	_, err = f.svc.ResubmitInvoice(context.Background(), res.Invoice.AccessKey)
	var se *StateError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want state error for a terminal rejection", err)
	}
}

func TestResubmitRequiresRejectedInvoice(t *testing.T) {
	f := newFixture(&fakeTransmitter{})
	inv := f.seedAuthorized(t)

	var se *StateError
	if _, err := f.svc.ResubmitInvoice(context.Background(), inv.AccessKey); !errors.As(err, &se) {
		t.Errorf("err = %v, want state error resubmitting an authorized invoice", err)
	}
	if _, err := f.svc.ResubmitInvoice(context.Background(), "00000000000000000000000000000000000000000000"); !errors.Is(err, invoice.ErrNotFound) {
		t.Errorf("err = %v, want not found", err)
	}
}

func TestEmitInvoiceAsyncReceiptPolling(t *testing.T) {
	f := newFixture(&fakeTransmitter{
		authorizeReplies: []*sefaz.AuthorizeReply{{Receipt: "431000012345678"}},
		receiptResults: []*outcome.Result{
			{Kind: outcome.KindRejected, Code: "105", Motive: "Lote em processamento"},
			authorizedResult(),
		},
	})

	res, err := f.svc.EmitInvoice(context.Background(), 1, testInvoice())
	if err != nil {
		t.Fatalf("EmitInvoice() error = %v", err)
	}
	if res.Invoice.Status != invoice.StatusAuthorized {
		t.Errorf("status = %s, want authorized", res.Invoice.Status)
	}
	if f.client.receiptCalls != 2 {
		t.Errorf("receipt polls = %d, want 2", f.client.receiptCalls)
	}
}

func TestEmitInvoiceReceiptStillProcessing(t *testing.T) {
	f := newFixture(&fakeTransmitter{
		authorizeReplies: []*sefaz.AuthorizeReply{{Receipt: "431000012345678"}},
		receiptResults: []*outcome.Result{
			{Kind: outcome.KindRejected, Code: "105", Motive: "Lote em processamento"},
		},
	})

	res, err := f.svc.EmitInvoice(context.Background(), 1, testInvoice())
	if err != nil {
		t.Fatalf("EmitInvoice() error = %v", err)
	}
	// no verdict yet: the invoice parks in transmitted for a later consult
	if res.Invoice.Status != invoice.StatusTransmitted {
		t.Errorf("status = %s, want transmitted", res.Invoice.Status)
	}
}

func TestEmitInvoiceSkipsInutilizedNumbers(t *testing.T) {
	f := newFixture(&fakeTransmitter{
		authorizeReplies: []*sefaz.AuthorizeReply{{Outcome: authorizedResult()}},
	})
	f.events.inuts = append(f.events.inuts, &event.Inutilization{
		EmitterID: 1, Serie: 1, NumberFirst: 1, NumberLast: 2,
		Status: event.StatusAuthorized,
	})

	res, err := f.svc.EmitInvoice(context.Background(), 1, testInvoice())
	if err != nil {
		t.Fatalf("EmitInvoice() error = %v", err)
	}
	if res.Invoice.Number != 3 {
		t.Errorf("number = %d, want 3 (1 and 2 are burned)", res.Invoice.Number)
	}
}

func TestCancelInvoice(t *testing.T) {
	f := newFixture(&fakeTransmitter{})
	inv := f.seedAuthorized(t)

	f.client.eventResult = &outcome.Result{
		Kind:     outcome.KindEventAccepted,
		Code:     "135",
		Motive:   "Evento registrado e vinculado a NF-e",
		Protocol: "143260000000099",
	}

	ev, err := f.svc.CancelInvoice(context.Background(), inv.AccessKey, "pedido cancelado pelo cliente")
	if err != nil {
		t.Fatalf("CancelInvoice() error = %v", err)
	}
	if ev.Status != event.StatusAuthorized {
		t.Errorf("event status = %s, want authorized", ev.Status)
	}
	if ev.Protocol != "143260000000099" {
		t.Errorf("event protocol = %q", ev.Protocol)
	}
	if ev.AuthProtocol != inv.Protocol {
		t.Errorf("event references protocol %q, want %q", ev.AuthProtocol, inv.Protocol)
	}

	stored := f.invoices.stored(t, inv.AccessKey)
	if stored.Status != invoice.StatusCancelled {
		t.Errorf("invoice status = %s, want cancelled", stored.Status)
	}
}

func TestCancelRequiresAuthorizedInvoice(t *testing.T) {
	f := newFixture(&fakeTransmitter{
		authorizeReplies: []*sefaz.AuthorizeReply{{Outcome: &outcome.Result{
			Kind: outcome.KindRejected, Code: "539", Motive: "rejeitada",
		}}},
	})

	res, err := f.svc.EmitInvoice(context.Background(), 1, testInvoice())
	if err != nil {
		t.Fatalf("EmitInvoice() error = %v", err)
	}
	if _, err := f.svc.CancelInvoice(context.Background(), res.Invoice.AccessKey, "tentativa de cancelar rejeitada"); err == nil {
		t.Error("expected error cancelling a rejected invoice")
	}
}

func TestCancelRejectedBySefazKeepsInvoiceAuthorized(t *testing.T) {
	f := newFixture(&fakeTransmitter{})
	inv := f.seedAuthorized(t)

	f.client.eventResult = &outcome.Result{
		Kind:   outcome.KindRejected,
		Code:   "501",
		Motive: "Prazo de cancelamento superior ao previsto",
	}

	ev, err := f.svc.CancelInvoice(context.Background(), inv.AccessKey, "cancelamento fora do prazo")
	if err != nil {
		t.Fatalf("CancelInvoice() error = %v", err)
	}
	if ev.Status != event.StatusRejected {
		t.Errorf("event status = %s, want rejected", ev.Status)
	}
	if stored := f.invoices.stored(t, inv.AccessKey); stored.Status != invoice.StatusAuthorized {
		t.Errorf("invoice status = %s, must stay authorized", stored.Status)
	}
}

func TestCorrectInvoice(t *testing.T) {
	f := newFixture(&fakeTransmitter{})
	inv := f.seedAuthorized(t)

	f.client.eventResult = &outcome.Result{
		Kind:     outcome.KindEventAccepted,
		Code:     "135",
		Protocol: "143260000000100",
	}

	ev, err := f.svc.CorrectInvoice(context.Background(), inv.AccessKey,
		"corrige a descricao do item um para filtro de oleo sintetico")
	if err != nil {
		t.Fatalf("CorrectInvoice() error = %v", err)
	}
	if ev.Sequence != 1 {
		t.Errorf("sequence = %d, want 1", ev.Sequence)
	}
	if stored := f.invoices.stored(t, inv.AccessKey); stored.Status != invoice.StatusCorrected {
		t.Errorf("invoice status = %s, want corrected", stored.Status)
	}

	// a corrected invoice still accepts further letters and cancellation
	if _, err := f.svc.CorrectInvoice(context.Background(), inv.AccessKey,
		"segunda correcao da mesma nota fiscal"); err != nil {
		t.Errorf("second correction error = %v", err)
	}
	f.client.eventResult = &outcome.Result{Kind: outcome.KindEventAccepted, Code: "135"}
	if _, err := f.svc.CancelInvoice(context.Background(), inv.AccessKey, "cancelada apos correcoes"); err != nil {
		t.Errorf("cancel after correction error = %v", err)
	}
}

func TestCorrectInvoiceSequenceLimit(t *testing.T) {
	f := newFixture(&fakeTransmitter{})
	inv := f.seedAuthorized(t)
	f.events.nextSeq[inv.AccessKey+string(event.CodeCorrection)] = event.MaxCorrectionSequence + 1

	if _, err := f.svc.CorrectInvoice(context.Background(), inv.AccessKey,
		"vigesima primeira tentativa de correcao"); err == nil {
		t.Error("expected error past the correction limit")
	}
}

func TestInutilizeRange(t *testing.T) {
	f := newFixture(&fakeTransmitter{
		inutResult: &outcome.Result{
			Kind:     outcome.KindEventAccepted,
			Code:     "102",
			Motive:   "Inutilizacao de numero homologado",
			Protocol: "143260000000200",
		},
	})

	inut, err := f.svc.InutilizeRange(context.Background(), 1, 1, 50, 60,
		"faixa pulada por falha no sistema emissor")
	if err != nil {
		t.Fatalf("InutilizeRange() error = %v", err)
	}
	if inut.Status != event.StatusAuthorized {
		t.Errorf("status = %s, want authorized", inut.Status)
	}
	if inut.Protocol != "143260000000200" {
		t.Errorf("protocol = %q", inut.Protocol)
	}
	if f.signer.calls != 1 {
		t.Errorf("signer calls = %d, want 1", f.signer.calls)
	}
}

func TestInutilizeRangeRejectsUsedNumbers(t *testing.T) {
	f := newFixture(&fakeTransmitter{})
	inv := f.seedAuthorized(t) // occupies number 1

	_, err := f.svc.InutilizeRange(context.Background(), 1, 1, 1, 5,
		"tentativa de inutilizar numero ja emitido")
	if err == nil {
		t.Fatalf("expected error, number %d already carries a document", inv.Number)
	}
}

func TestCheckStatus(t *testing.T) {
	f := newFixture(&fakeTransmitter{
		statusResult: &outcome.Result{
			Kind:   outcome.KindServiceUp,
			Code:   "107",
			Motive: "Servico em Operacao",
		},
	})

	res, err := f.svc.CheckStatus(context.Background(), 1)
	if err != nil {
		t.Fatalf("CheckStatus() error = %v", err)
	}
	if res.Kind != outcome.KindServiceUp {
		t.Errorf("kind = %s, want service_up", res.Kind)
	}
}

func TestConsultReconcilesStaleInvoice(t *testing.T) {
	f := newFixture(&fakeTransmitter{
		authorizeReplies: []*sefaz.AuthorizeReply{{Receipt: "431000012345678"}},
		receiptResults: []*outcome.Result{
			{Kind: outcome.KindRejected, Code: "105", Motive: "Lote em processamento"},
		},
	})

	res, err := f.svc.EmitInvoice(context.Background(), 1, testInvoice())
	if err != nil {
		t.Fatalf("EmitInvoice() error = %v", err)
	}
	if res.Invoice.Status != invoice.StatusTransmitted {
		t.Fatalf("precondition failed: status = %s", res.Invoice.Status)
	}

	f.client.consultResult = authorizedResult()
	inv, verdict, err := f.svc.ConsultInvoice(context.Background(), res.Invoice.AccessKey)
	if err != nil {
		t.Fatalf("ConsultInvoice() error = %v", err)
	}
	if verdict.Kind != outcome.KindAuthorized {
		t.Errorf("verdict kind = %s", verdict.Kind)
	}
	if inv.Status != invoice.StatusAuthorized {
		t.Errorf("reconciled status = %s, want authorized", inv.Status)
	}
	if stored := f.invoices.stored(t, inv.AccessKey); stored.Status != invoice.StatusAuthorized {
		t.Errorf("stored status = %s, want authorized", stored.Status)
	}
}

func TestEmitBatch(t *testing.T) {
	f := newFixture(&fakeTransmitter{
		authorizeReplies: []*sefaz.AuthorizeReply{{Outcome: authorizedResult()}},
	})

	batch := []*invoice.Invoice{testInvoice(), testInvoice(), testInvoice()}
	results := f.svc.EmitBatch(context.Background(), 1, batch)

	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}
	numbers := make(map[int64]bool)
	for i, r := range results {
		if r.Err != nil {
			t.Fatalf("result %d error = %v", i, r.Err)
		}
		if r.Index != i {
			t.Errorf("result %d carries index %d", i, r.Index)
		}
		if r.Result.Invoice.Status != invoice.StatusAuthorized {
			t.Errorf("result %d status = %s", i, r.Result.Invoice.Status)
		}
		numbers[r.Result.Invoice.Number] = true
	}
	if len(numbers) != 3 {
		t.Errorf("batch drew %d distinct numbers, want 3", len(numbers))
	}
}

func TestEmitBatchPartialFailure(t *testing.T) {
	f := newFixture(&fakeTransmitter{
		authorizeReplies: []*sefaz.AuthorizeReply{{Outcome: authorizedResult()}},
	})

	bad := testInvoice()
	bad.Items = nil
	batch := []*invoice.Invoice{testInvoice(), bad}
	results := f.svc.EmitBatch(context.Background(), 1, batch)

	if results[0].Err != nil {
		t.Errorf("healthy invoice failed: %v", results[0].Err)
	}
	if results[1].Err == nil {
		t.Error("invalid invoice must fail")
	}
}

func TestRetransmitRequiresPendingInvoice(t *testing.T) {
	f := newFixture(&fakeTransmitter{})
	inv := f.seedAuthorized(t)

	if _, err := f.svc.RetransmitInvoice(context.Background(), inv.AccessKey); err == nil {
		t.Error("expected error retransmitting an authorized invoice")
	}
	if _, err := f.svc.RetransmitInvoice(context.Background(), "00000000000000000000000000000000000000000000"); !errors.Is(err, invoice.ErrNotFound) {
		t.Errorf("err = %v, want not found", err)
	}
}
