package fiscal

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	appfiscal "gestaofiscal/ms_nfe_core/internal/application/fiscal"
	"gestaofiscal/ms_nfe_core/internal/adapters/sefaz"
	"gestaofiscal/ms_nfe_core/internal/adapters/sefaz/layout"
	"gestaofiscal/ms_nfe_core/internal/core/emitter"
	"gestaofiscal/ms_nfe_core/internal/core/event"
	"gestaofiscal/ms_nfe_core/internal/core/invoice"
	"gestaofiscal/ms_nfe_core/internal/core/outcome"
	"gestaofiscal/ms_nfe_core/internal/testutil"
)

var testAccessKey = strings.Repeat("4", 44)

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

func testInvoice() invoice.Invoice {
	return invoice.Invoice{
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

func authorizedInvoice() *invoice.Invoice {
	inv := testInvoice()
	inv.ID = 1
	inv.EmitterID = 1
	inv.Model = 55
	inv.Serie = 1
	inv.Number = 1
	inv.AccessKey = testAccessKey
	inv.Status = invoice.StatusAuthorized
	inv.Protocol = "143260000000001"
	return &inv
}

type deps struct {
	emitters *testutil.MockEmitterRepo
	invoices *testutil.MockInvoiceRepo
	events   *testutil.MockEventRepo
	client   *testutil.MockTransmitter
}

func newTestRouter(d *deps) http.Handler {
	if d.emitters == nil {
		d.emitters = &testutil.MockEmitterRepo{
			FindByIDFunc: func(_ context.Context, id int64) (*emitter.Emitter, error) {
				if id != 1 {
					return nil, emitter.ErrNotFound
				}
				return testEmitter(), nil
			},
		}
	}
	if d.invoices == nil {
		d.invoices = &testutil.MockInvoiceRepo{}
	}
	if d.events == nil {
		d.events = &testutil.MockEventRepo{}
	}
	if d.client == nil {
		d.client = &testutil.MockTransmitter{}
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	nonce := func() string { return "12345678" }
	service := appfiscal.NewService(
		d.emitters, d.invoices, d.events,
		layout.NewBuilder(nonce, "test-1.0"),
		&testutil.MockSigner{}, nil, d.client,
		log,
		appfiscal.Config{ReceiptPollInterval: time.Millisecond},
	)

	handler := NewHandler(service, time.Minute, log)
	router := chi.NewRouter()
	router.Route("/api/v1", handler.Routes)
	return router
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshaling request: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandler_Emit_Authorized(t *testing.T) {
	router := newTestRouter(&deps{})

	w := doJSON(t, router, http.MethodPost, "/api/v1/nfe", EmitRequest{
		EmitterID: 1,
		Invoice:   testInvoice(),
	})

	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	var view InvoiceView
	if err := json.NewDecoder(w.Body).Decode(&view); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if view.Status != string(invoice.StatusAuthorized) {
		t.Errorf("expected status authorized, got %q", view.Status)
	}
	if len(view.AccessKey) != 44 {
		t.Errorf("expected 44-digit access key, got %q", view.AccessKey)
	}
	if view.Number != 1 {
		t.Errorf("expected number 1, got %d", view.Number)
	}
	if view.Outcome == nil || view.Outcome.Code != "100" {
		t.Errorf("expected outcome code 100, got %+v", view.Outcome)
	}
	if view.Outcome != nil && view.Outcome.RawXML != nil {
		t.Error("raw XML must not be echoed on emission replies")
	}
}

func TestHandler_Emit_InvalidBody(t *testing.T) {
	router := newTestRouter(&deps{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/nfe", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
}

func TestHandler_Emit_MissingEmitter(t *testing.T) {
	router := newTestRouter(&deps{})

	w := doJSON(t, router, http.MethodPost, "/api/v1/nfe", EmitRequest{Invoice: testInvoice()})

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHandler_Emit_EmitterNotFound(t *testing.T) {
	router := newTestRouter(&deps{})

	w := doJSON(t, router, http.MethodPost, "/api/v1/nfe", EmitRequest{
		EmitterID: 99,
		Invoice:   testInvoice(),
	})

	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d: %s", w.Code, w.Body.String())
	}
	if res := testutil.ReadErrorResponse(t, w); res.Message != "not found" {
		t.Errorf("expected message 'not found', got %q", res.Message)
	}
}

func TestHandler_Emit_Rejected(t *testing.T) {
	router := newTestRouter(&deps{
		client: &testutil.MockTransmitter{
			AuthorizeFunc: func(context.Context, string, emitter.Environment, int64, []byte) (*sefaz.AuthorizeReply, error) {
				return &sefaz.AuthorizeReply{Outcome: &outcome.Result{
					Kind:   outcome.KindRejected,
					Code:   "539",
					Motive: "Duplicidade de NF-e",
				}}, nil
			},
		},
	})

	w := doJSON(t, router, http.MethodPost, "/api/v1/nfe", EmitRequest{
		EmitterID: 1,
		Invoice:   testInvoice(),
	})

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d: %s", w.Code, w.Body.String())
	}

	var view InvoiceView
	if err := json.NewDecoder(w.Body).Decode(&view); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if view.Status != string(invoice.StatusRejected) {
		t.Errorf("expected status rejected, got %q", view.Status)
	}
	if view.Outcome == nil || view.Outcome.Code != "539" {
		t.Errorf("expected outcome code 539, got %+v", view.Outcome)
	}
}

func TestHandler_Emit_TransportFailureReturnsAccepted(t *testing.T) {
	stored := make(map[string]*invoice.Invoice)
	router := newTestRouter(&deps{
		invoices: &testutil.MockInvoiceRepo{
			SaveFunc: func(_ context.Context, inv *invoice.Invoice) error {
				cp := *inv
				stored[inv.AccessKey] = &cp
				return nil
			},
		},
		client: &testutil.MockTransmitter{
			AuthorizeFunc: func(context.Context, string, emitter.Environment, int64, []byte) (*sefaz.AuthorizeReply, error) {
				return nil, &outcome.TransportError{Reason: "connection reset"}
			},
		},
	})

	w := doJSON(t, router, http.MethodPost, "/api/v1/nfe", EmitRequest{
		EmitterID: 1,
		Invoice:   testInvoice(),
	})

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d: %s", w.Code, w.Body.String())
	}

	var view InvoiceView
	if err := json.NewDecoder(w.Body).Decode(&view); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if view.Status != string(invoice.StatusSigned) {
		t.Errorf("expected status signed, got %q", view.Status)
	}
	if _, ok := stored[view.AccessKey]; !ok {
		t.Error("signed invoice must be persisted for retransmission")
	}
}

func rejectedInvoice(code string) *invoice.Invoice {
	inv := testInvoice()
	inv.ID = 1
	inv.EmitterID = 1
	inv.Model = 55
	inv.Serie = 1
	inv.Number = 7
	inv.AccessKey = testAccessKey
	inv.Status = invoice.StatusRejected
	inv.RejectionCode = code
	return &inv
}

func TestHandler_Resubmit(t *testing.T) {
	stored := rejectedInvoice("539")
	var updated *invoice.Invoice
	router := newTestRouter(&deps{
		invoices: &testutil.MockInvoiceRepo{
			FindByAccessKeyFunc: func(context.Context, string) (*invoice.Invoice, error) {
				return stored, nil
			},
			UpdateFunc: func(_ context.Context, inv *invoice.Invoice) error {
				cp := *inv
				updated = &cp
				return nil
			},
		},
	})

	w := doJSON(t, router, http.MethodPost, "/api/v1/nfe/"+testAccessKey+"/reemissao", nil)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	var view InvoiceView
	if err := json.NewDecoder(w.Body).Decode(&view); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if view.Status != string(invoice.StatusAuthorized) {
		t.Errorf("expected status authorized, got %q", view.Status)
	}
	if view.AccessKey == testAccessKey || len(view.AccessKey) != 44 {
		t.Errorf("expected a fresh 44-digit access key, got %q", view.AccessKey)
	}
	if view.Number != 7 {
		t.Errorf("expected the retained number 7, got %d", view.Number)
	}
	if updated == nil || updated.ID != 1 {
		t.Error("resubmission must update the stored row")
	}
}

func TestHandler_Resubmit_TerminalRejectionIsConflict(t *testing.T) {
	stored := rejectedInvoice("204")
	router := newTestRouter(&deps{
		invoices: &testutil.MockInvoiceRepo{
			FindByAccessKeyFunc: func(context.Context, string) (*invoice.Invoice, error) {
				return stored, nil
			},
		},
	})

	w := doJSON(t, router, http.MethodPost, "/api/v1/nfe/"+testAccessKey+"/reemissao", nil)

	if w.Code != http.StatusConflict {
		t.Errorf("expected status 409, got %d: %s", w.Code, w.Body.String())
	}
	res := testutil.ReadErrorResponse(t, w)
	if res.Message != "operation conflicts with document state" {
		t.Errorf("expected a state-conflict message, got %q", res.Message)
	}
}

func TestHandler_EmitBatch(t *testing.T) {
	var numbers atomic.Int64
	router := newTestRouter(&deps{
		emitters: &testutil.MockEmitterRepo{
			FindByIDFunc: func(context.Context, int64) (*emitter.Emitter, error) {
				return testEmitter(), nil
			},
			AllocateNumberFunc: func(context.Context, int64, int) (int64, error) {
				return numbers.Add(1), nil
			},
		},
	})

	w := doJSON(t, router, http.MethodPost, "/api/v1/nfe/lote", EmitBatchRequest{
		EmitterID: 1,
		Invoices:  []invoice.Invoice{testInvoice(), testInvoice(), testInvoice()},
	})

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var items []struct {
		Index   int          `json:"index"`
		Invoice *InvoiceView `json:"invoice"`
		Error   string       `json:"error"`
	}
	if err := json.NewDecoder(w.Body).Decode(&items); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 results, got %d", len(items))
	}
	for i, item := range items {
		if item.Index != i {
			t.Errorf("result %d carries index %d", i, item.Index)
		}
		if item.Error != "" {
			t.Errorf("result %d failed: %s", i, item.Error)
		}
		if item.Invoice == nil || item.Invoice.Status != string(invoice.StatusAuthorized) {
			t.Errorf("result %d not authorized: %+v", i, item.Invoice)
		}
	}
}

func TestHandler_Find(t *testing.T) {
	stored := authorizedInvoice()
	router := newTestRouter(&deps{
		invoices: &testutil.MockInvoiceRepo{
			FindByAccessKeyFunc: func(_ context.Context, key string) (*invoice.Invoice, error) {
				if key != testAccessKey {
					return nil, invoice.ErrNotFound
				}
				return stored, nil
			},
		},
		events: &testutil.MockEventRepo{
			ListByAccessKeyFunc: func(context.Context, string) ([]event.FiscalEvent, error) {
				return []event.FiscalEvent{{
					Code:     event.CodeCorrection,
					Sequence: 1,
					Status:   event.StatusAuthorized,
					Protocol: "143260000000099",
					Body:     "Corrige a descricao do item 1",
				}}, nil
			},
		},
	})

	w := doJSON(t, router, http.MethodGet, "/api/v1/nfe/"+testAccessKey, nil)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var got struct {
		InvoiceView
		Events []EventView `json:"events"`
	}
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got.AccessKey != testAccessKey {
		t.Errorf("expected access key %s, got %s", testAccessKey, got.AccessKey)
	}
	if len(got.Events) != 1 || got.Events[0].Code != string(event.CodeCorrection) {
		t.Errorf("expected one correction event, got %+v", got.Events)
	}
}

func TestHandler_Find_NotFound(t *testing.T) {
	router := newTestRouter(&deps{})

	w := doJSON(t, router, http.MethodGet, "/api/v1/nfe/"+testAccessKey, nil)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", w.Code)
	}
}

func TestHandler_Cancel(t *testing.T) {
	stored := authorizedInvoice()
	router := newTestRouter(&deps{
		invoices: &testutil.MockInvoiceRepo{
			FindByAccessKeyFunc: func(context.Context, string) (*invoice.Invoice, error) {
				return stored, nil
			},
		},
		client: &testutil.MockTransmitter{
			SendEventFunc: func(context.Context, string, emitter.Environment, int64, []byte) (*outcome.Result, error) {
				return &outcome.Result{
					Kind:     outcome.KindEventAccepted,
					Code:     "135",
					Protocol: "143260000000002",
				}, nil
			},
		},
	})

	w := doJSON(t, router, http.MethodPost, "/api/v1/nfe/"+testAccessKey+"/cancelamento",
		CancelRequest{Justification: "Pedido cancelado pelo cliente antes da expedicao"})

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var view EventView
	if err := json.NewDecoder(w.Body).Decode(&view); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if view.Status != string(event.StatusAuthorized) {
		t.Errorf("expected event authorized, got %q", view.Status)
	}
	if view.Protocol != "143260000000002" {
		t.Errorf("expected event protocol, got %q", view.Protocol)
	}
}

func TestHandler_Cancel_RejectedBySefaz(t *testing.T) {
	stored := authorizedInvoice()
	router := newTestRouter(&deps{
		invoices: &testutil.MockInvoiceRepo{
			FindByAccessKeyFunc: func(context.Context, string) (*invoice.Invoice, error) {
				return stored, nil
			},
		},
		client: &testutil.MockTransmitter{
			SendEventFunc: func(context.Context, string, emitter.Environment, int64, []byte) (*outcome.Result, error) {
				return &outcome.Result{Kind: outcome.KindRejected, Code: "501", Motive: "Prazo de cancelamento superado"}, nil
			},
		},
	})

	w := doJSON(t, router, http.MethodPost, "/api/v1/nfe/"+testAccessKey+"/cancelamento",
		CancelRequest{Justification: "Pedido cancelado pelo cliente antes da expedicao"})

	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected status 422, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHandler_Cancel_NotAuthorizedIsConflict(t *testing.T) {
	stored := authorizedInvoice()
	stored.Status = invoice.StatusRejected
	router := newTestRouter(&deps{
		invoices: &testutil.MockInvoiceRepo{
			FindByAccessKeyFunc: func(context.Context, string) (*invoice.Invoice, error) {
				return stored, nil
			},
		},
	})

	w := doJSON(t, router, http.MethodPost, "/api/v1/nfe/"+testAccessKey+"/cancelamento",
		CancelRequest{Justification: "Pedido cancelado pelo cliente antes da expedicao"})

	if w.Code != http.StatusConflict {
		t.Errorf("expected status 409, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHandler_Correct(t *testing.T) {
	stored := authorizedInvoice()
	router := newTestRouter(&deps{
		invoices: &testutil.MockInvoiceRepo{
			FindByAccessKeyFunc: func(context.Context, string) (*invoice.Invoice, error) {
				return stored, nil
			},
		},
	})

	w := doJSON(t, router, http.MethodPost, "/api/v1/nfe/"+testAccessKey+"/cce",
		CorrectRequest{Text: "Corrige a descricao do item 1 para filtro de ar"})

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var view EventView
	if err := json.NewDecoder(w.Body).Decode(&view); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if view.Code != string(event.CodeCorrection) {
		t.Errorf("expected code 110110, got %q", view.Code)
	}
	if view.Sequence != 1 {
		t.Errorf("expected sequence 1, got %d", view.Sequence)
	}
}

func TestHandler_Inutilize(t *testing.T) {
	router := newTestRouter(&deps{})

	w := doJSON(t, router, http.MethodPost, "/api/v1/inutilizacao", InutilizeRequest{
		EmitterID:     1,
		Serie:         1,
		NumberFirst:   10,
		NumberLast:    20,
		Justification: "Falha no sistema de emissao durante a madrugada",
	})

	var got struct {
		Status   string `json:"status"`
		Protocol string `json:"protocol"`
	}
	testutil.ReadJSONResponse(t, w, &got)
	if got.Status != string(event.StatusAuthorized) {
		t.Errorf("expected inutilization authorized, got %q", got.Status)
	}
}

func TestHandler_Inutilize_InvalidRange(t *testing.T) {
	router := newTestRouter(&deps{})

	w := doJSON(t, router, http.MethodPost, "/api/v1/inutilizacao", InutilizeRequest{
		EmitterID:     1,
		Serie:         1,
		NumberFirst:   20,
		NumberLast:    10,
		Justification: "Falha no sistema de emissao durante a madrugada",
	})

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHandler_Status_CachesProbe(t *testing.T) {
	probes := 0
	router := newTestRouter(&deps{
		client: &testutil.MockTransmitter{
			StatusFunc: func(context.Context, string, emitter.Environment) (*outcome.Result, error) {
				probes++
				return &outcome.Result{Kind: outcome.KindServiceUp, Code: "107", Motive: "Servico em Operacao"}, nil
			},
		},
	})

	for i := 0; i < 3; i++ {
		w := doJSON(t, router, http.MethodGet, "/api/v1/status?emitterId=1", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: expected status 200, got %d: %s", i, w.Code, w.Body.String())
		}
		var res outcome.Result
		if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if res.Kind != outcome.KindServiceUp {
			t.Errorf("expected service_up, got %q", res.Kind)
		}
	}

	if probes != 1 {
		t.Errorf("expected a single upstream probe, got %d", probes)
	}
}

func TestHandler_Status_MissingEmitter(t *testing.T) {
	router := newTestRouter(&deps{})

	w := doJSON(t, router, http.MethodGet, "/api/v1/status", nil)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
}
