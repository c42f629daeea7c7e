package fiscal

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	appfiscal "gestaofiscal/ms_nfe_core/internal/application/fiscal"
	"gestaofiscal/ms_nfe_core/internal/core/emitter"
	"gestaofiscal/ms_nfe_core/internal/core/event"
	"gestaofiscal/ms_nfe_core/internal/core/invoice"
	"gestaofiscal/ms_nfe_core/internal/core/outcome"
	"gestaofiscal/ms_nfe_core/internal/infrastructure/cache"
	httperrors "gestaofiscal/ms_nfe_core/internal/infrastructure/http"
	"gestaofiscal/ms_nfe_core/internal/infrastructure/http/middleware"
)

// statusCacheTTL throttles status probes: SEFAZ asks clients not to poll
// the status service more often than every few minutes.
const statusCacheTTL = 3 * time.Minute

// Handler bridges HTTP traffic with the fiscal application service.
type Handler struct {
	service      *appfiscal.Service
	statusCache  *cache.TTLCache[*outcome.Result]
	batchTimeout time.Duration
	log          *slog.Logger
}

// NewHandler creates the fiscal HTTP handler. batchTimeout extends the
// request deadline of the batch emission route; zero leaves the server
// default in place.
func NewHandler(service *appfiscal.Service, batchTimeout time.Duration, log *slog.Logger) *Handler {
	return &Handler{
		service:      service,
		statusCache:  cache.NewTTLCache[*outcome.Result](),
		batchTimeout: batchTimeout,
		log:          log,
	}
}

// Routes registers the fiscal endpoints on a chi router.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/nfe", h.Emit)
	if h.batchTimeout > 0 {
		r.With(middleware.ExtendedTimeout(h.batchTimeout)).Post("/nfe/lote", h.EmitBatch)
	} else {
		r.Post("/nfe/lote", h.EmitBatch)
	}
	r.Get("/nfe/{chave}", h.Find)
	r.Get("/nfe/{chave}/situacao", h.Consult)
	r.Post("/nfe/{chave}/retransmissao", h.Retransmit)
	r.Post("/nfe/{chave}/reemissao", h.Resubmit)
	r.Post("/nfe/{chave}/cancelamento", h.Cancel)
	r.Post("/nfe/{chave}/cce", h.Correct)
	r.Post("/inutilizacao", h.Inutilize)
	r.Get("/status", h.Status)
}

// EmitRequest carries one invoice for emission. The invoice payload uses the
// domain field names.
type EmitRequest struct {
	EmitterID int64           `json:"emitterId"`
	Invoice   invoice.Invoice `json:"invoice"`
}

// EmitBatchRequest carries a batch of invoices for one emitter.
type EmitBatchRequest struct {
	EmitterID int64             `json:"emitterId"`
	Invoices  []invoice.Invoice `json:"invoices"`
}

// CancelRequest carries the cancellation justification.
type CancelRequest struct {
	Justification string `json:"justification"`
}

// CorrectRequest carries the correction letter text.
type CorrectRequest struct {
	Text string `json:"text"`
}

// InutilizeRequest identifies a never-used number range to burn.
type InutilizeRequest struct {
	EmitterID     int64  `json:"emitterId"`
	Serie         int    `json:"serie"`
	NumberFirst   int64  `json:"numberFirst"`
	NumberLast    int64  `json:"numberLast"`
	Justification string `json:"justification"`
}

// InvoiceView is the wire representation of an invoice's lifecycle state.
type InvoiceView struct {
	AccessKey    string          `json:"accessKey"`
	Serie        int             `json:"serie"`
	Number       int64           `json:"number"`
	Status       string          `json:"status"`
	Protocol     string          `json:"protocol,omitempty"`
	AuthorizedAt *time.Time      `json:"authorizedAt,omitempty"`
	Outcome      *outcome.Result `json:"outcome,omitempty"`
}

// EventView is the wire representation of a registered event.
type EventView struct {
	Code      string    `json:"code"`
	Sequence  int       `json:"sequence"`
	Status    string    `json:"status"`
	Protocol  string    `json:"protocol,omitempty"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}

func viewOf(inv *invoice.Invoice, res *outcome.Result) InvoiceView {
	v := InvoiceView{
		AccessKey:    inv.AccessKey,
		Serie:        inv.Serie,
		Number:       inv.Number,
		Status:       string(inv.Status),
		Protocol:     inv.Protocol,
		AuthorizedAt: inv.AuthorizedAt,
		Outcome:      res,
	}
	if v.Outcome != nil {
		// raw XML goes through the dedicated consult endpoint, not every reply
		trimmed := *res
		trimmed.RawXML = nil
		trimmed.RequestXML = nil
		v.Outcome = &trimmed
	}
	return v
}

// Emit handles POST /api/v1/nfe.
func (h *Handler) Emit(w http.ResponseWriter, r *http.Request) {
	var req EmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperrors.WriteError(w, http.StatusBadRequest, "invalid request body", []string{err.Error()}, h.log)
		return
	}
	if req.EmitterID <= 0 {
		httperrors.WriteError(w, http.StatusBadRequest, "validation failed", []string{"emitterId is required"}, h.log)
		return
	}

	res, err := h.service.EmitInvoice(r.Context(), req.EmitterID, &req.Invoice)
	if err != nil && res == nil {
		h.handleError(w, err)
		return
	}
	if err != nil {
		// transport failure: the invoice is persisted and retryable
		writeJSON(w, http.StatusAccepted, viewOf(res.Invoice, nil), h.log)
		return
	}
	writeJSON(w, emissionStatus(res.Invoice), viewOf(res.Invoice, res.Outcome), h.log)
}

// EmitBatch handles POST /api/v1/nfe/lote.
func (h *Handler) EmitBatch(w http.ResponseWriter, r *http.Request) {
	var req EmitBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperrors.WriteError(w, http.StatusBadRequest, "invalid request body", []string{err.Error()}, h.log)
		return
	}
	if req.EmitterID <= 0 || len(req.Invoices) == 0 {
		httperrors.WriteError(w, http.StatusBadRequest, "validation failed", []string{"emitterId and a non-empty invoices list are required"}, h.log)
		return
	}

	batch := make([]*invoice.Invoice, len(req.Invoices))
	for i := range req.Invoices {
		batch[i] = &req.Invoices[i]
	}

	results := h.service.EmitBatch(r.Context(), req.EmitterID, batch)

	type batchItem struct {
		Index   int          `json:"index"`
		Invoice *InvoiceView `json:"invoice,omitempty"`
		Error   string       `json:"error,omitempty"`
	}
	out := make([]batchItem, len(results))
	for i, res := range results {
		item := batchItem{Index: res.Index}
		if res.Err != nil {
			item.Error = res.Err.Error()
		}
		if res.Result != nil && res.Result.Invoice != nil {
			v := viewOf(res.Result.Invoice, res.Result.Outcome)
			item.Invoice = &v
		}
		out[i] = item
	}
	writeJSON(w, http.StatusOK, out, h.log)
}

// Find handles GET /api/v1/nfe/{chave}: the stored record plus its events.
func (h *Handler) Find(w http.ResponseWriter, r *http.Request) {
	chave := chi.URLParam(r, "chave")

	inv, err := h.service.FindInvoice(r.Context(), chave)
	if err != nil {
		h.handleError(w, err)
		return
	}
	events, err := h.service.ListEvents(r.Context(), chave)
	if err != nil {
		h.handleError(w, err)
		return
	}

	views := make([]EventView, len(events))
	for i, ev := range events {
		views[i] = EventView{
			Code:      string(ev.Code),
			Sequence:  ev.Sequence,
			Status:    string(ev.Status),
			Protocol:  ev.Protocol,
			Body:      ev.Body,
			CreatedAt: ev.CreatedAt,
		}
	}

	writeJSON(w, http.StatusOK, struct {
		InvoiceView
		Events []EventView `json:"events"`
	}{viewOf(inv, nil), views}, h.log)
}

// Consult handles GET /api/v1/nfe/{chave}/situacao: the authority's view.
func (h *Handler) Consult(w http.ResponseWriter, r *http.Request) {
	chave := chi.URLParam(r, "chave")

	inv, res, err := h.service.ConsultInvoice(r.Context(), chave)
	if err != nil {
		h.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(inv, res), h.log)
}

// Retransmit handles POST /api/v1/nfe/{chave}/retransmissao.
func (h *Handler) Retransmit(w http.ResponseWriter, r *http.Request) {
	chave := chi.URLParam(r, "chave")

	res, err := h.service.RetransmitInvoice(r.Context(), chave)
	if err != nil && res == nil {
		h.handleError(w, err)
		return
	}
	if err != nil {
		writeJSON(w, http.StatusAccepted, viewOf(res.Invoice, nil), h.log)
		return
	}
	writeJSON(w, emissionStatus(res.Invoice), viewOf(res.Invoice, res.Outcome), h.log)
}

// Resubmit handles POST /api/v1/nfe/{chave}/reemissao: a rejected document is
// rebuilt under the same serie and number and submitted again. The reply
// carries the fresh access key.
func (h *Handler) Resubmit(w http.ResponseWriter, r *http.Request) {
	chave := chi.URLParam(r, "chave")

	res, err := h.service.ResubmitInvoice(r.Context(), chave)
	if err != nil && res == nil {
		h.handleError(w, err)
		return
	}
	if err != nil {
		writeJSON(w, http.StatusAccepted, viewOf(res.Invoice, nil), h.log)
		return
	}
	writeJSON(w, emissionStatus(res.Invoice), viewOf(res.Invoice, res.Outcome), h.log)
}

// Cancel handles POST /api/v1/nfe/{chave}/cancelamento.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.event(w, r, func(chave, body string) (*event.FiscalEvent, error) {
		return h.service.CancelInvoice(r.Context(), chave, body)
	}, func() (string, error) {
		var req CancelRequest
		err := json.NewDecoder(r.Body).Decode(&req)
		return req.Justification, err
	})
}

// Correct handles POST /api/v1/nfe/{chave}/cce.
func (h *Handler) Correct(w http.ResponseWriter, r *http.Request) {
	h.event(w, r, func(chave, body string) (*event.FiscalEvent, error) {
		return h.service.CorrectInvoice(r.Context(), chave, body)
	}, func() (string, error) {
		var req CorrectRequest
		err := json.NewDecoder(r.Body).Decode(&req)
		return req.Text, err
	})
}

func (h *Handler) event(w http.ResponseWriter, r *http.Request,
	run func(chave, body string) (*event.FiscalEvent, error),
	decode func() (string, error),
) {
	chave := chi.URLParam(r, "chave")

	body, err := decode()
	if err != nil {
		httperrors.WriteError(w, http.StatusBadRequest, "invalid request body", []string{err.Error()}, h.log)
		return
	}

	ev, err := run(chave, body)
	if err != nil {
		h.handleError(w, err)
		return
	}

	code := http.StatusOK
	if ev.Status == event.StatusRejected {
		code = http.StatusUnprocessableEntity
	}
	writeJSON(w, code, EventView{
		Code:      string(ev.Code),
		Sequence:  ev.Sequence,
		Status:    string(ev.Status),
		Protocol:  ev.Protocol,
		Body:      ev.Body,
		CreatedAt: ev.CreatedAt,
	}, h.log)
}

// Inutilize handles POST /api/v1/inutilizacao.
func (h *Handler) Inutilize(w http.ResponseWriter, r *http.Request) {
	var req InutilizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperrors.WriteError(w, http.StatusBadRequest, "invalid request body", []string{err.Error()}, h.log)
		return
	}
	if req.EmitterID <= 0 {
		httperrors.WriteError(w, http.StatusBadRequest, "validation failed", []string{"emitterId is required"}, h.log)
		return
	}

	inut, err := h.service.InutilizeRange(r.Context(), req.EmitterID, req.Serie,
		req.NumberFirst, req.NumberLast, req.Justification)
	if err != nil {
		h.handleError(w, err)
		return
	}

	code := http.StatusOK
	if inut.Status == event.StatusRejected {
		code = http.StatusUnprocessableEntity
	}
	writeJSON(w, code, struct {
		Serie       int    `json:"serie"`
		NumberFirst int64  `json:"numberFirst"`
		NumberLast  int64  `json:"numberLast"`
		Status      string `json:"status"`
		Protocol    string `json:"protocol,omitempty"`
	}{inut.Serie, inut.NumberFirst, inut.NumberLast, string(inut.Status), inut.Protocol}, h.log)
}

// Status handles GET /api/v1/status?emitterId=N, cached to keep the
// authorizer from being polled on every dashboard refresh.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	emitterID, err := strconv.ParseInt(r.URL.Query().Get("emitterId"), 10, 64)
	if err != nil || emitterID <= 0 {
		httperrors.WriteError(w, http.StatusBadRequest, "validation failed", []string{"emitterId query parameter is required"}, h.log)
		return
	}

	if res, ok := h.statusCache.Get(); ok {
		writeJSON(w, http.StatusOK, res, h.log)
		return
	}

	res, err := h.service.CheckStatus(r.Context(), emitterID)
	if err != nil {
		h.handleError(w, err)
		return
	}
	trimmed := *res
	trimmed.RawXML = nil
	h.statusCache.Set(&trimmed, statusCacheTTL)
	writeJSON(w, http.StatusOK, &trimmed, h.log)
}

// emissionStatus picks the HTTP code for a finished emission: the request
// was handled either way, so rejections and denials are 422, not 4xx client
// errors or 5xx failures.
func emissionStatus(inv *invoice.Invoice) int {
	switch inv.Status {
	case invoice.StatusAuthorized:
		return http.StatusCreated
	case invoice.StatusTransmitted:
		return http.StatusAccepted
	default:
		return http.StatusUnprocessableEntity
	}
}

// handleError maps domain errors to HTTP status codes.
func (h *Handler) handleError(w http.ResponseWriter, err error) {
	var buildErr *outcome.BuildError
	var credErr *outcome.CredentialError
	var stateErr *appfiscal.StateError

	switch {
	case errors.Is(err, invoice.ErrNotFound), errors.Is(err, emitter.ErrNotFound), errors.Is(err, event.ErrNotFound):
		httperrors.WriteError(w, http.StatusNotFound, "not found", []string{err.Error()}, h.log)
	case errors.As(err, &buildErr):
		httperrors.WriteError(w, http.StatusBadRequest, "document build failed", []string{err.Error()}, h.log)
	case errors.As(err, &stateErr):
		httperrors.WriteError(w, http.StatusConflict, "operation conflicts with document state", []string{err.Error()}, h.log)
	case errors.As(err, &credErr),
		errors.Is(err, outcome.ErrCredentialExpired),
		errors.Is(err, outcome.ErrCredentialUnavailable):
		httperrors.WriteError(w, http.StatusServiceUnavailable, "signing credential unavailable", []string{err.Error()}, h.log)
	case outcome.IsTransportError(err):
		httperrors.WriteError(w, http.StatusBadGateway, "authorizer unreachable", []string{err.Error()}, h.log)
	default:
		h.log.Error("unhandled fiscal error", "error", err)
		httperrors.WriteError(w, http.StatusInternalServerError, "internal error", nil, h.log)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any, log *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil && log != nil {
		log.Error("failed to encode response", "error", err)
	}
}
