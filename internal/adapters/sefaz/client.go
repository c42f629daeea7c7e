package sefaz

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"gestaofiscal/ms_nfe_core/internal/core/emitter"
	"gestaofiscal/ms_nfe_core/internal/core/outcome"
)

const (
	defaultQueryTimeout     = 30 * time.Second
	defaultAuthorizeTimeout = 60 * time.Second

	maxResponseBytes = 4 << 20
)

// ClientConfig carries the transport knobs of the SEFAZ client.
type ClientConfig struct {
	Certificate      tls.Certificate
	RootCAs          *x509.CertPool // nil uses the system pool
	QueryTimeout     time.Duration
	AuthorizeTimeout time.Duration
	MaxConcurrent    int
	BreakerFailures  int
	BreakerCooldown  time.Duration
}

// Client posts signed fiscal payloads to the authorizer serving each state.
// All methods are safe for concurrent use.
type Client struct {
	http             *http.Client
	resolver         *EndpointResolver
	logger           *slog.Logger
	breaker          *CircuitBreaker
	limiter          *RequestLimiter
	queryTimeout     time.Duration
	authorizeTimeout time.Duration
}

// NewClient builds a client presenting the given certificate for mutual TLS.
// Some authorizers (notably SP) renegotiate mid-handshake, so client-side
// renegotiation is enabled.
func NewClient(cfg ClientConfig, resolver *EndpointResolver, logger *slog.Logger) *Client {
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = defaultQueryTimeout
	}
	if cfg.AuthorizeTimeout <= 0 {
		cfg.AuthorizeTimeout = defaultAuthorizeTimeout
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			Certificates:  []tls.Certificate{cfg.Certificate},
			RootCAs:       cfg.RootCAs,
			Renegotiation: tls.RenegotiateOnceAsClient,
			MinVersion:    tls.VersionTLS12,
		},
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
	}

	return &Client{
		http:             &http.Client{Transport: transport},
		resolver:         resolver,
		logger:           logger,
		breaker:          NewCircuitBreaker(cfg.BreakerFailures, cfg.BreakerCooldown),
		limiter:          NewRequestLimiter(cfg.MaxConcurrent),
		queryTimeout:     cfg.QueryTimeout,
		authorizeTimeout: cfg.AuthorizeTimeout,
	}
}

// AuthorizeReply is the result of a batch submission: either a processed
// protocol outcome (synchronous path) or a receipt to poll later.
type AuthorizeReply struct {
	Outcome *outcome.Result
	Receipt string
}

// Authorize submits a signed document inside an enviNFe batch.
func (c *Client) Authorize(ctx context.Context, uf string, env emitter.Environment, lote int64, signedNFe []byte) (*AuthorizeReply, error) {
	payload := WrapEnviNFe(lote, signedNFe, true)
	reply, err := c.call(ctx, uf, env, ServiceAuthorize, payload, c.authorizeTimeout)
	if err != nil {
		return nil, err
	}
	if receipt := ReceiptOf(reply); receipt != "" {
		return &AuthorizeReply{Receipt: receipt}, nil
	}
	res, err := ParseResponse(ServiceAuthorize, reply)
	if err != nil {
		return nil, err
	}
	return &AuthorizeReply{Outcome: res}, nil
}

// QueryReceipt polls the outcome of an asynchronous batch.
func (c *Client) QueryReceipt(ctx context.Context, uf string, env emitter.Environment, receipt string) (*outcome.Result, error) {
	reply, err := c.call(ctx, uf, env, ServiceQueryReceipt, BuildConsReciNFe(env, receipt), c.queryTimeout)
	if err != nil {
		return nil, err
	}
	return ParseResponse(ServiceQueryReceipt, reply)
}

// Consult fetches the current situation of an access key.
func (c *Client) Consult(ctx context.Context, uf string, env emitter.Environment, accessKey string) (*outcome.Result, error) {
	reply, err := c.call(ctx, uf, env, ServiceConsult, BuildConsSitNFe(env, accessKey), c.queryTimeout)
	if err != nil {
		return nil, err
	}
	return ParseResponse(ServiceConsult, reply)
}

// Status probes the authorizer serving a state.
func (c *Client) Status(ctx context.Context, uf string, env emitter.Environment) (*outcome.Result, error) {
	ufCode, err := emitter.UFCode(uf)
	if err != nil {
		return nil, err
	}
	reply, err := c.call(ctx, uf, env, ServiceStatus, BuildConsStatServ(env, ufCode), c.queryTimeout)
	if err != nil {
		return nil, err
	}
	return ParseResponse(ServiceStatus, reply)
}

// SendEvent submits a signed cancellation or correction event.
func (c *Client) SendEvent(ctx context.Context, uf string, env emitter.Environment, lote int64, signedEvento []byte) (*outcome.Result, error) {
	payload := WrapEnvEvento(lote, signedEvento)
	reply, err := c.call(ctx, uf, env, ServiceEvent, payload, c.queryTimeout)
	if err != nil {
		return nil, err
	}
	return ParseResponse(ServiceEvent, reply)
}

// Inutilize submits a signed number-range inutilization.
func (c *Client) Inutilize(ctx context.Context, uf string, env emitter.Environment, signedInut []byte) (*outcome.Result, error) {
	reply, err := c.call(ctx, uf, env, ServiceInutilize, signedInut, c.queryTimeout)
	if err != nil {
		return nil, err
	}
	return ParseResponse(ServiceInutilize, reply)
}

// BreakerState exposes the circuit position for an authorizer, for health
// reporting.
func (c *Client) BreakerState(uf string) string {
	authorizer, ok := c.resolver.Authorizer(uf)
	if !ok {
		return "unknown"
	}
	return c.breaker.State(authorizer).String()
}

// call wraps, posts and unwraps one SOAP exchange. A non-2xx status or any
// network failure is a TransportError: the caller cannot tell whether the
// request reached the authorizer, so retries must be idempotent.
func (c *Client) call(ctx context.Context, uf string, env emitter.Environment, svc Service, payload []byte, timeout time.Duration) ([]byte, error) {
	url, err := c.resolver.Resolve(uf, env, svc)
	if err != nil {
		return nil, err
	}
	authorizer, _ := c.resolver.Authorizer(uf)

	if err := c.breaker.Allow(authorizer); err != nil {
		return nil, &outcome.TransportError{Reason: "circuit open", Err: err}
	}
	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, &outcome.TransportError{Reason: "concurrency limit wait cancelled", Err: err}
	}
	defer c.limiter.Release()

	envelope, err := wrapEnvelope(svc, payload)
	if err != nil {
		return nil, err
	}
	mediaType, err := soapContentType(svc)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(envelope))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", mediaType)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.breaker.Record(authorizer, true)
		c.logger.Error("sefaz request failed",
			"service", string(svc),
			"authorizer", authorizer,
			"uf", uf,
			"error", err)
		return nil, &outcome.TransportError{Reason: "request failed", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		c.breaker.Record(authorizer, true)
		return nil, &outcome.TransportError{Reason: "reading response", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.breaker.Record(authorizer, true)
		c.logger.Error("sefaz returned non-2xx status",
			"service", string(svc),
			"authorizer", authorizer,
			"status", resp.StatusCode)
		return nil, &outcome.TransportError{
			Reason: fmt.Sprintf("http status %d", resp.StatusCode),
		}
	}
	c.breaker.Record(authorizer, false)

	c.logger.Info("sefaz request completed",
		"service", string(svc),
		"authorizer", authorizer,
		"uf", uf,
		"duration_ms", time.Since(start).Milliseconds())

	return unwrapEnvelope(svc, body)
}
