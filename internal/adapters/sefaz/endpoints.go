package sefaz

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gestaofiscal/ms_nfe_core/internal/core/emitter"
)

// Service identifies one of the six SEFAZ web services an emitter talks to.
type Service string

const (
	ServiceAuthorize    Service = "authorize"
	ServiceQueryReceipt Service = "query_receipt"
	ServiceConsult      Service = "consult"
	ServiceStatus       Service = "status"
	ServiceEvent        Service = "event"
	ServiceInutilize    Service = "inutilize"
)

//go:embed endpoints.json
var embeddedEndpoints []byte

// endpointTable is the on-disk shape of the routing data: a UF-to-authorizer
// map plus, per authorizer, the per-environment service URLs. States without
// their own infrastructure route to the shared virtual authorizers (SVRS,
// and SVAN for MA).
type endpointTable struct {
	Routing     map[string]string                       `json:"routing"`
	Authorizers map[string]map[string]map[string]string `json:"authorizers"`
}

// EndpointResolver answers "which URL serves (UF, environment, service)".
type EndpointResolver struct {
	table endpointTable
}

// NewEndpointResolver loads the embedded endpoint table, or the file named by
// NFE_ENDPOINTS_FILE when set, so operators can follow SEFAZ URL changes
// without a rebuild.
func NewEndpointResolver() (*EndpointResolver, error) {
	raw := embeddedEndpoints
	if path := os.Getenv("NFE_ENDPOINTS_FILE"); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading endpoint table %s: %w", path, err)
		}
		raw = b
	}

	var table endpointTable
	if err := json.Unmarshal(raw, &table); err != nil {
		return nil, fmt.Errorf("parsing endpoint table: %w", err)
	}
	if len(table.Routing) == 0 || len(table.Authorizers) == 0 {
		return nil, fmt.Errorf("endpoint table is empty")
	}
	return &EndpointResolver{table: table}, nil
}

// Resolve returns the URL serving the given state, environment and service.
func (r *EndpointResolver) Resolve(uf string, env emitter.Environment, svc Service) (string, error) {
	uf = strings.ToUpper(strings.TrimSpace(uf))
	authorizer, ok := r.table.Routing[uf]
	if !ok {
		return "", fmt.Errorf("no authorizer routed for UF %q", uf)
	}

	envKey := "production"
	if env == emitter.EnvironmentHomologation {
		envKey = "homologation"
	}

	services, ok := r.table.Authorizers[authorizer][envKey]
	if !ok {
		return "", fmt.Errorf("authorizer %s has no %s endpoints", authorizer, envKey)
	}
	url, ok := services[string(svc)]
	if !ok || url == "" {
		return "", fmt.Errorf("authorizer %s does not expose service %q", authorizer, svc)
	}
	return url, nil
}

// Authorizer reports which authorizer serves a UF, for logging and health.
func (r *EndpointResolver) Authorizer(uf string) (string, bool) {
	a, ok := r.table.Routing[strings.ToUpper(strings.TrimSpace(uf))]
	return a, ok
}
