package health

import (
	"context"
	"fmt"
	"time"

	corehealth "gestaofiscal/ms_nfe_core/internal/core/health"
	"gestaofiscal/ms_nfe_core/internal/infrastructure/credential"
)

// Metadata contains immutable metadata about the running service.
type Metadata struct {
	Service     string
	Version     string
	Environment string
}

// Pinger probes a storage backend; *pgxpool.Pool satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Service exposes health-check use cases to adapters. The credential check
// surfaces near-expiry certificates well before SEFAZ starts refusing them.
type Service struct {
	meta      Metadata
	startedAt time.Time
	db        Pinger
	cred      credential.Credential
}

func NewService(meta Metadata, db Pinger, cred credential.Credential) *Service {
	return &Service{
		meta:      meta,
		startedAt: time.Now().UTC(),
		db:        db,
		cred:      cred,
	}
}

// Status returns the current availability snapshot with dependency checks.
func (s *Service) Status(ctx context.Context) corehealth.Status {
	uptime := time.Since(s.startedAt)
	st := corehealth.Status{
		Service:     s.meta.Service,
		Version:     s.meta.Version,
		Environment: s.meta.Environment,
		Status:      "UP",
		StartedAt:   s.startedAt,
		Uptime:      uptime.String(),
		UptimeSecs:  int64(uptime.Seconds()),
		Checks:      make(map[string]corehealth.Check),
	}

	if s.db != nil {
		if err := s.db.Ping(ctx); err != nil {
			st.Checks["database"] = corehealth.Check{Status: "DOWN", Detail: err.Error()}
			st.Status = "DOWN"
		} else {
			st.Checks["database"] = corehealth.Check{Status: "UP"}
		}
	}

	if s.cred != nil {
		st.Checks["credential"] = s.credentialCheck()
		if st.Checks["credential"].Status == "DOWN" {
			st.Status = "DOWN"
		}
	}

	return st
}

// CredentialInfo describes the loaded signing certificate for operators
// tracking renewal.
type CredentialInfo struct {
	Holder        string    `json:"holder"`
	CNPJ          string    `json:"cnpj"`
	Thumbprint    string    `json:"thumbprint"`
	NotBefore     time.Time `json:"notBefore"`
	NotAfter      time.Time `json:"notAfter"`
	Valid         bool      `json:"valid"`
	Expired       bool      `json:"expired"`
	NearExpiry    bool      `json:"nearExpiry"`
	DaysRemaining int       `json:"daysRemaining"`
}

// Credential reports identity and validity of the signing certificate.
func (s *Service) Credential() (*CredentialInfo, error) {
	if s.cred == nil {
		return nil, fmt.Errorf("no signing credential loaded")
	}
	id := s.cred.Identity()
	v := s.cred.Validate()
	return &CredentialInfo{
		Holder:        id.HolderName,
		CNPJ:          id.CNPJ,
		Thumbprint:    id.Thumbprint,
		NotBefore:     id.NotBefore,
		NotAfter:      id.NotAfter,
		Valid:         v.Valid,
		Expired:       v.Expired,
		NearExpiry:    v.NearExpiry,
		DaysRemaining: v.DaysRemaining,
	}, nil
}

func (s *Service) credentialCheck() corehealth.Check {
	v := s.cred.Validate()
	switch {
	case v.Expired:
		return corehealth.Check{Status: "DOWN", Detail: "certificate expired"}
	case !v.Valid:
		return corehealth.Check{Status: "DOWN", Detail: "certificate not yet valid"}
	case v.NearExpiry:
		return corehealth.Check{
			Status: "WARN",
			Detail: fmt.Sprintf("certificate expires in %d days", v.DaysRemaining),
		}
	default:
		return corehealth.Check{Status: "UP"}
	}
}
