package credential

import (
	"crypto/tls"
	"crypto/x509"
	"strings"
	"time"

	"gestaofiscal/ms_nfe_core/internal/core/outcome"
)

// nearExpiryWindow is how close to the not-after date a credential starts
// being reported as near expiry.
const nearExpiryWindow = 30 * 24 * time.Hour

// Identity is what an ICP-Brasil certificate says about its holder. The CN
// convention is "NAME:CNPJ"; both halves are surfaced separately.
type Identity struct {
	CommonName string
	HolderName string
	CNPJ       string
	Thumbprint string // sha1 of the DER leaf, hex
	NotBefore  time.Time
	NotAfter   time.Time
}

// Validity is the answer of a validation probe.
type Validity struct {
	Valid         bool
	Expired       bool
	NearExpiry    bool
	DaysRemaining int
}

// Credential owns a private key capable of RSA-SHA1 signatures and its X.509
// leaf. File-backed (A1) and token-backed (A3) media satisfy it.
type Credential interface {
	// Identity describes the certificate holder.
	Identity() Identity
	// Validate checks the certificate validity window against the clock.
	Validate() Validity
	// Certificate returns the parsed leaf.
	Certificate() *x509.Certificate
	// CertificateDER returns the raw DER leaf for KeyInfo embedding.
	CertificateDER() []byte
	// TLSCertificate returns the credential as a client certificate for
	// mutual TLS.
	TLSCertificate() (tls.Certificate, error)
	// Sign produces a PKCS#1 v1.5 RSA-SHA1 signature over message.
	Sign(message []byte) ([]byte, error)
	// Close releases any underlying resources (token sessions).
	Close() error
}

// splitCN separates the ICP-Brasil "NAME:CNPJ" convention. Certificates
// without the suffix keep the whole CN as the holder name.
func splitCN(cn string) (name, cnpj string) {
	idx := strings.LastIndex(cn, ":")
	if idx < 0 {
		return cn, ""
	}
	suffix := cn[idx+1:]
	for _, r := range suffix {
		if r < '0' || r > '9' {
			return cn, ""
		}
	}
	return cn[:idx], suffix
}

func validityOf(cert *x509.Certificate, now time.Time) Validity {
	if now.After(cert.NotAfter) {
		return Validity{Expired: true}
	}
	if now.Before(cert.NotBefore) {
		return Validity{}
	}
	remaining := cert.NotAfter.Sub(now)
	return Validity{
		Valid:         true,
		NearExpiry:    remaining <= nearExpiryWindow,
		DaysRemaining: int(remaining.Hours() / 24),
	}
}

// Ensure checks that a credential is usable for signing right now.
func Ensure(c Credential) error {
	v := c.Validate()
	if v.Expired {
		return outcome.ErrCredentialExpired
	}
	if !v.Valid {
		return outcome.ErrCredentialUnavailable
	}
	return nil
}
