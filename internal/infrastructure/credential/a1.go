package credential

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	pkcs12 "software.sslmate.com/src/go-pkcs12"

	"gestaofiscal/ms_nfe_core/internal/core/outcome"
)

// A1 is a file-backed PKCS#12 credential. It is immutable after load and safe
// for concurrent use.
type A1 struct {
	key      *rsa.PrivateKey
	leaf     *x509.Certificate
	chain    []*x509.Certificate
	identity Identity
}

// LoadA1 reads and decrypts a PKCS#12 file.
func LoadA1(path, password string) (*A1, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, &outcome.CredentialError{Op: "read pkcs12 file", Err: err}
	}
	return ParseA1(blob, password)
}

// ParseA1 decrypts a PKCS#12 blob already in memory.
func ParseA1(blob []byte, password string) (*A1, error) {
	key, leaf, chain, err := pkcs12.DecodeChain(blob, password)
	if err != nil {
		return nil, &outcome.CredentialError{Op: "decode pkcs12", Err: err}
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, &outcome.CredentialError{
			Op:  "decode pkcs12",
			Err: fmt.Errorf("unsupported key type %T", key),
		}
	}

	name, cnpj := splitCN(leaf.Subject.CommonName)
	sum := sha1.Sum(leaf.Raw)
	return &A1{
		key:   rsaKey,
		leaf:  leaf,
		chain: chain,
		identity: Identity{
			CommonName: leaf.Subject.CommonName,
			HolderName: name,
			CNPJ:       cnpj,
			Thumbprint: hex.EncodeToString(sum[:]),
			NotBefore:  leaf.NotBefore,
			NotAfter:   leaf.NotAfter,
		},
	}, nil
}

func (a *A1) Identity() Identity { return a.identity }

func (a *A1) Validate() Validity { return validityOf(a.leaf, time.Now()) }

func (a *A1) Certificate() *x509.Certificate { return a.leaf }

func (a *A1) CertificateDER() []byte { return a.leaf.Raw }

// TLSCertificate presents the leaf plus intermediate chain for mutual TLS.
func (a *A1) TLSCertificate() (tls.Certificate, error) {
	cert := tls.Certificate{
		Certificate: [][]byte{a.leaf.Raw},
		PrivateKey:  a.key,
		Leaf:        a.leaf,
	}
	for _, c := range a.chain {
		cert.Certificate = append(cert.Certificate, c.Raw)
	}
	return cert, nil
}

// Sign produces a PKCS#1 v1.5 RSA-SHA1 signature, the only scheme the fiscal
// services accept.
func (a *A1) Sign(message []byte) ([]byte, error) {
	if err := Ensure(a); err != nil {
		return nil, err
	}
	digest := sha1.Sum(message)
	sig, err := rsa.SignPKCS1v15(rand.Reader, a.key, crypto.SHA1, digest[:])
	if err != nil {
		return nil, &outcome.CredentialError{Op: "sign", Err: err}
	}
	return sig, nil
}

func (a *A1) Close() error { return nil }
