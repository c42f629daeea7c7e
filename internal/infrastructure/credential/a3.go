package credential

import (
	"crypto"
	"crypto/sha1"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/miekg/pkcs11"

	"gestaofiscal/ms_nfe_core/internal/core/outcome"
)

// A3Config locates and unlocks a hardware token.
type A3Config struct {
	// LibraryPath is the PKCS#11 module; empty probes the usual locations.
	LibraryPath string
	// TokenLabel selects among multiple tokens; empty takes the first slot
	// with a token present.
	TokenLabel string
	PIN        string
}

// defaultLibraryPaths are the usual homes of the vendor middleware shipped
// with Brazilian A3 tokens.
var defaultLibraryPaths = []string{
	"/usr/lib/libaetpkss.so",
	"/usr/lib/libeToken.so",
	"/usr/lib/watchdata/lib/libwdpkcs.so",
	"/usr/lib/opensc-pkcs11.so",
	"/usr/lib/x86_64-linux-gnu/opensc-pkcs11.so",
	"/usr/local/lib/opensc-pkcs11.so",
}

// A3 drives a PKCS#11 hardware token. Tokens serialize operations per
// session, so every call that touches the session holds the mutex.
type A3 struct {
	mu      sync.Mutex
	ctx     *pkcs11.Ctx
	session pkcs11.SessionHandle
	key     pkcs11.ObjectHandle

	leaf     *x509.Certificate
	identity Identity
}

// LoadA3 initializes the middleware, opens a session on the selected token
// and locates the signing key and its certificate.
func LoadA3(cfg A3Config) (*A3, error) {
	libPath := cfg.LibraryPath
	if libPath == "" {
		for _, p := range defaultLibraryPaths {
			if _, err := os.Stat(p); err == nil {
				libPath = p
				break
			}
		}
	}
	if libPath == "" {
		return nil, &outcome.CredentialError{
			Op:  "locate pkcs11 library",
			Err: fmt.Errorf("no middleware found; set the library path explicitly"),
		}
	}

	ctx := pkcs11.New(libPath)
	if ctx == nil {
		return nil, &outcome.CredentialError{
			Op:  "load pkcs11 library",
			Err: fmt.Errorf("cannot load %s", libPath),
		}
	}
	if err := ctx.Initialize(); err != nil {
		ctx.Destroy()
		return nil, &outcome.CredentialError{Op: "initialize pkcs11", Err: err}
	}

	a3, err := openToken(ctx, cfg)
	if err != nil {
		ctx.Finalize()
		ctx.Destroy()
		return nil, err
	}
	return a3, nil
}

func openToken(ctx *pkcs11.Ctx, cfg A3Config) (*A3, error) {
	slots, err := ctx.GetSlotList(true)
	if err != nil {
		return nil, &outcome.CredentialError{Op: "list slots", Err: err}
	}
	if len(slots) == 0 {
		return nil, &outcome.CredentialError{
			Op:  "list slots",
			Err: fmt.Errorf("no token present"),
		}
	}

	slot := slots[0]
	if cfg.TokenLabel != "" {
		found := false
		for _, s := range slots {
			info, err := ctx.GetTokenInfo(s)
			if err != nil {
				continue
			}
			if info.Label == cfg.TokenLabel {
				slot = s
				found = true
				break
			}
		}
		if !found {
			return nil, &outcome.CredentialError{
				Op:  "select token",
				Err: fmt.Errorf("no token labeled %q", cfg.TokenLabel),
			}
		}
	}

	session, err := ctx.OpenSession(slot, pkcs11.CKF_SERIAL_SESSION)
	if err != nil {
		return nil, &outcome.CredentialError{Op: "open session", Err: err}
	}
	if err := ctx.Login(session, pkcs11.CKU_USER, cfg.PIN); err != nil {
		ctx.CloseSession(session)
		return nil, &outcome.CredentialError{Op: "login", Err: err}
	}

	key, err := findObject(ctx, session, []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, pkcs11.CKO_PRIVATE_KEY),
		pkcs11.NewAttribute(pkcs11.CKA_SIGN, true),
	})
	if err != nil {
		ctx.CloseSession(session)
		return nil, &outcome.CredentialError{Op: "find signing key", Err: err}
	}

	leaf, err := findCertificate(ctx, session)
	if err != nil {
		ctx.CloseSession(session)
		return nil, err
	}

	name, cnpj := splitCN(leaf.Subject.CommonName)
	sum := sha1.Sum(leaf.Raw)
	return &A3{
		ctx:     ctx,
		session: session,
		key:     key,
		leaf:    leaf,
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

func findObject(ctx *pkcs11.Ctx, session pkcs11.SessionHandle, template []*pkcs11.Attribute) (pkcs11.ObjectHandle, error) {
	if err := ctx.FindObjectsInit(session, template); err != nil {
		return 0, err
	}
	defer ctx.FindObjectsFinal(session)

	objs, _, err := ctx.FindObjects(session, 1)
	if err != nil {
		return 0, err
	}
	if len(objs) == 0 {
		return 0, fmt.Errorf("object not found")
	}
	return objs[0], nil
}

func findCertificate(ctx *pkcs11.Ctx, session pkcs11.SessionHandle) (*x509.Certificate, error) {
	obj, err := findObject(ctx, session, []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, pkcs11.CKO_CERTIFICATE),
	})
	if err != nil {
		return nil, &outcome.CredentialError{Op: "find certificate", Err: err}
	}
	attrs, err := ctx.GetAttributeValue(session, obj, []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_VALUE, nil),
	})
	if err != nil || len(attrs) == 0 {
		return nil, &outcome.CredentialError{Op: "read certificate", Err: err}
	}
	leaf, err := x509.ParseCertificate(attrs[0].Value)
	if err != nil {
		return nil, &outcome.CredentialError{Op: "parse certificate", Err: err}
	}
	return leaf, nil
}

func (a *A3) Identity() Identity { return a.identity }

func (a *A3) Validate() Validity { return validityOf(a.leaf, time.Now()) }

func (a *A3) Certificate() *x509.Certificate { return a.leaf }

func (a *A3) CertificateDER() []byte { return a.leaf.Raw }

// Sign hashes and signs inside the token with CKM_SHA1_RSA_PKCS, so the
// private key never leaves the hardware.
func (a *A3) Sign(message []byte) ([]byte, error) {
	if err := Ensure(a); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	mech := []*pkcs11.Mechanism{pkcs11.NewMechanism(pkcs11.CKM_SHA1_RSA_PKCS, nil)}
	if err := a.ctx.SignInit(a.session, mech, a.key); err != nil {
		return nil, &outcome.CredentialError{Op: "sign init", Err: outcome.ErrMechanismUnavailable}
	}
	sig, err := a.ctx.Sign(a.session, message)
	if err != nil {
		return nil, &outcome.CredentialError{Op: "sign", Err: err}
	}
	return sig, nil
}

// TLSCertificate exposes the token key as a crypto.Signer so the TLS stack
// can complete client authentication against the token.
func (a *A3) TLSCertificate() (tls.Certificate, error) {
	return tls.Certificate{
		Certificate: [][]byte{a.leaf.Raw},
		PrivateKey:  &tokenSigner{a3: a},
		Leaf:        a.leaf,
	}, nil
}

func (a *A3) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ctx == nil {
		return nil
	}
	a.ctx.Logout(a.session)
	a.ctx.CloseSession(a.session)
	a.ctx.Finalize()
	a.ctx.Destroy()
	a.ctx = nil
	return nil
}

// tokenSigner adapts the token to crypto.Signer for TLS handshakes. TLS
// hands over a pre-computed digest, so the raw CKM_RSA_PKCS mechanism is used
// with the DigestInfo prefix of the negotiated hash.
type tokenSigner struct {
	a3 *A3
}

func (s *tokenSigner) Public() crypto.PublicKey {
	return s.a3.leaf.PublicKey
}

var digestInfoPrefixes = map[crypto.Hash][]byte{
	crypto.SHA1:   {0x30, 0x21, 0x30, 0x09, 0x06, 0x05, 0x2b, 0x0e, 0x03, 0x02, 0x1a, 0x05, 0x00, 0x04, 0x14},
	crypto.SHA256: {0x30, 0x31, 0x30, 0x0d, 0x06, 0x09, 0x60, 0x86, 0x48, 0x01, 0x65, 0x03, 0x04, 0x02, 0x01, 0x05, 0x00, 0x04, 0x20},
	crypto.SHA384: {0x30, 0x41, 0x30, 0x0d, 0x06, 0x09, 0x60, 0x86, 0x48, 0x01, 0x65, 0x03, 0x04, 0x02, 0x02, 0x05, 0x00, 0x04, 0x30},
	crypto.SHA512: {0x30, 0x51, 0x30, 0x0d, 0x06, 0x09, 0x60, 0x86, 0x48, 0x01, 0x65, 0x03, 0x04, 0x02, 0x03, 0x05, 0x00, 0x04, 0x40},
}

func (s *tokenSigner) Sign(_ io.Reader, digest []byte, opts crypto.SignerOpts) ([]byte, error) {
	prefix, ok := digestInfoPrefixes[opts.HashFunc()]
	if !ok {
		return nil, outcome.ErrMechanismUnavailable
	}
	payload := append(append([]byte{}, prefix...), digest...)

	s.a3.mu.Lock()
	defer s.a3.mu.Unlock()

	mech := []*pkcs11.Mechanism{pkcs11.NewMechanism(pkcs11.CKM_RSA_PKCS, nil)}
	if err := s.a3.ctx.SignInit(s.a3.session, mech, s.a3.key); err != nil {
		return nil, &outcome.CredentialError{Op: "tls sign init", Err: err}
	}
	return s.a3.ctx.Sign(s.a3.session, payload)
}
