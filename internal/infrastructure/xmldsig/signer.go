package xmldsig

import (
	"bytes"
	"crypto"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/beevik/etree"
	dsig "github.com/russellhaering/goxmldsig"

	"gestaofiscal/ms_nfe_core/internal/infrastructure/credential"
)

const (
	dsigNamespace = "http://www.w3.org/2000/09/xmldsig#"

	c14nMethod         = "http://www.w3.org/TR/2001/REC-xml-c14n-20010315"
	rsaSHA1Method      = "http://www.w3.org/2000/09/xmldsig#rsa-sha1"
	sha1Method         = "http://www.w3.org/2000/09/xmldsig#sha1"
	envelopedTransform = "http://www.w3.org/2000/09/xmldsig#enveloped-signature"
)

// Signer produces enveloped XML-DSIG signatures with a credential. The
// signature profile (RSA-SHA1, inclusive c14n) is the one the fiscal services
// verify; stronger algorithms are rejected by them.
type Signer struct {
	cred  credential.Credential
	canon dsig.Canonicalizer
}

// NewSigner returns a signer bound to a credential.
func NewSigner(cred credential.Credential) *Signer {
	return &Signer{
		cred:  cred,
		canon: dsig.MakeC14N10RecCanonicalizer(),
	}
}

// Sign locates the element whose Id matches referenceURI (with or without the
// leading '#'), digests its canonical form and appends the complete Signature
// element as its last child. The input document is not modified; the signed
// document is returned serialized.
func (s *Signer) Sign(xmlDoc []byte, referenceURI string) ([]byte, error) {
	if err := credential.Ensure(s.cred); err != nil {
		return nil, err
	}

	id := strings.TrimPrefix(referenceURI, "#")
	if id == "" {
		return nil, fmt.Errorf("empty reference uri")
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(xmlDoc); err != nil {
		return nil, fmt.Errorf("parsing document: %w", err)
	}

	target := findByID(doc.Root(), id)
	if target == nil {
		return nil, fmt.Errorf("no element with Id %q", id)
	}

	canonical, err := s.canon.Canonicalize(target)
	if err != nil {
		return nil, fmt.Errorf("canonicalizing %s: %w", target.Tag, err)
	}
	digest := sha1.Sum(canonical)
	digestB64 := base64.StdEncoding.EncodeToString(digest[:])

	signedInfo := buildSignedInfo(id, digestB64)
	canonicalSignedInfo, err := s.canon.Canonicalize(signedInfo)
	if err != nil {
		return nil, fmt.Errorf("canonicalizing SignedInfo: %w", err)
	}

	sigValue, err := s.cred.Sign(canonicalSignedInfo)
	if err != nil {
		return nil, err
	}

	signature := etree.NewElement("Signature")
	signature.CreateAttr("xmlns", dsigNamespace)
	signature.AddChild(signedInfo.Copy())

	sv := signature.CreateElement("SignatureValue")
	sv.SetText(base64.StdEncoding.EncodeToString(sigValue))

	keyInfo := signature.CreateElement("KeyInfo")
	x509Data := keyInfo.CreateElement("X509Data")
	x509Cert := x509Data.CreateElement("X509Certificate")
	x509Cert.SetText(base64.StdEncoding.EncodeToString(s.cred.CertificateDER()))

	target.AddChild(signature)

	out, err := doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("serializing signed document: %w", err)
	}
	return out, nil
}

// Verify recomputes the digest and checks the RSA signature of an enveloped
// signature, using the certificate embedded in KeyInfo.
func (s *Signer) Verify(xmlDoc []byte) error {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(xmlDoc); err != nil {
		return fmt.Errorf("parsing document: %w", err)
	}

	signature := findByTag(doc.Root(), "Signature")
	if signature == nil {
		return fmt.Errorf("document carries no Signature")
	}

	reference := findByTag(signature, "Reference")
	if reference == nil {
		return fmt.Errorf("signature carries no Reference")
	}
	id := strings.TrimPrefix(reference.SelectAttrValue("URI", ""), "#")

	digestEl := findByTag(reference, "DigestValue")
	if digestEl == nil {
		return fmt.Errorf("signature carries no DigestValue")
	}
	wantDigest, err := base64.StdEncoding.DecodeString(strings.TrimSpace(digestEl.Text()))
	if err != nil {
		return fmt.Errorf("decoding DigestValue: %w", err)
	}

	target := findByID(doc.Root(), id)
	if target == nil {
		return fmt.Errorf("referenced element %q not found", id)
	}

	// enveloped-signature transform: digest the element without Signature
	parent := signature.Parent()
	idx := signature.Index()
	parent.RemoveChild(signature)
	canonical, err := s.canon.Canonicalize(target)
	parent.InsertChildAt(idx, signature)
	if err != nil {
		return fmt.Errorf("canonicalizing referenced element: %w", err)
	}

	digest := sha1.Sum(canonical)
	if !bytes.Equal(digest[:], wantDigest) {
		return fmt.Errorf("digest mismatch for element %q", id)
	}

	signedInfo := findByTag(signature, "SignedInfo")
	sigValueEl := findByTag(signature, "SignatureValue")
	certEl := findByTag(signature, "X509Certificate")
	if signedInfo == nil || sigValueEl == nil || certEl == nil {
		return fmt.Errorf("signature structure incomplete")
	}

	sigValue, err := base64.StdEncoding.DecodeString(strings.TrimSpace(sigValueEl.Text()))
	if err != nil {
		return fmt.Errorf("decoding SignatureValue: %w", err)
	}
	certDER, err := base64.StdEncoding.DecodeString(strings.TrimSpace(certEl.Text()))
	if err != nil {
		return fmt.Errorf("decoding X509Certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return fmt.Errorf("parsing embedded certificate: %w", err)
	}
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return fmt.Errorf("embedded certificate key is %T, not RSA", cert.PublicKey)
	}

	canonicalSignedInfo, err := s.canon.Canonicalize(signedInfo)
	if err != nil {
		return fmt.Errorf("canonicalizing SignedInfo: %w", err)
	}
	siDigest := sha1.Sum(canonicalSignedInfo)
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA1, siDigest[:], sigValue); err != nil {
		return fmt.Errorf("signature does not verify: %w", err)
	}
	return nil
}

func buildSignedInfo(id, digestB64 string) *etree.Element {
	si := etree.NewElement("SignedInfo")
	si.CreateAttr("xmlns", dsigNamespace)

	cm := si.CreateElement("CanonicalizationMethod")
	cm.CreateAttr("Algorithm", c14nMethod)

	sm := si.CreateElement("SignatureMethod")
	sm.CreateAttr("Algorithm", rsaSHA1Method)

	ref := si.CreateElement("Reference")
	ref.CreateAttr("URI", "#"+id)

	transforms := ref.CreateElement("Transforms")
	t1 := transforms.CreateElement("Transform")
	t1.CreateAttr("Algorithm", envelopedTransform)
	t2 := transforms.CreateElement("Transform")
	t2.CreateAttr("Algorithm", c14nMethod)

	dm := ref.CreateElement("DigestMethod")
	dm.CreateAttr("Algorithm", sha1Method)

	dv := ref.CreateElement("DigestValue")
	dv.SetText(digestB64)

	return si
}

func findByID(el *etree.Element, id string) *etree.Element {
	if el == nil {
		return nil
	}
	if el.SelectAttrValue("Id", "") == id {
		return el
	}
	for _, child := range el.ChildElements() {
		if found := findByID(child, id); found != nil {
			return found
		}
	}
	return nil
}

func findByTag(el *etree.Element, tag string) *etree.Element {
	if el == nil {
		return nil
	}
	if el.Tag == tag {
		return el
	}
	for _, child := range el.ChildElements() {
		if found := findByTag(child, tag); found != nil {
			return found
		}
	}
	return nil
}
