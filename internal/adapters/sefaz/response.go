package sefaz

import (
	"time"

	"github.com/beevik/etree"

	"gestaofiscal/ms_nfe_core/internal/core/outcome"
)

// Reply status codes shared across services. Batch-level codes wrap a
// per-document protocol block that carries the code that actually matters.
const (
	codeAuthorized     = "100"
	codeCancelled      = "101"
	codeInutilized     = "102"
	codeBatchProcessed = "104"
	codeServiceUp      = "107"
	codeServicePaused  = "108"
	codeServiceDown    = "109"
	codeBatchReceived  = "128"
	codeEventDone      = "135"
	codeEventDoneOut   = "136"
	codeCancelledLate  = "151"
	codeEventApproved  = "155"
)

var deniedCodes = map[string]bool{
	"110": true, "205": true, "301": true, "302": true, "303": true,
}

// ParseResponse turns an unwrapped service reply into a typed outcome. The
// walk matches elements by local name because authorizers disagree on
// namespace prefixes. A reply that carries no cStat at all is unparseable,
// never silently rejected.
func ParseResponse(svc Service, reply []byte) (*outcome.Result, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(reply); err != nil {
		return &outcome.Result{
			Kind:   outcome.KindUnparseable,
			Motive: "malformed reply: " + err.Error(),
			RawXML: reply,
		}, nil
	}

	// Inner protocol blocks override the batch-level status.
	scope := doc.Root()
	for _, inner := range []string{"infProt", "infEvento", "infInut"} {
		if el := findByLocalName(scope, inner); el != nil {
			scope = el
			break
		}
	}

	code := childText(scope, "cStat")
	if code == "" {
		// batch accepted but no protocol block yet (async receipt)
		code = childText(doc.Root(), "cStat")
	}
	if code == "" {
		return &outcome.Result{
			Kind:   outcome.KindUnparseable,
			Motive: "reply carries no cStat",
			RawXML: reply,
		}, nil
	}

	res := &outcome.Result{
		Kind:      kindOf(svc, code),
		Code:      code,
		Motive:    childText(scope, "xMotivo"),
		Protocol:  childText(scope, "nProt"),
		AccessKey: childText(scope, "chNFe"),
		RawXML:    reply,
	}
	if res.Motive == "" {
		res.Motive = childText(doc.Root(), "xMotivo")
	}
	if ts := childText(scope, "dhRecbto"); ts != "" {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			res.Timestamp = &t
		}
	}
	if res.Kind == outcome.KindEventAccepted && res.Protocol == "" {
		res.Protocol = childText(scope, "nProtEvento")
	}
	return res, nil
}

func kindOf(svc Service, code string) outcome.Kind {
	switch code {
	case codeAuthorized:
		return outcome.KindAuthorized
	case codeCancelled, codeCancelledLate:
		return outcome.KindCancelled
	case codeInutilized:
		return outcome.KindEventAccepted
	case codeServiceUp:
		return outcome.KindServiceUp
	case codeServicePaused, codeServiceDown:
		return outcome.KindServiceDown
	case codeEventDone, codeEventDoneOut, codeEventApproved:
		return outcome.KindEventAccepted
	}
	if deniedCodes[code] {
		return outcome.KindDenied
	}
	return outcome.KindRejected
}

// ReceiptOf extracts the nRec receipt from an asynchronous authorization
// reply, empty when the batch was processed synchronously.
func ReceiptOf(reply []byte) string {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(reply); err != nil {
		return ""
	}
	if infRec := findByLocalName(doc.Root(), "infRec"); infRec != nil {
		return childText(infRec, "nRec")
	}
	return childText(doc.Root(), "nRec")
}

func childText(el *etree.Element, local string) string {
	if el == nil {
		return ""
	}
	if found := findByLocalName(el, local); found != nil {
		return found.Text()
	}
	return ""
}
