package sefaz

import (
	"fmt"

	"github.com/beevik/etree"
)

const (
	soapNamespace = "http://www.w3.org/2003/05/soap-envelope"
	soapMediaType = "application/soap+xml; charset=utf-8"

	wsdlPrefix = "http://www.portalfiscal.inf.br/nfe/wsdl/"
)

// serviceDefinitions maps each service to its WSDL namespace suffix, its SOAP
// operation and the reply element its body carries. SEFAZ fixes all three per
// service; posting a payload under the wrong namespace or without the matching
// action is rejected before any fiscal validation.
var serviceDefinitions = map[Service]struct {
	wsdl   string
	action string
	reply  string
}{
	ServiceAuthorize:    {wsdl: "NFeAutorizacao4", action: "nfeAutorizacaoLote", reply: "retEnviNFe"},
	ServiceQueryReceipt: {wsdl: "NFeRetAutorizacao4", action: "nfeRetAutorizacaoLote", reply: "retConsReciNFe"},
	ServiceConsult:      {wsdl: "NFeConsultaProtocolo4", action: "nfeConsultaNF", reply: "retConsSitNFe"},
	ServiceStatus:       {wsdl: "NFeStatusServico4", action: "nfeStatusServicoNF", reply: "retConsStatServ"},
	ServiceEvent:        {wsdl: "NFeRecepcaoEvento4", action: "nfeRecepcaoEvento", reply: "retEnvEvento"},
	ServiceInutilize:    {wsdl: "NFeInutilizacao4", action: "nfeInutilizacaoNF", reply: "retInutNFe"},
}

// soapContentType builds the SOAP 1.2 media type carrying the service-specific
// action URI, e.g.
// application/soap+xml; charset=utf-8; action="…/NFeStatusServico4/nfeStatusServicoNF".
func soapContentType(svc Service) (string, error) {
	def, ok := serviceDefinitions[svc]
	if !ok {
		return "", fmt.Errorf("unknown service %q", svc)
	}
	return fmt.Sprintf("%s; action=%q", soapMediaType, wsdlPrefix+def.wsdl+"/"+def.action), nil
}

// wrapEnvelope encloses a fiscal payload in the SOAP 1.2 envelope the service
// expects. The payload is inserted verbatim: it is already-signed XML and any
// re-serialization would invalidate the digest.
func wrapEnvelope(svc Service, payload []byte) ([]byte, error) {
	def, ok := serviceDefinitions[svc]
	if !ok {
		return nil, fmt.Errorf("unknown service %q", svc)
	}
	head := fmt.Sprintf(`<?xml version="1.0" encoding="utf-8"?><soap12:Envelope xmlns:soap12=%q><soap12:Body><nfeDadosMsg xmlns=%q>`,
		soapNamespace, wsdlPrefix+def.wsdl)
	tail := `</nfeDadosMsg></soap12:Body></soap12:Envelope>`

	out := make([]byte, 0, len(head)+len(payload)+len(tail))
	out = append(out, head...)
	out = append(out, payload...)
	out = append(out, tail...)
	return out, nil
}

// unwrapEnvelope digs the service reply element out of a SOAP response and
// returns its subtree serialized standalone. Namespace prefixes vary between
// authorizers, so elements are matched by local name only.
func unwrapEnvelope(svc Service, raw []byte) ([]byte, error) {
	def, ok := serviceDefinitions[svc]
	if !ok {
		return nil, fmt.Errorf("unknown service %q", svc)
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(raw); err != nil {
		return nil, fmt.Errorf("parsing soap response: %w", err)
	}

	reply := findByLocalName(doc.Root(), def.reply)
	if reply == nil {
		if fault := findByLocalName(doc.Root(), "Fault"); fault != nil {
			return nil, fmt.Errorf("soap fault: %s", faultText(fault))
		}
		return nil, fmt.Errorf("response carries no %s element", def.reply)
	}

	sub := etree.NewDocument()
	sub.SetRoot(reply.Copy())
	out, err := sub.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("serializing %s: %w", def.reply, err)
	}
	return out, nil
}

func findByLocalName(el *etree.Element, local string) *etree.Element {
	if el == nil {
		return nil
	}
	if el.Tag == local {
		return el
	}
	for _, child := range el.ChildElements() {
		if found := findByLocalName(child, local); found != nil {
			return found
		}
	}
	return nil
}

func faultText(fault *etree.Element) string {
	if reason := findByLocalName(fault, "Text"); reason != nil {
		return reason.Text()
	}
	if reason := findByLocalName(fault, "faultstring"); reason != nil {
		return reason.Text()
	}
	return "unspecified fault"
}
