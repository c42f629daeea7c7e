package sefaz

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"time"

	"gestaofiscal/ms_nfe_core/internal/core/emitter"
	"gestaofiscal/ms_nfe_core/internal/core/event"
	"gestaofiscal/ms_nfe_core/internal/adapters/sefaz/layout"
)

const eventVersion = "1.00"

// xCondUso is the fixed usage-terms text a correction letter must carry,
// accent-stripped as the authorization rules permit.
const xCondUso = "A Carta de Correcao e disciplinada pelo paragrafo 1o-A do art. 7o do Convenio S/N, de 15 de dezembro de 1970 e pode ser utilizada para regularizacao de erro ocorrido na emissao de documento fiscal, desde que o erro nao esteja relacionado com: I - as variaveis que determinam o valor do imposto tais como: base de calculo, aliquota, diferenca de preco, quantidade, valor da operacao ou da prestacao; II - a correcao de dados cadastrais que implique mudanca do remetente ou do destinatario; III - a data de emissao ou de saida."

func xmlEscape(s string) string {
	var b bytes.Buffer
	xml.EscapeText(&b, []byte(s))
	return b.String()
}

// WrapEnviNFe encloses an already-signed document in the authorization batch
// wrapper. indSinc 1 requests synchronous processing; authorizers that do not
// grant it answer with a receipt for later query.
func WrapEnviNFe(lote int64, signedNFe []byte, sync bool) []byte {
	indSinc := "0"
	if sync {
		indSinc = "1"
	}
	var b bytes.Buffer
	fmt.Fprintf(&b, `<enviNFe xmlns=%q versao=%q><idLote>%d</idLote><indSinc>%s</indSinc>`,
		layout.Namespace, layout.Version, lote, indSinc)
	b.Write(signedNFe)
	b.WriteString(`</enviNFe>`)
	return b.Bytes()
}

// BuildConsReciNFe builds the receipt-query payload for an asynchronous batch.
func BuildConsReciNFe(env emitter.Environment, receipt string) []byte {
	return []byte(fmt.Sprintf(
		`<consReciNFe xmlns=%q versao=%q><tpAmb>%d</tpAmb><nRec>%s</nRec></consReciNFe>`,
		layout.Namespace, layout.Version, env, xmlEscape(receipt)))
}

// BuildConsSitNFe builds the per-key situation query.
func BuildConsSitNFe(env emitter.Environment, accessKey string) []byte {
	return []byte(fmt.Sprintf(
		`<consSitNFe xmlns=%q versao=%q><tpAmb>%d</tpAmb><xServ>CONSULTAR</xServ><chNFe>%s</chNFe></consSitNFe>`,
		layout.Namespace, layout.Version, env, xmlEscape(accessKey)))
}

// BuildConsStatServ builds the service-status probe for a state.
func BuildConsStatServ(env emitter.Environment, ufCode string) []byte {
	return []byte(fmt.Sprintf(
		`<consStatServ xmlns=%q versao=%q><tpAmb>%d</tpAmb><cUF>%s</cUF><xServ>STATUS</xServ></consStatServ>`,
		layout.Namespace, layout.Version, env, ufCode))
}

// BuildEvento assembles the unsigned <evento> document for a cancellation or
// correction letter and returns it with the infEvento Id the signer must
// reference. The author CNPJ is the emitter's; cOrgao comes from the first
// two digits of the access key.
func BuildEvento(ev *event.FiscalEvent, authorCNPJ string, env emitter.Environment, when time.Time) ([]byte, string, error) {
	if err := ev.Validate(); err != nil {
		return nil, "", err
	}
	if len(ev.AccessKey) != 44 {
		return nil, "", fmt.Errorf("access key must have 44 digits")
	}

	id := fmt.Sprintf("ID%s%s%02d", ev.Code, ev.AccessKey, ev.Sequence)
	cOrgao := ev.AccessKey[:2]

	var det bytes.Buffer
	fmt.Fprintf(&det, `<detEvento versao=%q><descEvento>%s</descEvento>`, eventVersion, ev.Code.Description())
	switch ev.Code {
	case event.CodeCancellation:
		fmt.Fprintf(&det, `<nProt>%s</nProt><xJust>%s</xJust>`, xmlEscape(ev.AuthProtocol), xmlEscape(ev.Body))
	case event.CodeCorrection:
		fmt.Fprintf(&det, `<xCorrecao>%s</xCorrecao><xCondUso>%s</xCondUso>`, xmlEscape(ev.Body), xCondUso)
	default:
		return nil, "", fmt.Errorf("unsupported event code %q", ev.Code)
	}
	det.WriteString(`</detEvento>`)

	var b bytes.Buffer
	fmt.Fprintf(&b, `<evento xmlns=%q versao=%q>`, layout.Namespace, eventVersion)
	fmt.Fprintf(&b, `<infEvento Id=%q>`, id)
	fmt.Fprintf(&b, `<cOrgao>%s</cOrgao><tpAmb>%d</tpAmb><CNPJ>%s</CNPJ><chNFe>%s</chNFe>`,
		cOrgao, env, emitter.OnlyDigits(authorCNPJ), ev.AccessKey)
	fmt.Fprintf(&b, `<dhEvento>%s</dhEvento><tpEvento>%s</tpEvento><nSeqEvento>%d</nSeqEvento><verEvento>%s</verEvento>`,
		layout.EmissionTime(when), ev.Code, ev.Sequence, eventVersion)
	b.Write(det.Bytes())
	b.WriteString(`</infEvento></evento>`)
	return b.Bytes(), id, nil
}

// WrapEnvEvento encloses a signed <evento> in the submission batch.
func WrapEnvEvento(lote int64, signedEvento []byte) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, `<envEvento xmlns=%q versao=%q><idLote>%d</idLote>`, layout.Namespace, eventVersion, lote)
	b.Write(signedEvento)
	b.WriteString(`</envEvento>`)
	return b.Bytes()
}

// BuildInutNFe assembles the unsigned number-range inutilization request and
// returns it with the infInut Id the signer must reference.
func BuildInutNFe(inut *event.Inutilization, uf, cnpj string, env emitter.Environment) ([]byte, string, error) {
	if err := inut.Validate(); err != nil {
		return nil, "", err
	}
	ufCode, err := emitter.UFCode(uf)
	if err != nil {
		return nil, "", err
	}
	cnpj = emitter.OnlyDigits(cnpj)
	if len(cnpj) != 14 {
		return nil, "", fmt.Errorf("cnpj must have 14 digits")
	}

	yy := inut.Year % 100
	id := fmt.Sprintf("ID%s%02d%s%02d%03d%09d%09d",
		ufCode, yy, cnpj, inut.Model, inut.Serie, inut.NumberFirst, inut.NumberLast)

	var b bytes.Buffer
	fmt.Fprintf(&b, `<inutNFe xmlns=%q versao=%q>`, layout.Namespace, layout.Version)
	fmt.Fprintf(&b, `<infInut Id=%q>`, id)
	fmt.Fprintf(&b, `<tpAmb>%d</tpAmb><xServ>INUTILIZAR</xServ><cUF>%s</cUF><ano>%02d</ano><CNPJ>%s</CNPJ>`,
		env, ufCode, yy, cnpj)
	fmt.Fprintf(&b, `<mod>%02d</mod><serie>%d</serie><nNFIni>%d</nNFIni><nNFFin>%d</nNFFin><xJust>%s</xJust>`,
		inut.Model, inut.Serie, inut.NumberFirst, inut.NumberLast, xmlEscape(inut.Justification))
	b.WriteString(`</infInut></inutNFe>`)
	return b.Bytes(), id, nil
}
