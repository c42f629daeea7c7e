package layout

import (
	"encoding/xml"
	"fmt"
	"time"

	"gestaofiscal/ms_nfe_core/internal/core/emitter"
	"gestaofiscal/ms_nfe_core/internal/core/invoice"
	"gestaofiscal/ms_nfe_core/internal/core/outcome"
)

const (
	defaultNatOp = "VENDA"

	// homologationRecipient replaces the destination name in tpAmb 2, as the
	// authorization rules require for test documents.
	homologationRecipient = "NF-E EMITIDA EM AMBIENTE DE HOMOLOGACAO - SEM VALOR FISCAL"

	noGTIN = "SEM GTIN"
)

// Builder assembles layout 4.00 documents. The zero value is not usable:
// construct with NewBuilder so the nonce source and software version are set.
type Builder struct {
	nonce   NonceFunc
	verProc string
}

// NewBuilder returns a Builder drawing cNF codes from nonce. A nil nonce
// falls back to RandomNonce.
func NewBuilder(nonce NonceFunc, softwareVersion string) *Builder {
	if nonce == nil {
		nonce = RandomNonce
	}
	if softwareVersion == "" {
		softwareVersion = "ms_nfe_core"
	}
	return &Builder{nonce: nonce, verProc: softwareVersion}
}

// BuildResult is the serialized document and the key it was issued under.
type BuildResult struct {
	AccessKey string
	XML       []byte
}

// Build derives the tax sub-trees for the emitter's regime, recomputes the
// totals, issues a fresh access key and serializes the document. The invoice
// must already carry its reserved serie/number pair; EmittedAt defaults to
// the current time when unset. Build mutates the invoice: items receive their
// regime defaults and the totals block is recomputed.
func (b *Builder) Build(em *emitter.Emitter, inv *invoice.Invoice) (*BuildResult, error) {
	if err := em.Validate(); err != nil {
		return nil, outcome.NewBuildError("emitter", err.Error())
	}
	if err := inv.Validate(); err != nil {
		return nil, outcome.NewBuildError("invoice", err.Error())
	}
	if inv.Number <= 0 {
		return nil, outcome.NewBuildError("nNF", "invoice number must be reserved before building")
	}
	if inv.EmittedAt.IsZero() {
		inv.EmittedAt = time.Now()
	}

	ufCode, err := emitter.UFCode(em.Address.UF)
	if err != nil {
		return nil, outcome.NewBuildError("cUF", err.Error())
	}

	// Line totals feed the tax bases, so normalize before applying defaults
	// and only then aggregate the totals block.
	destUF := inv.Destination.UF
	for idx := range inv.Items {
		inv.Items[idx].Normalize()
		applyTaxDefaults(em.Regime, em.Address.UF, destUF, &inv.Items[idx])
	}
	inv.ComputeTotals()

	cnpj := emitter.OnlyDigits(em.CNPJ)
	const emissionNormal = 1
	key, err := BuildAccessKey(ufCode, inv.EmittedAt, cnpj, inv.Model, inv.Serie, inv.Number, emissionNormal, b.nonce())
	if err != nil {
		return nil, err
	}

	doc := NFe{
		Xmlns: Namespace,
		InfNFe: InfNFe{
			Id:     "NFe" + key,
			Versao: Version,
			Ide:    b.buildIde(em, inv, ufCode, key),
			Emit:   buildEmit(em),
			Dest:   buildDest(em, inv),
			Total:  buildTotal(inv),
			Transp: buildTransp(inv),
			Pag:    buildPag(inv),
		},
	}

	for idx := range inv.Items {
		det, err := buildDet(em.Regime, &inv.Items[idx])
		if err != nil {
			return nil, err
		}
		doc.InfNFe.Det = append(doc.InfNFe.Det, det)
	}

	if inv.AdditionalInfo != "" || inv.FiscalInfo != "" {
		doc.InfNFe.InfAdic = &InfAdic{
			InfAdFisco: cleanText(inv.FiscalInfo, 2000),
			InfCpl:     cleanText(inv.AdditionalInfo, 5000),
		}
	}
	if rt := emitter.OnlyDigits(em.RespTec.CNPJ); rt != "" {
		doc.InfNFe.RespTec = &InfRespTec{
			CNPJ:     rt,
			XContato: cleanText(em.RespTec.Contact, 60),
			Email:    em.RespTec.Email,
			Fone:     emitter.OnlyDigits(em.RespTec.Phone),
		}
	}

	raw, err := xml.Marshal(&doc)
	if err != nil {
		return nil, fmt.Errorf("serializing document: %w", err)
	}

	inv.AccessKey = key
	return &BuildResult{AccessKey: key, XML: raw}, nil
}

func (b *Builder) buildIde(em *emitter.Emitter, inv *invoice.Invoice, ufCode, key string) Ide {
	idDest := "1"
	if inv.Destination.UF != "" && inv.Destination.UF != em.Address.UF {
		idDest = "2"
	}
	natOp := inv.NatOp
	if natOp == "" {
		natOp = defaultNatOp
	}
	return Ide{
		CUF:      ufCode,
		CNF:      key[35:43],
		NatOp:    cleanText(natOp, 60),
		Mod:      PadNumber(int64(inv.Model), 2),
		Serie:    fmt.Sprintf("%d", inv.Serie),
		NNF:      fmt.Sprintf("%d", inv.Number),
		DhEmi:    EmissionTime(inv.EmittedAt),
		TpNF:     fmt.Sprintf("%d", inv.Operation),
		IdDest:   idDest,
		CMunFG:   emitter.OnlyDigits(em.Address.CityCode),
		TpImp:    "1", // DANFE retrato
		TpEmis:   "1",
		CDV:      key[43:],
		TpAmb:    fmt.Sprintf("%d", em.Environment),
		FinNFe:   fmt.Sprintf("%d", inv.Purpose),
		IndFinal: fmt.Sprintf("%d", inv.FinalConsumer),
		IndPres:  fmt.Sprintf("%d", inv.Presence),
		ProcEmi:  "0", // aplicativo do contribuinte
		VerProc:  b.verProc,
	}
}

func buildEnder(street, number, complement, district, cityCode, city, uf, zip, phone string) Ender {
	return Ender{
		XLgr:    cleanText(street, 60),
		Nro:     cleanText(number, 60),
		XCpl:    cleanText(complement, 60),
		XBairro: cleanText(district, 60),
		CMun:    emitter.OnlyDigits(cityCode),
		XMun:    cleanText(city, 60),
		UF:      uf,
		CEP:     emitter.OnlyDigits(zip),
		CPais:   "1058",
		XPais:   "BRASIL",
		Fone:    emitter.OnlyDigits(phone),
	}
}

func buildEmit(em *emitter.Emitter) Emit {
	a := em.Address
	return Emit{
		CNPJ:      emitter.OnlyDigits(em.CNPJ),
		XNome:     cleanText(em.LegalName, 60),
		XFant:     cleanText(em.TradeName, 60),
		EnderEmit: buildEnder(a.Street, a.Number, a.Complement, a.District, a.CityCode, a.City, a.UF, a.ZipCode, em.Phone),
		IE:        emitter.OnlyDigits(em.StateRegistration),
		IM:        emitter.OnlyDigits(em.CityRegistration),
		CRT:       fmt.Sprintf("%d", em.Regime),
	}
}

func buildDest(em *emitter.Emitter, inv *invoice.Invoice) Dest {
	d := inv.Destination
	name := cleanText(d.Name, 60)
	if em.Environment == emitter.EnvironmentHomologation {
		name = homologationRecipient
	}
	dest := Dest{
		XNome:     name,
		EnderDest: buildEnder(d.Street, d.Number, d.Complement, d.District, d.CityCode, d.City, d.UF, d.ZipCode, d.Phone),
		IndIEDest: fmt.Sprintf("%d", d.IEIndicator),
		Email:     d.Email,
	}
	taxID := emitter.OnlyDigits(d.TaxID)
	if len(taxID) == 14 {
		dest.CNPJ = taxID
	} else {
		dest.CPF = taxID
	}
	if d.IEIndicator == invoice.IndicatorTaxpayer {
		dest.IE = emitter.OnlyDigits(d.StateRegistration)
	}
	return dest
}

func buildDet(reg emitter.TaxRegime, it *invoice.Item) (Det, error) {
	icms, err := buildICMS(reg, it)
	if err != nil {
		return Det{}, err
	}

	gtin := it.GTIN
	if gtin == "" {
		gtin = noGTIN
	}

	prod := Prod{
		CProd:    cleanText(it.Code, 60),
		CEAN:     gtin,
		XProd:    cleanText(it.Description, 120),
		NCM:      it.NCM,
		CEST:     it.CEST,
		CFOP:     it.CFOP,
		UCom:     cleanText(it.Unit, 6),
		QCom:     Quantity(it.Quantity),
		VUnCom:   UnitPrice(it.UnitPrice),
		VProd:    Amount(it.Quantity.Mul(it.UnitPrice).Round(2)),
		CEANTrib: gtin,
		UTrib:    cleanText(it.TributableUnit, 6),
		QTrib:    Quantity(it.TributableQuantity),
		VUnTrib:  UnitPrice(it.TributableUnitPrice),
		IndTot:   "1",
	}
	if it.Discount.Sign() > 0 {
		prod.VDesc = Amount(it.Discount)
	}

	imposto := Imposto{
		ICMS:   icms,
		IPI:    buildIPI(it),
		PIS:    buildPIS(it),
		COFINS: buildCOFINS(it),
	}
	if it.Transparency.ApproxValue.Sign() > 0 {
		imposto.VTotTrib = Amount(it.Transparency.ApproxValue)
	}

	return Det{
		NItem:   fmt.Sprintf("%d", it.Sequence),
		Prod:    prod,
		Imposto: imposto,
	}, nil
}

func buildTotal(inv *invoice.Invoice) Total {
	t := inv.Totals
	tot := ICMSTot{
		VBC:        Amount(t.ICMSBase),
		VICMS:      Amount(t.ICMS),
		VICMSDeson: "0.00",
		VFCP:       "0.00",
		VBCST:      Amount(t.ICMSSTBase),
		VST:        Amount(t.ICMSST),
		VFCPST:     "0.00",
		VFCPSTRet:  "0.00",
		VProd:      Amount(t.Products),
		VFrete:     Amount(t.Freight),
		VSeg:       Amount(t.Insurance),
		VDesc:      Amount(t.Discount),
		VII:        "0.00",
		VIPI:       Amount(t.IPI),
		VIPIDevol:  "0.00",
		VPIS:       Amount(t.PIS),
		VCOFINS:    Amount(t.COFINS),
		VOutro:     Amount(t.Other),
		VNF:        Amount(t.GrandTotal),
	}
	if t.ApproxTaxes.Sign() > 0 {
		tot.VTotTrib = Amount(t.ApproxTaxes)
	}
	return Total{ICMSTot: tot}
}

func buildTransp(inv *invoice.Invoice) Transp {
	tr := Transp{ModFrete: fmt.Sprintf("%d", inv.Freight)}
	if t := inv.Transporter; t != nil {
		ta := &Transporta{
			XNome:  cleanText(t.Name, 60),
			IE:     emitter.OnlyDigits(t.StateRegistration),
			XEnder: cleanText(t.Address, 60),
			XMun:   cleanText(t.City, 60),
			UF:     t.UF,
		}
		taxID := emitter.OnlyDigits(t.TaxID)
		if len(taxID) == 14 {
			ta.CNPJ = taxID
		} else if len(taxID) == 11 {
			ta.CPF = taxID
		}
		tr.Transporta = ta
	}
	return tr
}

func buildPag(inv *invoice.Invoice) Pag {
	p := inv.Payment
	det := DetPag{
		TPag: p.MethodCode,
		VPag: Amount(p.Value),
	}
	if p.Installments > 1 {
		det.IndPag = "1" // pagamento a prazo
	}
	return Pag{DetPag: []DetPag{det}}
}
