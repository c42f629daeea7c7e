package layout

import "encoding/xml"

// Namespace is the portal fiscal namespace shared by every NFe document.
const Namespace = "http://www.portalfiscal.inf.br/nfe"

// Version is the layout version emitted and accepted by this package.
const Version = "4.00"

// Element names below are contractual: they map one-to-one to the names fixed
// by the authority's schema, so the Go field names follow the layout's
// abbreviations instead of expanding them.

// NFe is the document root.
type NFe struct {
	XMLName xml.Name `xml:"NFe"`
	Xmlns   string   `xml:"xmlns,attr"`
	InfNFe  InfNFe   `xml:"infNFe"`
}

// InfNFe carries the signed content; Id is "NFe" + the 44-digit access key.
type InfNFe struct {
	Id      string      `xml:"Id,attr"`
	Versao  string      `xml:"versao,attr"`
	Ide     Ide         `xml:"ide"`
	Emit    Emit        `xml:"emit"`
	Dest    Dest        `xml:"dest"`
	Det     []Det       `xml:"det"`
	Total   Total       `xml:"total"`
	Transp  Transp      `xml:"transp"`
	Pag     Pag         `xml:"pag"`
	InfAdic *InfAdic    `xml:"infAdic,omitempty"`
	RespTec *InfRespTec `xml:"infRespTec,omitempty"`
}

// Ide is the identification block.
type Ide struct {
	CUF      string `xml:"cUF"`
	CNF      string `xml:"cNF"`
	NatOp    string `xml:"natOp"`
	Mod      string `xml:"mod"`
	Serie    string `xml:"serie"`
	NNF      string `xml:"nNF"`
	DhEmi    string `xml:"dhEmi"`
	TpNF     string `xml:"tpNF"`
	IdDest   string `xml:"idDest"`
	CMunFG   string `xml:"cMunFG"`
	TpImp    string `xml:"tpImp"`
	TpEmis   string `xml:"tpEmis"`
	CDV      string `xml:"cDV"`
	TpAmb    string `xml:"tpAmb"`
	FinNFe   string `xml:"finNFe"`
	IndFinal string `xml:"indFinal"`
	IndPres  string `xml:"indPres"`
	ProcEmi  string `xml:"procEmi"`
	VerProc  string `xml:"verProc"`
}

// Ender is the shared address shape of emitter and destination.
type Ender struct {
	XLgr    string `xml:"xLgr"`
	Nro     string `xml:"nro"`
	XCpl    string `xml:"xCpl,omitempty"`
	XBairro string `xml:"xBairro"`
	CMun    string `xml:"cMun"`
	XMun    string `xml:"xMun"`
	UF      string `xml:"UF"`
	CEP     string `xml:"CEP,omitempty"`
	CPais   string `xml:"cPais"`
	XPais   string `xml:"xPais"`
	Fone    string `xml:"fone,omitempty"`
}

// Emit is the emitter block.
type Emit struct {
	CNPJ      string `xml:"CNPJ"`
	XNome     string `xml:"xNome"`
	XFant     string `xml:"xFant,omitempty"`
	EnderEmit Ender  `xml:"enderEmit"`
	IE        string `xml:"IE"`
	IM        string `xml:"IM,omitempty"`
	CRT       string `xml:"CRT"`
}

// Dest is the destination block. Exactly one of CNPJ or CPF is emitted.
type Dest struct {
	CNPJ      string `xml:"CNPJ,omitempty"`
	CPF       string `xml:"CPF,omitempty"`
	XNome     string `xml:"xNome"`
	EnderDest Ender  `xml:"enderDest"`
	IndIEDest string `xml:"indIEDest"`
	IE        string `xml:"IE,omitempty"`
	Email     string `xml:"email,omitempty"`
}

// Det is one numbered line.
type Det struct {
	NItem   string  `xml:"nItem,attr"`
	Prod    Prod    `xml:"prod"`
	Imposto Imposto `xml:"imposto"`
}

// Prod is the product sub-block of a line.
type Prod struct {
	CProd    string `xml:"cProd"`
	CEAN     string `xml:"cEAN"`
	XProd    string `xml:"xProd"`
	NCM      string `xml:"NCM"`
	CEST     string `xml:"CEST,omitempty"`
	CFOP     string `xml:"CFOP"`
	UCom     string `xml:"uCom"`
	QCom     string `xml:"qCom"`
	VUnCom   string `xml:"vUnCom"`
	VProd    string `xml:"vProd"`
	CEANTrib string `xml:"cEANTrib"`
	UTrib    string `xml:"uTrib"`
	QTrib    string `xml:"qTrib"`
	VUnTrib  string `xml:"vUnTrib"`
	VDesc    string `xml:"vDesc,omitempty"`
	IndTot   string `xml:"indTot"`
}

// Imposto groups the tax sub-trees of a line. Exactly one ICMS variant is
// populated; IPI only when the line carries an IPI CST.
type Imposto struct {
	VTotTrib string     `xml:"vTotTrib,omitempty"`
	ICMS     ICMSGroup  `xml:"ICMS"`
	IPI      *IPIGroup  `xml:"IPI,omitempty"`
	PIS      PISGroup   `xml:"PIS"`
	COFINS   COFINSGroup `xml:"COFINS"`
}

// ICMSGroup holds the single populated ICMS variant of a line.
type ICMSGroup struct {
	ICMS00    *ICMS00    `xml:"ICMS00,omitempty"`
	ICMS40    *ICMS40    `xml:"ICMS40,omitempty"`
	ICMS60    *ICMS60    `xml:"ICMS60,omitempty"`
	ICMSSN101 *ICMSSN101 `xml:"ICMSSN101,omitempty"`
	ICMSSN102 *ICMSSN102 `xml:"ICMSSN102,omitempty"`
	ICMSSN500 *ICMSSN500 `xml:"ICMSSN500,omitempty"`
}

// ICMS00 is the fully tributed variant (CST 00).
type ICMS00 struct {
	Orig  string `xml:"orig"`
	CST   string `xml:"CST"`
	ModBC string `xml:"modBC"`
	VBC   string `xml:"vBC"`
	PICMS string `xml:"pICMS"`
	VICMS string `xml:"vICMS"`
}

// ICMS40 covers the exempt/non-incidence/suspension CSTs 40, 41 and 50.
type ICMS40 struct {
	Orig string `xml:"orig"`
	CST  string `xml:"CST"`
}

// ICMS60 is tax previously withheld by substitution (CST 60).
type ICMS60 struct {
	Orig       string `xml:"orig"`
	CST        string `xml:"CST"`
	VBCSTRet   string `xml:"vBCSTRet,omitempty"`
	VICMSSTRet string `xml:"vICMSSTRet,omitempty"`
}

// ICMSSN101 is Simples Nacional with credit transfer (CSOSN 101).
type ICMSSN101 struct {
	Orig        string `xml:"orig"`
	CSOSN       string `xml:"CSOSN"`
	PCredSN     string `xml:"pCredSN"`
	VCredICMSSN string `xml:"vCredICMSSN"`
}

// ICMSSN102 covers CSOSN 102, 103, 300 and 400 (no credit, no value).
type ICMSSN102 struct {
	Orig  string `xml:"orig"`
	CSOSN string `xml:"CSOSN"`
}

// ICMSSN500 is Simples Nacional under prior substitution (CSOSN 500).
type ICMSSN500 struct {
	Orig       string `xml:"orig"`
	CSOSN      string `xml:"CSOSN"`
	VBCSTRet   string `xml:"vBCSTRet,omitempty"`
	VICMSSTRet string `xml:"vICMSSTRet,omitempty"`
}

// IPIGroup holds either the tributed or the non-tributed IPI subtree.
type IPIGroup struct {
	CEnq    string   `xml:"cEnq"`
	IPITrib *IPITrib `xml:"IPITrib,omitempty"`
	IPINT   *IPINT   `xml:"IPINT,omitempty"`
}

// IPITrib is the tributed IPI subtree.
type IPITrib struct {
	CST  string `xml:"CST"`
	VBC  string `xml:"vBC"`
	PIPI string `xml:"pIPI"`
	VIPI string `xml:"vIPI"`
}

// IPINT is the non-tributed IPI subtree.
type IPINT struct {
	CST string `xml:"CST"`
}

// PISGroup holds either the rate-based or the non-tributed PIS subtree.
type PISGroup struct {
	PISAliq *PISAliq `xml:"PISAliq,omitempty"`
	PISNT   *PISNT   `xml:"PISNT,omitempty"`
}

// PISAliq is rate-based PIS (CST 01/02).
type PISAliq struct {
	CST  string `xml:"CST"`
	VBC  string `xml:"vBC"`
	PPIS string `xml:"pPIS"`
	VPIS string `xml:"vPIS"`
}

// PISNT is non-tributed PIS (CST 04..09).
type PISNT struct {
	CST string `xml:"CST"`
}

// COFINSGroup holds either the rate-based or the non-tributed COFINS subtree.
type COFINSGroup struct {
	COFINSAliq *COFINSAliq `xml:"COFINSAliq,omitempty"`
	COFINSNT   *COFINSNT   `xml:"COFINSNT,omitempty"`
}

// COFINSAliq is rate-based COFINS (CST 01/02).
type COFINSAliq struct {
	CST     string `xml:"CST"`
	VBC     string `xml:"vBC"`
	PCOFINS string `xml:"pCOFINS"`
	VCOFINS string `xml:"vCOFINS"`
}

// COFINSNT is non-tributed COFINS (CST 04..09).
type COFINSNT struct {
	CST string `xml:"CST"`
}

// Total wraps the ICMSTot aggregate.
type Total struct {
	ICMSTot ICMSTot `xml:"ICMSTot"`
}

// ICMSTot mirrors the invoice totals.
type ICMSTot struct {
	VBC       string `xml:"vBC"`
	VICMS     string `xml:"vICMS"`
	VICMSDeson string `xml:"vICMSDeson"`
	VFCP      string `xml:"vFCP"`
	VBCST     string `xml:"vBCST"`
	VST       string `xml:"vST"`
	VFCPST    string `xml:"vFCPST"`
	VFCPSTRet string `xml:"vFCPSTRet"`
	VProd     string `xml:"vProd"`
	VFrete    string `xml:"vFrete"`
	VSeg      string `xml:"vSeg"`
	VDesc     string `xml:"vDesc"`
	VII       string `xml:"vII"`
	VIPI      string `xml:"vIPI"`
	VIPIDevol string `xml:"vIPIDevol"`
	VPIS      string `xml:"vPIS"`
	VCOFINS   string `xml:"vCOFINS"`
	VOutro    string `xml:"vOutro"`
	VNF       string `xml:"vNF"`
	VTotTrib  string `xml:"vTotTrib,omitempty"`
}

// Transp is the freight block.
type Transp struct {
	ModFrete   string      `xml:"modFrete"`
	Transporta *Transporta `xml:"transporta,omitempty"`
}

// Transporta identifies the carrier.
type Transporta struct {
	CNPJ  string `xml:"CNPJ,omitempty"`
	CPF   string `xml:"CPF,omitempty"`
	XNome string `xml:"xNome,omitempty"`
	IE    string `xml:"IE,omitempty"`
	XEnder string `xml:"xEnder,omitempty"`
	XMun  string `xml:"xMun,omitempty"`
	UF    string `xml:"UF,omitempty"`
}

// Pag wraps the payment details.
type Pag struct {
	DetPag []DetPag `xml:"detPag"`
}

// DetPag is one payment record.
type DetPag struct {
	IndPag string `xml:"indPag,omitempty"`
	TPag   string `xml:"tPag"`
	VPag   string `xml:"vPag"`
}

// InfAdic carries the free-text complement blocks.
type InfAdic struct {
	InfAdFisco string `xml:"infAdFisco,omitempty"`
	InfCpl     string `xml:"infCpl,omitempty"`
}

// InfRespTec identifies the technical responsible. Mandatory in layout 4.00,
// emitted only when its CNPJ is present.
type InfRespTec struct {
	CNPJ     string `xml:"CNPJ"`
	XContato string `xml:"xContato"`
	Email    string `xml:"email"`
	Fone     string `xml:"fone"`
}
