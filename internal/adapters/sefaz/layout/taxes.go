package layout

import (
	"fmt"

	"github.com/shopspring/decimal"

	"gestaofiscal/ms_nfe_core/internal/core/emitter"
	"gestaofiscal/ms_nfe_core/internal/core/invoice"
	"gestaofiscal/ms_nfe_core/internal/core/outcome"
)

var (
	defaultPISRate    = decimal.RequireFromString("1.65")
	defaultCOFINSRate = decimal.RequireFromString("7.60")
)

// internalICMSRates is the modal internal ICMS rate per emitter UF, applied
// to CST 00 lines when the caller supplies no explicit rate. Values are
// defaults, not law: callers override per item whenever the operation falls
// under a specific rate.
var internalICMSRates = map[string]decimal.Decimal{
	"AM": decimal.NewFromInt(20),
	"BA": decimal.RequireFromString("20.5"),
	"MG": decimal.NewFromInt(18),
	"PR": decimal.RequireFromString("19.5"),
	"RJ": decimal.NewFromInt(20),
	"SP": decimal.NewFromInt(18),
}

var defaultInternalICMSRate = decimal.NewFromInt(17)

// southSoutheast are the origins whose interstate shipments to other
// south/southeast states carry 12%; every other interstate pairing carries 7%
// from these origins, and 12% from the remaining regions. ES is excluded from
// the south/southeast group by the interstate resolution.
var southSoutheast = map[string]bool{
	"MG": true, "PR": true, "RJ": true, "RS": true, "SC": true, "SP": true,
}

// defaultICMSRate resolves the CST 00 rate for an (origin, destination) pair.
func defaultICMSRate(emitUF, destUF string) decimal.Decimal {
	if emitUF == destUF || destUF == "" {
		if r, ok := internalICMSRates[emitUF]; ok {
			return r
		}
		return defaultInternalICMSRate
	}
	if southSoutheast[emitUF] {
		if southSoutheast[destUF] {
			return decimal.NewFromInt(12)
		}
		return decimal.NewFromInt(7)
	}
	return decimal.NewFromInt(12)
}

// applyTaxDefaults fills the regime-dependent defaults of a line in place:
// CSOSN with exempt PIS/COFINS under Simples Nacional, CST with tributed
// PIS/COFINS under the normal regimes, and the ICMS 00 base/rate/value when
// the caller left them unset.
func applyTaxDefaults(reg emitter.TaxRegime, emitUF, destUF string, it *invoice.Item) {
	if reg.Simples() {
		if it.ICMS.CSOSN == "" {
			it.ICMS.CSOSN = "102"
		}
		if it.PIS.CST == "" {
			it.PIS.CST = "07"
		}
		if it.COFINS.CST == "" {
			it.COFINS.CST = "07"
		}
		return
	}

	if it.ICMS.CST == "" {
		it.ICMS.CST = "00"
	}
	if it.ICMS.CST == "00" {
		if it.ICMS.BCModality == "" {
			it.ICMS.BCModality = "3" // valor da operação
		}
		if it.ICMS.Base.IsZero() {
			it.ICMS.Base = it.Total
		}
		if it.ICMS.Rate.IsZero() {
			it.ICMS.Rate = defaultICMSRate(emitUF, destUF)
		}
		if it.ICMS.Value.IsZero() {
			it.ICMS.Value = it.ICMS.Base.Mul(it.ICMS.Rate).Div(decimal.NewFromInt(100)).Round(2)
		}
	}

	if it.PIS.CST == "" {
		it.PIS.CST = "01"
		it.PIS.Base = it.Total
		it.PIS.Rate = defaultPISRate
	}
	if it.PIS.CST == "01" || it.PIS.CST == "02" {
		if it.PIS.Value.IsZero() {
			it.PIS.Value = it.PIS.Base.Mul(it.PIS.Rate).Div(decimal.NewFromInt(100)).Round(2)
		}
	}

	if it.COFINS.CST == "" {
		it.COFINS.CST = "01"
		it.COFINS.Base = it.Total
		it.COFINS.Rate = defaultCOFINSRate
	}
	if it.COFINS.CST == "01" || it.COFINS.CST == "02" {
		if it.COFINS.Value.IsZero() {
			it.COFINS.Value = it.COFINS.Base.Mul(it.COFINS.Rate).Div(decimal.NewFromInt(100)).Round(2)
		}
	}
}

// buildICMS dispatches the ICMS variant by regime and CST/CSOSN. The element
// name is a function of the code: emitting an ICMS00 subtree under Simples
// Nacional, or a CSOSN subtree under the normal regime, is a schema error.
func buildICMS(reg emitter.TaxRegime, it *invoice.Item) (ICMSGroup, error) {
	orig := it.ICMS.Origin
	if orig == "" {
		orig = "0"
	}

	if reg.Simples() {
		switch it.ICMS.CSOSN {
		case "101":
			return ICMSGroup{ICMSSN101: &ICMSSN101{
				Orig:        orig,
				CSOSN:       it.ICMS.CSOSN,
				PCredSN:     Rate(it.ICMS.Rate),
				VCredICMSSN: Amount(it.ICMS.Value),
			}}, nil
		case "102", "103", "300", "400":
			return ICMSGroup{ICMSSN102: &ICMSSN102{Orig: orig, CSOSN: it.ICMS.CSOSN}}, nil
		case "500":
			g := &ICMSSN500{Orig: orig, CSOSN: it.ICMS.CSOSN}
			if !it.ICMS.BaseSTRetained.IsZero() || !it.ICMS.ValueSTRetained.IsZero() {
				g.VBCSTRet = Amount(it.ICMS.BaseSTRetained)
				g.VICMSSTRet = Amount(it.ICMS.ValueSTRetained)
			}
			return ICMSGroup{ICMSSN500: g}, nil
		default:
			return ICMSGroup{}, outcome.NewBuildError(
				fmt.Sprintf("item %d CSOSN", it.Sequence),
				fmt.Sprintf("unsupported CSOSN %q for Simples Nacional", it.ICMS.CSOSN))
		}
	}

	switch it.ICMS.CST {
	case "00":
		return ICMSGroup{ICMS00: &ICMS00{
			Orig:  orig,
			CST:   it.ICMS.CST,
			ModBC: it.ICMS.BCModality,
			VBC:   Amount(it.ICMS.Base),
			PICMS: Rate(it.ICMS.Rate),
			VICMS: Amount(it.ICMS.Value),
		}}, nil
	case "40", "41", "50":
		return ICMSGroup{ICMS40: &ICMS40{Orig: orig, CST: it.ICMS.CST}}, nil
	case "60":
		g := &ICMS60{Orig: orig, CST: it.ICMS.CST}
		if !it.ICMS.BaseSTRetained.IsZero() || !it.ICMS.ValueSTRetained.IsZero() {
			g.VBCSTRet = Amount(it.ICMS.BaseSTRetained)
			g.VICMSSTRet = Amount(it.ICMS.ValueSTRetained)
		}
		return ICMSGroup{ICMS60: g}, nil
	default:
		return ICMSGroup{}, outcome.NewBuildError(
			fmt.Sprintf("item %d CST", it.Sequence),
			fmt.Sprintf("unsupported CST %q for regime %d", it.ICMS.CST, reg))
	}
}

// buildIPI returns nil when the line carries no IPI CST; the block must be
// omitted entirely, not emitted blank.
func buildIPI(it *invoice.Item) *IPIGroup {
	if it.IPI == nil || it.IPI.CST == "" {
		return nil
	}
	g := &IPIGroup{CEnq: "999"}
	switch it.IPI.CST {
	case "00", "49", "50", "99":
		g.IPITrib = &IPITrib{
			CST:  it.IPI.CST,
			VBC:  Amount(it.IPI.Base),
			PIPI: Rate(it.IPI.Rate),
			VIPI: Amount(it.IPI.Value),
		}
	default:
		g.IPINT = &IPINT{CST: it.IPI.CST}
	}
	return g
}

func buildPIS(it *invoice.Item) PISGroup {
	switch it.PIS.CST {
	case "01", "02":
		return PISGroup{PISAliq: &PISAliq{
			CST:  it.PIS.CST,
			VBC:  Amount(it.PIS.Base),
			PPIS: Rate(it.PIS.Rate),
			VPIS: Amount(it.PIS.Value),
		}}
	default:
		return PISGroup{PISNT: &PISNT{CST: it.PIS.CST}}
	}
}

func buildCOFINS(it *invoice.Item) COFINSGroup {
	switch it.COFINS.CST {
	case "01", "02":
		return COFINSGroup{COFINSAliq: &COFINSAliq{
			CST:     it.COFINS.CST,
			VBC:     Amount(it.COFINS.Base),
			PCOFINS: Rate(it.COFINS.Rate),
			VCOFINS: Amount(it.COFINS.Value),
		}}
	default:
		return COFINSGroup{COFINSNT: &COFINSNT{CST: it.COFINS.CST}}
	}
}
