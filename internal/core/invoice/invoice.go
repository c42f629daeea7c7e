package invoice

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OperationType is tpNF: 0 = entrada (in), 1 = saída (out).
type OperationType int

const (
	OperationIn  OperationType = 0
	OperationOut OperationType = 1
)

// Purpose is finNFe.
type Purpose int

const (
	PurposeNormal        Purpose = 1
	PurposeComplementary Purpose = 2
	PurposeAdjustment    Purpose = 3
	PurposeReturn        Purpose = 4
)

// StateRegistrationIndicator is indIEDest.
type StateRegistrationIndicator int

const (
	// IndicatorTaxpayer: destination is an ICMS taxpayer; IE is emitted.
	IndicatorTaxpayer StateRegistrationIndicator = 1
	// IndicatorExempt: taxpayer exempt from state registration.
	IndicatorExempt StateRegistrationIndicator = 2
	// IndicatorNonTaxpayer: not an ICMS taxpayer.
	IndicatorNonTaxpayer StateRegistrationIndicator = 9
)

// FreightModality is modFrete.
type FreightModality int

const (
	FreightByEmitter   FreightModality = 0
	FreightByReceiver  FreightModality = 1
	FreightThirdParty  FreightModality = 2
	FreightOwnEmitter  FreightModality = 3
	FreightOwnReceiver FreightModality = 4
	FreightNone        FreightModality = 9
)

// Destination is the snapshot of the receiving party at emission time.
type Destination struct {
	Name              string
	TaxID             string // CNPJ (14) or CPF (11), digits only
	StateRegistration string
	IEIndicator       StateRegistrationIndicator
	Email             string
	Street            string
	Number            string
	Complement        string
	District          string
	CityCode          string
	City              string
	UF                string
	ZipCode           string
	Phone             string
}

// Transporter is the optional transp/transporta block.
type Transporter struct {
	Name              string
	TaxID             string
	StateRegistration string
	Address           string
	City              string
	UF                string
}

// Payment is the pag/detPag record.
type Payment struct {
	MethodCode   string // tPag: 01 dinheiro, 03 cartão crédito, 15 boleto, ...
	Value        decimal.Decimal
	Installments int
}

// Totals mirrors the ICMSTot block. Products sums the gross line values
// (quantity x unit price, before any discount), matching the per-item vProd
// fields; Discount is derived by ComputeTotals from the document-level
// discount plus every line discount, so the two views of the document agree.
type Totals struct {
	Products      decimal.Decimal
	Freight       decimal.Decimal
	Insurance     decimal.Decimal
	Discount      decimal.Decimal
	Other         decimal.Decimal
	ICMSBase      decimal.Decimal
	ICMS          decimal.Decimal
	ICMSSTBase    decimal.Decimal
	ICMSST        decimal.Decimal
	IPI           decimal.Decimal
	PIS           decimal.Decimal
	COFINS        decimal.Decimal
	ApproxTaxes   decimal.Decimal
	GrandTotal    decimal.Decimal
}

// Invoice is the model-55 document aggregate.
type Invoice struct {
	ID            int64
	EmitterID     int64
	AccessKey     string
	Serie         int
	Number        int64
	Model         int // always 55
	NatOp         string
	EmittedAt     time.Time
	Operation     OperationType
	Purpose       Purpose
	FinalConsumer int // indFinal: 0|1
	Presence      int // indPres: 0..9
	Destination   Destination
	Freight       FreightModality
	Transporter   *Transporter
	Payment       Payment
	// Discount is the document-level discount. ComputeTotals adds the line
	// discounts to it when filling Totals.Discount.
	Discount       decimal.Decimal
	AdditionalInfo string // infCpl
	FiscalInfo     string // infAdFisco
	Totals        Totals
	Items         []Item

	Status Status
	// RejectionCode is the cStat of the last rejection. Together with
	// CorrectableRejection it decides whether the reserved number may be
	// resubmitted under a rebuilt document.
	RejectionCode string
	Protocol      string
	AuthorizedAt  *time.Time
	RawRequest    []byte
	RawResponse   []byte
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ComputeTotals normalizes every item, recomputes line totals and fills the
// Totals block. Freight, insurance and other expenses are caller inputs and
// survive the recomputation; Totals.Discount is rebuilt from the
// document-level discount plus the line discounts, while Products stays
// gross. A resubmission recomputes the same invoice, so the whole block is
// derived from inputs that do not change between runs. Rounding of the grand
// total happens once, here.
func (inv *Invoice) ComputeTotals() {
	t := Totals{
		Freight:   inv.Totals.Freight,
		Insurance: inv.Totals.Insurance,
		Other:     inv.Totals.Other,
		Discount:  inv.Discount,
	}

	for idx := range inv.Items {
		it := &inv.Items[idx]
		it.Normalize()
		t.Products = t.Products.Add(it.Quantity.Mul(it.UnitPrice).Round(2))
		t.Discount = t.Discount.Add(it.Discount)
		t.ICMSBase = t.ICMSBase.Add(it.ICMS.Base)
		t.ICMS = t.ICMS.Add(it.ICMS.Value)
		t.ICMSSTBase = t.ICMSSTBase.Add(it.ICMS.BaseSTRetained)
		t.ICMSST = t.ICMSST.Add(it.ICMS.ValueSTRetained)
		if it.IPI != nil {
			t.IPI = t.IPI.Add(it.IPI.Value)
		}
		t.PIS = t.PIS.Add(it.PIS.Value)
		t.COFINS = t.COFINS.Add(it.COFINS.Value)
		t.ApproxTaxes = t.ApproxTaxes.Add(it.Transparency.ApproxValue)
	}

	t.GrandTotal = t.Products.
		Add(t.Freight).
		Add(t.Insurance).
		Add(t.Other).
		Add(t.IPI).
		Add(t.ICMSST).
		Sub(t.Discount).
		Round(2)

	inv.Totals = t
}

// Validate checks the invoice aggregate before number reservation.
func (inv *Invoice) Validate() error {
	if inv.Model != 55 {
		return fmt.Errorf("model must be 55, got %d", inv.Model)
	}
	if inv.Purpose < PurposeNormal || inv.Purpose > PurposeReturn {
		return fmt.Errorf("invalid purpose: %d", inv.Purpose)
	}
	if inv.Operation != OperationIn && inv.Operation != OperationOut {
		return fmt.Errorf("invalid operation type: %d", inv.Operation)
	}
	if strings.TrimSpace(inv.Destination.Name) == "" {
		return fmt.Errorf("destination name is required")
	}
	if n := len(inv.Destination.TaxID); n != 11 && n != 14 {
		return fmt.Errorf("destination tax id must have 11 or 14 digits")
	}
	switch inv.Destination.IEIndicator {
	case IndicatorTaxpayer, IndicatorExempt, IndicatorNonTaxpayer:
	default:
		return fmt.Errorf("invalid state registration indicator: %d", inv.Destination.IEIndicator)
	}
	if inv.Destination.IEIndicator == IndicatorTaxpayer && strings.TrimSpace(inv.Destination.StateRegistration) == "" {
		return fmt.Errorf("state registration is required for taxpayer destinations")
	}
	if len(inv.Items) == 0 {
		return fmt.Errorf("at least one item is required")
	}
	for idx := range inv.Items {
		it := &inv.Items[idx]
		if it.Sequence != idx+1 {
			return fmt.Errorf("item sequence must be contiguous starting at 1, got %d at position %d", it.Sequence, idx+1)
		}
		if err := it.Validate(); err != nil {
			return err
		}
	}
	return nil
}
