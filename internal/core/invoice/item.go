package invoice

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ICMS carries the state tax sub-aggregate of a line. Under Simples Nacional
// CSOSN is set and CST is empty; under the normal regime it is the opposite.
type ICMS struct {
	Origin     string // orig: 0 national .. 8
	CST        string // 2 digits, regimes 2 and 3
	CSOSN      string // 3 digits, regime 1
	BCModality string // modBC
	Base       decimal.Decimal
	Rate       decimal.Decimal
	Value      decimal.Decimal
	// ST variants (CST 60 / CSOSN 500)
	BaseSTRetained  decimal.Decimal
	ValueSTRetained decimal.Decimal
}

// IPI carries the federal excise tax of a line. Emitted only when CST is set.
type IPI struct {
	CST   string
	Base  decimal.Decimal
	Rate  decimal.Decimal
	Value decimal.Decimal
}

// PIS carries the PIS contribution of a line.
type PIS struct {
	CST   string
	Base  decimal.Decimal
	Rate  decimal.Decimal
	Value decimal.Decimal
}

// COFINS carries the COFINS contribution of a line.
type COFINS struct {
	CST   string
	Base  decimal.Decimal
	Rate  decimal.Decimal
	Value decimal.Decimal
}

// TransparencyTaxes is the consumer transparency-law block (vTotTrib and the
// approximate federal/state/municipal percentages).
type TransparencyTaxes struct {
	ApproxValue  decimal.Decimal
	FederalRate  decimal.Decimal
	StateRate    decimal.Decimal
	MunicipalRate decimal.Decimal
}

// Item is one invoice line. Sequence is 1..N contiguous and stable across
// retries of the same invoice.
type Item struct {
	Sequence        int
	Code            string
	GTIN            string
	Description     string
	NCM             string
	CEST            string
	CFOP            string
	Unit            string
	Quantity        decimal.Decimal // 4 decimals
	UnitPrice       decimal.Decimal // up to 10 decimals
	Discount        decimal.Decimal
	Total           decimal.Decimal // 2 decimals, derived
	TributableUnit      string
	TributableQuantity  decimal.Decimal
	TributableUnitPrice decimal.Decimal

	ICMS         ICMS
	IPI          *IPI
	PIS          PIS
	COFINS       COFINS
	Transparency TransparencyTaxes
}

// LineTotal computes quantity x unit price - discount rounded half-up to two
// decimals. decimal.Round is half-away-from-zero, which matches half-up for
// the non-negative monetary values the layout carries.
func (i *Item) LineTotal() decimal.Decimal {
	return i.Quantity.Mul(i.UnitPrice).Sub(i.Discount).Round(2)
}

// Normalize fills the tributable triple from the commercial counterparts when
// absent and recomputes the line total.
func (i *Item) Normalize() {
	if strings.TrimSpace(i.TributableUnit) == "" {
		i.TributableUnit = i.Unit
	}
	if i.TributableQuantity.IsZero() {
		i.TributableQuantity = i.Quantity
	}
	if i.TributableUnitPrice.IsZero() {
		i.TributableUnitPrice = i.UnitPrice
	}
	i.Total = i.Quantity.Mul(i.UnitPrice).Sub(i.Discount).Round(2)
}

// Validate checks the structural requirements of a line.
func (i *Item) Validate() error {
	if strings.TrimSpace(i.Code) == "" {
		return fmt.Errorf("item %d: code is required", i.Sequence)
	}
	if strings.TrimSpace(i.Description) == "" {
		return fmt.Errorf("item %d: description is required", i.Sequence)
	}
	if len(i.NCM) != 8 {
		return fmt.Errorf("item %d: ncm must have 8 digits", i.Sequence)
	}
	if len(i.CFOP) != 4 {
		return fmt.Errorf("item %d: cfop must have 4 digits", i.Sequence)
	}
	if strings.TrimSpace(i.Unit) == "" {
		return fmt.Errorf("item %d: unit is required", i.Sequence)
	}
	if i.Quantity.Sign() <= 0 {
		return fmt.Errorf("item %d: quantity must be positive", i.Sequence)
	}
	if i.UnitPrice.Sign() < 0 {
		return fmt.Errorf("item %d: unit price cannot be negative", i.Sequence)
	}
	return nil
}
